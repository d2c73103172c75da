// The worker binary runs migrations, then serves the ingest and conversation
// queues. On boot it enqueues one deduplicated source scan so a fresh deploy
// does not wait a full interval for its first run.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"orderdesk_backend/internal/conversation"
	convplanner "orderdesk_backend/internal/conversation/planner"
	convrepo "orderdesk_backend/internal/conversation/repository"
	internaldb "orderdesk_backend/internal/db"
	"orderdesk_backend/internal/ingestion"
	"orderdesk_backend/internal/ingestion/fetcher"
	"orderdesk_backend/internal/ingestion/mapper"
	ingestrepo "orderdesk_backend/internal/ingestion/repository"
	"orderdesk_backend/internal/ingestion/status"
	"orderdesk_backend/internal/scheduler"
	"orderdesk_backend/internal/stores"
	"orderdesk_backend/internal/whatsapp"
	"orderdesk_backend/platform/ai"
	"orderdesk_backend/platform/ai/gemini"
	"orderdesk_backend/platform/ai/openaicompat"
	"orderdesk_backend/platform/config"
	"orderdesk_backend/platform/db"
	"orderdesk_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, cfg, internaldb.Migrations, internaldb.MigrationsDir); err != nil {
		log.Error("failed to run migrations", "error", err)
		panic("failed to run migrations: " + err.Error())
	}

	model := newChatModel(ctx, cfg, log)

	var objects fetcher.ObjectStore
	if cfg.IsMinIOEnabled() {
		store, err := fetcher.NewMinIOObjects(cfg)
		if err != nil {
			log.Error("failed to initialize object storage", "error", err)
			panic("failed to initialize object storage: " + err.Error())
		}
		objects = store
	}

	storeRepo := stores.New(pool)
	engine := ingestion.NewEngine(
		storeRepo,
		ingestrepo.New(pool),
		fetcher.New(cfg.GetFetchTimeout(), objects, log),
		mapper.New(mapper.NewModelSuggester(model), log),
		status.New(status.NewCache(), status.NewModelClassifier(model), log),
		status.NewSchemaProvider(pool),
		cfg.GetIngestChunkSize(),
		log,
	)

	conversations := convrepo.New(pool)
	orch := conversation.NewOrchestrator(
		conversations,
		convplanner.New(model, cfg.GetAITimeout(), log),
		whatsapp.NewClient(cfg, log),
		cfg.GetHistoryWindow(),
		log,
	)

	client, err := scheduler.NewClient(cfg, conversations)
	if err != nil {
		log.Error("failed to initialize queue client", "error", err)
		panic("failed to initialize queue client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	if err := client.EnqueueBootScan(ctx); err != nil {
		log.Warn("boot scan enqueue failed", "error", err.Error())
	}

	worker, err := scheduler.NewWorker(cfg, engine, orch, storeRepo, conversations, client, cfg.GetFollowupAge(), log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	worker.Run(ctx)
}

// newChatModel picks the configured chat provider. A missing provider is
// allowed: mapping and status fall back to heuristics, planning to scripts.
func newChatModel(ctx context.Context, cfg config.AIConfig, log *logger.Logger) ai.ChatModel {
	switch cfg.GetAIProvider() {
	case "gemini":
		if cfg.GetGeminiAPIKey() == "" {
			log.Warn("gemini provider selected but GEMINI_API_KEY is empty, AI disabled")
			return nil
		}
		client, err := gemini.New(ctx, cfg.GetGeminiAPIKey(), cfg.GetGeminiModel())
		if err != nil {
			log.Error("failed to initialize gemini client", "error", err)
			panic("failed to initialize gemini client: " + err.Error())
		}
		return client
	case "openai", "moonshot", "deepseek":
		if cfg.GetChatAPIKey() == "" {
			log.Warn("chat provider selected but CHAT_API_KEY is empty, AI disabled")
			return nil
		}
		return openaicompat.New(openaicompat.Config{
			APIKey:  cfg.GetChatAPIKey(),
			BaseURL: cfg.GetChatBaseURL(),
			Model:   cfg.GetChatModel(),
		})
	default:
		log.Warn("unknown AI provider, AI disabled", "provider", cfg.GetAIProvider())
		return nil
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
