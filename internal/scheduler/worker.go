package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"orderdesk_backend/internal/conversation"
	convrepo "orderdesk_backend/internal/conversation/repository"
	"orderdesk_backend/internal/ingestion"
	"orderdesk_backend/internal/ingestion/mapper"
	"orderdesk_backend/internal/stores"
	"orderdesk_backend/platform/apperr"
	"orderdesk_backend/platform/config"
	"orderdesk_backend/platform/logger"
)

const scanBatchLimit = 500

type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	engine      *ingestion.Engine
	orch        *conversation.Orchestrator
	stores      *stores.Repository
	convRepo    *convrepo.Repository
	client      *Client
	followupAge time.Duration
	validate    *validator.Validate
	log         *logger.Logger
}

func NewWorker(
	cfg config.SchedulerConfig,
	engine *ingestion.Engine,
	orch *conversation.Orchestrator,
	storeRepo *stores.Repository,
	convRepo *convrepo.Repository,
	client *Client,
	followupAge time.Duration,
	log *logger.Logger,
) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetWorkerConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}
	ingestWeight := cfg.GetIngestQueueWeight()
	if ingestWeight < 1 {
		ingestWeight = 3
	}
	convWeight := cfg.GetConversationQueueWeight()
	if convWeight < 1 {
		convWeight = 7
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueIngest:        ingestWeight,
			QueueConversations: convWeight,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:      server,
		mux:         mux,
		engine:      engine,
		orch:        orch,
		stores:      storeRepo,
		convRepo:    convRepo,
		client:      client,
		followupAge: followupAge,
		validate:    validator.New(),
		log:         log,
	}

	mux.HandleFunc(TaskSourceScan, w.handleSourceScan)
	mux.HandleFunc(TaskOrderIngest, w.handleOrderIngest)
	mux.HandleFunc(TaskConversationInit, w.handleConversationInit)
	mux.HandleFunc(TaskConversationIncoming, w.handleConversationIncoming)
	mux.HandleFunc(TaskConversationFollowup, w.handleConversationFollowup)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleSourceScan fans out one tick of recurring work: ingest runs for every
// active store, greetings for freshly ingested orders, and followups for
// conversations that went quiet.
func (w *Worker) handleSourceScan(ctx context.Context, _ *asynq.Task) error {
	storeIDs, err := w.stores.ListActiveWithSource(ctx)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, storeID := range storeIDs {
		g.Go(func() error {
			payload := OrderIngestPayload{StoreID: storeID.String()}
			if err := w.client.EnqueueIngest(gctx, payload); err != nil {
				w.log.Error("enqueue ingest failed", "store_id", storeID.String(), "error", err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()

	orders, err := w.convRepo.ListOrdersAwaitingContact(ctx, scanBatchLimit)
	if err != nil {
		return err
	}
	for _, order := range orders {
		if err := w.client.EnqueueConversationInit(ctx, order.StoreID, order.ID); err != nil {
			w.log.Error("enqueue conversation init failed", "order_id", order.ID.String(), "error", err.Error())
		}
	}

	if w.followupAge > 0 {
		stale, err := w.convRepo.ListStaleAwaitingChoice(ctx, w.followupAge, scanBatchLimit)
		if err != nil {
			return err
		}
		for _, conv := range stale {
			if err := w.client.EnqueueConversationFollowup(ctx, conv.StoreID, conv.ID); err != nil {
				w.log.Error("enqueue followup failed", "conversation_id", conv.ID.String(), "error", err.Error())
			}
		}
	}

	return nil
}

func (w *Worker) handleOrderIngest(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOrderIngestPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := w.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	storeID, err := uuid.Parse(payload.StoreID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	runErr := w.engine.Run(ctx, ingestion.RunParams{
		StoreID: storeID,
		Source:  payload.Source,
		Mapping: payload.Mapping,
		Entity:  mapper.Entity(payload.Entity),
		Limit:   payload.Limit,
	})
	if runErr != nil {
		w.log.JobError(TaskOrderIngest, runErr)
	}
	return asTaskError(runErr)
}

func (w *Worker) handleConversationInit(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseConversationInitPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	outcome, runErr := w.orch.Init(ctx, orderID)
	w.resolveLedger(ctx, payload.JobID, outcome, runErr)
	if runErr != nil {
		w.log.JobError(TaskConversationInit, runErr)
	}
	return asTaskError(runErr)
}

func (w *Worker) handleConversationIncoming(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseConversationIncomingPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	outcome, runErr := w.orch.Incoming(ctx, conversationID, payload.Text, payload.Payload)
	w.resolveLedger(ctx, payload.JobID, outcome, runErr)
	if runErr != nil {
		w.log.JobError(TaskConversationIncoming, runErr)
	}
	return asTaskError(runErr)
}

func (w *Worker) handleConversationFollowup(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseConversationFollowupPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	outcome, runErr := w.orch.Followup(ctx, conversationID)
	w.resolveLedger(ctx, payload.JobID, outcome, runErr)
	if runErr != nil {
		w.log.JobError(TaskConversationFollowup, runErr)
	}
	return asTaskError(runErr)
}

// resolveLedger closes or annotates the ledger entry for a conversation job.
// Only a clear outcome retires the entry; failures and inconclusive turns
// keep it open for the next scan or for operator review.
func (w *Worker) resolveLedger(ctx context.Context, jobID string, outcome conversation.Outcome, runErr error) {
	if jobID == "" {
		return
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return
	}

	switch {
	case runErr == nil:
		err = w.convRepo.ResolveJob(ctx, id, outcome.State, outcome.Removable)
	case !apperr.Retryable(runErr):
		err = w.convRepo.ResolveJob(ctx, id, "failed", false)
	default:
		return
	}
	if err != nil {
		w.log.DatabaseError("resolve conversation job", err)
	}
}

// asTaskError maps domain errors onto queue retry semantics. Permanent
// failures are surfaced once and dropped instead of burning retries.
func asTaskError(err error) error {
	if err == nil {
		return nil
	}
	if !apperr.Retryable(err) {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return err
}
