package scheduler

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	convrepo "orderdesk_backend/internal/conversation/repository"
	"orderdesk_backend/platform/config"
)

// Queue names. Ingest runs are heavy and batchy; conversation turns are small
// and latency sensitive, so they get separate queues with their own weights.
const (
	QueueIngest        = "ingest"
	QueueConversations = "conversations"
)

// bootScanTaskID deduplicates the startup scan across restarting workers.
const bootScanTaskID = "source-scan-boot"

type Client struct {
	client   *asynq.Client
	ledger   *convrepo.Repository
	validate *validator.Validate
}

// NewClient builds the enqueue side. ledger may be nil in tests; conversation
// jobs then skip the bookkeeping entry.
func NewClient(cfg config.SchedulerConfig, ledger *convrepo.Repository) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client:   asynq.NewClient(opt),
		ledger:   ledger,
		validate: validator.New(),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueBootScan schedules one scan right away, deduplicated by task ID so a
// fleet of restarting workers produces a single run.
func (c *Client) EnqueueBootScan(ctx context.Context) error {
	_, err := c.client.EnqueueContext(ctx, NewSourceScanTask(),
		asynq.Queue(QueueIngest),
		asynq.TaskID(bootScanTaskID),
		asynq.MaxRetry(1),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueIngest schedules one ingest run for a store.
func (c *Client) EnqueueIngest(ctx context.Context, payload OrderIngestPayload) error {
	if err := c.validate.Struct(payload); err != nil {
		return fmt.Errorf("invalid ingest payload: %w", err)
	}

	task, err := NewOrderIngestTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueIngest), asynq.MaxRetry(5))
	return err
}

// EnqueueConversationInit opens a ledger entry and schedules the greeting job.
func (c *Client) EnqueueConversationInit(ctx context.Context, storeID, orderID uuid.UUID) error {
	payload := ConversationInitPayload{
		StoreID: storeID.String(),
		OrderID: orderID.String(),
	}
	jobID, err := c.recordJob(ctx, storeID, &orderID, nil, TaskConversationInit)
	if err != nil {
		return err
	}
	payload.JobID = jobID

	task, err := NewConversationInitTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueConversations), asynq.MaxRetry(3))
	return err
}

// EnqueueConversationIncoming schedules processing of one customer message.
// envelope is the raw channel payload and may be nil for plain text.
func (c *Client) EnqueueConversationIncoming(ctx context.Context, storeID, conversationID uuid.UUID, text string, envelope json.RawMessage) error {
	payload := ConversationIncomingPayload{
		StoreID:        storeID.String(),
		ConversationID: conversationID.String(),
		Text:           text,
		Payload:        envelope,
	}
	jobID, err := c.recordJob(ctx, storeID, nil, &conversationID, TaskConversationIncoming)
	if err != nil {
		return err
	}
	payload.JobID = jobID

	task, err := NewConversationIncomingTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueConversations), asynq.MaxRetry(3))
	return err
}

// EnqueueConversationFollowup schedules a re-prompt for a stale conversation.
func (c *Client) EnqueueConversationFollowup(ctx context.Context, storeID, conversationID uuid.UUID) error {
	payload := ConversationFollowupPayload{
		StoreID:        storeID.String(),
		ConversationID: conversationID.String(),
	}
	jobID, err := c.recordJob(ctx, storeID, nil, &conversationID, TaskConversationFollowup)
	if err != nil {
		return err
	}
	payload.JobID = jobID

	task, err := NewConversationFollowupTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueConversations), asynq.MaxRetry(3))
	return err
}

func (c *Client) recordJob(ctx context.Context, storeID uuid.UUID, orderID, conversationID *uuid.UUID, kind string) (string, error) {
	if c.ledger == nil {
		return "", nil
	}
	id, err := c.ledger.RecordJob(ctx, storeID, orderID, conversationID, kind, nil)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
