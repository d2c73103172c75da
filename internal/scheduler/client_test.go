package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

type testSchedulerConfig struct {
	url string
}

func (c testSchedulerConfig) GetRedisURL() string             { return c.url }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool       { return false }
func (c testSchedulerConfig) GetWorkerConcurrency() int       { return 1 }
func (c testSchedulerConfig) GetIngestQueueWeight() int       { return 1 }
func (c testSchedulerConfig) GetConversationQueueWeight() int { return 1 }
func (c testSchedulerConfig) GetScanInterval() time.Duration  { return time.Minute }

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@localhost:6390/2", false)
	if err != nil {
		t.Fatalf("redisClientOpt: %v", err)
	}
	if opt.Addr != "localhost:6390" || opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("opt = %+v", opt)
	}
	if opt.TLSConfig != nil {
		t.Fatal("plain redis URL must not enable TLS")
	}

	opt, err = redisClientOpt("rediss://localhost:6390", true)
	if err != nil {
		t.Fatalf("redisClientOpt tls: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatalf("tls opt = %+v", opt.TLSConfig)
	}

	if _, err := redisClientOpt("://notaurl", false); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestNewClient_RequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{url: ""}, nil); err == nil {
		t.Fatal("expected error without redis URL")
	}
}

func TestEnqueueBootScan_Deduplicated(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(testSchedulerConfig{url: "redis://" + mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.EnqueueBootScan(context.Background()); err != nil {
		t.Fatalf("first boot scan: %v", err)
	}
	// A second restart enqueues again; the fixed task ID makes it a no-op.
	if err := client.EnqueueBootScan(context.Background()); err != nil {
		t.Fatalf("second boot scan: %v", err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer func() { _ = inspector.Close() }()

	tasks, err := inspector.ListPendingTasks(QueueIngest)
	if err != nil {
		t.Fatalf("ListPendingTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("pending scans = %d, want 1", len(tasks))
	}
	if tasks[0].Type != TaskSourceScan {
		t.Fatalf("task type = %q", tasks[0].Type)
	}
}

func TestEnqueueIngest_ValidatesPayload(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(testSchedulerConfig{url: "redis://" + mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.EnqueueIngest(context.Background(), OrderIngestPayload{}); err == nil {
		t.Fatal("expected validation error for missing store ID")
	}
	if err := client.EnqueueIngest(context.Background(), OrderIngestPayload{StoreID: "not-a-uuid"}); err == nil {
		t.Fatal("expected validation error for malformed store ID")
	}
	if err := client.EnqueueIngest(context.Background(), OrderIngestPayload{
		StoreID: "5a210b52-0f5e-4c4b-9a3c-2a2e4ffcdc1e",
	}); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}
