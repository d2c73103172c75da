package scheduler

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"orderdesk_backend/platform/config"
	"orderdesk_backend/platform/logger"
)

// ScanScheduler emits the recurring source scan tick. The first tick fires
// one interval after startup; the boot scan covers the gap.
type ScanScheduler struct {
	scheduler *asynq.Scheduler
	interval  time.Duration
	log       *logger.Logger
}

func NewScanScheduler(cfg config.SchedulerConfig, log *logger.Logger) (*ScanScheduler, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	interval := cfg.GetScanInterval()
	if interval < time.Minute {
		interval = time.Minute
	}

	return &ScanScheduler{
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{}),
		interval:  interval,
		log:       log,
	}, nil
}

// Run registers the scan entry and blocks until the scheduler stops.
func (s *ScanScheduler) Run() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	entryID, err := s.scheduler.Register(spec, NewSourceScanTask(),
		asynq.Queue(QueueIngest),
		asynq.MaxRetry(1),
	)
	if err != nil {
		return err
	}
	s.log.Info("scan registered", "entry_id", entryID, "interval", s.interval.String())

	return s.scheduler.Run()
}

// Shutdown stops the scheduler loop.
func (s *ScanScheduler) Shutdown() {
	if s == nil || s.scheduler == nil {
		return
	}
	s.scheduler.Shutdown()
}
