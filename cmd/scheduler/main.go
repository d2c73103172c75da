// The scheduler binary emits the recurring source scan tick onto the ingest
// queue. Workers do the actual fetching; this process only keeps time.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"orderdesk_backend/internal/scheduler"
	"orderdesk_backend/platform/config"
	"orderdesk_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "interval", cfg.ScanInterval.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scan, err := scheduler.NewScanScheduler(cfg, log)
	if err != nil {
		log.Error("failed to initialize scan scheduler", "error", err)
		panic("failed to initialize scan scheduler: " + err.Error())
	}

	go func() {
		<-ctx.Done()
		scan.Shutdown()
	}()

	if err := scan.Run(); err != nil {
		log.Error("scan scheduler stopped", "error", err)
	}
}
