package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Pass is one scan-and-attempt cycle over the outbox.
type Pass interface {
	PublishPendingEvents(ctx context.Context) (Result, error)
}

type RunnerConfig struct {
	StartupDelay    time.Duration
	Interval        time.Duration
	ErrorRetryDelay time.Duration
}

// Runner drives a Pass on a fixed cadence until its context is cancelled.
type Runner struct {
	pass   Pass
	cfg    RunnerConfig
	logger *zap.Logger
}

func NewRunner(pass Pass, cfg RunnerConfig, logger *zap.Logger) *Runner {
	return &Runner{
		pass:   pass,
		cfg:    cfg,
		logger: logger,
	}
}

// Run blocks until ctx is cancelled and then returns nil. A failed or
// panicking tick is logged and followed by ErrorRetryDelay instead of
// Interval; it never stops the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Starting outbox publisher",
		zap.Duration("startup_delay", r.cfg.StartupDelay),
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("error_retry_delay", r.cfg.ErrorRetryDelay))

	if !sleep(ctx, r.cfg.StartupDelay) {
		r.logger.Info("Outbox publisher stopped before first tick")
		return nil
	}

	for {
		delay := r.cfg.Interval
		if err := r.tick(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			tickErrors.Inc()
			r.logger.Error("Outbox publisher tick failed",
				zap.Duration("retry_in", r.cfg.ErrorRetryDelay),
				zap.Error(err))
			delay = r.cfg.ErrorRetryDelay
		}

		if !sleep(ctx, delay) {
			break
		}
	}

	r.logger.Info("Outbox publisher stopped")
	return nil
}

func (r *Runner) tick(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in outbox pass: %v", rec)
		}
	}()

	res, err := r.pass.PublishPendingEvents(ctx)
	if err != nil {
		return err
	}
	if !res.OK() {
		r.logger.Warn("Outbox pass finished with failures",
			zap.Int("failed", res.Failed),
			zap.Int("dead_lettered", res.DeadLettered))
	}
	return nil
}

// sleep waits for d and reports false if ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
