// Package scheduler repeats a task on a fixed interval, for deployments that
// run the AOI pass as a long-lived service instead of a cron job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 30 * time.Second
)

// Task is one scheduled pass. It receives the attempt number, starting at 0.
type Task func(ctx context.Context, attempt int) error

type Config struct {
	Interval   time.Duration
	MaxRetries int
	Backoff    time.Duration
}

func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %s", c.Interval)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.Backoff < 0 {
		return fmt.Errorf("backoff must be >= 0, got %s", c.Backoff)
	}
	return nil
}

// Start runs task right away and then on every tick until ctx is done. A
// failing pass is retried up to MaxRetries times, Backoff apart; when every
// attempt fails Start returns the last error. Ticks that fire while a pass
// is running are dropped.
func Start(ctx context.Context, cfg Config, task Task, log *zap.SugaredLogger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	t := time.NewTicker(cfg.Interval)
	defer t.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := runWithRetries(ctx, cfg, task, log); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func runWithRetries(ctx context.Context, cfg Config, task Task, log *zap.SugaredLogger) error {
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err = task(ctx, attempt)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}
		log.Warnw("scheduled pass failed, retrying", "attempt", attempt+1, "backoff", cfg.Backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Backoff):
		}
	}
	return fmt.Errorf("scheduled pass failed after %d attempts: %w", cfg.MaxRetries+1, err)
}
