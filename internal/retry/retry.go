package retry

import (
	"context"
	"time"
)

type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Executor retries a fallible operation with exponential backoff. The delay
// starts at InitialDelay, is multiplied by BackoffMultiplier after each
// failed attempt and capped at MaxDelay. No delay follows the final attempt.
type Executor struct {
	cfg Config
}

func NewExecutor(cfg Config) *Executor {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	return &Executor{cfg: cfg}
}

// ExecuteWithRetry attempts op up to MaxRetries times and returns the last
// observed error if all attempts fail. The backoff wait honours ctx
// cancellation and holds no locks.
func (e *Executor) ExecuteWithRetry(ctx context.Context, op func(ctx context.Context) error) error {
	delay := e.cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == e.cfg.MaxRetries {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * e.cfg.BackoffMultiplier)
		if delay > e.cfg.MaxDelay {
			delay = e.cfg.MaxDelay
		}
	}

	return lastErr
}
