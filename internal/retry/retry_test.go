package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:        maxRetries,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestSucceedsFirstAttempt(t *testing.T) {
	e := NewExecutor(fastConfig(3))

	calls := 0
	err := e.ExecuteWithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRecoversAfterTransientFailures(t *testing.T) {
	e := NewExecutor(fastConfig(3))

	calls := 0
	err := e.ExecuteWithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestReturnsLastErrorAfterExhaustion(t *testing.T) {
	e := NewExecutor(fastConfig(3))

	calls := 0
	last := errors.New("attempt 3")
	err := e.ExecuteWithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return errors.New("earlier")
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, last, err)
}

func TestCancelDuringBackoffWait(t *testing.T) {
	e := NewExecutor(Config{
		MaxRetries:        3,
		InitialDelay:      time.Hour,
		MaxDelay:          time.Hour,
		BackoffMultiplier: 2.0,
	})

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- e.ExecuteWithRetry(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("boom")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not honour cancellation")
	}
}

func TestSingleAttemptNeverSleeps(t *testing.T) {
	e := NewExecutor(Config{
		MaxRetries:        1,
		InitialDelay:      time.Hour,
		MaxDelay:          time.Hour,
		BackoffMultiplier: 2.0,
	})

	start := time.Now()
	err := e.ExecuteWithRetry(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})

	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
