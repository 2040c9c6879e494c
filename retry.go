package fcopy

import (
	"context"
	"log/slog"
	"time"
)

// retryPolicy reruns a failed transfer attempt after a fixed delay.
type retryPolicy struct {
	maxRetries int
	delay      time.Duration
	logger     *slog.Logger
	callbacks  *Callbacks
}

// do runs attempt until it succeeds, fails with a non-retryable error, or
// maxRetries additional attempts are used up. Interruption, including during
// the delay, is returned immediately and never retried.
func (rp *retryPolicy) do(ctx context.Context, src, dst string, attempt func(ctx context.Context) error) error {
	var last error
	attempts := 0
	for attempts <= rp.maxRetries {
		if ctx.Err() != nil {
			return interrupted(ctx)
		}
		err := attempt(ctx)
		attempts++
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
		if attempts > rp.maxRetries {
			break
		}
		rp.logger.Warn("copy attempt failed, retrying",
			"src", src, "attempt", attempts, "delay", rp.delay, "err", err)
		rp.callbacks.retry(src, attempts, err)
		if err := sleepCtx(ctx, rp.delay); err != nil {
			return err
		}
	}
	return &TransferFailedError{Source: src, Target: dst, Attempts: attempts, Err: last}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return interrupted(ctx)
	}
}
