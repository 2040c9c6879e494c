package fcopy

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// transferState counts the bytes moved for one file. Chunk workers of the
// same file share one transferState; add is a single atomic increment, so
// reported totals never decrease.
type transferState struct {
	src, dst string
	total    int64
	copied   atomic.Int64
	report   ProgressFunc
}

func newTransferState(src, dst string, total int64, report ProgressFunc) *transferState {
	return &transferState{src: src, dst: dst, total: total, report: report}
}

// add records n more bytes and reports the running total.
func (ts *transferState) add(n int) {
	if n <= 0 {
		return
	}
	cur := ts.copied.Add(int64(n))
	if ts.report != nil {
		ts.report(ts.src, ts.dst, cur, ts.total)
	}
}

func (ts *transferState) bytes() int64 {
	return ts.copied.Load()
}

// throttle applies the shared bandwidth limit to one buffer of n bytes.
// A nil limiter never blocks.
func throttle(ctx context.Context, lim *rate.Limiter, n int) error {
	if lim == nil || n <= 0 {
		return nil
	}
	for n > 0 {
		step := min(n, lim.Burst())
		if err := lim.WaitN(ctx, step); err != nil {
			if ctx.Err() != nil {
				return interrupted(ctx)
			}
			return err
		}
		n -= step
	}
	return nil
}

// newLimiter returns a limiter for bytesPerSec, or nil when unlimited. The
// burst covers at least one buffer so a single read never exceeds it.
func newLimiter(bytesPerSec int64, bufSize int) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := max(int(min(bytesPerSec, int64(1<<30))), bufSize)
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
