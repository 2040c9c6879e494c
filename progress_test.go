package fcopy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

// concurrent chunk workers never make the reported total go backwards
func TestTransferStateMonotonic(t *testing.T) {
	is := is.New(t)
	var mu sync.Mutex
	var reports []int64
	ts := newTransferState("s", "d", 8*1000, func(_, _ string, copied, total int64) {
		mu.Lock()
		reports = append(reports, copied)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				ts.add(1)
			}
		}()
	}
	wg.Wait()
	is.Equal(ts.bytes(), int64(8000))
	is.Equal(len(reports), 8000)

	seen := make(map[int64]bool, len(reports))
	for _, r := range reports {
		is.True(!seen[r]) // each running total reported once
		seen[r] = true
	}
	is.True(seen[8000])
}

func TestTransferStateIgnoresEmptyWrites(t *testing.T) {
	is := is.New(t)
	calls := 0
	ts := newTransferState("s", "d", 1, func(_, _ string, _, _ int64) { calls++ })
	ts.add(0)
	is.Equal(calls, 0)
	ts.add(1)
	is.Equal(calls, 1)
}

func TestNewLimiter(t *testing.T) {
	is := is.New(t)
	is.True(newLimiter(0, 1024) == nil)

	lim := newLimiter(100, 4096)
	is.True(lim != nil)
	is.Equal(lim.Burst(), 4096) // a whole buffer fits in one wait

	lim = newLimiter(1<<20, 4096)
	is.Equal(lim.Burst(), 1<<20)

	is.NoErr(throttle(context.Background(), nil, 1<<30))
}

func TestThrottleInterrupted(t *testing.T) {
	is := is.New(t)
	lim := newLimiter(10, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := throttle(ctx, lim, 1000)
	is.True(err != nil)
	is.True(time.Since(start) < 10*time.Second)
	if errors.Is(err, ErrInterrupted) {
		is.True(errors.Is(err, context.DeadlineExceeded))
	}
}
