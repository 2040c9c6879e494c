package fcopy

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// workerPool runs tasks on at most size goroutines. The first task error (or
// an error passed to fail) wins: it cancels the pool's context and later
// errors are discarded.
type workerPool struct {
	parent       context.Context
	ctx          context.Context
	cancel       context.CancelCauseFunc
	grp          *errgroup.Group
	slots        *semaphore.Weighted
	drainTimeout time.Duration
	fatal        atomic.Pointer[error]
}

func newWorkerPool(parent context.Context, size int, drainTimeout time.Duration) *workerPool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &workerPool{
		parent:       parent,
		ctx:          ctx,
		cancel:       cancel,
		grp:          &errgroup.Group{},
		slots:        semaphore.NewWeighted(int64(size)),
		drainTimeout: drainTimeout,
	}
}

// Context returns the context tasks should observe. It is cancelled on the
// first fatal error and when the parent is cancelled.
func (p *workerPool) Context() context.Context {
	return p.ctx
}

// fail records err as the fatal error unless one is already set, and cancels
// all tasks.
func (p *workerPool) fail(err error) {
	if err == nil {
		return
	}
	if p.fatal.CompareAndSwap(nil, &err) {
		p.cancel(err)
	}
}

// firstErr returns the recorded fatal error, if any.
func (p *workerPool) firstErr() error {
	if e := p.fatal.Load(); e != nil {
		return *e
	}
	return nil
}

// Go schedules task, blocking while the pool is saturated. It returns the
// fatal error (or an interruption) instead of scheduling once the pool has
// been cancelled, including while it waits for a free slot.
func (p *workerPool) Go(task func(ctx context.Context) error) error {
	if err := p.stopped(); err != nil {
		return err
	}
	if err := p.slots.Acquire(p.ctx, 1); err != nil {
		return p.stopped()
	}
	p.grp.Go(func() error {
		defer p.slots.Release(1)
		if p.ctx.Err() != nil {
			return nil
		}
		if err := task(p.ctx); err != nil {
			p.fail(err)
			return err
		}
		return nil
	})
	return nil
}

func (p *workerPool) stopped() error {
	if err := p.firstErr(); err != nil {
		return err
	}
	if p.ctx.Err() != nil {
		return interrupted(p.ctx)
	}
	return nil
}

// Wait blocks until all scheduled tasks finished and returns the fatal error.
// Once the pool is cancelled, in-flight tasks get drainTimeout to return;
// exceeding it yields ErrShutdownTimeout.
func (p *workerPool) Wait() error {
	done := make(chan struct{})
	go func() {
		p.grp.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-p.ctx.Done():
		timer := time.NewTimer(p.drainTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			cause := p.firstErr()
			if cause == nil {
				cause = interrupted(p.ctx)
			}
			p.cancel(nil)
			return errors.Join(ErrShutdownTimeout, cause)
		}
	}
	defer p.cancel(nil)
	if err := p.firstErr(); err != nil {
		return err
	}
	if p.parent.Err() != nil {
		return interrupted(p.parent)
	}
	return nil
}
