package fcopy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/time/rate"
)

// copier holds the per-invocation state shared by all transfers.
type copier struct {
	opts    Options
	threads int
	logger  *slog.Logger
	limiter *rate.Limiter
	attrs   attrSyncer
	retry   retryPolicy
	bufs    sync.Pool
}

func newCopier(threads int, opts Options) *copier {
	logger := opts.log()
	c := &copier{
		opts:    opts,
		threads: threads,
		logger:  logger,
		limiter: newLimiter(opts.rateLimit, opts.bufferSize),
	}
	c.attrs = attrSyncer{logger: logger, callbacks: &c.opts.callbacks}
	c.retry = retryPolicy{
		maxRetries: opts.maxRetries,
		delay:      opts.retryDelay,
		logger:     logger,
		callbacks:  &c.opts.callbacks,
	}
	c.bufs.New = func() any {
		b := make([]byte, opts.bufferSize)
		return &b
	}
	return c
}

func (c *copier) getBuf() *[]byte  { return c.bufs.Get().(*[]byte) }
func (c *copier) putBuf(b *[]byte) { c.bufs.Put(b) }

// useChunks reports whether a file of size bytes is copied in parallel chunks.
func (c *copier) useChunks(size int64) bool {
	return c.threads > 1 && size >= c.opts.parallelThreshold
}

// copyFile transfers src to dst with retries and reports the outcome through
// OnCopy.
func (c *copier) copyFile(ctx context.Context, src, dst string) error {
	var size int64
	err := c.retry.do(ctx, src, dst, func(ctx context.Context) error {
		n, err := c.transferOnce(ctx, src, dst)
		size = n
		return err
	})
	c.opts.callbacks.copied(src, dst, size, err)
	return err
}

// transferOnce is one attempt of the staging protocol: stage, verify, commit.
// On any failure before commit the staging file is removed and dst is left
// untouched.
func (c *copier) transferOnce(ctx context.Context, src, dst string) (int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	if !srcInfo.Mode().IsRegular() {
		return 0, &PathError{Op: "copy", Path: src, Err: fmt.Errorf("%w: not a regular file", ErrInvalidPath)}
	}
	size := srcInfo.Size()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return size, err
	}

	st, err := c.createStaging()
	if err != nil {
		return size, err
	}
	committed := false
	defer func() {
		if !committed {
			c.discard(st)
		}
	}()

	ts := newTransferState(src, dst, size, c.opts.progress)
	if c.useChunks(size) {
		err = c.copyChunked(ctx, src, st.f, size, ts)
	} else {
		err = c.copySerial(ctx, src, st.f, ts)
	}
	if err != nil {
		return size, err
	}
	if err := st.finish(stagedMode(srcInfo, dst)); err != nil {
		return size, fmt.Errorf("finish staging file: %w", err)
	}
	if c.opts.verify != HashNone {
		buf := c.getBuf()
		err := verifyStaged(ctx, c.opts.verify, src, st.path, *buf)
		c.putBuf(buf)
		if err != nil {
			return size, err
		}
	}
	if ctx.Err() != nil {
		return size, interrupted(ctx)
	}
	if err := c.commit(st, src, srcInfo, dst); err != nil {
		return size, err
	}
	committed = true
	if c.opts.preservePermissions {
		c.attrs.perm(srcInfo, dst)
	}
	return size, nil
}

// stagedMode keeps the mode of an existing destination file and otherwise
// takes the source's permission bits.
func stagedMode(srcInfo fs.FileInfo, dst string) fs.FileMode {
	if prev, err := os.Stat(dst); err == nil && prev.Mode().IsRegular() {
		return prev.Mode().Perm()
	}
	return srcInfo.Mode().Perm()
}

// copySerial streams src into out with one buffer, checking for cancellation
// and reporting progress after every write.
func (c *copier) copySerial(ctx context.Context, src string, out io.Writer, ts *transferState) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	adviseSequential(in, 0, 0)

	bp := c.getBuf()
	defer c.putBuf(bp)
	buf := *bp
	for {
		if ctx.Err() != nil {
			return interrupted(ctx)
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if err := throttle(ctx, c.limiter, n); err != nil {
				return err
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return err
			}
			ts.add(n)
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// byteRange is a contiguous slice of a file assigned to one chunk worker.
type byteRange struct {
	off int64
	n   int64
}

// splitRanges partitions size bytes into parts contiguous ranges. The last
// range absorbs the remainder. Empty ranges are never produced.
func splitRanges(size int64, parts int) []byteRange {
	if size <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if int64(parts) > size {
		parts = int(size)
	}
	chunk := size / int64(parts)
	ranges := make([]byteRange, 0, parts)
	for i := 0; i < parts; i++ {
		off := int64(i) * chunk
		n := chunk
		if i == parts-1 {
			n = size - off
		}
		ranges = append(ranges, byteRange{off: off, n: n})
	}
	return ranges
}

// copyChunked copies the first size bytes of src into out using one worker
// per range. The workers run in a pool of their own, so a saturated outer
// pool cannot starve them.
func (c *copier) copyChunked(ctx context.Context, src string, out *os.File, size int64, ts *transferState) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := out.Truncate(size); err != nil {
		return err
	}
	ranges := splitRanges(size, c.threads)
	pool := newWorkerPool(ctx, len(ranges), c.opts.drainTimeout)
	for _, r := range ranges {
		err := pool.Go(func(ctx context.Context) error {
			return c.copyRange(ctx, in, out, r, ts)
		})
		if err != nil {
			break
		}
	}
	return pool.Wait()
}

// copyRange copies r from in to the same offsets in out.
func (c *copier) copyRange(ctx context.Context, in, out *os.File, r byteRange, ts *transferState) error {
	adviseSequential(in, r.off, r.n)
	bp := c.getBuf()
	defer c.putBuf(bp)
	buf := *bp

	pos, end := r.off, r.off+r.n
	for pos < end {
		if ctx.Err() != nil {
			return interrupted(ctx)
		}
		want := min(int64(len(buf)), end-pos)
		n, rerr := in.ReadAt(buf[:want], pos)
		if n > 0 {
			if err := throttle(ctx, c.limiter, n); err != nil {
				return err
			}
			if _, err := out.WriteAt(buf[:n], pos); err != nil {
				return err
			}
			pos += int64(n)
			ts.add(n)
		}
		if errors.Is(rerr, io.EOF) {
			if pos < end {
				return fmt.Errorf("read %s at offset %d: %w", in.Name(), pos, io.ErrUnexpectedEOF)
			}
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
	return nil
}

// replicateSymlink recreates the link at src as dst with the same target
// string. It bypasses staging: creating a symlink is a single metadata
// operation.
func (c *copier) replicateSymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		c.opts.callbacks.symlink(dst, target, err)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		c.opts.callbacks.symlink(dst, target, err)
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.opts.callbacks.symlink(dst, target, err)
		return err
	}
	err = os.Symlink(target, dst)
	c.opts.callbacks.symlink(dst, target, err)
	return err
}
