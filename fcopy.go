// Package fcopy copies files and directory trees with bounded parallelism.
//
// Every file is written to a staging file first and moved onto its
// destination only once it is complete, so a destination file is always
// either absent, its previous version, or the complete new version. Writes
// are confined to the target root: a path that would resolve outside of it
// stops the copy.
//
// Key Features:
//   - Worker pool sized by the caller, with small files batched per task
//   - Parallel chunked copy of large files
//   - Retries with a fixed delay for transient I/O failures
//   - Per-file progress callbacks and operation callbacks
//   - Symlink replication or following, optional permission preservation
//   - Optional digest verification of staged copies and bandwidth limiting
//
// Example usage:
//
//	opts, err := fcopy.NewOptions(
//	    fcopy.WithMaxRetries(5),
//	    fcopy.WithProgress(func(src, dst string, copied, total int64) {
//	        log.Printf("%s: %d/%d", src, copied, total)
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := fcopy.Copy(ctx, "/source/path", "/dest/path", 4, opts); err != nil {
//	    log.Fatal(err)
//	}
package fcopy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Version is the current version of the fcopy package.
const Version = "0.2.0"

// Copy copies the file or directory source to target using at most threads
// concurrent file transfers. It blocks until the copy finished, failed, or
// ctx was cancelled.
//
// A directory source is mirrored into target, which is created if needed. A
// file source is copied to target, or into target when target is an existing
// directory. target must not equal or lie inside source.
//
// The returned error wraps ErrInvalidArgument, ErrInvalidPath or
// ErrCyclicCopy for rejected input. Failures during the copy are returned as
// a *FatalError holding the first error that stopped it.
func Copy(ctx context.Context, source, target string, threads int, opts Options) error {
	if threads < 1 {
		return invalidArg("threads must be >= 1, got %d", threads)
	}
	if err := opts.validate(); err != nil {
		return err
	}
	res, err := resolvePaths(source, target)
	if err != nil {
		return err
	}

	c := newCopier(threads, opts)
	c.logger.Debug("copy started", "src", res.src, "dst", res.dst, "threads", threads)

	// A root link to a directory is always followed; a root link to a file
	// only with followSymlinks.
	info := res.srcInfo
	if info.Mode()&fs.ModeSymlink != 0 {
		linked, err := os.Stat(res.src)
		switch {
		case err == nil && linked.IsDir():
			targetDir, err := filepath.EvalSymlinks(res.src)
			if err != nil {
				return &PathError{Op: "resolve", Path: res.src, Err: errors.Join(ErrInvalidPath, err)}
			}
			if isWithin(targetDir, res.dst) {
				return &PathError{Op: "resolve", Path: res.dst, Err: ErrCyclicCopy}
			}
			info = linked
		case opts.followSymlinks:
			if err != nil {
				return &PathError{Op: "stat", Path: res.src, Err: fmt.Errorf("%w: %w", ErrInvalidPath, err)}
			}
			info = linked
		}
	}

	switch {
	case info.IsDir():
		err = c.copyTree(ctx, res.src, res.dst)
	case info.Mode().IsRegular(), info.Mode()&fs.ModeSymlink != 0:
		err = c.copySingle(ctx, res.src, res.dst, info)
	default:
		return &PathError{Op: "copy", Path: res.src, Err: fmt.Errorf("%w: unsupported file type %s", ErrInvalidPath, info.Mode().Type())}
	}
	if err != nil {
		c.logger.Error("copy failed", "src", res.src, "dst", res.dst, "err", err)
		return &FatalError{Source: res.src, Target: res.dst, Err: err}
	}
	c.logger.Debug("copy finished", "src", res.src, "dst", res.dst)
	return nil
}

// copyTree mirrors the directory src into dst.
func (c *copier) copyTree(ctx context.Context, src, dst string) error {
	pool := newWorkerPool(ctx, c.threads, c.opts.drainTimeout)
	s := newScheduler(c, pool, src, dst)
	// run records its own failure in the pool; Wait reports it
	_ = s.run(walkTree(src, c.opts.ignore))
	if err := pool.Wait(); err != nil {
		return err
	}
	if c.opts.preservePermissions {
		s.applyDirModes()
	}
	return nil
}

// copySingle copies one file or symlink. Large files use the chunked
// strategy when more than one thread is available.
func (c *copier) copySingle(ctx context.Context, src, dst string, info fs.FileInfo) error {
	dst, err := fileTarget(src, dst)
	if err != nil {
		return err
	}
	if dst == src {
		return &PathError{Op: "copy", Path: dst, Err: ErrCyclicCopy}
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return c.replicateSymlink(src, dst)
	}
	return c.copyFile(ctx, src, dst)
}
