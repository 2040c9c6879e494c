package fcopy

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// fileJob is one file of a copy task.
type fileJob struct {
	src  string
	dst  string
	size int64
}

// dirJob remembers a created directory so its mode can be applied after all
// files beneath it are written.
type dirJob struct {
	path string
	mode fs.FileMode
}

// scheduler turns walker entries into directories and pool tasks.
// Directories are created synchronously, before any task beneath them is
// scheduled. Small files are grouped into batches that run sequentially in
// one worker slot; large files and symlink replications get a task each.
type scheduler struct {
	c       *copier
	pool    *workerPool
	srcRoot string
	dstRoot string
	batch   []fileJob
	dirs    []dirJob
}

func newScheduler(c *copier, pool *workerPool, srcRoot, dstRoot string) *scheduler {
	return &scheduler{c: c, pool: pool, srcRoot: srcRoot, dstRoot: dstRoot}
}

// run consumes entries until the walk ends or a fatal error occurs. A walk
// or traversal error is recorded in the pool and returned.
func (s *scheduler) run(entries iter.Seq2[Entry, error]) error {
	for e, err := range entries {
		if err == nil {
			err = s.schedule(e)
		}
		if err != nil {
			s.pool.fail(err)
			return err
		}
	}
	if err := s.flush(); err != nil {
		s.pool.fail(err)
		return err
	}
	return nil
}

func (s *scheduler) schedule(e Entry) error {
	if err := s.pool.stopped(); err != nil {
		return err
	}
	dst, err := within(s.dstRoot, e.RelPath)
	if err != nil {
		return err
	}
	src := filepath.Join(s.srcRoot, e.RelPath)
	switch e.Kind {
	case KindDir:
		return s.mkdir(e, dst)
	case KindSymlink:
		if !s.c.opts.followSymlinks || e.TargetIsDir {
			return s.pool.Go(func(ctx context.Context) error {
				return s.c.replicateSymlink(src, dst)
			})
		}
	}
	job := fileJob{src: src, dst: dst, size: e.Size}
	if e.Size > s.c.opts.smallFileThreshold {
		return s.pool.Go(func(ctx context.Context) error {
			return s.c.copyFile(ctx, job.src, job.dst)
		})
	}
	s.batch = append(s.batch, job)
	if len(s.batch) >= s.c.opts.smallFileBatchSize {
		return s.flush()
	}
	return nil
}

// mkdir creates dst and any missing parents. An existing symlink at dst is
// refused, since files written through it could land outside the target
// root. The target root itself may be a symlink chosen by the caller.
func (s *scheduler) mkdir(e Entry, dst string) error {
	if info, err := os.Lstat(dst); err == nil {
		switch {
		case info.Mode()&fs.ModeSymlink != 0 && dst != s.dstRoot:
			return &PathError{Op: "mkdir", Path: dst, Err: ErrPathTraversal}
		case info.Mode()&fs.ModeSymlink == 0 && !info.IsDir():
			return &PathError{Op: "mkdir", Path: dst, Err: fmt.Errorf("exists and is not a directory")}
		}
	}
	mode := e.Mode.Perm() | 0o700
	err := os.MkdirAll(dst, mode)
	s.c.opts.callbacks.mkdir(dst, mode, err)
	if err != nil {
		return &PathError{Op: "mkdir", Path: dst, Err: err}
	}
	s.dirs = append(s.dirs, dirJob{path: dst, mode: e.Mode.Perm()})
	return nil
}

// flush schedules the pending small-file batch as one task.
func (s *scheduler) flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	jobs := s.batch
	s.batch = nil
	return s.pool.Go(func(ctx context.Context) error {
		for _, j := range jobs {
			if err := s.c.copyFile(ctx, j.src, j.dst); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyDirModes sets the recorded directory permissions, deepest first, so a
// read-only parent is only applied after its children.
func (s *scheduler) applyDirModes() {
	for i := len(s.dirs) - 1; i >= 0; i-- {
		d := s.dirs[i]
		info, err := os.Lstat(d.path)
		if err != nil || info.Mode().Perm() == d.mode {
			continue
		}
		err = os.Chmod(d.path, d.mode)
		if err != nil {
			s.c.logger.Debug("could not preserve directory permissions", "dst", d.path, "err", err)
		}
		s.c.opts.callbacks.chmod(d.path, d.mode, err)
	}
}
