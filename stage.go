package fcopy

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const stagingPattern = "fcopy-*.tmp"

// rename is replaced in tests to force the commit fallbacks.
var rename = os.Rename

// staging is the temporary file a transfer writes into before commit. It is
// owned by a single transfer and never shared.
type staging struct {
	f      *os.File
	path   string
	closed bool
}

func (c *copier) createStaging() (*staging, error) {
	f, err := os.CreateTemp(c.opts.StagingDir(), stagingPattern)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return &staging{f: f, path: f.Name()}, nil
}

// finish flushes and closes the staging file and gives it mode.
func (st *staging) finish(mode fs.FileMode) error {
	err := st.f.Chmod(mode)
	if syncErr := st.f.Sync(); syncErr != nil {
		err = errors.Join(err, syncErr)
	}
	if closeErr := st.close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}

func (st *staging) close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	return st.f.Close()
}

// discard closes and deletes the staging file. Failures are only logged.
func (c *copier) discard(st *staging) {
	if err := st.close(); err != nil {
		c.logger.Debug("failed to close staging file", "path", st.path, "err", err)
	}
	removeQuietly(c.logger, st.path)
}

// commit moves the finished staging file onto dst. The atomic rename is tried
// first. If it fails (typically because the staging directory is on another
// filesystem) the staged bytes are moved next to dst and renamed into place.
// If that fails too, the original source is copied directly onto dst and
// the staging file is discarded.
func (c *copier) commit(st *staging, src string, srcInfo fs.FileInfo, dst string) error {
	err := rename(st.path, dst)
	if err == nil {
		c.attrs.modTime(srcInfo, dst)
		return nil
	}
	c.logger.Debug("atomic rename failed, moving staged copy",
		"staging", st.path, "dst", dst, "cross_device", crossDevice(err), "err", err)

	err = c.relocate(st.path, dst)
	if err == nil {
		removeQuietly(c.logger, st.path)
		c.attrs.modTime(srcInfo, dst)
		return nil
	}
	c.logger.Debug("moving staged copy failed, copying from source", "src", src, "dst", dst, "err", err)

	if err := c.copyDirect(src, srcInfo, dst); err != nil {
		return fmt.Errorf("commit %s: %w", dst, err)
	}
	removeQuietly(c.logger, st.path)
	c.attrs.modTime(srcInfo, dst)
	return nil
}

// relocate copies the staged file into a hidden sibling of dst and renames
// the sibling over dst, so readers of dst still see either the old or the
// new content.
func (c *copier) relocate(stagedPath, dst string) (err error) {
	in, err := os.Open(stagedPath)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	sib, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+"."+stagingPattern)
	if err != nil {
		return err
	}
	sibPath := sib.Name()
	defer func() {
		if err != nil {
			sib.Close()
			removeQuietly(c.logger, sibPath)
		}
	}()
	buf := c.getBuf()
	defer c.putBuf(buf)
	if _, err = io.CopyBuffer(sib, in, *buf); err != nil {
		return err
	}
	if err = sib.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	if err = sib.Sync(); err != nil {
		return err
	}
	if err = sib.Close(); err != nil {
		return err
	}
	return rename(sibPath, dst)
}

// copyDirect writes src straight onto dst and copies its permission bits.
// This is the last resort of commit and is not atomic.
func (c *copier) copyDirect(src string, srcInfo fs.FileInfo, dst string) (err error) {
	// never write through a link planted at dst
	if info, lerr := os.Lstat(dst); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	buf := c.getBuf()
	defer c.putBuf(buf)
	if _, err = io.CopyBuffer(out, in, *buf); err != nil {
		return err
	}
	return out.Chmod(srcInfo.Mode().Perm())
}
