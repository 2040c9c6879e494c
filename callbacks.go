package fcopy

import (
	"io/fs"
)

// ProgressFunc receives the cumulative byte count copied for one file and the
// file's total size. It is called from worker goroutines and must be safe for
// concurrent use.
type ProgressFunc func(srcPath, dstPath string, bytesCopied, totalBytes int64)

// IgnoreFunc decides whether a source entry is skipped. name is the base name,
// path the absolute source path. Skipping a directory skips its whole subtree.
type IgnoreFunc func(name, path string, isDir bool, info fs.FileInfo) bool

// Callbacks define optional handlers for copy operations.
// All callbacks are optional (zero value means no callback).
// They are called from worker goroutines and must be safe for concurrent use.
type Callbacks struct {
	// OnMkdir is called after creating (or finding) a target directory.
	OnMkdir func(path string, mode fs.FileMode, err error)

	// OnCopy is called after a file transfer finished, successfully or not.
	// size is the source size in bytes.
	OnCopy func(srcPath, dstPath string, size int64, err error)

	// OnSymlink is called after replicating a symlink.
	OnSymlink func(linkPath, target string, err error)

	// OnChmod is called after copying permission bits.
	OnChmod func(path string, mode fs.FileMode, err error)

	// OnChtimes is called after copying the modification time.
	OnChtimes func(path string, err error)

	// OnRetry is called before a failed transfer is retried. attempt is the
	// number of the attempt that failed, starting at 1.
	OnRetry func(srcPath string, attempt int, err error)
}

func (c *Callbacks) mkdir(path string, mode fs.FileMode, err error) {
	if c.OnMkdir != nil {
		c.OnMkdir(path, mode, err)
	}
}

func (c *Callbacks) copied(src, dst string, size int64, err error) {
	if c.OnCopy != nil {
		c.OnCopy(src, dst, size, err)
	}
}

func (c *Callbacks) symlink(link, target string, err error) {
	if c.OnSymlink != nil {
		c.OnSymlink(link, target, err)
	}
}

func (c *Callbacks) chmod(path string, mode fs.FileMode, err error) {
	if c.OnChmod != nil {
		c.OnChmod(path, mode, err)
	}
}

func (c *Callbacks) chtimes(path string, err error) {
	if c.OnChtimes != nil {
		c.OnChtimes(path, err)
	}
}

func (c *Callbacks) retry(src string, attempt int, err error) {
	if c.OnRetry != nil {
		c.OnRetry(src, attempt, err)
	}
}
