package fcopy

import (
	"io/fs"
	"log/slog"
	"os"
)

// attrSyncer copies inode attributes from source to destination. Every
// operation is best-effort: failures are logged and reported through
// callbacks but never returned.
type attrSyncer struct {
	logger    *slog.Logger
	callbacks *Callbacks
}

// modTime copies the modification time of src onto dstPath.
func (a *attrSyncer) modTime(src fs.FileInfo, dstPath string) {
	mtime := src.ModTime()
	err := os.Chtimes(dstPath, mtime, mtime)
	if err != nil {
		a.logger.Debug("could not preserve modification time", "dst", dstPath, "err", err)
	}
	a.callbacks.chtimes(dstPath, err)
}

// perm copies the permission bits of src onto dstPath.
func (a *attrSyncer) perm(src fs.FileInfo, dstPath string) {
	mode := src.Mode().Perm()
	err := os.Chmod(dstPath, mode)
	if err != nil {
		a.logger.Debug("could not preserve permissions", "dst", dstPath, "mode", mode, "err", err)
	}
	a.callbacks.chmod(dstPath, mode, err)
}

// removeQuietly deletes path, ignoring a missing file. Other failures are
// logged.
func removeQuietly(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Debug("failed to delete temporary file", "path", path, "err", err)
	}
}
