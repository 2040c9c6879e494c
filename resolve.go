package fcopy

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// absClean returns the absolute, lexically cleaned form of p. Symlinks are
// not resolved.
func absClean(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// isWithin reports whether path equals root or lies beneath it. Both must be
// clean absolute paths.
func isWithin(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// within resolves rel against root and verifies the result stays inside root.
func within(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", &PathError{Op: "resolve", Path: rel, Err: ErrPathTraversal}
	}
	p := filepath.Join(root, rel)
	if !isWithin(root, p) {
		return "", &PathError{Op: "resolve", Path: p, Err: ErrPathTraversal}
	}
	return p, nil
}

// resolved holds the validated endpoints of one invocation.
type resolved struct {
	src     string
	dst     string
	srcInfo fs.FileInfo // Lstat of src
}

// resolvePaths normalizes source and target. The cycle check is pure and runs
// before any filesystem access.
func resolvePaths(source, target string) (resolved, error) {
	if source == "" || target == "" {
		return resolved{}, invalidArg("source and target must not be empty")
	}
	src, err := absClean(source)
	if err != nil {
		return resolved{}, &PathError{Op: "resolve", Path: source, Err: errors.Join(ErrInvalidPath, err)}
	}
	dst, err := absClean(target)
	if err != nil {
		return resolved{}, &PathError{Op: "resolve", Path: target, Err: errors.Join(ErrInvalidPath, err)}
	}
	if isWithin(src, dst) {
		return resolved{}, &PathError{Op: "resolve", Path: dst, Err: ErrCyclicCopy}
	}
	info, err := os.Lstat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return resolved{}, &PathError{Op: "stat", Path: src, Err: ErrInvalidPath}
		}
		return resolved{}, &PathError{Op: "stat", Path: src, Err: errors.Join(ErrInvalidPath, err)}
	}
	return resolved{src: src, dst: dst, srcInfo: info}, nil
}

// fileTarget returns the destination for a single-file source: the target
// itself, or target/<base(src)> when target is an existing directory.
func fileTarget(src, dst string) (string, error) {
	info, err := os.Stat(dst)
	if err == nil && info.IsDir() {
		return within(dst, filepath.Base(src))
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", &PathError{Op: "stat", Path: dst, Err: err}
	}
	return dst, nil
}
