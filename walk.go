package fcopy

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// EntryKind classifies a walked entry.
type EntryKind int

const (
	KindDir EntryKind = iota
	KindFile
	KindSymlink
)

func (k EntryKind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	}
	return "unknown"
}

// Entry is one item of the source tree. RelPath is relative to the walk root;
// the root itself is ".".
type Entry struct {
	RelPath string
	Kind    EntryKind
	// Size is the file size, or for symlinks the size of the link target
	// (0 when the target cannot be stat'ed).
	Size int64
	Mode fs.FileMode
	// TargetIsDir is set for symlinks pointing at a directory.
	TargetIsDir bool
}

// walkTree returns a pre-order sequence over the tree rooted at root. A
// directory is yielded before its children; children are in lexical order.
// Symlinks below the root are never descended into. The sequence ends after
// the first error, which is a *WalkError.
func walkTree(root string, ignore IgnoreFunc) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		// the root is followed when it is a link to a directory
		info, err := os.Stat(root)
		if err != nil {
			yield(Entry{}, &WalkError{Path: root, Err: err})
			return
		}
		if !info.IsDir() {
			yield(Entry{}, &WalkError{Path: root, Err: ErrInvalidPath})
			return
		}
		w := &walker{root: root, ignore: ignore, yield: yield}
		if !w.yield(Entry{RelPath: ".", Kind: KindDir, Mode: info.Mode()}, nil) {
			return
		}
		w.walkDir(".")
	}
}

type walker struct {
	root   string
	ignore IgnoreFunc
	yield  func(Entry, error) bool
}

// walkDir yields the children of rel. It returns false once the consumer
// stopped or an error ended the walk.
func (w *walker) walkDir(rel string) bool {
	dir := filepath.Join(w.root, rel)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		w.yield(Entry{}, &WalkError{Path: dir, Err: err})
		return false
	}
	for _, de := range dirEntries {
		name := de.Name()
		childRel := filepath.Join(rel, name)
		childPath := filepath.Join(w.root, childRel)
		info, err := os.Lstat(childPath)
		if err != nil {
			w.yield(Entry{}, &WalkError{Path: childPath, Err: err})
			return false
		}
		if w.ignore != nil && w.ignore(name, childPath, info.IsDir(), info) {
			continue
		}
		entry := Entry{RelPath: childRel, Mode: info.Mode()}
		switch {
		case info.IsDir():
			entry.Kind = KindDir
			if !w.yield(entry, nil) {
				return false
			}
			if !w.walkDir(childRel) {
				return false
			}
			continue
		case info.Mode()&fs.ModeSymlink != 0:
			entry.Kind = KindSymlink
			if target, err := os.Stat(childPath); err == nil {
				entry.Size = target.Size()
				entry.TargetIsDir = target.IsDir()
			}
		case info.Mode().IsRegular():
			entry.Kind = KindFile
			entry.Size = info.Size()
		default:
			// devices, sockets and pipes have no content to copy
			continue
		}
		if !w.yield(entry, nil) {
			return false
		}
	}
	return true
}
