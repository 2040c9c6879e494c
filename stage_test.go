package fcopy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/matryer/is"
)

var oldTime = time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC)

// stageBytes writes content into a fresh staging file of c.
func stageBytes(t *testing.T, c *copier, content string) *staging {
	t.Helper()
	st, err := c.createStaging()
	if err != nil {
		t.Fatalf("createStaging: %v", err)
	}
	if _, err := st.f.WriteString(content); err != nil {
		t.Fatalf("write staging: %v", err)
	}
	if err := st.finish(0o644); err != nil {
		t.Fatalf("finish staging: %v", err)
	}
	return st
}

// sourceWithTime writes an old-dated source file and returns its info.
func sourceWithTime(t *testing.T, content string) (string, os.FileInfo) {
	t.Helper()
	src := filepath.Join(t.TempDir(), "src.txt")
	writeFile(t, src, []byte(content))
	if err := os.Chtimes(src, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	info, err := os.Stat(src)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	return src, info
}

// failRename makes rename fail for the paths fail accepts. Tests using it
// must not run in parallel.
func failRename(t *testing.T, fail func(oldpath string) bool) {
	t.Helper()
	orig := rename
	rename = func(oldpath, newpath string) error {
		if fail(oldpath) {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}
		return orig(oldpath, newpath)
	}
	t.Cleanup(func() { rename = orig })
}

func assertCommitted(t *testing.T, dst, want, stagedPath string) {
	t.Helper()
	is := is.NewRelaxed(t)
	got, err := os.ReadFile(dst)
	is.NoErr(err)
	is.Equal(string(got), want)
	info, err := os.Stat(dst)
	is.NoErr(err)
	is.True(info.ModTime().Equal(oldTime))
	_, err = os.Stat(stagedPath)
	is.True(errors.Is(err, os.ErrNotExist)) // staging file removed
	entries, err := os.ReadDir(filepath.Dir(dst))
	is.NoErr(err)
	is.Equal(len(entries), 1) // no hidden sibling left
}

func TestCommitRename(t *testing.T) {
	is := is.New(t)
	c := newCopier(1, testOptions(t, WithStagingDir(t.TempDir())))
	src, info := sourceWithTime(t, "source bytes")
	dst := filepath.Join(t.TempDir(), "dst.txt")
	st := stageBytes(t, c, "staged bytes")

	is.NoErr(c.commit(st, src, info, dst))
	assertCommitted(t, dst, "staged bytes", st.path)
}

func TestCommitRelocatesWhenRenameFails(t *testing.T) {
	is := is.New(t)
	c := newCopier(1, testOptions(t, WithStagingDir(t.TempDir())))
	src, info := sourceWithTime(t, "source bytes")
	dst := filepath.Join(t.TempDir(), "dst.txt")
	writeFile(t, dst, []byte("previous"))
	st := stageBytes(t, c, "staged bytes")
	failRename(t, func(oldpath string) bool { return oldpath == st.path })

	is.NoErr(c.commit(st, src, info, dst))
	assertCommitted(t, dst, "staged bytes", st.path)
}

// When the staged bytes cannot be moved at all, the original source is
// copied rather than the staging file.
func TestCommitCopiesSourceWhenRelocateFails(t *testing.T) {
	is := is.New(t)
	c := newCopier(1, testOptions(t, WithStagingDir(t.TempDir())))
	src, info := sourceWithTime(t, "source bytes")
	dst := filepath.Join(t.TempDir(), "dst.txt")
	writeFile(t, dst, []byte("previous"))
	st := stageBytes(t, c, "staged bytes")
	failRename(t, func(string) bool { return true })

	is.NoErr(c.commit(st, src, info, dst))
	assertCommitted(t, dst, "source bytes", st.path)
}

func TestCommitFailsWhenSourceGone(t *testing.T) {
	is := is.New(t)
	c := newCopier(1, testOptions(t, WithStagingDir(t.TempDir())))
	src, info := sourceWithTime(t, "source bytes")
	is.NoErr(os.Remove(src))
	dst := filepath.Join(t.TempDir(), "dst.txt")
	st := stageBytes(t, c, "staged bytes")
	failRename(t, func(string) bool { return true })

	err := c.commit(st, src, info, dst)
	is.True(err != nil)
	is.True(errors.Is(err, os.ErrNotExist))
}

// Staging on a tmpfs usually puts the staging file on another device than
// the target.
func TestCopyWithStagingOnOtherFilesystem(t *testing.T) {
	is := is.New(t)
	if info, err := os.Stat("/dev/shm"); err != nil || !info.IsDir() {
		t.Skip("/dev/shm not available")
	}
	staging, err := os.MkdirTemp("/dev/shm", "fcopy-test-")
	if err != nil {
		t.Skipf("/dev/shm not writable: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(staging) })

	src, _ := sourceWithTime(t, "hello")
	dst := filepath.Join(t.TempDir(), "out.txt")
	is.NoErr(Copy(context.Background(), src, dst, 1, testOptions(t, WithStagingDir(staging))))

	got, err := os.ReadFile(dst)
	is.NoErr(err)
	is.Equal(string(got), "hello")
	info, err := os.Stat(dst)
	is.NoErr(err)
	is.True(info.ModTime().Equal(oldTime))
	left, err := os.ReadDir(staging)
	is.NoErr(err)
	is.Equal(len(left), 0)
}
