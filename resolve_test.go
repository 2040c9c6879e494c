package fcopy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
)

func TestIsWithin(t *testing.T) {
	tests := []struct {
		root, path string
		want       bool
	}{
		{"/a/b", "/a/b", true},
		{"/a/b", "/a/b/c", true},
		{"/a/b", "/a/bc", false},
		{"/a/b", "/a", false},
		{"/", "/anything", true},
	}
	for _, tt := range tests {
		if got := isWithin(filepath.FromSlash(tt.root), filepath.FromSlash(tt.path)); got != tt.want {
			t.Errorf("isWithin(%q, %q) = %v, want %v", tt.root, tt.path, got, tt.want)
		}
	}
}

func TestWithin(t *testing.T) {
	is := is.New(t)
	root := t.TempDir()

	p, err := within(root, filepath.Join("a", "b.txt"))
	is.NoErr(err)
	is.Equal(p, filepath.Join(root, "a", "b.txt"))

	p, err = within(root, ".")
	is.NoErr(err)
	is.Equal(p, root)

	for _, rel := range []string{"..", filepath.Join("..", "escape"), filepath.Join("a", "..", "..", "x"), root} {
		_, err := within(root, rel)
		is.True(errors.Is(err, ErrPathTraversal)) // rel must be rejected
	}
}

func TestResolvePaths(t *testing.T) {
	is := is.New(t)
	src := t.TempDir()

	res, err := resolvePaths(src+string(filepath.Separator)+".", filepath.Join(t.TempDir(), "x", "..", "y"))
	is.NoErr(err)
	is.Equal(res.src, src)
	is.Equal(filepath.Base(res.dst), "y")
	is.True(res.srcInfo.IsDir())

	_, err = resolvePaths(src, filepath.Join(src, "sub"))
	is.True(errors.Is(err, ErrCyclicCopy))

	_, err = resolvePaths(filepath.Join(src, "missing"), t.TempDir())
	is.True(errors.Is(err, ErrInvalidPath))

	_, err = resolvePaths("", src)
	is.True(errors.Is(err, ErrInvalidArgument))
}

// the cycle check needs no filesystem access, so a missing source nested
// target still reports the cycle
func TestResolveCycleBeforeStat(t *testing.T) {
	is := is.New(t)
	missing := filepath.Join(t.TempDir(), "missing")
	_, err := resolvePaths(missing, filepath.Join(missing, "copy"))
	is.True(errors.Is(err, ErrCyclicCopy))
}

func TestFileTarget(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "a.txt")

	got, err := fileTarget(src, dir)
	is.NoErr(err)
	is.Equal(got, filepath.Join(dir, "a.txt"))

	target := filepath.Join(dir, "b.txt")
	got, err = fileTarget(src, target)
	is.NoErr(err)
	is.Equal(got, target)

	is.NoErr(os.WriteFile(target, []byte("x"), 0644))
	got, err = fileTarget(src, target)
	is.NoErr(err)
	is.Equal(got, target)
}
