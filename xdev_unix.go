//go:build unix

package fcopy

import (
	"errors"

	"golang.org/x/sys/unix"
)

// crossDevice reports whether a rename failed because source and destination
// live on different filesystems.
func crossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
