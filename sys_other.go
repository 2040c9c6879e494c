//go:build !linux

package fcopy

import "os"

func adviseSequential(f *os.File, off, length int64) {}
