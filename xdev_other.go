//go:build !unix

package fcopy

// crossDevice is unknown off unix; the commit chain falls back regardless.
func crossDevice(err error) bool {
	return false
}
