//go:build windows

package fsutil

// Directory handles cannot be flushed on Windows.
func isSyncUnsupported(err error) bool {
	return true
}
