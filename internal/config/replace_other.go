//go:build !windows

package config

import "os"

// replaceFile moves src over dst. On POSIX, os.Rename atomically replaces an
// existing destination.
func replaceFile(src, dst string) error {
	return os.Rename(src, dst)
}
