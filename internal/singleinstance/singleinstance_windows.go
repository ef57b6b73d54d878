//go:build windows

// Package singleinstance keeps two companions from tailing into the same
// data directory at once.
package singleinstance

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/sys/windows"

	"github.com/graaaaa/mclog-companion/internal/appinfo"
)

// AcquireLock creates a session-scoped named mutex derived from path, so
// companions with different data directories can run side by side.
// ok is false when another process already holds it.
func AcquireLock(path string) (release func(), ok bool, err error) {
	key := strings.ToLower(filepath.Clean(path))
	name, err := windows.UTF16PtrFromString(appinfo.MutexName + "-" + strconv.FormatUint(xxh3.HashString(key), 16))
	if err != nil {
		return nil, false, err
	}

	h, err := windows.CreateMutex(nil, false, name)
	if err != nil {
		// ERROR_ALREADY_EXISTS: another instance owns the mutex
		if err == windows.ERROR_ALREADY_EXISTS {
			if h != 0 {
				windows.CloseHandle(h)
			}
			return nil, false, nil
		}
		return nil, false, err
	}

	return func() {
		windows.CloseHandle(h)
	}, true, nil
}
