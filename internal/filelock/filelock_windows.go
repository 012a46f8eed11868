//go:build windows

package filelock

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// Retry bounds while another process holds the lock.
const (
	minRetry = time.Millisecond
	maxRetry = 50 * time.Millisecond
)

// lockFile polls with LOCKFILE_FAIL_IMMEDIATELY so a contended lock never
// parks an OS thread inside LockFileEx.
func lockFile(f *os.File) error {
	h := windows.Handle(f.Fd())
	wait := minRetry
	for {
		err := windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, new(windows.Overlapped))
		if err == nil {
			return nil
		}
		if !errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return err
		}
		time.Sleep(wait)
		wait = min(wait*2, maxRetry) //nolint:mnd // exponential backoff
	}
}

func unlockFile(f *os.File) error {
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, new(windows.Overlapped))
}
