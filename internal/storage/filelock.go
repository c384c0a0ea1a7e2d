package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// lockTask acquires an exclusive flock on a per-task sentinel file under the
// store's .locks directory and returns an unlock function. Transitions hold
// the lock for the duration of the move so two processes racing to claim the
// same task serialize instead of double-claiming between directory listings.
func lockTask(baseDir, taskID string) (unlock func() error, err error) {
	lockDir := filepath.Join(baseDir, ".locks")
	if err := os.MkdirAll(lockDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	path := filepath.Join(lockDir, taskID+".lock")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquiring file lock: %w", err)
	}

	return func() error {
		defer f.Close()
		return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}
