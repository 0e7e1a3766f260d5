package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// SingleInstanceLock is an advisory file lock preventing duplicate
// GUI/daemon instances; a second process attempting to acquire the same
// path fails immediately rather than blocking.
type SingleInstanceLock struct {
	file *os.File
	path string
}

// AcquireSingleInstanceLock opens (creating if needed) the file at path
// and takes a non-blocking exclusive flock on it. If another process
// already holds the lock, it returns an error the caller should treat as
// "exit quietly, another instance is running."
func AcquireSingleInstanceLock(path string) (*SingleInstanceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("platform: open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("platform: another instance is already running: %w", err)
	}
	return &SingleInstanceLock{file: f, path: path}, nil
}

// Release drops the lock and removes the backing file.
func (l *SingleInstanceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	return os.Remove(l.path)
}
