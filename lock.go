package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrInstanceLocked is returned when another launcher holds the instance lock
var ErrInstanceLocked = errors.New("another backend launcher instance is already running")

// InstanceLock keeps a second launcher from starting a second backend
type InstanceLock struct {
	path string
	lock *flock.Flock
}

// AcquireInstanceLock takes the lock at path without blocking
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock: %s)", ErrInstanceLocked, path)
	}

	return &InstanceLock{path: path, lock: lock}, nil
}

// Path returns the lock file path
func (l *InstanceLock) Path() string {
	return l.path
}

// Release unlocks the instance lock
func (l *InstanceLock) Release() error {
	return l.lock.Unlock()
}
