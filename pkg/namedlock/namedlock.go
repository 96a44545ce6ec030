// Package namedlock provides a mutual-exclusion lock identified by a
// filesystem path. A lock held through one Handle excludes every other
// Acquire on the same path, whether it comes from another goroutine or from
// another process on the same host. The operating system reclaims the lock
// when the holding process dies.
//
// On unix the lock is an flock(2) advisory lock on a lock file; on Windows it
// is a named kernel mutex. Both backends satisfy Locker and are selected at
// build time.
package namedlock

import "errors"

// ErrReleased is returned when a Handle is released more than once.
var ErrReleased = errors.New("namedlock: handle already released")

// Handle represents ownership of an acquired lock.
type Handle interface {
	// Release gives up ownership. A second call returns ErrReleased.
	Release() error
	// Path is the path the lock was acquired on.
	Path() string
}

// Locker acquires named locks.
type Locker interface {
	// Acquire blocks until the lock at path is owned by the caller.
	Acquire(path string) (Handle, error)
}

// New returns the Locker for the current platform.
func New() Locker {
	return newPlatformLocker()
}

// Acquire is shorthand for New().Acquire(path).
func Acquire(path string) (Handle, error) {
	return New().Acquire(path)
}
