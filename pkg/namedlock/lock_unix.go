//go:build unix

package namedlock

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

type fileLocker struct{}

func newPlatformLocker() Locker { return fileLocker{} }

// Acquire opens (creating if needed) the lock file, takes an exclusive flock
// on it and then checks that path still names the file that was locked. A
// holder that released in the meantime has unlinked the file, so the lock we
// got is on an orphan and the whole sequence starts over.
func (fileLocker) Acquire(path string) (Handle, error) {
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o666)
		if err != nil {
			return nil, fmt.Errorf("open lock file %s: %w", path, err)
		}

		if err := flock(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}

		same, err := sameFile(path, f)
		if err != nil {
			f.Close()
			return nil, err
		}
		if same {
			return &fileHandle{path: path, f: f}, nil
		}
		f.Close()
	}
}

func flock(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func sameFile(path string, f *os.File) (bool, error) {
	var onDisk, held unix.Stat_t
	if err := unix.Stat(path, &onDisk); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, fmt.Errorf("stat lock file %s: %w", path, err)
	}
	if err := unix.Fstat(int(f.Fd()), &held); err != nil {
		return false, fmt.Errorf("fstat lock file %s: %w", path, err)
	}
	return onDisk.Dev == held.Dev && onDisk.Ino == held.Ino, nil
}

type fileHandle struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func (h *fileHandle) Path() string { return h.path }

// Release unlinks the lock file before closing the descriptor. Waiters that
// wake up on the old descriptor then fail their re-validation and retry.
func (h *fileHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.f == nil {
		return ErrReleased
	}

	removeErr := os.Remove(h.path)
	closeErr := h.f.Close()
	h.f = nil

	if removeErr != nil {
		return fmt.Errorf("remove lock file %s: %w", h.path, removeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock file %s: %w", h.path, closeErr)
	}
	return nil
}
