//go:build windows

package namedlock

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sys/windows"
)

type mutexLocker struct{}

func newPlatformLocker() Locker { return mutexLocker{} }

// ObjectName maps a lock path to a legal kernel object name. Backslashes are
// reserved in object names outside the namespace prefix.
func ObjectName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	name := strings.ToLower(abs)
	name = strings.NewReplacer(`\`, "_", "/", "_", ":", "_").Replace(name)
	return `Global\tgminer_` + name
}

// Acquire waits for the named mutex. Kernel mutexes are owned by an OS
// thread, so the calling goroutine stays locked to its thread until Release,
// and Release must be called from the same goroutine.
func (mutexLocker) Acquire(path string) (Handle, error) {
	name, err := windows.UTF16PtrFromString(ObjectName(path))
	if err != nil {
		return nil, fmt.Errorf("mutex name for %s: %w", path, err)
	}

	h, err := windows.CreateMutex(nil, false, name)
	if err != nil && err != windows.ERROR_ALREADY_EXISTS {
		return nil, fmt.Errorf("create mutex for %s: %w", path, err)
	}

	runtime.LockOSThread()
	ev, err := windows.WaitForSingleObject(h, windows.INFINITE)
	switch {
	case err != nil:
		runtime.UnlockOSThread()
		windows.CloseHandle(h)
		return nil, fmt.Errorf("wait mutex for %s: %w", path, err)
	case ev == windows.WAIT_OBJECT_0, ev == windows.WAIT_ABANDONED:
		return &mutexHandle{path: path, h: h}, nil
	default:
		runtime.UnlockOSThread()
		windows.CloseHandle(h)
		return nil, fmt.Errorf("wait mutex for %s: unexpected result %#x", path, ev)
	}
}

type mutexHandle struct {
	mu       sync.Mutex
	path     string
	h        windows.Handle
	released bool
}

func (m *mutexHandle) Path() string { return m.path }

func (m *mutexHandle) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return ErrReleased
	}
	m.released = true
	defer runtime.UnlockOSThread()

	relErr := windows.ReleaseMutex(m.h)
	closeErr := windows.CloseHandle(m.h)
	if relErr != nil {
		return fmt.Errorf("release mutex for %s: %w", m.path, relErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close mutex for %s: %w", m.path, closeErr)
	}
	return nil
}
