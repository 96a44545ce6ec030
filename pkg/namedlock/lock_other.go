//go:build !unix && !windows

package namedlock

import (
	"fmt"
	"runtime"
)

type unsupportedLocker struct{}

func newPlatformLocker() Locker { return unsupportedLocker{} }

func (unsupportedLocker) Acquire(path string) (Handle, error) {
	return nil, fmt.Errorf("namedlock: no lock backend for %s", runtime.GOOS)
}
