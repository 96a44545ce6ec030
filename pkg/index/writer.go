package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/tinyland-inc/tgminer/pkg/namedlock"
)

// Writer serializes access to an Engine. Every operation first takes an
// in-process mutex and then the named lock at <data dir>/mutex, so at most
// one writer (or locked reader) across all goroutines and processes sharing
// the data dir touches the index at a time. Both are released in reverse
// order on every exit path.
type Writer struct {
	mu       sync.Mutex
	engine   Engine
	locker   namedlock.Locker
	lockPath string
}

// NewWriter guards engine with the named lock under dataDir.
func NewWriter(engine Engine, dataDir string) *Writer {
	return NewWriterWithLocker(engine, namedlock.New(), filepath.Join(dataDir, LockName))
}

func NewWriterWithLocker(engine Engine, locker namedlock.Locker, lockPath string) *Writer {
	return &Writer{
		engine:   engine,
		locker:   locker,
		lockPath: lockPath,
	}
}

func (w *Writer) LockPath() string { return w.lockPath }

// Append adds rec to the index as one committed transaction.
func (w *Writer) Append(ctx context.Context, rec Record) error {
	return w.View(func() error {
		b, err := w.engine.Begin(ctx)
		if err != nil {
			return err
		}
		if err := b.Add(ctx, rec); err != nil {
			_ = b.Rollback()
			return err
		}
		if err := b.Commit(); err != nil {
			return fmt.Errorf("commit index record: %w", err)
		}
		return nil
	})
}

// Search runs q while holding both locks.
func (w *Writer) Search(ctx context.Context, q Query) ([]Record, error) {
	var out []Record
	err := w.View(func() error {
		var err error
		out, err = w.engine.Search(ctx, q)
		return err
	})
	return out, err
}

// View runs fn while holding both locks.
func (w *Writer) View(fn func() error) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	h, err := w.locker.Acquire(w.lockPath)
	if err != nil {
		return fmt.Errorf("acquire index lock %s: %w", w.lockPath, err)
	}
	defer func() {
		if rerr := h.Release(); rerr != nil && err == nil {
			err = fmt.Errorf("release index lock %s: %w", w.lockPath, rerr)
		}
	}()

	return fn()
}
