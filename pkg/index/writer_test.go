package index

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinyland-inc/tgminer/pkg/namedlock"
)

// overlapEngine records how many batches are open at once.
type overlapEngine struct {
	open    atomic.Int32
	maxOpen atomic.Int32
	added   atomic.Int32
	failAdd error
}

func (e *overlapEngine) Begin(context.Context) (Batch, error) {
	n := e.open.Add(1)
	for {
		m := e.maxOpen.Load()
		if n <= m || e.maxOpen.CompareAndSwap(m, n) {
			break
		}
	}
	return &overlapBatch{e: e}, nil
}

func (e *overlapEngine) Search(context.Context, Query) ([]Record, error) { return nil, nil }
func (e *overlapEngine) Close() error { return nil }

type overlapBatch struct{ e *overlapEngine }

func (b *overlapBatch) Add(context.Context, Record) error {
	if b.e.failAdd != nil {
		return b.e.failAdd
	}
	time.Sleep(time.Millisecond)
	b.e.added.Add(1)
	return nil
}

func (b *overlapBatch) Commit() error { b.e.open.Add(-1); return nil }
func (b *overlapBatch) Rollback() error { b.e.open.Add(-1); return nil }

func TestWriter_SerializesGoroutines(t *testing.T) {
	engine := &overlapEngine{}
	w := NewWriter(engine, t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Append(context.Background(), Record{Message: "hi"}); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := engine.maxOpen.Load(); got != 1 {
		t.Errorf("max concurrent batches = %d, want 1", got)
	}
	if got := engine.added.Load(); got != 16 {
		t.Errorf("added = %d, want 16", got)
	}
}

func TestWriter_SeparateWritersShareNamedLock(t *testing.T) {
	engine := &overlapEngine{}
	dir := t.TempDir()
	a := NewWriter(engine, dir)
	b := NewWriter(engine, dir)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = a.Append(context.Background(), Record{}) }()
		go func() { defer wg.Done(); _ = b.Append(context.Background(), Record{}) }()
	}
	wg.Wait()

	if got := engine.maxOpen.Load(); got != 1 {
		t.Errorf("max concurrent batches = %d, want 1", got)
	}
}

type countingLocker struct {
	inner    namedlock.Locker
	acquired atomic.Int32
	released atomic.Int32
}

type countingHandle struct {
	namedlock.Handle
	l *countingLocker
}

func (l *countingLocker) Acquire(path string) (namedlock.Handle, error) {
	h, err := l.inner.Acquire(path)
	if err != nil {
		return nil, err
	}
	l.acquired.Add(1)
	return countingHandle{Handle: h, l: l}, nil
}

func (h countingHandle) Release() error {
	h.l.released.Add(1)
	return h.Handle.Release()
}

func TestWriter_ReleasesOnFailure(t *testing.T) {
	boom := errors.New("disk full")
	engine := &overlapEngine{failAdd: boom}
	locker := &countingLocker{inner: namedlock.New()}
	w := NewWriterWithLocker(engine, locker, filepath.Join(t.TempDir(), LockName))

	if err := w.Append(context.Background(), Record{}); !errors.Is(err, boom) {
		t.Fatalf("Append err = %v, want %v", err, boom)
	}
	if locker.acquired.Load() != 1 || locker.released.Load() != 1 {
		t.Errorf("acquired %d released %d, want 1/1", locker.acquired.Load(), locker.released.Load())
	}
	if engine.open.Load() != 0 {
		t.Error("batch left open after failed add")
	}

	// The lock must be free again.
	engine.failAdd = nil
	if err := w.Append(context.Background(), Record{}); err != nil {
		t.Fatalf("second Append: %v", err)
	}
}

func TestWriter_ReleasesOnPanic(t *testing.T) {
	locker := &countingLocker{inner: namedlock.New()}
	w := NewWriterWithLocker(&overlapEngine{}, locker, filepath.Join(t.TempDir(), LockName))

	func() {
		defer func() { _ = recover() }()
		_ = w.View(func() error { panic("boom") })
	}()

	if locker.released.Load() != 1 {
		t.Fatalf("released = %d after panic, want 1", locker.released.Load())
	}
	if err := w.View(func() error { return nil }); err != nil {
		t.Fatalf("View after panic: %v", err)
	}
}

type failingLocker struct{ err error }

func (l failingLocker) Acquire(string) (namedlock.Handle, error) { return nil, l.err }

func TestWriter_AcquireError(t *testing.T) {
	boom := errors.New("permission denied")
	engine := &overlapEngine{}
	w := NewWriterWithLocker(engine, failingLocker{boom}, "/nowhere/mutex")

	if err := w.Append(context.Background(), Record{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if engine.added.Load() != 0 {
		t.Error("record written without the lock")
	}
}
