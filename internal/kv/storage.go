package kv

import (
	"context"
	"sync"
	"sync/atomic"
)

// Change describes a write made by another execution context.
// Value is nil when the key was deleted.
type Change struct {
	Key    string
	Value  []byte
	Origin string
	Seq    int64
}

// Deleted reports whether the change removed the key.
func (c Change) Deleted() bool {
	return c.Value == nil
}

// ChangeFunc receives external changes.
type ChangeFunc func(Change)

// Storage is one execution context's view of a shared domain.
type Storage interface {
	// Name identifies the execution context. Changes carry it as Origin.
	Name() string

	// Set writes value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Get returns the value under key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	// Watch registers fn for changes made by other contexts and returns a
	// function that unregisters it.
	Watch(fn ChangeFunc) (cancel func())
}

// Clock is a monotonic logical clock for ordering writes within a domain.
// Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// watcherSet is a registry of change callbacks. Callbacks are invoked outside
// the registry lock so they may register or cancel watchers themselves.
type watcherSet struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]ChangeFunc
}

func (w *watcherSet) add(fn ChangeFunc) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[int]ChangeFunc)
	}
	id := w.nextID
	w.nextID++
	w.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.fns, id)
			w.mu.Unlock()
		})
	}
}

// snapshot returns the registered callbacks in registration order.
func (w *watcherSet) snapshot() []ChangeFunc {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ChangeFunc, 0, len(w.fns))
	for id := 0; id < w.nextID; id++ {
		if fn, ok := w.fns[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (w *watcherSet) notify(c Change) {
	for _, fn := range w.snapshot() {
		fn(c)
	}
}
