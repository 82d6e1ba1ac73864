package kv

import (
	"bytes"
	"context"
	"slices"
	"sync"
)

type memoryEntry struct {
	value  []byte
	origin string
	seq    int64
}

// Memory is an in-process shared domain.
type Memory struct {
	mu       sync.Mutex
	values   map[string]memoryEntry
	clock    *Clock
	contexts map[string]*memoryContext
	order    []string
}

// NewMemory creates an empty in-memory domain.
func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string]memoryEntry),
		clock:    NewClockAt(0),
		contexts: make(map[string]*memoryContext),
	}
}

// Context returns the Storage handle for the named execution context.
// Calling Context twice with the same name returns the same handle.
func (m *Memory) Context(name string) Storage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contexts[name]; ok {
		return c
	}
	c := &memoryContext{domain: m, name: name}
	m.contexts[name] = c
	m.order = append(m.order, name)
	return c
}

// Keys returns all live keys in lexical order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Seq returns the sequence number of the most recent write.
func (m *Memory) Seq() int64 {
	return m.clock.Current()
}

// write stores value (nil deletes) and returns the contexts to notify.
func (m *Memory) write(origin, key string, value []byte) (Change, []*memoryContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.values[key]
	if value == nil && !ok {
		return Change{}, nil, false
	}
	if value != nil && ok && bytes.Equal(existing.value, value) {
		return Change{}, nil, false
	}

	seq := m.clock.Next()
	if value == nil {
		delete(m.values, key)
	} else {
		m.values[key] = memoryEntry{value: slices.Clone(value), origin: origin, seq: seq}
	}

	targets := make([]*memoryContext, 0, len(m.order))
	for _, name := range m.order {
		if name != origin {
			targets = append(targets, m.contexts[name])
		}
	}
	return Change{Key: key, Value: slices.Clone(value), Origin: origin, Seq: seq}, targets, true
}

func (m *Memory) read(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(e.value), true
}

type memoryContext struct {
	domain   *Memory
	name     string
	watchers watcherSet
}

func (c *memoryContext) Name() string { return c.name }

func (c *memoryContext) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	c.publish(c.domain.write(c.name, key, value))
	return nil
}

func (c *memoryContext) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := c.domain.read(key)
	return v, ok, nil
}

func (c *memoryContext) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.publish(c.domain.write(c.name, key, nil))
	return nil
}

func (c *memoryContext) Watch(fn ChangeFunc) func() {
	return c.watchers.add(fn)
}

func (c *memoryContext) publish(change Change, targets []*memoryContext, changed bool) {
	if !changed {
		return
	}
	for _, t := range targets {
		t.watchers.notify(change)
	}
}
