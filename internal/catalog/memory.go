package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/cartsync/internal/kv"
)

// Storage keys shared with the rest of the domain.
const (
	KeyProducts = "products"
	KeySync     = "products_sync"
)

// ErrNotFound is returned by mutations that target an unknown product.
var ErrNotFound = errors.New("product not found")

// Memory is a mutable in-process catalog. Safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	products map[int64]Product
	storage  kv.Storage

	watchMu  sync.Mutex
	watchers map[int]func()
	nextID   int
}

var (
	_ Provider = (*Memory)(nil)
	_ Watcher  = (*Memory)(nil)
)

// Option configures a Memory catalog.
type Option func(*Memory)

// WithStorage persists the catalog to storage after every mutation.
func WithStorage(s kv.Storage) Option {
	return func(m *Memory) {
		m.storage = s
	}
}

// NewMemory creates a catalog holding products.
func NewMemory(products []Product, opts ...Option) *Memory {
	m := &Memory{
		products: make(map[int64]Product, len(products)),
		watchers: make(map[int]func()),
	}
	for _, p := range products {
		m.products[p.ID] = p
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Products implements Provider.
func (m *Memory) Products() []Product {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked()
}

// Product implements Provider.
func (m *Memory) Product(id int64) (Product, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	return p, ok
}

// Put inserts or replaces a product.
func (m *Memory) Put(ctx context.Context, p Product) error {
	return m.mutate(ctx, func(products map[int64]Product) error {
		products[p.ID] = p
		return nil
	})
}

// Replace swaps the whole product list.
func (m *Memory) Replace(ctx context.Context, products []Product) error {
	return m.mutate(ctx, func(existing map[int64]Product) error {
		clear(existing)
		for _, p := range products {
			existing[p.ID] = p
		}
		return nil
	})
}

// Delete removes a product.
func (m *Memory) Delete(ctx context.Context, id int64) error {
	return m.mutate(ctx, func(products map[int64]Product) error {
		if _, ok := products[id]; !ok {
			return fmt.Errorf("delete %d: %w", id, ErrNotFound)
		}
		delete(products, id)
		return nil
	})
}

// SetStock sets the stock level of a product.
func (m *Memory) SetStock(ctx context.Context, id int64, stock int) error {
	return m.mutate(ctx, func(products map[int64]Product) error {
		p, ok := products[id]
		if !ok {
			return fmt.Errorf("set stock %d: %w", id, ErrNotFound)
		}
		p.Stock = max(stock, 0)
		products[id] = p
		return nil
	})
}

// SetAvailability marks a product available or unavailable.
func (m *Memory) SetAvailability(ctx context.Context, id int64, available bool) error {
	return m.mutate(ctx, func(products map[int64]Product) error {
		p, ok := products[id]
		if !ok {
			return fmt.Errorf("set availability %d: %w", id, ErrNotFound)
		}
		p.Available = available
		products[id] = p
		return nil
	})
}

// Watch registers fn to be called after every local mutation.
// Reload does not trigger watchers.
func (m *Memory) Watch(fn func()) func() {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	return func() {
		m.watchMu.Lock()
		delete(m.watchers, id)
		m.watchMu.Unlock()
	}
}

// Reload replaces the catalog contents with what is persisted in storage.
// A missing key leaves the catalog unchanged.
func (m *Memory) Reload(ctx context.Context) error {
	if m.storage == nil {
		return nil
	}
	products, ok, err := Load(ctx, m.storage)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = make(map[int64]Product, len(products))
	for _, p := range products {
		m.products[p.ID] = p
	}
	return nil
}

// Save writes the current contents to storage and emits the sync signal.
func (m *Memory) Save(ctx context.Context) error {
	if m.storage == nil {
		return nil
	}
	return Save(ctx, m.storage, m.Products())
}

func (m *Memory) mutate(ctx context.Context, fn func(map[int64]Product) error) error {
	m.mu.Lock()
	if err := fn(m.products); err != nil {
		m.mu.Unlock()
		return err
	}
	snapshot := m.sortedLocked()
	m.mu.Unlock()

	if m.storage != nil {
		if err := Save(ctx, m.storage, snapshot); err != nil {
			return err
		}
	}
	m.notify()
	return nil
}

func (m *Memory) notify() {
	m.watchMu.Lock()
	ids := make([]int, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.watchers[id])
	}
	m.watchMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (m *Memory) sortedLocked() []Product {
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Product) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Load reads the persisted product list from storage.
// ok is false when nothing is persisted.
func Load(ctx context.Context, s kv.Storage) (products []Product, ok bool, err error) {
	raw, ok, err := s.Get(ctx, KeyProducts)
	if err != nil {
		return nil, false, fmt.Errorf("load products: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, false, fmt.Errorf("decode products: %w", err)
	}
	for i := range products {
		if products[i].Stock < 0 {
			products[i].Stock = 0
		}
	}
	return products, true, nil
}

// Save persists products under KeyProducts and writes a fresh value to
// KeySync so every other context observes a change.
func Save(ctx context.Context, s kv.Storage, products []Product) error {
	if products == nil {
		products = []Product{}
	}
	raw, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	if err := s.Set(ctx, KeyProducts, raw); err != nil {
		return fmt.Errorf("save products: %w", err)
	}
	if err := s.Set(ctx, KeySync, []byte(uuid.NewString())); err != nil {
		return fmt.Errorf("signal products: %w", err)
	}
	return nil
}
