package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/kv"
)

// KeyPrices is the storage key the book persists under.
const KeyPrices = "prices"

// ErrInvalidEntry is returned when an entry does not name a product.
var ErrInvalidEntry = errors.New("price entry requires a positive product id")

// Source looks up price adjustment records.
type Source interface {
	Entry(productID int64) (Entry, bool)
}

// Book is the mutable set of price adjustment records. Safe for concurrent use.
type Book struct {
	mu      sync.RWMutex
	entries map[int64]Entry
	storage kv.Storage

	watchMu  sync.Mutex
	watchers map[int]func()
	nextID   int
}

var _ Source = (*Book)(nil)

// BookOption configures a Book.
type BookOption func(*Book)

// WithStorage persists the book to storage after every mutation.
func WithStorage(s kv.Storage) BookOption {
	return func(b *Book) {
		b.storage = s
	}
}

// NewBook creates an empty book.
func NewBook(opts ...BookOption) *Book {
	b := &Book{
		entries:  make(map[int64]Entry),
		watchers: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Upsert normalizes e, stores it, and returns the stored record.
func (b *Book) Upsert(ctx context.Context, e Entry) (Entry, error) {
	if e.ProductID < 1 {
		return Entry{}, fmt.Errorf("upsert %d: %w", e.ProductID, ErrInvalidEntry)
	}
	e = Normalize(e)
	b.mu.Lock()
	b.entries[e.ProductID] = e.clone()
	b.mu.Unlock()

	if err := b.persist(ctx); err != nil {
		return Entry{}, err
	}
	b.notify()
	return e, nil
}

// Remove deletes the record for productID. Removing a missing record is a no-op.
func (b *Book) Remove(ctx context.Context, productID int64) error {
	b.mu.Lock()
	_, ok := b.entries[productID]
	delete(b.entries, productID)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	if err := b.persist(ctx); err != nil {
		return err
	}
	b.notify()
	return nil
}

// Entry implements Source.
func (b *Book) Entry(productID int64) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[productID]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Entries returns all records ordered by product ID.
func (b *Book) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.clone())
	}
	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.ProductID < b.ProductID:
			return -1
		case a.ProductID > b.ProductID:
			return 1
		}
		return 0
	})
	return out
}

// FinalPrice returns the adjusted price, falling back to the current price.
func (b *Book) FinalPrice(productID int64) (decimal.Decimal, bool) {
	e, ok := b.Entry(productID)
	if !ok {
		return decimal.Zero, false
	}
	if e.FinalPrice != nil {
		return *e.FinalPrice, true
	}
	if e.CurrentPrice != nil {
		return *e.CurrentPrice, true
	}
	return decimal.Zero, false
}

// PreviousPrice returns the price before the latest adjustment.
func (b *Book) PreviousPrice(productID int64) (decimal.Decimal, bool) {
	e, ok := b.Entry(productID)
	if !ok || e.PreviousPrice == nil {
		return decimal.Zero, false
	}
	return *e.PreviousPrice, true
}

// IsDiscounted reports whether the previous price is higher than the
// current one.
func (b *Book) IsDiscounted(productID int64) bool {
	e, ok := b.Entry(productID)
	if !ok || e.PreviousPrice == nil || e.CurrentPrice == nil {
		return false
	}
	return e.PreviousPrice.GreaterThan(*e.CurrentPrice)
}

// Watch registers fn to be called after every local mutation.
// Load does not trigger watchers.
func (b *Book) Watch(fn func()) func() {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	id := b.nextID
	b.nextID++
	b.watchers[id] = fn
	return func() {
		b.watchMu.Lock()
		delete(b.watchers, id)
		b.watchMu.Unlock()
	}
}

// Load replaces the book contents with what is persisted in storage.
// A missing key leaves the book unchanged.
func (b *Book) Load(ctx context.Context) error {
	if b.storage == nil {
		return nil
	}
	raw, ok, err := b.storage.Get(ctx, KeyPrices)
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	if !ok {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode prices: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[int64]Entry, len(entries))
	for _, e := range entries {
		b.entries[e.ProductID] = Normalize(e)
	}
	return nil
}

// Save writes the current contents to storage.
func (b *Book) Save(ctx context.Context) error {
	return b.persist(ctx)
}

func (b *Book) persist(ctx context.Context) error {
	if b.storage == nil {
		return nil
	}
	raw, err := json.Marshal(b.Entries())
	if err != nil {
		return fmt.Errorf("encode prices: %w", err)
	}
	if err := b.storage.Set(ctx, KeyPrices, raw); err != nil {
		return fmt.Errorf("save prices: %w", err)
	}
	return nil
}

func (b *Book) notify() {
	b.watchMu.Lock()
	ids := make([]int, 0, len(b.watchers))
	for id := range b.watchers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.watchers[id])
	}
	b.watchMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
