package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/catalog"
	"github.com/roach88/cartsync/internal/identity"
	"github.com/roach88/cartsync/internal/kv"
	"github.com/roach88/cartsync/internal/pricing"
)

// ErrNoStorage is returned by New when no storage is supplied.
var ErrNoStorage = errors.New("cart store requires storage")

// Store is the cart for one identity key.
//
// Every mutation recomputes totals, writes the encoded cart through to
// storage when its bytes changed, and publishes a snapshot to subscribers.
// Storage write failures are logged; the in-memory state stays authoritative.
type Store struct {
	key      identity.Key
	storage  kv.Storage
	resolver *pricing.Resolver
	catalog  catalog.Provider
	logger   *slog.Logger
	ids      IDGenerator

	mu        sync.Mutex
	state     Cart
	persisted []byte

	subMu      sync.Mutex
	subs       map[int]func(Cart)
	nextSub    int
	pending    []delivery
	delivering bool
}

type delivery struct {
	cart Cart
	only func(Cart) // nil delivers to every subscriber
}

// Option configures a Store.
type Option func(*Store)

// WithCatalog makes the catalog the authority for current stock.
func WithCatalog(p catalog.Provider) Option {
	return func(s *Store) {
		s.catalog = p
	}
}

// WithLogger sets the store's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithIDGenerator sets the generator for new cart IDs. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// New creates the store for key, loading any cart already persisted under it.
//
// A missing cart is created empty with a fresh ID and persisted. A corrupt
// payload is logged and replaced by an empty cart. Loaded lines go through
// the same dedupe and clamp rules as ReplaceItems.
func New(key identity.Key, storage kv.Storage, prices pricing.Source, opts ...Option) (*Store, error) {
	if key == "" {
		return nil, fmt.Errorf("new cart store: %w", identity.ErrInvalidUser)
	}
	if storage == nil {
		return nil, ErrNoStorage
	}

	s := &Store{
		key:     key,
		storage: storage,
		logger:  slog.Default(),
		ids:     UUIDv7Generator{},
		subs:    make(map[int]func(Cart)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = pricing.NewResolver(prices, s.logger)
	s.logger = s.logger.With("cart_key", key.String())

	raw, ok, err := storage.Get(context.Background(), key.String())
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", key, err)
	}

	s.state = Cart{Owner: key.UserID(), Items: []LineItem{}}
	if ok {
		loaded, err := Decode(raw)
		if err != nil {
			s.logger.Warn("discarding corrupt persisted cart", "error", err)
		} else {
			s.state.ID = loaded.ID
			s.state.Items = s.normalizeLocked(loaded.Items)
		}
		s.persisted = raw
	}
	if s.state.ID == "" {
		s.state.ID = s.ids.Generate()
	}
	s.recomputeLocked()
	s.persistLocked()
	return s, nil
}

// Key returns the identity key the store is bound to.
func (s *Store) Key() identity.Key {
	return s.key
}

// Snapshot returns a deep copy of the current cart.
func (s *Store) Snapshot() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Revision returns the fingerprint of the current lines.
func (s *Store) Revision() string {
	return s.Snapshot().Fingerprint()
}

// AddItem adds quantity of product.
//
// An existing line grows to min(existing+quantity, stock) and reports
// Clamped when less than requested was added. A new line is inserted only if
// the full quantity is in stock. The snapshot is always republished.
func (s *Store) AddItem(product catalog.Product, quantity int) Outcome {
	return s.mutate(true, func(c *Cart) Outcome {
		if quantity < 1 {
			return rejected(product.ID, quantity, ReasonInvalidQuantity)
		}
		if known, ok := s.lookup(product.ID); ok {
			product = known
		}
		stock := s.stockLocked(product)

		item, idx := c.Line(product.ID)
		if idx < 0 {
			if stock < quantity {
				return rejected(product.ID, quantity, ReasonInsufficientStock)
			}
			c.Items = append(c.Items, LineItem{Product: product, Quantity: quantity})
			return Outcome{Kind: KindAdded, ProductID: product.ID, Requested: quantity, Applied: quantity, changed: true}
		}

		next := min(item.Quantity+quantity, stock)
		c.Items[idx] = LineItem{Product: product, Quantity: next}
		applied := next - item.Quantity
		out := Outcome{ProductID: product.ID, Requested: quantity, Applied: applied, changed: applied != 0}
		if applied == quantity {
			out.Kind = KindMerged
		} else {
			out.Kind = KindClamped
			out.Reason = ReasonInsufficientStock
		}
		return out
	})
}

// RemoveItem deletes the line for productID.
func (s *Store) RemoveItem(productID int64) Outcome {
	return s.mutate(false, func(c *Cart) Outcome {
		item, idx := c.Line(productID)
		if idx < 0 {
			return unchanged(productID, ReasonNotInCart)
		}
		c.Items = append(c.Items[:idx:idx], c.Items[idx+1:]...)
		return Outcome{Kind: KindRemoved, ProductID: productID, Applied: -item.Quantity, changed: true}
	})
}

// UpdateQuantity sets the quantity of the line at lineIndex. The line must
// still reference productID; otherwise the caller's view is stale and the
// call is rejected.
func (s *Store) UpdateQuantity(productID int64, lineIndex, quantity int) Outcome {
	return s.mutate(false, func(c *Cart) Outcome {
		if quantity < 1 {
			return rejected(productID, quantity, ReasonInvalidQuantity)
		}
		if lineIndex < 0 || lineIndex >= len(c.Items) || c.Items[lineIndex].Product.ID != productID {
			return rejected(productID, quantity, ReasonStaleReference)
		}
		item := c.Items[lineIndex]
		if quantity > s.stockLocked(item.Product) {
			return rejected(productID, quantity, ReasonInsufficientStock)
		}
		if quantity == item.Quantity {
			return unchanged(productID, ReasonNone)
		}
		c.Items[lineIndex].Quantity = quantity
		return Outcome{Kind: KindUpdated, ProductID: productID, Requested: quantity, Applied: quantity - item.Quantity, changed: true}
	})
}

// IncreaseQuantity adds one to the line at lineIndex if stock allows.
func (s *Store) IncreaseQuantity(productID int64, lineIndex int) bool {
	out := s.mutate(false, func(c *Cart) Outcome {
		if lineIndex < 0 || lineIndex >= len(c.Items) || c.Items[lineIndex].Product.ID != productID {
			return rejected(productID, 1, ReasonStaleReference)
		}
		item := c.Items[lineIndex]
		if item.Quantity+1 > s.stockLocked(item.Product) {
			return rejected(productID, 1, ReasonInsufficientStock)
		}
		c.Items[lineIndex].Quantity++
		return Outcome{Kind: KindUpdated, ProductID: productID, Requested: 1, Applied: 1, changed: true}
	})
	return out.Changed()
}

// DecreaseQuantity subtracts one from the line at lineIndex. A line never
// drops below 1; use RemoveItem to delete it.
func (s *Store) DecreaseQuantity(lineIndex int) bool {
	out := s.mutate(false, func(c *Cart) Outcome {
		if lineIndex < 0 || lineIndex >= len(c.Items) {
			return rejected(0, 1, ReasonStaleReference)
		}
		item := c.Items[lineIndex]
		if item.Quantity <= 1 {
			return rejected(item.Product.ID, 1, ReasonAtMinimum)
		}
		c.Items[lineIndex].Quantity--
		return Outcome{Kind: KindUpdated, ProductID: item.Product.ID, Requested: 1, Applied: -1, changed: true}
	})
	return out.Changed()
}

// ReplaceItems replaces every line with items after merging duplicates,
// dropping quantities below 1, clamping to current stock, and discarding
// products with no stock. Calling it twice with the same items leaves the
// cart as one call does.
func (s *Store) ReplaceItems(items []LineItem) Outcome {
	return s.mutate(false, func(c *Cart) Outcome {
		next := s.normalizeLocked(items)
		if sameItems(c.Items, next) {
			return unchanged(0, ReasonNone)
		}
		c.Items = next
		return Outcome{Kind: KindReplaced, changed: true}
	})
}

// Clear removes every line. The cart keeps its ID.
func (s *Store) Clear() Outcome {
	return s.mutate(false, func(c *Cart) Outcome {
		if len(c.Items) == 0 {
			return unchanged(0, ReasonNone)
		}
		c.Items = []LineItem{}
		return Outcome{Kind: KindCleared, changed: true}
	})
}

// Refresh recomputes totals against the current price source and publishes
// only if they changed.
func (s *Store) Refresh() bool {
	s.mu.Lock()
	before := s.state.TotalPrice
	beforeQty := s.state.TotalQuantity
	s.recomputeLocked()
	changed := !before.Equal(s.state.TotalPrice) || beforeQty != s.state.TotalQuantity
	if changed {
		s.persistLocked()
		s.enqueueLocked(delivery{cart: s.state.Clone()})
	}
	s.mu.Unlock()

	if changed {
		s.deliver()
	}
	return changed
}

// Subscribe registers fn and immediately delivers the current snapshot to it.
// Snapshots are delivered in publication order, one at a time, outside the
// store lock; fn may call back into the store.
func (s *Store) Subscribe(fn func(Cart)) (unsubscribe func()) {
	s.mu.Lock()
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	s.enqueueLocked(delivery{cart: s.state.Clone(), only: fn})
	s.mu.Unlock()

	s.deliver()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Resolver returns the resolver totals are computed with.
func (s *Store) Resolver() *pricing.Resolver {
	return s.resolver
}

// PriceOf resolves the unit price for item the same way totals do.
func (s *Store) PriceOf(item LineItem) (decimal.Decimal, pricing.PriceSource) {
	return s.resolver.Resolve(item.Product.ID, item.CapturedPrice())
}

// mutate applies fn under the lock, then recomputes, persists, and publishes.
// When always is false, a snapshot is only published if the lines changed.
func (s *Store) mutate(always bool, fn func(*Cart) Outcome) Outcome {
	s.mu.Lock()
	out := fn(&s.state)
	s.recomputeLocked()
	publish := always || out.Changed()
	if publish {
		s.persistLocked()
		s.enqueueLocked(delivery{cart: s.state.Clone()})
	}
	s.mu.Unlock()

	if publish {
		s.deliver()
	}
	s.logger.Debug("cart mutation", "outcome", out.String(), "product_id", out.ProductID)
	return out
}

// normalizeLocked applies the merge and clamp rules to items.
func (s *Store) normalizeLocked(items []LineItem) []LineItem {
	index := make(map[int64]int, len(items))
	merged := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		if i, ok := index[item.Product.ID]; ok {
			merged[i].Quantity = addQuantity(merged[i].Quantity, item.Quantity)
			continue
		}
		index[item.Product.ID] = len(merged)
		merged = append(merged, item)
	}

	out := make([]LineItem, 0, len(merged))
	for _, item := range merged {
		if known, ok := s.lookup(item.Product.ID); ok {
			item.Product = known
		}
		stock := s.stockLocked(item.Product)
		if stock <= 0 {
			continue
		}
		item.Quantity = min(item.Quantity, stock)
		out = append(out, item)
	}
	return out
}

// addQuantity sums two positive quantities, saturating at MaxQuantity.
func addQuantity(a, b int) int {
	if a > MaxQuantity-b {
		return MaxQuantity
	}
	return a + b
}

func (s *Store) lookup(productID int64) (catalog.Product, bool) {
	if s.catalog == nil {
		return catalog.Product{}, false
	}
	return s.catalog.Product(productID)
}

// stockLocked returns the current stock for p: the catalog's sellable stock
// when the catalog knows p, otherwise the stock captured on p.
func (s *Store) stockLocked(p catalog.Product) int {
	if known, ok := s.lookup(p.ID); ok {
		return known.Sellable()
	}
	return max(p.Stock, 0)
}

func (s *Store) recomputeLocked() {
	qty := 0
	total := decimal.Zero
	for _, item := range s.state.Items {
		qty += item.Quantity
		price, _ := s.resolver.Resolve(item.Product.ID, item.CapturedPrice())
		total = total.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	s.state.TotalQuantity = qty
	s.state.TotalPrice = total
}

// persistLocked writes the encoded cart unless it matches the last write.
func (s *Store) persistLocked() {
	data, err := Encode(s.state)
	if err != nil {
		s.logger.Error("encode cart failed", "error", err)
		return
	}
	if s.persisted != nil && string(data) == string(s.persisted) {
		return
	}
	if err := s.storage.Set(context.Background(), s.key.String(), data); err != nil {
		s.logger.Error("persist cart failed", "error", err)
		return
	}
	s.persisted = data
}

// enqueueLocked queues a delivery. Called with s.mu held so deliveries are
// queued in the order the states were produced.
func (s *Store) enqueueLocked(d delivery) {
	s.subMu.Lock()
	s.pending = append(s.pending, d)
	s.subMu.Unlock()
}

// deliver drains pending deliveries. Only one caller drains at a time; a
// re-entrant or concurrent caller leaves its delivery for the active drainer.
func (s *Store) deliver() {
	s.subMu.Lock()
	if s.delivering {
		s.subMu.Unlock()
		return
	}
	s.delivering = true
	for len(s.pending) > 0 {
		d := s.pending[0]
		s.pending = s.pending[1:]

		var targets []func(Cart)
		if d.only != nil {
			targets = []func(Cart){d.only}
		} else {
			targets = s.subscribersLocked()
		}
		s.subMu.Unlock()
		for _, fn := range targets {
			fn(d.cart.Clone())
		}
		s.subMu.Lock()
	}
	s.delivering = false
	s.subMu.Unlock()
}

func (s *Store) subscribersLocked() []func(Cart) {
	fns := make([]func(Cart), 0, len(s.subs))
	for id := 0; id < s.nextSub; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
