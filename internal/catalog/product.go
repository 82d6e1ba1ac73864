package catalog

import (
	"github.com/shopspring/decimal"
)

// Product is a catalog entry. JSON field names match the persisted
// storefront format.
type Product struct {
	ID        int64           `json:"idProduct"`
	Name      string          `json:"productName"`
	ListPrice decimal.Decimal `json:"price"`
	Stock     int             `json:"quantity"`
	Available bool            `json:"available"`

	// Descriptive fields. Carried through untouched; cart rules never read them.
	SKU      string `json:"sku,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`
}

// Sellable returns the stock a cart may hold for p: zero when the product is
// unavailable or the stock is negative.
func (p Product) Sellable() int {
	if !p.Available || p.Stock < 0 {
		return 0
	}
	return p.Stock
}

// Provider is a read-only catalog snapshot.
type Provider interface {
	// Products returns every product ordered by ID.
	Products() []Product

	// Product returns the product with id and whether it exists.
	Product(id int64) (Product, bool)
}

// Watcher is implemented by sources that signal changes in-process, such as
// Memory and pricing.Book. Loading from storage does not fire watchers.
type Watcher interface {
	Watch(fn func()) (cancel func())
}
