package cart

import (
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/catalog"
	"github.com/roach88/cartsync/internal/canon"
)

// MaxQuantity bounds any quantity or stock level the cart accepts.
// Larger values from decoded or merged lines saturate here.
const MaxQuantity = math.MaxInt32

// LineItem is one product-quantity pair. Product is the copy captured when
// the line was added, refreshed whenever the catalog supersedes it.
type LineItem struct {
	Product  catalog.Product
	Quantity int
}

// CapturedPrice returns the list price captured on the line's product, or
// nil when none was recorded. A zero list price counts as missing.
func (l LineItem) CapturedPrice() *decimal.Decimal {
	if l.Product.ListPrice.IsZero() {
		return nil
	}
	price := l.Product.ListPrice
	return &price
}

// Cart is an immutable snapshot of a Store's state.
type Cart struct {
	ID            string
	Owner         string
	Items         []LineItem
	TotalQuantity int
	TotalPrice    decimal.Decimal
}

// Clone returns a deep copy of c.
func (c Cart) Clone() Cart {
	c.Items = slices.Clone(c.Items)
	if c.Items == nil {
		c.Items = []LineItem{}
	}
	return c
}

// Line returns the line for productID and its index, or -1.
func (c Cart) Line(productID int64) (LineItem, int) {
	for i, item := range c.Items {
		if item.Product.ID == productID {
			return item, i
		}
	}
	return LineItem{}, -1
}

// Quantity returns the quantity held for productID, or 0.
func (c Cart) Quantity(productID int64) int {
	item, _ := c.Line(productID)
	return item.Quantity
}

// Fingerprint returns the canonical hash of c's lines (product ID and
// quantity, in line order). Two carts holding the same lines share a
// fingerprint regardless of ID, owner, or prices.
func (c Cart) Fingerprint() string {
	lines := make([]any, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, map[string]any{
			"product_id": item.Product.ID,
			"quantity":   int64(item.Quantity),
		})
	}
	// Only int64 and strings reach the encoder, which cannot fail on them.
	return canon.MustFingerprint(canon.DomainCartItems, lines)
}

func sameItems(a, b []LineItem) bool {
	return slices.EqualFunc(a, b, func(x, y LineItem) bool {
		return x.Quantity == y.Quantity && sameProduct(x.Product, y.Product)
	})
}

func sameProduct(a, b catalog.Product) bool {
	return a.ID == b.ID &&
		a.Name == b.Name &&
		a.ListPrice.Equal(b.ListPrice) &&
		a.Stock == b.Stock &&
		a.Available == b.Available &&
		a.SKU == b.SKU &&
		a.Brand == b.Brand &&
		a.Category == b.Category
}
