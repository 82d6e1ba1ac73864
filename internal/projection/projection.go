// Package projection derives the priced view of a cart that a UI renders.
package projection

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/pricing"
)

// Line is one priced cart line.
type Line struct {
	Index     int
	ProductID int64
	Name      string
	Quantity  int
	Stock     int
	UnitPrice decimal.Decimal
	Source    pricing.PriceSource
	LineTotal decimal.Decimal
}

// View is the priced projection of a cart.
type View struct {
	CartID        string
	Owner         string
	Lines         []Line
	TotalQuantity int
	TotalPrice    decimal.Decimal

	// Warnings lists lines priced without any price data.
	Warnings []string
}

// Project prices every line of c with r. Totals are recomputed here rather
// than copied from c.
func Project(c cart.Cart, r *pricing.Resolver) View {
	v := View{
		CartID:     c.ID,
		Owner:      c.Owner,
		Lines:      make([]Line, 0, len(c.Items)),
		TotalPrice: decimal.Zero,
	}
	for i, item := range c.Items {
		unit, src := r.Resolve(item.Product.ID, item.CapturedPrice())
		total := unit.Mul(decimal.NewFromInt(int64(item.Quantity)))
		v.Lines = append(v.Lines, Line{
			Index:     i,
			ProductID: item.Product.ID,
			Name:      item.Product.Name,
			Quantity:  item.Quantity,
			Stock:     item.Product.Stock,
			UnitPrice: unit,
			Source:    src,
			LineTotal: total,
		})
		v.TotalQuantity += item.Quantity
		v.TotalPrice = v.TotalPrice.Add(total)
		if src == pricing.SourceNone {
			v.Warnings = append(v.Warnings, fmt.Sprintf("product %d has no price data", item.Product.ID))
		}
	}
	return v
}

// Follow re-projects on every snapshot the store publishes, starting with
// the current one.
func Follow(store *cart.Store, r *pricing.Resolver, fn func(View)) (stop func()) {
	return store.Subscribe(func(c cart.Cart) {
		fn(Project(c, r))
	})
}
