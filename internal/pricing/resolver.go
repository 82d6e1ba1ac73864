package pricing

import (
	"log/slog"

	"github.com/shopspring/decimal"
)

// PriceSource tells which step of the fallback chain produced a price.
type PriceSource int

const (
	SourceNone PriceSource = iota
	SourceFinal
	SourceCurrent
	SourceList
)

func (s PriceSource) String() string {
	switch s {
	case SourceFinal:
		return "final"
	case SourceCurrent:
		return "current"
	case SourceList:
		return "list"
	default:
		return "none"
	}
}

// Resolver picks the unit price for a product:
// the record's final price, then its current price, then the list price
// captured on the cart line, then zero.
type Resolver struct {
	source Source
	logger *slog.Logger
}

// NewResolver creates a resolver over source. A nil source resolves
// every product from its captured list price.
func NewResolver(source Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, logger: logger}
}

// Resolve returns the unit price for productID. captured is the list price
// recorded on the cart line, or nil when there is none.
//
// SourceNone means no price data exists at all; the zero it returns must not
// be trusted for checkout.
func (r *Resolver) Resolve(productID int64, captured *decimal.Decimal) (decimal.Decimal, PriceSource) {
	if r.source != nil {
		if e, ok := r.source.Entry(productID); ok {
			if e.FinalPrice != nil {
				return *e.FinalPrice, SourceFinal
			}
			if e.CurrentPrice != nil {
				return *e.CurrentPrice, SourceCurrent
			}
		}
	}
	if captured != nil {
		return *captured, SourceList
	}
	r.logger.Warn("no price data for product", "product_id", productID)
	return decimal.Zero, SourceNone
}
