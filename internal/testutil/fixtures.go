package testutil

import (
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/catalog"
)

// Product builds an available catalog product. price must be a valid
// decimal literal.
func Product(id int64, name, price string, stock int) catalog.Product {
	return catalog.Product{
		ID:        id,
		Name:      name,
		ListPrice: decimal.RequireFromString(price),
		Stock:     stock,
		Available: true,
	}
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
