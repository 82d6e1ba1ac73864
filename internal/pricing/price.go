// Package pricing resolves the unit price a cart line is charged at.
//
// Prices come from adjustment records kept in a Book. A record carries the
// current base price and an optional percentage adjustment; the final price
// is computed and rounded to cents when the record is written, so persisted
// and displayed values never diverge.
package pricing

import (
	"github.com/shopspring/decimal"
)

// Direction is the sign of a percentage adjustment.
type Direction string

const (
	Increase Direction = "+"
	Decrease Direction = "-"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Increase || d == Decrease
}

var hundred = decimal.NewFromInt(100)

// Entry is a price adjustment record for one product.
type Entry struct {
	ProductID       int64            `json:"idProduct"`
	CurrentPrice    *decimal.Decimal `json:"currentPrice,omitempty"`
	PreviousPrice   *decimal.Decimal `json:"previousPrice,omitempty"`
	FinalPrice      *decimal.Decimal `json:"finalPrice,omitempty"`
	AdjustmentValue decimal.Decimal  `json:"adjustmentValue"`
	Direction       Direction        `json:"adjustmentType,omitempty"`
}

// ComputeFinal applies a percentage adjustment to base and rounds the
// result to two decimals, half away from zero.
func ComputeFinal(base, pct decimal.Decimal, dir Direction) decimal.Decimal {
	if pct.IsZero() {
		return base.Round(2)
	}
	factor := pct.Div(hundred)
	if dir == Decrease {
		return base.Mul(decimal.NewFromInt(1).Sub(factor)).Round(2)
	}
	return base.Mul(decimal.NewFromInt(1).Add(factor)).Round(2)
}

// Normalize fills defaults on e and recomputes its final price.
// A missing direction becomes Increase and a missing previous price becomes
// the current price. Entries without a current price keep no final price.
func Normalize(e Entry) Entry {
	if !e.Direction.Valid() {
		e.Direction = Increase
	}
	if e.CurrentPrice == nil {
		e.FinalPrice = nil
		return e
	}
	current := *e.CurrentPrice
	if e.PreviousPrice == nil {
		prev := current
		e.PreviousPrice = &prev
	}
	final := ComputeFinal(current, e.AdjustmentValue, e.Direction)
	e.FinalPrice = &final
	return e
}

// Price returns a pointer to d. Handy for building entries.
func Price(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func clonePtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func (e Entry) clone() Entry {
	e.CurrentPrice = clonePtr(e.CurrentPrice)
	e.PreviousPrice = clonePtr(e.PreviousPrice)
	e.FinalPrice = clonePtr(e.FinalPrice)
	return e
}
