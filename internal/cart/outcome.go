package cart

import "fmt"

// Kind classifies the result of a mutating operation.
type Kind int

const (
	KindUnchanged Kind = iota
	KindAdded
	KindMerged
	KindClamped
	KindUpdated
	KindRemoved
	KindReplaced
	KindCleared
	KindRejected
)

var kindNames = map[Kind]string{
	KindUnchanged: "unchanged",
	KindAdded:     "added",
	KindMerged:    "merged",
	KindClamped:   "clamped",
	KindUpdated:   "updated",
	KindRemoved:   "removed",
	KindReplaced:  "replaced",
	KindCleared:   "cleared",
	KindRejected:  "rejected",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Reason explains a Rejected, Clamped, or Unchanged outcome.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInsufficientStock
	ReasonInvalidQuantity
	ReasonStaleReference
	ReasonAtMinimum
	ReasonNotInCart
)

var reasonNames = map[Reason]string{
	ReasonNone:              "none",
	ReasonInsufficientStock: "insufficient_stock",
	ReasonInvalidQuantity:   "invalid_quantity",
	ReasonStaleReference:    "stale_reference",
	ReasonAtMinimum:         "at_minimum",
	ReasonNotInCart:         "not_in_cart",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Outcome is the tagged result of a mutating operation.
//
// Requested is the quantity the caller asked for and Applied the quantity
// change actually made. A Clamped outcome always has Applied < Requested.
type Outcome struct {
	Kind      Kind
	Reason    Reason
	ProductID int64
	Requested int
	Applied   int

	changed bool
}

// Changed reports whether the operation modified the cart's lines.
func (o Outcome) Changed() bool {
	return o.changed
}

func (o Outcome) String() string {
	if o.Reason == ReasonNone {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}

func rejected(productID int64, requested int, reason Reason) Outcome {
	return Outcome{Kind: KindRejected, Reason: reason, ProductID: productID, Requested: requested}
}

func unchanged(productID int64, reason Reason) Outcome {
	return Outcome{Kind: KindUnchanged, Reason: reason, ProductID: productID}
}
