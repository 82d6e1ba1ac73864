package harness

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/projection"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the harness's final
// state and the recorded trace. Returns one message per failure.
func EvaluateAssertions(h *Harness, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertLine:
			err = assertLine(h, a)
		case AssertTotals:
			err = assertTotals(h, a)
		case AssertNotice:
			err = assertNotice(h, a)
		case AssertConverged:
			err = assertConverged(h)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertLine(h *Harness, a Assertion) error {
	t := h.tabNamed(a.Tab)
	snap := t.store.Snapshot()

	if a.Quantity != nil {
		if got := snap.Quantity(a.Product); got != *a.Quantity {
			return &AssertionError{
				Type:     AssertLine,
				Expected: fmt.Sprintf("%s: product %d quantity %d", t.name, a.Product, *a.Quantity),
				Actual:   fmt.Sprintf("quantity %d", got),
			}
		}
	}
	if a.Unit == "" && a.Source == "" {
		return nil
	}

	view := projection.Project(snap, t.store.Resolver())
	for _, line := range view.Lines {
		if line.ProductID != a.Product {
			continue
		}
		if a.Source != "" && line.Source.String() != a.Source {
			return &AssertionError{
				Type:     AssertLine,
				Expected: fmt.Sprintf("%s: product %d priced from %s", t.name, a.Product, a.Source),
				Actual:   line.Source.String(),
			}
		}
		if a.Unit != "" {
			want, err := decimal.NewFromString(a.Unit)
			if err != nil {
				return fmt.Errorf("unit %q: %w", a.Unit, err)
			}
			if !want.Equal(line.UnitPrice) {
				return &AssertionError{
					Type:     AssertLine,
					Expected: fmt.Sprintf("%s: product %d unit price %s", t.name, a.Product, want.StringFixed(2)),
					Actual:   line.UnitPrice.StringFixed(2),
				}
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertLine,
		Expected: fmt.Sprintf("%s: a line for product %d", t.name, a.Product),
		Actual:   "no line",
	}
}

func assertTotals(h *Harness, a Assertion) error {
	t := h.tabNamed(a.Tab)
	snap := t.store.Snapshot()

	if a.Quantity != nil && snap.TotalQuantity != *a.Quantity {
		return &AssertionError{
			Type:     AssertTotals,
			Expected: fmt.Sprintf("%s: total quantity %d", t.name, *a.Quantity),
			Actual:   fmt.Sprintf("%d", snap.TotalQuantity),
		}
	}
	if a.Price != "" {
		want, err := decimal.NewFromString(a.Price)
		if err != nil {
			return fmt.Errorf("price %q: %w", a.Price, err)
		}
		if !want.Equal(snap.TotalPrice) {
			return &AssertionError{
				Type:     AssertTotals,
				Expected: fmt.Sprintf("%s: total price %s", t.name, want.StringFixed(2)),
				Actual:   snap.TotalPrice.StringFixed(2),
			}
		}
	}
	return nil
}

func assertNotice(h *Harness, a Assertion) error {
	t := h.tabNamed(a.Tab)
	notices := t.notices.Notices()
	for _, n := range notices {
		if n.Kind.String() == a.Kind && (a.Product == 0 || n.ProductID == a.Product) {
			return nil
		}
	}

	seen := make([]string, len(notices))
	for i, n := range notices {
		seen[i] = fmt.Sprintf("%s(%d)", n.Kind, n.ProductID)
	}
	return &AssertionError{
		Type:     AssertNotice,
		Expected: fmt.Sprintf("%s: %s notice for product %d", t.name, a.Kind, a.Product),
		Actual:   "[" + strings.Join(seen, ", ") + "]",
	}
}

// assertConverged checks that every tab holds the same lines and totals.
func assertConverged(h *Harness) error {
	first := h.tabs[h.order[0]].store.Snapshot()
	for _, name := range h.order[1:] {
		snap := h.tabs[name].store.Snapshot()
		if snap.Fingerprint() != first.Fingerprint() || !snap.TotalPrice.Equal(first.TotalPrice) {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("%s to match %s (%d items, %s)", name, h.order[0], first.TotalQuantity, first.TotalPrice.StringFixed(2)),
				Actual:   fmt.Sprintf("%d items, %s", snap.TotalQuantity, snap.TotalPrice.StringFixed(2)),
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Op == a.Op && (a.Tab == "" || ev.Tab == a.Tab) {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s steps", *a.Count, a.Op),
			Actual:   fmt.Sprintf("%d", count),
		}
	}
	return nil
}
