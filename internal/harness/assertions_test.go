package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runWith executes a two-tab scenario in which only tab a holds 2 of
// product 1, then evaluates the given assertions.
func runWith(t *testing.T, assertions ...Assertion) *Result {
	t.Helper()
	scenario := &Scenario{
		Name:        "assertions",
		Description: "unreconciled tabs",
		Products:    []ProductDef{{ID: 1, Name: "A", Price: "2.00", Stock: 5}},
		Tabs:        []string{"a", "b"},
		Steps: []Step{
			{Tab: "a", Op: OpAdd, Product: 1, Quantity: 2},
		},
		Assertions: assertions,
	}
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

func TestAssertions_Pass(t *testing.T) {
	result := runWith(t,
		Assertion{Type: AssertLine, Tab: "a", Product: 1, Quantity: ptr(2), Unit: "2", Source: "list"},
		Assertion{Type: AssertLine, Tab: "b", Product: 1, Quantity: ptr(0)},
		Assertion{Type: AssertTotals, Tab: "a", Quantity: ptr(2), Price: "4.00"},
		Assertion{Type: AssertTraceCount, Op: OpAdd, Tab: "a", Count: ptr(1)},
		Assertion{Type: AssertTraceCount, Op: OpAdd, Tab: "b", Count: ptr(0)},
	)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		contains  string
	}{
		{
			name:      "line quantity",
			assertion: Assertion{Type: AssertLine, Tab: "a", Product: 1, Quantity: ptr(3)},
			contains:  "a: product 1 quantity 3",
		},
		{
			name:      "line missing",
			assertion: Assertion{Type: AssertLine, Tab: "b", Product: 1, Unit: "2.00"},
			contains:  "no line",
		},
		{
			name:      "line source",
			assertion: Assertion{Type: AssertLine, Tab: "a", Product: 1, Source: "final"},
			contains:  "got list",
		},
		{
			name:      "line unit",
			assertion: Assertion{Type: AssertLine, Tab: "a", Product: 1, Unit: "3"},
			contains:  "got 2.00",
		},
		{
			name:      "totals price",
			assertion: Assertion{Type: AssertTotals, Tab: "a", Price: "5"},
			contains:  "total price 5.00",
		},
		{
			name:      "notice",
			assertion: Assertion{Type: AssertNotice, Tab: "a", Kind: "removed"},
			contains:  "got []",
		},
		{
			name:      "converged",
			assertion: Assertion{Type: AssertConverged},
			contains:  "b to match a",
		},
		{
			name:      "trace count",
			assertion: Assertion{Type: AssertTraceCount, Op: OpRemove, Count: ptr(1)},
			contains:  "1 remove steps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runWith(t, tt.assertion)
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.contains)
		})
	}
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertTotals, Expected: "3", Actual: "2"}
	assert.Equal(t, "assertion failed: totals: expected 3, got 2", err.Error())
}
