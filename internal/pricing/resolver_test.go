package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_FallbackChain(t *testing.T) {
	ctx := context.Background()
	b := NewBook()
	_, err := b.Upsert(ctx, Entry{ProductID: 1, CurrentPrice: Price(dec("100")), AdjustmentValue: dec("20"), Direction: Decrease})
	require.NoError(t, err)
	b.entries[2] = Entry{ProductID: 2, CurrentPrice: Price(dec("30"))}
	b.entries[3] = Entry{ProductID: 3}

	r := NewResolver(b, nil)
	list := dec("15")

	tests := []struct {
		name     string
		id       int64
		captured *decimal.Decimal
		want     string
		source   PriceSource
	}{
		{"final price wins", 1, &list, "80", SourceFinal},
		{"current when no final", 2, &list, "30", SourceCurrent},
		{"list when record is empty", 3, &list, "15", SourceList},
		{"list when no record", 4, &list, "15", SourceList},
		{"zero when nothing", 4, nil, "0", SourceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src := r.Resolve(tt.id, tt.captured)
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
			assert.Equal(t, tt.source, src)
		})
	}
}

func TestResolver_NilSource(t *testing.T) {
	r := NewResolver(nil, nil)
	list := dec("2.50")

	got, src := r.Resolve(1, &list)
	assert.True(t, got.Equal(list))
	assert.Equal(t, SourceList, src)
}

func TestPriceSource_String(t *testing.T) {
	assert.Equal(t, "final", SourceFinal.String())
	assert.Equal(t, "current", SourceCurrent.String())
	assert.Equal(t, "list", SourceList.String())
	assert.Equal(t, "none", SourceNone.String())
}
