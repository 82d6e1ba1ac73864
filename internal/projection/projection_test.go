package projection

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/catalog"
	"github.com/roach88/cartsync/internal/kv"
	"github.com/roach88/cartsync/internal/pricing"
)

func TestProject_PricesEachLine(t *testing.T) {
	ctx := context.Background()
	book := pricing.NewBook()
	_, err := book.Upsert(ctx, pricing.Entry{
		ProductID:       1,
		CurrentPrice:    pricing.Price(decimal.NewFromInt(100)),
		AdjustmentValue: decimal.NewFromInt(20),
		Direction:       pricing.Decrease,
	})
	require.NoError(t, err)

	c := cart.Cart{
		ID:    "c1",
		Owner: "7",
		Items: []cart.LineItem{
			{Product: catalog.Product{ID: 1, Name: "Z", ListPrice: decimal.NewFromInt(100), Stock: 5}, Quantity: 3},
			{Product: catalog.Product{ID: 2, Name: "Q", ListPrice: decimal.RequireFromString("1.25"), Stock: 5}, Quantity: 2},
			{Product: catalog.Product{ID: 3, Name: "Free", Stock: 5}, Quantity: 1},
		},
	}

	v := Project(c, pricing.NewResolver(book, nil))

	require.Len(t, v.Lines, 3)
	assert.Equal(t, "80.00", v.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, pricing.SourceFinal, v.Lines[0].Source)
	assert.Equal(t, "240.00", v.Lines[0].LineTotal.StringFixed(2))
	assert.Equal(t, pricing.SourceList, v.Lines[1].Source)
	assert.Equal(t, "2.50", v.Lines[1].LineTotal.StringFixed(2))
	assert.Equal(t, pricing.SourceNone, v.Lines[2].Source)
	assert.Equal(t, 2, v.Lines[2].Index)

	assert.Equal(t, 6, v.TotalQuantity)
	assert.Equal(t, "242.50", v.TotalPrice.StringFixed(2))
	assert.Equal(t, []string{"product 3 has no price data"}, v.Warnings)
}

func TestProject_EmptyCart(t *testing.T) {
	v := Project(cart.Cart{ID: "c"}, pricing.NewResolver(nil, nil))

	assert.Empty(t, v.Lines)
	assert.Zero(t, v.TotalQuantity)
	assert.True(t, v.TotalPrice.IsZero())
	assert.Empty(t, v.Warnings)
}

func TestFollow_MatchesStoreTotals(t *testing.T) {
	p := catalog.Product{ID: 1, Name: "A", ListPrice: decimal.RequireFromString("3.30"), Stock: 9, Available: true}
	store, err := cart.New("cart_user1", kv.NewMemory().Context("tab"), nil)
	require.NoError(t, err)

	var views []View
	stop := Follow(store, store.Resolver(), func(v View) { views = append(views, v) })
	store.AddItem(p, 2)
	store.AddItem(p, 1)
	stop()
	store.AddItem(p, 1)

	require.Len(t, views, 3)
	last := views[2]
	snap := store.Snapshot()
	assert.Equal(t, 3, last.TotalQuantity)
	assert.Equal(t, "9.90", last.TotalPrice.StringFixed(2))
	assert.Equal(t, 4, snap.TotalQuantity)
}
