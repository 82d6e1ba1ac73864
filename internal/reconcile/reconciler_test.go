package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/catalog"
	"github.com/roach88/cartsync/internal/identity"
	"github.com/roach88/cartsync/internal/kv"
	"github.com/roach88/cartsync/internal/pricing"
	"github.com/roach88/cartsync/internal/testutil"
)

const testKey = identity.Key("cart_user1")

var product = testutil.Product

// tab is one execution context: storage handle, store, and reconciler.
type tab struct {
	storage    kv.Storage
	store      *cart.Store
	reconciler *Reconciler
	notices    *Recorder
}

func newTab(t *testing.T, domain *kv.Memory, name string, cat catalog.Provider, prices pricing.Source, opts ...Option) *tab {
	t.Helper()
	storage := domain.Context(name)
	store, err := cart.New(testKey, storage, prices, cart.WithCatalog(cat))
	require.NoError(t, err)

	notices := &Recorder{}
	opts = append([]Option{WithCatalog(cat), WithPrices(prices), WithNoticeSink(notices)}, opts...)
	r, err := New(store, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Attach(storage))
	return &tab{storage: storage, store: store, reconciler: r, notices: notices}
}

func drain(t *testing.T, tabs ...*tab) {
	t.Helper()
	for round := 0; round < 10; round++ {
		total := 0
		for _, tb := range tabs {
			n, err := tb.reconciler.Drain(context.Background())
			require.NoError(t, err)
			total += n
		}
		if total == 0 {
			return
		}
	}
	t.Fatal("tabs did not settle")
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

// Cart holds 2 of Y; the catalog drops Y's stock to 1; reconciliation
// leaves 1.
func TestRevalidate_ClampsToNewStock(t *testing.T) {
	ctx := context.Background()
	y := product(1, "Y", "10", 5)
	cat := catalog.NewMemory([]catalog.Product{y})
	reader := sdkmetric.NewManualReader()
	tb := newTab(t, kv.NewMemory(), "tab-1", cat, nil,
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))))

	tb.store.AddItem(y, 2)
	require.NoError(t, cat.SetStock(ctx, 1, 1))
	assert.Equal(t, 1, tb.reconciler.Pending())
	drain(t, tb)

	c := tb.store.Snapshot()
	assert.Equal(t, 1, c.Quantity(1))
	assert.Equal(t, 1, c.Items[0].Product.Stock)
	assert.Equal(t, "10.00", c.TotalPrice.StringFixed(2))
	assert.Equal(t, []Notice{{Kind: NoticeAdjusted, ProductID: 1, ProductName: "Y", Previous: 2, Current: 1}}, tb.notices.Notices())
	assert.Equal(t, int64(1), counter(t, reader, MetricLinesClamped))
	assert.Equal(t, int64(1), counter(t, reader, MetricNotifications))
}

func TestRevalidate_RemovesVanishedAndUnavailable(t *testing.T) {
	ctx := context.Background()
	a := product(1, "A", "1", 5)
	b := product(2, "B", "1", 5)
	c := product(3, "C", "1", 5)
	cat := catalog.NewMemory([]catalog.Product{a, b, c})
	reader := sdkmetric.NewManualReader()
	tb := newTab(t, kv.NewMemory(), "tab-1", cat, nil,
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))))

	tb.store.AddItem(a, 1)
	tb.store.AddItem(b, 1)
	tb.store.AddItem(c, 5)

	require.NoError(t, cat.Delete(ctx, 1))
	require.NoError(t, cat.SetAvailability(ctx, 2, false))
	drain(t, tb)

	snap := tb.store.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, int64(3), snap.Items[0].Product.ID)

	var removed []int64
	for _, n := range tb.notices.Notices() {
		if n.Kind == NoticeRemoved {
			removed = append(removed, n.ProductID)
		}
	}
	assert.Equal(t, []int64{1, 2}, removed)
	assert.Equal(t, int64(2), counter(t, reader, MetricLinesRemoved))
}

func TestRevalidate_MoreStockIsInformational(t *testing.T) {
	ctx := context.Background()
	x := product(1, "X", "1", 2)
	cat := catalog.NewMemory([]catalog.Product{x})
	tb := newTab(t, kv.NewMemory(), "tab-1", cat, nil)

	tb.store.AddItem(x, 2)
	require.NoError(t, cat.SetStock(ctx, 1, 10))
	drain(t, tb)

	assert.Equal(t, 2, tb.store.Snapshot().Quantity(1))
	notices := tb.notices.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeMoreStock, notices[0].Kind)
	assert.Equal(t, "X: 8 more in stock", notices[0].Message())
}

func TestRevalidate_SubscribersNeverSeeOverStock(t *testing.T) {
	ctx := context.Background()
	y := product(1, "Y", "1", 5)
	cat := catalog.NewMemory([]catalog.Product{y})
	tb := newTab(t, kv.NewMemory(), "tab-1", cat, nil)
	tb.store.AddItem(y, 4)

	var violations int
	tb.store.Subscribe(func(c cart.Cart) {
		for _, item := range c.Items {
			current, _ := cat.Product(item.Product.ID)
			if item.Quantity > current.Stock {
				violations++
			}
		}
	})

	require.NoError(t, cat.SetStock(ctx, 1, 2))
	drain(t, tb)
	require.NoError(t, cat.SetStock(ctx, 1, 1))
	drain(t, tb)

	assert.Zero(t, violations)
	assert.Equal(t, 1, tb.store.Snapshot().Quantity(1))
}

func TestMergeCart_AcrossTabs(t *testing.T) {
	domain := kv.NewMemory()
	x := product(1, "X", "3", 10)
	y := product(2, "Y", "4", 10)
	cat := catalog.NewMemory([]catalog.Product{x, y})

	a := newTab(t, domain, "a", cat, nil)
	b := newTab(t, domain, "b", cat, nil)

	a.store.AddItem(x, 2)
	a.store.AddItem(y, 1)
	drain(t, a, b)

	assert.Equal(t, a.store.Revision(), b.store.Revision())
	snap := b.store.Snapshot()
	assert.Equal(t, 3, snap.TotalQuantity)
	assert.Equal(t, "10.00", snap.TotalPrice.StringFixed(2))

	b.store.RemoveItem(1)
	drain(t, a, b)
	assert.Equal(t, 0, a.store.Snapshot().Quantity(1))
	assert.Equal(t, a.store.Revision(), b.store.Revision())
}

// Two tabs add 2 of W (stock 2) before either reconciles; both settle on 2.
func TestMergeCart_ConcurrentAddsSettleAtStock(t *testing.T) {
	domain := kv.NewMemory()
	w := product(1, "W", "5", 2)
	cat := catalog.NewMemory([]catalog.Product{w})

	a := newTab(t, domain, "a", cat, nil)
	b := newTab(t, domain, "b", cat, nil)

	a.store.AddItem(w, 2)
	b.store.AddItem(w, 2)
	drain(t, a, b)

	assert.Equal(t, 2, a.store.Snapshot().Quantity(1))
	assert.Equal(t, 2, b.store.Snapshot().Quantity(1))
}

func TestMergeCart_ClampsStaleRemoteWrite(t *testing.T) {
	ctx := context.Background()
	domain := kv.NewMemory()
	w := product(1, "W", "5", 2)
	cat := catalog.NewMemory([]catalog.Product{w})
	b := newTab(t, domain, "b", cat, nil)

	stale := cart.Cart{
		ID:    "remote",
		Owner: "1",
		Items: []cart.LineItem{{Product: product(1, "W", "5", 50), Quantity: 7}},
	}
	raw, err := cart.Encode(stale)
	require.NoError(t, err)
	require.NoError(t, domain.Context("other").Set(ctx, testKey.String(), raw))
	drain(t, b)

	assert.Equal(t, 2, b.store.Snapshot().Quantity(1))
}

func TestMergeCart_CorruptPayloadEmptiesCart(t *testing.T) {
	ctx := context.Background()
	domain := kv.NewMemory()
	x := product(1, "X", "1", 5)
	cat := catalog.NewMemory([]catalog.Product{x})
	reader := sdkmetric.NewManualReader()
	b := newTab(t, domain, "b", cat, nil,
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))))
	b.store.AddItem(x, 1)

	require.NoError(t, domain.Context("other").Set(ctx, testKey.String(), []byte(`{"items": [`)))
	drain(t, b)

	assert.Empty(t, b.store.Snapshot().Items)
	assert.Equal(t, int64(1), counter(t, reader, MetricCorruptPayloads))
}

func TestMergeCart_DeletedKeyIgnored(t *testing.T) {
	ctx := context.Background()
	domain := kv.NewMemory()
	x := product(1, "X", "1", 5)
	cat := catalog.NewMemory([]catalog.Product{x})
	b := newTab(t, domain, "b", cat, nil)
	b.store.AddItem(x, 1)

	require.NoError(t, domain.Context("other").Delete(ctx, testKey.String()))
	n, err := b.reconciler.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 1, b.store.Snapshot().Quantity(1))
}

func TestPriceChange_RefreshesTotalsAcrossTabs(t *testing.T) {
	ctx := context.Background()
	domain := kv.NewMemory()
	z := product(1, "Z", "100", 10)
	cat := catalog.NewMemory([]catalog.Product{z})

	adminBook := pricing.NewBook(pricing.WithStorage(domain.Context("admin")))
	shopperBook := pricing.NewBook(pricing.WithStorage(domain.Context("shopper")))
	shopper := newTab(t, domain, "shopper", cat, shopperBook)

	shopper.store.AddItem(z, 3)
	assert.Equal(t, "300.00", shopper.store.Snapshot().TotalPrice.StringFixed(2))

	_, err := adminBook.Upsert(ctx, pricing.Entry{
		ProductID:       1,
		CurrentPrice:    pricing.Price(decimal.NewFromInt(100)),
		AdjustmentValue: decimal.NewFromInt(20),
		Direction:       pricing.Decrease,
	})
	require.NoError(t, err)
	drain(t, shopper)

	assert.Equal(t, "240.00", shopper.store.Snapshot().TotalPrice.StringFixed(2))
}

func TestPriceChange_InProcessBookEnqueues(t *testing.T) {
	ctx := context.Background()
	z := product(1, "Z", "100", 10)
	cat := catalog.NewMemory([]catalog.Product{z})
	book := pricing.NewBook()
	var _ catalog.Watcher = book

	tb := newTab(t, kv.NewMemory(), "tab-1", cat, book)
	tb.store.AddItem(z, 2)

	_, err := book.Upsert(ctx, pricing.Entry{ProductID: 1, CurrentPrice: pricing.Price(decimal.NewFromInt(50))})
	require.NoError(t, err)
	assert.Equal(t, 1, tb.reconciler.Pending())
	drain(t, tb)

	assert.Equal(t, "100.00", tb.store.Snapshot().TotalPrice.StringFixed(2))
}

func TestCatalogChange_ReloadsFromSharedStorage(t *testing.T) {
	ctx := context.Background()
	domain := kv.NewMemory()
	y := product(1, "Y", "1", 5)

	admin := catalog.NewMemory([]catalog.Product{y}, catalog.WithStorage(domain.Context("admin")))
	require.NoError(t, admin.Save(ctx))
	shopperCatalog := catalog.NewMemory(nil, catalog.WithStorage(domain.Context("shopper")))
	require.NoError(t, shopperCatalog.Reload(ctx))

	shopper := newTab(t, domain, "shopper", shopperCatalog, nil)
	shopper.store.AddItem(y, 3)

	require.NoError(t, admin.SetStock(ctx, 1, 2))
	drain(t, shopper)
	assert.Equal(t, 2, shopper.store.Snapshot().Quantity(1))

	require.NoError(t, admin.Delete(ctx, 1))
	drain(t, shopper)
	assert.Empty(t, shopper.store.Snapshot().Items)
}

func TestDrain_StepLimit(t *testing.T) {
	cat := catalog.NewMemory(nil)
	tb := newTab(t, kv.NewMemory(), "tab-1", cat, nil, WithMaxSteps(2))

	for i := 0; i < 3; i++ {
		tb.reconciler.Enqueue(Notification{Kind: KindCatalog})
	}
	n, err := tb.reconciler.Drain(context.Background())
	assert.Equal(t, 2, n)
	assert.True(t, IsStepLimit(err))

	n, err = tb.reconciler.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProcess_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	cat := catalog.NewMemory(nil)
	tb := newTab(t, kv.NewMemory(), "tab-1", cat, nil, WithTracerProvider(tp))

	tb.reconciler.Enqueue(Notification{Kind: KindCatalog})
	tb.reconciler.Enqueue(Notification{Kind: KindPrice})
	drain(t, tb)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "reconcile.catalog", spans[0].Name())
	assert.Equal(t, "reconcile.price", spans[1].Name())
}

func TestRun_ProcessesUntilStopped(t *testing.T) {
	ctx := context.Background()
	y := product(1, "Y", "1", 5)
	cat := catalog.NewMemory([]catalog.Product{y})
	tb := newTab(t, kv.NewMemory(), "tab-1", cat, nil)
	tb.store.AddItem(y, 4)

	done := make(chan error, 1)
	go func() { done <- tb.reconciler.Run(ctx) }()

	require.NoError(t, cat.SetStock(ctx, 1, 1))
	require.Eventually(t, func() bool {
		return tb.store.Snapshot().Quantity(1) == 1
	}, time.Second, 5*time.Millisecond)

	tb.reconciler.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	assert.False(t, tb.reconciler.Enqueue(Notification{Kind: KindCatalog}))
}

func TestRun_ContextCancel(t *testing.T) {
	tb := newTab(t, kv.NewMemory(), "tab-1", catalog.NewMemory(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- tb.reconciler.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
