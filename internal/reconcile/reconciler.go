package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/catalog"
	"github.com/roach88/cartsync/internal/kv"
	"github.com/roach88/cartsync/internal/pricing"
)

// DefaultMaxSteps bounds how many notifications one Drain may process.
const DefaultMaxSteps = 1000

// catalogReloader is implemented by catalogs that can refresh from storage.
type catalogReloader interface {
	Reload(ctx context.Context) error
}

// priceLoader is implemented by price sources that can refresh from storage.
type priceLoader interface {
	Load(ctx context.Context) error
}

// Reconciler drives one cart.Store from notifications.
//
// Thread-safety model:
//   - Enqueue() and Attach() callbacks: safe from any goroutine
//   - Run() / Drain(): one caller at a time; this is the single writer
type Reconciler struct {
	store    *cart.Store
	catalog  catalog.Provider
	prices   pricing.Source
	sink     NoticeSink
	logger   *slog.Logger
	router   Router
	queue    *queue
	maxSteps int
	storage  kv.Storage

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metrics        *metrics
	tracer         trace.Tracer
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithCatalog sets the catalog lines are revalidated against.
func WithCatalog(p catalog.Provider) Option {
	return func(r *Reconciler) {
		r.catalog = p
	}
}

// WithPrices sets the price source reloaded on price notifications.
func WithPrices(s pricing.Source) Option {
	return func(r *Reconciler) {
		r.prices = s
	}
}

// WithNoticeSink receives revalidation notices.
func WithNoticeSink(s NoticeSink) Option {
	return func(r *Reconciler) {
		r.sink = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// WithMeterProvider sets the meter provider. Default: the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Reconciler) {
		r.meterProvider = mp
	}
}

// WithTracerProvider sets the tracer provider. Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Reconciler) {
		r.tracerProvider = tp
	}
}

// WithMaxSteps bounds a single Drain. Default: DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(r *Reconciler) {
		r.maxSteps = n
	}
}

// New creates a reconciler for store.
func New(store *cart.Store, opts ...Option) (*Reconciler, error) {
	r := &Reconciler{
		store:    store,
		logger:   slog.Default(),
		router:   Router{Identity: store.Key()},
		queue:    newQueue(),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.meterProvider == nil {
		r.meterProvider = otel.GetMeterProvider()
	}
	if r.tracerProvider == nil {
		r.tracerProvider = otel.GetTracerProvider()
	}

	m, err := newMetrics(r.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("new reconciler: %w", err)
	}
	r.metrics = m
	r.tracer = r.tracerProvider.Tracer(instrumentationName)
	r.logger = r.logger.With("cart_key", store.Key().String())
	return r, nil
}

// Attach subscribes to external changes on storage and to in-process change
// signals from the configured catalog and price source. Every signal is
// enqueued; none is processed inline. The returned function detaches all of
// them.
//
// Cart notifications are reconciled against the value currently persisted in
// storage rather than the value carried by the event, so a backlog of stale
// events collapses onto the latest write.
func (r *Reconciler) Attach(storage kv.Storage) (detach func()) {
	r.storage = storage
	var cancels []func()

	cancels = append(cancels, storage.Watch(func(c kv.Change) {
		if n, ok := r.router.Route(c); ok {
			r.Enqueue(n)
		}
	}))
	if w, ok := r.catalog.(catalog.Watcher); ok {
		cancels = append(cancels, w.Watch(func() {
			r.Enqueue(Notification{Kind: KindCatalog, Identity: r.router.Identity})
		}))
	}
	if w, ok := r.prices.(catalog.Watcher); ok {
		cancels = append(cancels, w.Watch(func() {
			r.Enqueue(Notification{Kind: KindPrice, Identity: r.router.Identity})
		}))
	}

	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Enqueue submits n for processing. Returns false after Stop.
func (r *Reconciler) Enqueue(n Notification) bool {
	return r.queue.enqueue(n)
}

// Pending returns the number of queued notifications.
func (r *Reconciler) Pending() int {
	return r.queue.len()
}

// Drain processes queued notifications until the queue is empty, including
// any enqueued while draining. Returns the number processed.
func (r *Reconciler) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if processed >= r.maxSteps && r.queue.len() > 0 {
			return processed, &StepLimitError{Limit: r.maxSteps, Processed: processed}
		}
		n, ok := r.queue.tryDequeue()
		if !ok {
			return processed, nil
		}
		r.process(ctx, n)
		processed++
	}
}

// Run processes notifications until ctx is cancelled or Stop is called.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler starting")

	for {
		if n, ok := r.queue.tryDequeue(); ok {
			r.process(ctx, n)
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping: context cancelled")
			r.queue.close()
			return ctx.Err()

		case <-r.queue.wait():
			// The signal channel is closed by Stop, so this fires
			// repeatedly once stopped; return when nothing is left.
			if r.queue.len() == 0 && r.stopped() {
				r.logger.Info("reconciler stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the queue is empty.
func (r *Reconciler) Stop() {
	r.queue.close()
}

func (r *Reconciler) stopped() bool {
	r.queue.mu.Lock()
	defer r.queue.mu.Unlock()
	return r.queue.closed
}

// process handles one notification. Failures are logged, never propagated:
// a bad signal must not stop the loop.
func (r *Reconciler) process(ctx context.Context, n Notification) {
	ctx, span := r.tracer.Start(ctx, "reconcile."+n.Kind.String(),
		trace.WithAttributes(
			attribute.String("cartsync.kind", n.Kind.String()),
			attribute.String("cartsync.key", n.Key),
			attribute.String("cartsync.identity", n.Identity.String()),
		))
	defer span.End()

	r.metrics.notification(ctx, n.Kind)

	var err error
	switch n.Kind {
	case KindCart:
		err = r.mergeCart(ctx, n)
	case KindCatalog:
		err = r.revalidate(ctx)
	case KindPrice:
		err = r.refreshPrices(ctx)
	default:
		err = fmt.Errorf("unknown notification kind: %d", int(n.Kind))
	}

	if err != nil {
		r.logger.Warn("reconcile failed", "kind", n.Kind.String(), "key", n.Key, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// mergeCart folds another context's write into the store.
func (r *Reconciler) mergeCart(ctx context.Context, n Notification) error {
	if n.Identity != "" && n.Identity != r.router.Identity {
		return nil
	}
	value := n.Value
	if r.storage != nil {
		current, ok, err := r.storage.Get(ctx, r.router.Identity.String())
		if err != nil {
			return fmt.Errorf("read cart: %w", err)
		}
		if !ok {
			current = nil
		}
		value = current
	}
	if value == nil {
		r.logger.Debug("cart key deleted externally; keeping local cart")
		return nil
	}

	remote, err := cart.Decode(value)
	if err != nil {
		r.metrics.corrupt.Add(ctx, 1)
		r.logger.Warn("corrupt cart payload treated as empty", "error", err)
		remote = cart.Cart{}
	}

	out := r.store.ReplaceItems(remote.Items)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("cartsync.outcome", out.String()))
	return nil
}

// revalidate checks every line against the catalog.
func (r *Reconciler) revalidate(ctx context.Context) error {
	if r.catalog == nil {
		return nil
	}
	if rl, ok := r.catalog.(catalogReloader); ok {
		if err := rl.Reload(ctx); err != nil {
			return fmt.Errorf("reload catalog: %w", err)
		}
	}

	snapshot := r.store.Snapshot()
	next := make([]cart.LineItem, 0, len(snapshot.Items))
	var notices []Notice
	removed, clamped := 0, 0

	for _, item := range snapshot.Items {
		p, ok := r.catalog.Product(item.Product.ID)
		stock := p.Sellable()
		if !ok || stock == 0 {
			name := item.Product.Name
			if ok {
				name = p.Name
			}
			notices = append(notices, Notice{Kind: NoticeRemoved, ProductID: item.Product.ID, ProductName: name, Previous: item.Quantity})
			removed++
			continue
		}

		switch {
		case stock < item.Quantity:
			notices = append(notices, Notice{Kind: NoticeAdjusted, ProductID: p.ID, ProductName: p.Name, Previous: item.Quantity, Current: stock})
			item.Quantity = stock
			clamped++
		case stock > item.Quantity:
			notices = append(notices, Notice{Kind: NoticeMoreStock, ProductID: p.ID, ProductName: p.Name, Previous: item.Quantity, Current: stock})
		}
		item.Product = p
		next = append(next, item)
	}

	out := r.store.ReplaceItems(next)
	if removed > 0 {
		r.metrics.removed.Add(ctx, int64(removed))
	}
	if clamped > 0 {
		r.metrics.clamped.Add(ctx, int64(clamped))
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("cartsync.outcome", out.String()),
		attribute.Int("cartsync.lines_removed", removed),
		attribute.Int("cartsync.lines_clamped", clamped),
	)

	for _, notice := range notices {
		r.logger.Info("cart notice", "notice", notice.Kind.String(), "product_id", notice.ProductID,
			"previous", notice.Previous, "current", notice.Current)
		if r.sink != nil {
			r.sink.Notify(notice)
		}
	}
	return nil
}

func (r *Reconciler) refreshPrices(ctx context.Context) error {
	if l, ok := r.prices.(priceLoader); ok {
		if err := l.Load(ctx); err != nil {
			return fmt.Errorf("reload prices: %w", err)
		}
	}
	changed := r.store.Refresh()
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cartsync.totals_changed", changed))
	return nil
}
