package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/catalog"
	"github.com/roach88/cartsync/internal/identity"
	"github.com/roach88/cartsync/internal/kv"
	"github.com/roach88/cartsync/internal/pricing"
	"github.com/roach88/cartsync/internal/reconcile"
	"github.com/roach88/cartsync/internal/seed"
	"github.com/roach88/cartsync/internal/testutil"
)

// adminContext is the storage context that owns catalog and price writes.
const adminContext = "admin"

// maxSettleRounds bounds how many drain passes a reconcile step may take
// before the tabs are declared non-convergent.
const maxSettleRounds = 10

// tab is one execution context with its own storage handle and catalog and
// price views loaded from shared storage.
type tab struct {
	name       string
	catalog    *catalog.Memory
	store      *cart.Store
	reconciler *reconcile.Reconciler
	notices    *reconcile.Recorder
}

// Harness executes one scenario over a fresh in-memory storage domain.
type Harness struct {
	domain  *kv.Memory
	admin   kv.Storage
	catalog *catalog.Memory
	prices  *pricing.Book
	key     identity.Key
	tabs    map[string]*tab
	order   []string
	clock   *kv.Clock
	logger  *slog.Logger
}

// stepResult is what a step reported, before expectations are checked.
type stepResult struct {
	outcome    cart.Outcome
	hasOutcome bool
	flag       bool
	hasFlag    bool
	label      string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory domain with deterministic cart IDs
// and trace sequence numbers, so traces are stable for golden comparison.
// An error means the scenario could not be executed at all; expectation and
// assertion failures are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, err := newHarness(ctx, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to set up scenario: %w", err)
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	for _, msg := range EvaluateAssertions(h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, s *Scenario) (*Harness, error) {
	domain := kv.NewMemory()
	admin := domain.Context(adminContext)
	h := &Harness{
		domain:  domain,
		admin:   admin,
		catalog: catalog.NewMemory(nil, catalog.WithStorage(admin)),
		prices:  pricing.NewBook(pricing.WithStorage(admin)),
		tabs:    make(map[string]*tab),
		clock:   kv.NewClockAt(0),
		logger:  testutil.DiscardLogger(),
	}

	if s.Seed != "" {
		sd, err := seed.LoadDir(s.Seed)
		if err != nil {
			return nil, fmt.Errorf("load seed: %w", err)
		}
		if err := sd.Apply(ctx, h.catalog, h.prices); err != nil {
			return nil, err
		}
	}
	for _, p := range s.Products {
		if err := h.catalog.Put(ctx, productFromDef(p)); err != nil {
			return nil, fmt.Errorf("product %d: %w", p.ID, err)
		}
	}
	for _, p := range s.Prices {
		if _, err := h.prices.Upsert(ctx, entryFrom(p.Product, p.Current, p.Previous, p.Adjustment, p.Direction)); err != nil {
			return nil, fmt.Errorf("price %d: %w", p.Product, err)
		}
	}

	u := s.userDef()
	key, err := identity.For(identity.User{ID: u.ID, Admin: u.Admin})
	if err != nil {
		return nil, err
	}
	h.key = key

	ids := testutil.NewSeqGenerator("cart")
	for _, name := range s.tabNames() {
		t, err := h.openTab(ctx, name, ids)
		if err != nil {
			return nil, fmt.Errorf("tab %s: %w", name, err)
		}
		h.tabs[name] = t
		h.order = append(h.order, name)
	}
	return h, nil
}

func (h *Harness) openTab(ctx context.Context, name string, ids cart.IDGenerator) (*tab, error) {
	storage := h.domain.Context(name)

	cat := catalog.NewMemory(nil, catalog.WithStorage(storage))
	if err := cat.Reload(ctx); err != nil {
		return nil, err
	}
	book := pricing.NewBook(pricing.WithStorage(storage))
	if err := book.Load(ctx); err != nil {
		return nil, err
	}

	store, err := cart.New(h.key, storage, book,
		cart.WithCatalog(cat),
		cart.WithLogger(h.logger),
		cart.WithIDGenerator(ids),
	)
	if err != nil {
		return nil, err
	}

	notices := &reconcile.Recorder{}
	r, err := reconcile.New(store,
		reconcile.WithCatalog(cat),
		reconcile.WithPrices(book),
		reconcile.WithNoticeSink(notices),
		reconcile.WithLogger(h.logger),
		reconcile.WithMeterProvider(noopmetric.NewMeterProvider()),
		reconcile.WithTracerProvider(nooptrace.NewTracerProvider()),
	)
	if err != nil {
		return nil, err
	}
	r.Attach(storage)

	return &tab{
		name:       name,
		catalog:    cat,
		store:      store,
		reconciler: r,
		notices:    notices,
	}, nil
}

// tabNamed returns the named tab, or the first tab for an empty name.
func (h *Harness) tabNamed(name string) *tab {
	if name == "" {
		name = h.order[0]
	}
	return h.tabs[name]
}

func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		ev := TraceEvent{Seq: h.clock.Next(), Op: step.Op}

		var res stepResult
		var err error
		switch {
		case tabOps[step.Op]:
			t := h.tabNamed(step.Tab)
			ev.Tab = t.name
			res, ev.Args = h.executeTabStep(t, step)
			snap := t.store.Snapshot()
			ev.TotalQuantity = snap.TotalQuantity
			ev.Total = snap.TotalPrice.StringFixed(2)
		case step.Op == OpReconcile:
			err = h.settle(ctx)
			res = stepResult{label: "settled"}
		default:
			ev.Args, err = h.executeAdminStep(ctx, step)
			res = stepResult{label: "ok"}
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}

		ev.Outcome = res.String()
		result.AddTrace(ev)

		for _, msg := range checkExpect(step.Expect, res) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Op, msg))
		}
	}
	return nil
}

func (h *Harness) executeTabStep(t *tab, step Step) (stepResult, map[string]any) {
	s := t.store
	switch step.Op {
	case OpAdd:
		p, ok := t.catalog.Product(step.Product)
		if !ok {
			p = catalog.Product{ID: step.Product}
		}
		out := s.AddItem(p, step.Quantity)
		return outcomeResult(out), map[string]any{"product": step.Product, "quantity": step.Quantity}
	case OpRemove:
		return outcomeResult(s.RemoveItem(step.Product)), map[string]any{"product": step.Product}
	case OpUpdate:
		idx := lineIndex(s, step)
		out := s.UpdateQuantity(step.Product, idx, step.Quantity)
		return outcomeResult(out), map[string]any{"product": step.Product, "index": idx, "quantity": step.Quantity}
	case OpInc:
		idx := lineIndex(s, step)
		return flagResult(s.IncreaseQuantity(step.Product, idx)), map[string]any{"product": step.Product, "index": idx}
	case OpDec:
		return flagResult(s.DecreaseQuantity(*step.Index)), map[string]any{"index": *step.Index}
	case OpClear:
		return outcomeResult(s.Clear()), nil
	case OpRefresh:
		return flagResult(s.Refresh()), nil
	}
	panic(fmt.Sprintf("harness: unhandled tab op %q", step.Op))
}

// lineIndex returns the explicit index, or the index of the product's line
// in the current snapshot (-1 if absent).
func lineIndex(s *cart.Store, step Step) int {
	if step.Index != nil {
		return *step.Index
	}
	_, idx := s.Snapshot().Line(step.Product)
	return idx
}

func (h *Harness) executeAdminStep(ctx context.Context, step Step) (map[string]any, error) {
	switch step.Op {
	case OpSetStock:
		args := map[string]any{"product": step.Product, "stock": step.Stock}
		return args, h.catalog.SetStock(ctx, step.Product, step.Stock)
	case OpSetAvailable:
		args := map[string]any{"product": step.Product, "available": *step.Available}
		return args, h.catalog.SetAvailability(ctx, step.Product, *step.Available)
	case OpDeleteProd:
		return map[string]any{"product": step.Product}, h.catalog.Delete(ctx, step.Product)
	case OpPutProduct:
		p := ProductDef{ID: step.Product, Name: step.Name, Price: step.Price, Stock: step.Stock, Available: step.Available}
		args := map[string]any{"product": step.Product, "price": step.Price, "stock": step.Stock}
		return args, h.catalog.Put(ctx, productFromDef(p))
	case OpSetPrice:
		e := entryFrom(step.Product, step.Current, step.Previous, step.Adjustment, step.Direction)
		args := map[string]any{"product": step.Product, "current": step.Current}
		if step.Adjustment != "" {
			args["adjustment"] = step.Adjustment
			args["direction"] = string(e.Direction)
		}
		_, err := h.prices.Upsert(ctx, e)
		return args, err
	case OpWriteRaw:
		return map[string]any{"raw": step.Raw}, h.admin.Set(ctx, h.key.String(), []byte(step.Raw))
	}
	return nil, fmt.Errorf("unhandled admin op %q", step.Op)
}

// settle drains every tab until a full round processes nothing.
func (h *Harness) settle(ctx context.Context) error {
	for round := 0; round < maxSettleRounds; round++ {
		total := 0
		for _, name := range h.order {
			n, err := h.tabs[name].reconciler.Drain(ctx)
			if err != nil {
				return fmt.Errorf("drain %s: %w", name, err)
			}
			total += n
		}
		if total == 0 {
			return nil
		}
	}
	return fmt.Errorf("tabs did not settle after %d rounds", maxSettleRounds)
}

func outcomeResult(out cart.Outcome) stepResult {
	return stepResult{outcome: out, hasOutcome: true}
}

func flagResult(b bool) stepResult {
	return stepResult{flag: b, hasFlag: true}
}

func (r stepResult) String() string {
	switch {
	case r.hasOutcome:
		return r.outcome.String()
	case r.hasFlag:
		return strconv.FormatBool(r.flag)
	default:
		return r.label
	}
}

func checkExpect(e *Expect, res stepResult) []string {
	if e == nil {
		return nil
	}
	var errs []string
	if (e.Kind != "" || e.Reason != "" || e.Changed != nil || e.Applied != nil) && !res.hasOutcome {
		return []string{fmt.Sprintf("expected an outcome, op reported %q", res.String())}
	}
	if e.Kind != "" && e.Kind != res.outcome.Kind.String() {
		errs = append(errs, fmt.Sprintf("kind: expected %s, got %s", e.Kind, res.outcome.Kind))
	}
	if e.Reason != "" && e.Reason != res.outcome.Reason.String() {
		errs = append(errs, fmt.Sprintf("reason: expected %s, got %s", e.Reason, res.outcome.Reason))
	}
	if e.Changed != nil && *e.Changed != res.outcome.Changed() {
		errs = append(errs, fmt.Sprintf("changed: expected %t, got %t", *e.Changed, res.outcome.Changed()))
	}
	if e.Applied != nil && *e.Applied != res.outcome.Applied {
		errs = append(errs, fmt.Sprintf("applied: expected %d, got %d", *e.Applied, res.outcome.Applied))
	}
	if e.Result != nil {
		if !res.hasFlag {
			errs = append(errs, fmt.Sprintf("result: op reported %q, not a bool", res.String()))
		} else if *e.Result != res.flag {
			errs = append(errs, fmt.Sprintf("result: expected %t, got %t", *e.Result, res.flag))
		}
	}
	return errs
}

func productFromDef(p ProductDef) catalog.Product {
	available := true
	if p.Available != nil {
		available = *p.Available
	}
	name := p.Name
	if name == "" {
		name = fmt.Sprintf("product-%d", p.ID)
	}
	return catalog.Product{
		ID:        p.ID,
		Name:      name,
		ListPrice: decimal.RequireFromString(p.Price),
		Stock:     p.Stock,
		Available: available,
	}
}

// entryFrom builds a price record from validated decimal strings.
func entryFrom(product int64, current, previous, adjustment, direction string) pricing.Entry {
	e := pricing.Entry{ProductID: product, Direction: pricing.Direction(direction)}
	if current != "" {
		e.CurrentPrice = pricing.Price(decimal.RequireFromString(current))
	}
	if previous != "" {
		e.PreviousPrice = pricing.Price(decimal.RequireFromString(previous))
	}
	if adjustment != "" {
		e.AdjustmentValue = decimal.RequireFromString(adjustment)
	}
	return pricing.Normalize(e)
}
