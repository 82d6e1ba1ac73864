package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cartsync/internal/pricing"
)

// Scenario describes a multi-tab cart session.
// Tabs share one storage domain; an admin context outside the tabs owns the
// catalog and price book.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed is an optional directory of CUE seed files, relative to the
	// scenario file.
	Seed string `yaml:"seed,omitempty"`

	// Products and Prices are applied after Seed.
	Products []ProductDef `yaml:"products,omitempty"`
	Prices   []PriceDef   `yaml:"prices,omitempty"`

	// User owns the cart. Defaults to a non-admin user "1".
	User UserDef `yaml:"user,omitempty"`

	// Tabs names the execution contexts. Defaults to a single "main" tab.
	Tabs []string `yaml:"tabs,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ProductDef is an inline catalog entry.
type ProductDef struct {
	ID        int64  `yaml:"id"`
	Name      string `yaml:"name"`
	Price     string `yaml:"price"`
	Stock     int    `yaml:"stock"`
	Available *bool  `yaml:"available,omitempty"`
}

// PriceDef is an inline price record.
type PriceDef struct {
	Product    int64  `yaml:"product"`
	Current    string `yaml:"current"`
	Previous   string `yaml:"previous,omitempty"`
	Adjustment string `yaml:"adjustment,omitempty"`
	Direction  string `yaml:"direction,omitempty"`
}

// UserDef identifies the cart owner.
type UserDef struct {
	ID    string `yaml:"id"`
	Admin bool   `yaml:"admin,omitempty"`
}

// Step is one operation. Tab operations run against a tab's store; admin
// operations change the shared catalog or price book; reconcile drains every
// tab's reconciler until all are idle.
type Step struct {
	// Tab defaults to the first tab. Ignored by admin operations.
	Tab string `yaml:"tab,omitempty"`
	Op  string `yaml:"op"`

	Product   int64  `yaml:"product,omitempty"`
	Quantity  int    `yaml:"quantity,omitempty"`
	Index     *int   `yaml:"index,omitempty"`
	Stock     int    `yaml:"stock,omitempty"`
	Available *bool  `yaml:"available,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Price     string `yaml:"price,omitempty"`
	Raw       string `yaml:"raw,omitempty"`

	Current    string `yaml:"current,omitempty"`
	Previous   string `yaml:"previous,omitempty"`
	Adjustment string `yaml:"adjustment,omitempty"`
	Direction  string `yaml:"direction,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks a step's outcome. Unset fields are not checked.
type Expect struct {
	// Kind and Reason match cart.Outcome names, e.g. "clamped" and
	// "insufficient_stock".
	Kind   string `yaml:"kind,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	Changed *bool `yaml:"changed,omitempty"`
	Applied *int  `yaml:"applied,omitempty"`

	// Result checks operations that report a bool (inc, dec, refresh).
	Result *bool `yaml:"result,omitempty"`
}

// Assertion validates final state after every step has run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Tab     string `yaml:"tab,omitempty"`
	Product int64  `yaml:"product,omitempty"`

	// Quantity is the expected line quantity (0 means no line) for line
	// assertions and the expected total quantity for totals.
	Quantity *int `yaml:"quantity,omitempty"`

	// Price is the expected total price for totals.
	Price string `yaml:"price,omitempty"`

	// Unit and Source check a line's resolved unit price.
	Unit   string `yaml:"unit,omitempty"`
	Source string `yaml:"source,omitempty"`

	// Kind is the notice kind for notice assertions.
	Kind string `yaml:"kind,omitempty"`

	// Op and Count are used by trace_count.
	Op    string `yaml:"op,omitempty"`
	Count *int   `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertLine       = "line"
	AssertTotals     = "totals"
	AssertNotice     = "notice"
	AssertConverged  = "converged"
	AssertTraceCount = "trace_count"
)

// Step operations.
const (
	OpAdd          = "add"
	OpRemove       = "remove"
	OpUpdate       = "update"
	OpInc          = "inc"
	OpDec          = "dec"
	OpClear        = "clear"
	OpRefresh      = "refresh"
	OpSetStock     = "set_stock"
	OpSetAvailable = "set_available"
	OpDeleteProd   = "delete_product"
	OpPutProduct   = "put_product"
	OpSetPrice     = "set_price"
	OpWriteRaw     = "write_raw"
	OpReconcile    = "reconcile"
)

var tabOps = map[string]bool{
	OpAdd: true, OpRemove: true, OpUpdate: true, OpInc: true,
	OpDec: true, OpClear: true, OpRefresh: true,
}

var adminOps = map[string]bool{
	OpSetStock: true, OpSetAvailable: true, OpDeleteProd: true,
	OpPutProduct: true, OpSetPrice: true, OpWriteRaw: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly. A relative seed path is
// resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Seed != "" && !filepath.IsAbs(scenario.Seed) {
		scenario.Seed = filepath.Join(filepath.Dir(path), scenario.Seed)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// tabNames returns the configured tabs or the default single tab.
func (s *Scenario) tabNames() []string {
	if len(s.Tabs) == 0 {
		return []string{"main"}
	}
	return s.Tabs
}

func (s *Scenario) userDef() UserDef {
	if s.User.ID == "" {
		return UserDef{ID: "1", Admin: s.User.Admin}
	}
	return s.User
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.Seed != "" {
		if _, err := os.Stat(s.Seed); os.IsNotExist(err) {
			return fmt.Errorf("seed directory not found: %s", s.Seed)
		}
	}

	tabs := map[string]bool{}
	for _, name := range s.tabNames() {
		if name == "" || name == adminContext {
			return fmt.Errorf("tab name %q is reserved or empty", name)
		}
		if tabs[name] {
			return fmt.Errorf("duplicate tab %q", name)
		}
		tabs[name] = true
	}

	for i, p := range s.Products {
		if p.ID < 1 {
			return fmt.Errorf("products[%d]: id must be positive", i)
		}
		if _, err := decimal.NewFromString(p.Price); err != nil {
			return fmt.Errorf("products[%d]: price %q: %w", i, p.Price, err)
		}
	}
	for i, p := range s.Prices {
		if err := validatePrice(p.Product, p.Current, p.Previous, p.Adjustment, p.Direction); err != nil {
			return fmt.Errorf("prices[%d]: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step, tabs); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, tabs); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, tabs map[string]bool) error {
	switch {
	case step.Op == "":
		return fmt.Errorf("op is required")
	case tabOps[step.Op]:
		if step.Tab != "" && !tabs[step.Tab] {
			return fmt.Errorf("unknown tab %q", step.Tab)
		}
	case adminOps[step.Op], step.Op == OpReconcile:
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	switch step.Op {
	case OpAdd, OpRemove, OpUpdate, OpInc, OpSetStock, OpSetAvailable, OpDeleteProd:
		if step.Product < 1 {
			return fmt.Errorf("%s: product is required", step.Op)
		}
	case OpPutProduct:
		if step.Product < 1 {
			return fmt.Errorf("%s: product is required", step.Op)
		}
		if _, err := decimal.NewFromString(step.Price); err != nil {
			return fmt.Errorf("%s: price %q: %w", step.Op, step.Price, err)
		}
	case OpSetPrice:
		if err := validatePrice(step.Product, step.Current, step.Previous, step.Adjustment, step.Direction); err != nil {
			return fmt.Errorf("%s: %w", step.Op, err)
		}
	case OpDec:
		if step.Index == nil {
			return fmt.Errorf("%s: index is required", step.Op)
		}
	}
	if step.Op == OpSetAvailable && step.Available == nil {
		return fmt.Errorf("%s: available is required", step.Op)
	}
	return nil
}

func validatePrice(product int64, current, previous, adjustment, direction string) error {
	if product < 1 {
		return fmt.Errorf("product is required")
	}
	for name, v := range map[string]string{"current": current, "previous": previous, "adjustment": adjustment} {
		if v == "" {
			continue
		}
		if _, err := decimal.NewFromString(v); err != nil {
			return fmt.Errorf("%s %q: %w", name, v, err)
		}
	}
	if direction != "" && !pricing.Direction(direction).Valid() {
		return fmt.Errorf("direction %q must be %q or %q", direction, pricing.Increase, pricing.Decrease)
	}
	return nil
}

func validateAssertion(a Assertion, tabs map[string]bool) error {
	if a.Tab != "" && !tabs[a.Tab] {
		return fmt.Errorf("unknown tab %q", a.Tab)
	}

	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertLine:
		if a.Product < 1 {
			return fmt.Errorf("product is required for line")
		}
	case AssertTotals:
		if a.Quantity == nil && a.Price == "" {
			return fmt.Errorf("quantity or price is required for totals")
		}
	case AssertNotice:
		if a.Kind == "" {
			return fmt.Errorf("kind is required for notice")
		}
	case AssertConverged:
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("op is required for trace_count")
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("count must be non-negative for trace_count")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
