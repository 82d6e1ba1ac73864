package seed

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/catalog"
	"github.com/roach88/cartsync/internal/pricing"
)

// Seed is a compiled fixture.
type Seed struct {
	Products []catalog.Product
	Prices   []pricing.Entry
}

// Parse compiles a single CUE source.
func Parse(filename string, src []byte) (*Seed, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fromCUE(ErrCodeBuildFailed, err)
	}
	return Compile(v)
}

// LoadDir loads every CUE file in dir as one package and compiles it.
func LoadDir(dir string) (*Seed, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("seed directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing seed directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("resolving %s: %v", dir, err)}
	}
	instances := load.Instances([]string{"."}, &load.Config{Dir: abs})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fromCUE(ErrCodeLoadFailed, inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, fromCUE(ErrCodeBuildFailed, err)
	}
	return Compile(v)
}

// Compile extracts products and prices from an evaluated CUE value.
func Compile(v cue.Value) (*Seed, error) {
	s := &Seed{}
	labels := map[string]int64{}

	productsVal := v.LookupPath(cue.ParsePath("product"))
	if productsVal.Exists() {
		iter, err := productsVal.Fields()
		if err != nil {
			return nil, fromCUE(ErrCodeInvalidProduct, err)
		}
		seen := map[int64]string{}
		for iter.Next() {
			p, err := compileProduct(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			if other, dup := seen[p.ID]; dup {
				return nil, &LoadError{
					Code:    ErrCodeDuplicateProduct,
					Message: fmt.Sprintf("product %s reuses id %d of product %s", iter.Label(), p.ID, other),
					Pos:     iter.Value().Pos(),
				}
			}
			seen[p.ID] = iter.Label()
			labels[iter.Label()] = p.ID
			s.Products = append(s.Products, p)
		}
	}
	if len(s.Products) == 0 {
		return nil, &LoadError{Code: ErrCodeEmpty, Message: "seed declares no products", Pos: v.Pos()}
	}

	pricesVal := v.LookupPath(cue.ParsePath("price"))
	if pricesVal.Exists() {
		iter, err := pricesVal.Fields()
		if err != nil {
			return nil, fromCUE(ErrCodeInvalidPrice, err)
		}
		for iter.Next() {
			id, ok := labels[iter.Label()]
			if !ok {
				return nil, &LoadError{
					Code:    ErrCodeUnknownProduct,
					Message: fmt.Sprintf("price %s names no declared product", iter.Label()),
					Pos:     iter.Value().Pos(),
				}
			}
			e, err := compilePrice(id, iter.Value())
			if err != nil {
				return nil, err
			}
			s.Prices = append(s.Prices, e)
		}
	}

	slices.SortFunc(s.Products, func(a, b catalog.Product) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Prices, func(a, b pricing.Entry) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return s, nil
}

func compileProduct(label string, v cue.Value) (catalog.Product, error) {
	fail := func(field, msg string) (catalog.Product, error) {
		return catalog.Product{}, &LoadError{
			Code:    ErrCodeInvalidProduct,
			Message: fmt.Sprintf("product %s: %s: %s", label, field, msg),
			Pos:     v.Pos(),
		}
	}

	p := catalog.Product{Name: label, Available: true}

	id, err := v.LookupPath(cue.ParsePath("id")).Int64()
	if err != nil {
		return fail("id", "required integer")
	}
	if id < 1 {
		return fail("id", "must be positive")
	}
	p.ID = id

	price, err := number(v.LookupPath(cue.ParsePath("price")))
	if err != nil {
		return fail("price", err.Error())
	}
	if price.IsNegative() {
		return fail("price", "must not be negative")
	}
	p.ListPrice = price

	stock, err := v.LookupPath(cue.ParsePath("stock")).Int64()
	if err != nil {
		return fail("stock", "required integer")
	}
	if stock < 0 {
		return fail("stock", "must not be negative")
	}
	p.Stock = int(stock)

	if av := v.LookupPath(cue.ParsePath("available")); av.Exists() {
		if p.Available, err = av.Bool(); err != nil {
			return fail("available", "must be a bool")
		}
	}
	for field, dst := range map[string]*string{
		"name":     &p.Name,
		"sku":      &p.SKU,
		"brand":    &p.Brand,
		"category": &p.Category,
	} {
		fv := v.LookupPath(cue.ParsePath(field))
		if !fv.Exists() {
			continue
		}
		if *dst, err = fv.String(); err != nil {
			return fail(field, "must be a string")
		}
	}
	return p, nil
}

func compilePrice(productID int64, v cue.Value) (pricing.Entry, error) {
	fail := func(field, msg string) (pricing.Entry, error) {
		return pricing.Entry{}, &LoadError{
			Code:    ErrCodeInvalidPrice,
			Message: fmt.Sprintf("price for product %d: %s: %s", productID, field, msg),
			Pos:     v.Pos(),
		}
	}

	e := pricing.Entry{ProductID: productID, Direction: pricing.Increase}

	current, err := number(v.LookupPath(cue.ParsePath("current")))
	if err != nil {
		return fail("current", err.Error())
	}
	e.CurrentPrice = pricing.Price(current)

	if pv := v.LookupPath(cue.ParsePath("previous")); pv.Exists() {
		prev, err := number(pv)
		if err != nil {
			return fail("previous", err.Error())
		}
		e.PreviousPrice = pricing.Price(prev)
	}
	if av := v.LookupPath(cue.ParsePath("adjustment")); av.Exists() {
		adj, err := number(av)
		if err != nil {
			return fail("adjustment", err.Error())
		}
		if adj.IsNegative() || adj.GreaterThan(decimal.NewFromInt(100)) {
			return fail("adjustment", "must be between 0 and 100")
		}
		e.AdjustmentValue = adj
	}
	if dv := v.LookupPath(cue.ParsePath("direction")); dv.Exists() {
		dir, err := dv.String()
		if err != nil || !pricing.Direction(dir).Valid() {
			return fail("direction", `must be "+" or "-"`)
		}
		e.Direction = pricing.Direction(dir)
	}
	return pricing.Normalize(e), nil
}

// number reads a concrete CUE number from its literal text.
func number(v cue.Value) (decimal.Decimal, error) {
	if !v.Exists() {
		return decimal.Zero, fmt.Errorf("required number")
	}
	if k := v.IncompleteKind(); k&cue.NumberKind == 0 || !v.IsConcrete() {
		return decimal.Zero, fmt.Errorf("must be a concrete number")
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return decimal.Zero, fmt.Errorf("must be a concrete number")
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("must be a number")
	}
	return d, nil
}

// Apply replaces the catalog contents with the seed's products and upserts
// every price record.
func (s *Seed) Apply(ctx context.Context, cat *catalog.Memory, book *pricing.Book) error {
	if err := cat.Replace(ctx, s.Products); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	for _, e := range s.Prices {
		if _, err := book.Upsert(ctx, e); err != nil {
			return fmt.Errorf("seed price %d: %w", e.ProductID, err)
		}
	}
	return nil
}
