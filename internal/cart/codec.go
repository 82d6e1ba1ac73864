package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/cartsync/internal/catalog"
)

// ErrCorruptPayload is returned by Decode when a persisted cart cannot be
// interpreted at all.
var ErrCorruptPayload = errors.New("corrupt cart payload")

type wireProduct struct {
	ID        int64           `json:"idProduct"`
	Name      string          `json:"productName"`
	Price     json.RawMessage `json:"price"`
	Stock     int             `json:"quantity"`
	Available bool            `json:"available"`
	SKU       string          `json:"sku,omitempty"`
	Brand     string          `json:"brand,omitempty"`
	Category  string          `json:"category,omitempty"`
}

type wireItem struct {
	Product  wireProduct `json:"product"`
	Quantity int         `json:"quantity"`
}

type wireCart struct {
	ID            string          `json:"idCart"`
	Owner         string          `json:"idUser"`
	Items         []wireItem      `json:"items"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalPrice    json.RawMessage `json:"totalPrice"`
}

// Encode serializes c in the persisted storefront format. Prices are JSON
// numbers; totalPrice always carries two decimals.
func Encode(c Cart) ([]byte, error) {
	w := wireCart{
		ID:            c.ID,
		Owner:         c.Owner,
		Items:         make([]wireItem, 0, len(c.Items)),
		TotalQuantity: c.TotalQuantity,
		TotalPrice:    json.RawMessage(c.TotalPrice.StringFixed(2)),
	}
	for _, item := range c.Items {
		p := item.Product
		w.Items = append(w.Items, wireItem{
			Product: wireProduct{
				ID:        p.ID,
				Name:      p.Name,
				Price:     json.RawMessage(p.ListPrice.String()),
				Stock:     p.Stock,
				Available: p.Available,
				SKU:       p.SKU,
				Brand:     p.Brand,
				Category:  p.Category,
			},
			Quantity: item.Quantity,
		})
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode cart: %w", err)
	}
	return data, nil
}

// Decode parses a persisted cart, coercing what it can and dropping lines it
// cannot trust:
//   - items missing or null: empty cart
//   - a line without a product object or a positive idProduct: dropped
//   - line quantity missing or null: 1; fractional: truncated; below 1: dropped
//   - product stock missing: 0; negative: 0
//   - product price: number or numeric string
//
// Totals in the payload are ignored; the caller recomputes them. Malformed
// JSON or a non-object top level returns an error wrapping ErrCorruptPayload.
func Decode(data []byte) (Cart, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Cart{}, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if top == nil {
		return Cart{}, fmt.Errorf("%w: top level is null", ErrCorruptPayload)
	}

	c := Cart{
		ID:    decodeText(top["idCart"]),
		Owner: decodeText(top["idUser"]),
		Items: []LineItem{},
	}

	rawItems := top["items"]
	if isNull(rawItems) {
		return c, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return Cart{}, fmt.Errorf("%w: items: %v", ErrCorruptPayload, err)
	}
	for _, raw := range items {
		if item, ok := decodeItem(raw); ok {
			c.Items = append(c.Items, item)
		}
	}
	return c, nil
}

func decodeItem(raw json.RawMessage) (LineItem, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return LineItem{}, false
	}

	product, ok := decodeProduct(fields["product"])
	if !ok {
		return LineItem{}, false
	}

	quantity := 1
	if q := fields["quantity"]; !isNull(q) {
		n, ok := decodeNumber(q)
		if !ok {
			return LineItem{}, false
		}
		quantity = capQuantity(n)
	}
	if quantity < 1 {
		return LineItem{}, false
	}
	return LineItem{Product: product, Quantity: quantity}, true
}

func decodeProduct(raw json.RawMessage) (catalog.Product, bool) {
	var fields map[string]json.RawMessage
	if isNull(raw) {
		return catalog.Product{}, false
	}
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return catalog.Product{}, false
	}

	id, ok := decodeNumber(fields["idProduct"])
	if !ok || !id.IsInteger() || !id.IsPositive() || id.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return catalog.Product{}, false
	}

	p := catalog.Product{
		ID:        id.IntPart(),
		Name:      decodeText(fields["productName"]),
		Available: true,
		SKU:       decodeText(fields["sku"]),
		Brand:     decodeText(fields["brand"]),
		Category:  decodeText(fields["category"]),
	}
	if price, ok := decodeNumber(fields["price"]); ok && !price.IsNegative() {
		p.ListPrice = price
	}
	if stock, ok := decodeNumber(fields["quantity"]); ok && stock.IsPositive() {
		p.Stock = capQuantity(stock)
	}
	var available bool
	if err := json.Unmarshal(fields["available"], &available); err == nil {
		p.Available = available
	}
	return p, true
}

// capQuantity truncates n to an int in [0, MaxQuantity].
func capQuantity(n decimal.Decimal) int {
	if n.IsNegative() {
		return 0
	}
	if n.GreaterThan(decimal.NewFromInt(MaxQuantity)) {
		return MaxQuantity
	}
	return int(n.IntPart())
}

// decodeNumber accepts a JSON number or a string holding one.
func decodeNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	if isNull(raw) {
		return decimal.Zero, false
	}
	text := string(bytes.TrimSpace(raw))
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, false
		}
		text = strings.TrimSpace(text)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// decodeText accepts a JSON string or number and returns its text.
func decodeText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
