package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/catalog"
	"github.com/roach88/cartsync/internal/projection"
	"github.com/roach88/cartsync/internal/reconcile"
)

// CartView is the printable form of a projected cart.
type CartView struct {
	CartID        string     `json:"cart_id"`
	Owner         string     `json:"owner"`
	Outcome       string     `json:"outcome,omitempty"`
	Lines         []LineView `json:"lines"`
	TotalQuantity int        `json:"total_quantity"`
	TotalPrice    string     `json:"total_price"`
	Warnings      []string   `json:"warnings,omitempty"`
}

// LineView is one priced line of a CartView.
type LineView struct {
	Index     int    `json:"index"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
	UnitPrice string `json:"unit_price"`
	Source    string `json:"price_source"`
	LineTotal string `json:"line_total"`
}

func newCartView(store *cart.Store) CartView {
	return cartViewOf(projection.Project(store.Snapshot(), store.Resolver()))
}

func cartViewOf(v projection.View) CartView {
	out := CartView{
		CartID:        v.CartID,
		Owner:         v.Owner,
		Lines:         make([]LineView, len(v.Lines)),
		TotalQuantity: v.TotalQuantity,
		TotalPrice:    v.TotalPrice.StringFixed(2),
		Warnings:      v.Warnings,
	}
	for i, l := range v.Lines {
		out.Lines[i] = LineView{
			Index:     l.Index,
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Stock:     l.Stock,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Source:    l.Source.String(),
			LineTotal: l.LineTotal.StringFixed(2),
		}
	}
	return out
}

func (v CartView) renderText(w io.Writer) {
	if v.Outcome != "" {
		fmt.Fprintf(w, "%s\n", v.Outcome)
	}
	fmt.Fprintf(w, "cart %s (user %s)\n", v.CartID, v.Owner)
	if len(v.Lines) == 0 {
		fmt.Fprintln(w, "  (empty)")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, l := range v.Lines {
			fmt.Fprintf(tw, "  [%d]\t#%d %s\tx%d\t@ %s (%s)\t= %s\n",
				l.Index, l.ProductID, l.Name, l.Quantity, l.UnitPrice, l.Source, l.LineTotal)
		}
		tw.Flush()
	}
	fmt.Fprintf(w, "total: %d items, %s\n", v.TotalQuantity, v.TotalPrice)
	for _, warning := range v.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

// ProductView is the printable form of a catalog entry and its price.
type ProductView struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ListPrice  string `json:"list_price"`
	FinalPrice string `json:"final_price,omitempty"`
	Discounted bool   `json:"discounted,omitempty"`
	Stock      int    `json:"stock"`
	Available  bool   `json:"available"`
	SKU        string `json:"sku,omitempty"`
}

// ProductList is the result of the products command.
type ProductList struct {
	Products []ProductView `json:"products"`
}

func (l ProductList) renderText(w io.Writer) {
	if len(l.Products) == 0 {
		fmt.Fprintln(w, "no products")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLIST\tPRICE\tSTOCK\tAVAILABLE")
	for _, p := range l.Products {
		price := p.FinalPrice
		if price == "" {
			price = "-"
		} else if p.Discounted {
			price += " (sale)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%t\n", p.ID, p.Name, p.ListPrice, price, p.Stock, p.Available)
	}
	tw.Flush()
}

func productView(p catalog.Product) ProductView {
	return ProductView{
		ID:        p.ID,
		Name:      p.Name,
		ListPrice: p.ListPrice.StringFixed(2),
		Stock:     p.Stock,
		Available: p.Available,
		SKU:       p.SKU,
	}
}

// Message is a one-line command result.
type Message struct {
	Message string `json:"message"`
}

func (m Message) renderText(w io.Writer) {
	fmt.Fprintln(w, m.Message)
}

// NoticeView is the printable form of a reconciliation notice.
type NoticeView struct {
	Kind      string `json:"kind"`
	ProductID int64  `json:"product_id"`
	Message   string `json:"message"`
}

func noticeView(n reconcile.Notice) NoticeView {
	return NoticeView{Kind: n.Kind.String(), ProductID: n.ProductID, Message: n.Message()}
}

func (n NoticeView) renderText(w io.Writer) {
	fmt.Fprintf(w, "notice: %s\n", n.Message)
}
