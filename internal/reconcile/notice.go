package reconcile

import (
	"fmt"
	"sync"
)

// NoticeKind classifies what revalidation did to a line.
type NoticeKind int

const (
	// NoticeRemoved: the product vanished, became unavailable, or ran out.
	NoticeRemoved NoticeKind = iota + 1
	// NoticeAdjusted: the quantity was clamped down to the available stock.
	NoticeAdjusted
	// NoticeMoreStock: more stock is available than the cart holds. Informational.
	NoticeMoreStock
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeRemoved:
		return "removed"
	case NoticeAdjusted:
		return "adjusted"
	case NoticeMoreStock:
		return "more_stock"
	default:
		return fmt.Sprintf("notice(%d)", int(k))
	}
}

// Notice is a user-facing report about one cart line.
type Notice struct {
	Kind        NoticeKind
	ProductID   int64
	ProductName string
	Previous    int // quantity held before revalidation
	Current     int // quantity held after; for NoticeMoreStock, the stock available
}

// Message renders the notice for display.
func (n Notice) Message() string {
	switch n.Kind {
	case NoticeRemoved:
		return fmt.Sprintf("%s was removed from your cart: no longer available", n.ProductName)
	case NoticeAdjusted:
		return fmt.Sprintf("%s quantity adjusted from %d to %d", n.ProductName, n.Previous, n.Current)
	case NoticeMoreStock:
		return fmt.Sprintf("%s: %d more in stock", n.ProductName, n.Current-n.Previous)
	default:
		return n.Kind.String()
	}
}

// NoticeSink receives notices as revalidation produces them.
type NoticeSink interface {
	Notify(Notice)
}

// NoticeFunc adapts a function to NoticeSink.
type NoticeFunc func(Notice)

// Notify implements NoticeSink.
func (f NoticeFunc) Notify(n Notice) { f(n) }

// Recorder is a NoticeSink that keeps every notice. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements NoticeSink.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns the recorded notices in order.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Reset discards every recorded notice.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}
