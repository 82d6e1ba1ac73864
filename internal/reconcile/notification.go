package reconcile

import (
	"fmt"

	"github.com/roach88/cartsync/internal/catalog"
	"github.com/roach88/cartsync/internal/identity"
	"github.com/roach88/cartsync/internal/kv"
	"github.com/roach88/cartsync/internal/pricing"
)

// Kind discriminates notifications.
type Kind int

const (
	KindCart Kind = iota + 1
	KindCatalog
	KindPrice
)

func (k Kind) String() string {
	switch k {
	case KindCart:
		return "cart"
	case KindCatalog:
		return "catalog"
	case KindPrice:
		return "price"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Notification is one signal for the reconciler.
//
// Value carries the new persisted bytes for KindCart; nil means the key was
// deleted. Catalog and price notifications carry no payload.
type Notification struct {
	Kind     Kind
	Key      string
	Identity identity.Key
	Value    []byte
}

// Router classifies storage keys for one identity.
type Router struct {
	Identity identity.Key
}

// Route maps a storage change to a notification. Keys the reconciler does
// not care about report false.
func (r Router) Route(c kv.Change) (Notification, bool) {
	switch c.Key {
	case catalog.KeyProducts, catalog.KeySync:
		return Notification{Kind: KindCatalog, Key: c.Key, Identity: r.Identity}, true
	case pricing.KeyPrices:
		return Notification{Kind: KindPrice, Key: c.Key, Identity: r.Identity}, true
	case r.Identity.String():
		return Notification{Kind: KindCart, Key: c.Key, Identity: r.Identity, Value: c.Value}, true
	}
	return Notification{}, false
}
