// Package identity derives the storage key that selects which persisted cart
// an operation addresses.
//
// Keys are scoped by role so that an admin cart and a customer cart for the
// same underlying account never collide: "cart_admin<id>" and "cart_user<id>".
package identity

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key prefixes, one per role.
const (
	PrefixAdmin = "cart_admin"
	PrefixUser  = "cart_user"
)

// ErrInvalidUser is returned when a key is requested for a user without an id.
// This is a programmer error, not a business-rule refusal.
var ErrInvalidUser = errors.New("identity: user id is required")

// User is the signed-in principal as seen by the cart.
type User struct {
	ID    string
	Admin bool
}

// Provider exposes the current user. CurrentUser returns nil when nobody is
// signed in.
type Provider interface {
	CurrentUser() *User
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() *User

// CurrentUser implements Provider.
func (f ProviderFunc) CurrentUser() *User {
	if f == nil {
		return nil
	}
	return f()
}

// Static returns a Provider that always reports u.
func Static(u *User) Provider {
	return ProviderFunc(func() *User { return u })
}

// Key identifies one persisted cart.
type Key string

// String implements fmt.Stringer.
func (k Key) String() string {
	return string(k)
}

// Role returns "admin" or "user" depending on the key prefix.
func (k Key) Role() string {
	if strings.HasPrefix(string(k), PrefixAdmin) {
		return "admin"
	}
	return "user"
}

// UserID returns the user id portion of the key.
func (k Key) UserID() string {
	s := string(k)
	if rest, ok := strings.CutPrefix(s, PrefixAdmin); ok {
		return rest
	}
	rest, _ := strings.CutPrefix(s, PrefixUser)
	return rest
}

// For derives the cart key for u.
// The id is trimmed and NFC normalised so visually identical ids map to the
// same key.
func For(u User) (Key, error) {
	id := norm.NFC.String(strings.TrimSpace(u.ID))
	if id == "" {
		return "", ErrInvalidUser
	}
	prefix := PrefixUser
	if u.Admin {
		prefix = PrefixAdmin
	}
	return Key(prefix + id), nil
}

// Current derives the key for the provider's current user.
func Current(p Provider) (Key, error) {
	u := p.CurrentUser()
	if u == nil {
		return "", fmt.Errorf("current user: %w", ErrInvalidUser)
	}
	return For(*u)
}

// Parse validates that s is a well-formed cart key.
func Parse(s string) (Key, error) {
	for _, prefix := range []string{PrefixAdmin, PrefixUser} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			if strings.TrimSpace(rest) == "" {
				return "", fmt.Errorf("parse key %q: %w", s, ErrInvalidUser)
			}
			return Key(s), nil
		}
	}
	return "", fmt.Errorf("parse key %q: unknown prefix", s)
}
