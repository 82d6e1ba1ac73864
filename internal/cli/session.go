package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/catalog"
	"github.com/roach88/cartsync/internal/identity"
	"github.com/roach88/cartsync/internal/kv"
	"github.com/roach88/cartsync/internal/pricing"
)

// session is one CLI invocation's view of the shared database: its own
// storage context plus the catalog and price book loaded from it.
type session struct {
	opts    *RootOptions
	users   identity.Provider
	db      *kv.SQLite
	storage *kv.SQLiteContext
	catalog *catalog.Memory
	prices  *pricing.Book
}

func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	opts.resolve()

	db, err := kv.OpenSQLite(opts.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", opts.DB), err)
	}
	storage, err := db.Context(ctx, opts.Context)
	if err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open storage context", err)
	}

	cat := catalog.NewMemory(nil, catalog.WithStorage(storage))
	if err := cat.Reload(ctx); err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	book := pricing.NewBook(pricing.WithStorage(storage))
	if err := book.Load(ctx); err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load prices", err)
	}

	return &session{opts: opts, users: sessionUser(opts), db: db, storage: storage, catalog: cat, prices: book}, nil
}

// sessionUser reports the user named by --user and --admin, or nobody when
// no user is configured.
func sessionUser(opts *RootOptions) identity.Provider {
	if strings.TrimSpace(opts.User) == "" {
		return identity.Static(nil)
	}
	return identity.Static(&identity.User{ID: opts.User, Admin: opts.Admin})
}

func (s *session) Close() error {
	return s.db.Close()
}

// openCart opens the store for the configured user.
func (s *session) openCart() (*cart.Store, error) {
	key, err := identity.Current(s.users)
	if errors.Is(err, identity.ErrInvalidUser) {
		return nil, NewExitError(ExitCommandError, "a user is required: pass --user or set "+EnvUser)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid user", err)
	}
	store, err := cart.New(key, s.storage, s.prices,
		cart.WithCatalog(s.catalog),
		cart.WithLogger(s.opts.Logger()),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open cart", err)
	}
	return store, nil
}

// product looks up id in the session catalog.
func (s *session) product(id int64) (catalog.Product, error) {
	p, ok := s.catalog.Product(id)
	if !ok {
		return catalog.Product{}, NewExitError(ExitCommandError, fmt.Sprintf("product %d not found", id))
	}
	return p, nil
}

// withCart runs fn against the user's cart and prints the resulting view.
func withCart(cmd *cobra.Command, opts *RootOptions, fn func(s *session, store *cart.Store) (string, error)) error {
	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer s.Close()

	store, err := s.openCart()
	if err != nil {
		return err
	}

	outcome, err := fn(s, store)
	if err != nil {
		return err
	}

	view := newCartView(store)
	view.Outcome = outcome
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(view)
}

func parseProductID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid product id %q", arg))
	}
	return id, nil
}

func parseCount(name, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s %q", name, arg))
	}
	return n, nil
}

// commandError maps domain errors onto exit codes.
func commandError(message string, err error) error {
	if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, pricing.ErrInvalidEntry) {
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}
