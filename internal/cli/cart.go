package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/cartsync/internal/cart"
)

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart with resolved prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCart(cmd, opts, func(*session, *cart.Store) (string, error) {
				return "", nil
			})
		},
	}
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <product-id> [quantity]",
		Short: "Add a product to the cart",
		Long: `Add a product to the cart. Quantity defaults to 1.

Adding more than the available stock to an existing line clamps it to stock;
a new line is only created when the full quantity is in stock.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			qty := 1
			if len(args) == 2 {
				if qty, err = parseCount("quantity", args[1]); err != nil {
					return err
				}
			}
			return withCart(cmd, opts, func(s *session, store *cart.Store) (string, error) {
				p, err := s.product(id)
				if err != nil {
					return "", err
				}
				return store.AddItem(p, qty).String(), nil
			})
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product's line from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return withCart(cmd, opts, func(_ *session, store *cart.Store) (string, error) {
				return store.RemoveItem(id).String(), nil
			})
		},
	}
}

// NewSetCommand creates the set command.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <product-id> <quantity>",
		Short: "Set the quantity of a product's line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			qty, err := parseCount("quantity", args[1])
			if err != nil {
				return err
			}
			return withCart(cmd, opts, func(_ *session, store *cart.Store) (string, error) {
				_, idx := store.Snapshot().Line(id)
				return store.UpdateQuantity(id, idx, qty).String(), nil
			})
		},
	}
}

// NewIncCommand creates the inc command.
func NewIncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inc <product-id>",
		Short: "Add one to a product's line if stock allows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return withCart(cmd, opts, func(_ *session, store *cart.Store) (string, error) {
				_, idx := store.Snapshot().Line(id)
				return stepOutcome(store.IncreaseQuantity(id, idx)), nil
			})
		},
	}
}

// NewDecCommand creates the dec command.
func NewDecCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dec <product-id>",
		Short: "Subtract one from a product's line, never below 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return withCart(cmd, opts, func(_ *session, store *cart.Store) (string, error) {
				_, idx := store.Snapshot().Line(id)
				return stepOutcome(store.DecreaseQuantity(idx)), nil
			})
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every line from the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCart(cmd, opts, func(_ *session, store *cart.Store) (string, error) {
				return store.Clear().String(), nil
			})
		},
	}
}

func stepOutcome(ok bool) string {
	if ok {
		return cart.KindUpdated.String()
	}
	return cart.KindUnchanged.String()
}
