package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/cartsync/internal/pricing"
	"github.com/roach88/cartsync/internal/seed"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <dir>",
		Short: "Load products and prices from CUE files",
		Long: `Replace the shared catalog with the products in <dir>/*.cue and upsert every
price record. Sessions that are watching pick up the change on their next poll.

Example:
  cartsync seed ./shop`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sd, err := seed.LoadDir(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load seed", err)
			}

			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := sd.Apply(cmd.Context(), s.catalog, s.prices); err != nil {
				return commandError("failed to apply seed", err)
			}
			opts.Logger().Info("seed applied", "dir", args[0], "products", len(sd.Products), "prices", len(sd.Prices))

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(Message{Message: fmt.Sprintf("seeded %d products, %d prices", len(sd.Products), len(sd.Prices))})
		},
	}
}

// NewProductsCommand creates the products command.
func NewProductsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List the catalog with resolved prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			list := ProductList{Products: []ProductView{}}
			for _, p := range s.catalog.Products() {
				v := productView(p)
				if price, ok := s.prices.FinalPrice(p.ID); ok {
					v.FinalPrice = price.StringFixed(2)
					v.Discounted = s.prices.IsDiscounted(p.ID)
				}
				list.Products = append(list.Products, v)
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(list)
		},
	}
}

// StockOptions holds flags for the stock command.
type StockOptions struct {
	*RootOptions
	Available bool
}

// NewStockCommand creates the stock command.
func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StockOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stock <product-id> <stock>",
		Short: "Set a product's stock level",
		Long: `Set a product's stock level and, with --available, its availability.
Carts holding more than the new stock are clamped when they reconcile.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			stock, err := parseCount("stock", args[1])
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.catalog.SetStock(cmd.Context(), id, stock); err != nil {
				return commandError("failed to set stock", err)
			}
			if cmd.Flags().Changed("available") {
				if err := s.catalog.SetAvailability(cmd.Context(), id, opts.Available); err != nil {
					return commandError("failed to set availability", err)
				}
			}

			p, _ := s.catalog.Product(id)
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(ProductList{Products: []ProductView{productView(p)}})
		},
	}

	cmd.Flags().BoolVar(&opts.Available, "available", true, "mark the product available or unavailable")
	return cmd
}

// PriceOptions holds flags for the price command.
type PriceOptions struct {
	*RootOptions
	Previous   string
	Adjustment string
	Direction  string
}

// NewPriceCommand creates the price command.
func NewPriceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PriceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "price <product-id> <current>",
		Short: "Set a product's price record",
		Long: `Set a product's price record. The final price is the current price adjusted
by --adjustment percent in --direction ("+" or "-"), rounded to cents.

Example:
  cartsync price 3 100 --adjustment 20 --direction -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			entry := pricing.Entry{ProductID: id, Direction: pricing.Direction(opts.Direction)}
			if !entry.Direction.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid direction %q: must be + or -", opts.Direction))
			}
			current, err := decimal.NewFromString(args[1])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid price %q", args[1]))
			}
			entry.CurrentPrice = pricing.Price(current)
			if opts.Previous != "" {
				prev, err := decimal.NewFromString(opts.Previous)
				if err != nil {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid previous price %q", opts.Previous))
				}
				entry.PreviousPrice = pricing.Price(prev)
			}
			if entry.AdjustmentValue, err = decimal.NewFromString(opts.Adjustment); err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid adjustment %q", opts.Adjustment))
			}

			s, err := openSession(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer s.Close()

			saved, err := s.prices.Upsert(cmd.Context(), entry)
			if err != nil {
				return commandError("failed to set price", err)
			}

			msg := fmt.Sprintf("product %d: current %s", id, saved.CurrentPrice.StringFixed(2))
			if saved.FinalPrice != nil {
				msg += fmt.Sprintf(", final %s", saved.FinalPrice.StringFixed(2))
			}
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(Message{Message: msg})
		},
	}

	cmd.Flags().StringVar(&opts.Previous, "previous", "", "previous price (defaults to current)")
	cmd.Flags().StringVar(&opts.Adjustment, "adjustment", "0", "percentage adjustment")
	cmd.Flags().StringVar(&opts.Direction, "direction", string(pricing.Increase), `adjustment direction ("+" or "-")`)
	return cmd
}
