package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
)

// Environment variables consulted when the matching flag is unset.
const (
	EnvDB   = "CARTSYNC_DB"
	EnvUser = "CARTSYNC_USER"
)

// DefaultDB is the database path used when neither --db nor CARTSYNC_DB is set.
const DefaultDB = "cartsync.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DB      string
	User    string
	Admin   bool
	Context string // storage context name; defaults to one per process

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cartsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cartsync",
		Short: "cartsync - keep one shopping cart consistent across sessions",
		Long: `Inspect and change a shopping cart stored in a SQLite database that several
sessions share. Every invocation is its own session; "watch" follows changes
made by other sessions and reconciles them into the cart.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.resolve()
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.DB, "db", "", "database path (default $"+EnvDB+" or "+DefaultDB+")")
	flags.StringVarP(&opts.User, "user", "u", "", "cart owner id (default $"+EnvUser+")")
	flags.BoolVar(&opts.Admin, "admin", false, "address the owner's admin cart")
	flags.StringVar(&opts.Context, "context", "", "storage context name (default cli-<pid>)")

	cmd.AddCommand(
		NewSeedCommand(opts),
		NewProductsCommand(opts),
		NewShowCommand(opts),
		NewAddCommand(opts),
		NewRemoveCommand(opts),
		NewSetCommand(opts),
		NewIncCommand(opts),
		NewDecCommand(opts),
		NewClearCommand(opts),
		NewStockCommand(opts),
		NewPriceCommand(opts),
		NewWatchCommand(opts),
		NewTestCommand(opts),
	)
	return cmd
}

// resolve fills unset options from the environment and defaults.
func (o *RootOptions) resolve() {
	if o.DB == "" {
		o.DB = os.Getenv(EnvDB)
	}
	if o.DB == "" {
		o.DB = DefaultDB
	}
	if o.User == "" {
		o.User = os.Getenv(EnvUser)
	}
	if o.Context == "" {
		o.Context = "cli-" + strconv.Itoa(os.Getpid())
	}
	if o.Format == "" {
		o.Format = "text"
	}
}

// Logger returns the configured logger, or slog.Default() when the command
// runs without the root command's setup.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}
