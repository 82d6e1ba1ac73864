package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cartsync/internal/projection"
	"github.com/roach88/cartsync/internal/reconcile"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval time.Duration
	Once     bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the cart and reconcile changes from other sessions",
		Long: `Print the cart, then poll the database for writes made by other sessions
(cart edits, stock changes, price changes), reconcile them into the cart, and
print the cart again whenever it changes. Stops on interrupt.

With --once, the cart is revalidated against the current catalog and prices
a single time and the command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 500*time.Millisecond, "poll interval")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "reconcile pending changes once and exit")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts *WatchOptions) error {
	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	store, err := s.openCart()
	if err != nil {
		return err
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	var mu sync.Mutex
	emit := func(v any) {
		mu.Lock()
		defer mu.Unlock()
		if err := out.Success(v); err != nil {
			opts.Logger().Warn("write output", "error", err)
		}
	}

	r, err := reconcile.New(store,
		reconcile.WithCatalog(s.catalog),
		reconcile.WithPrices(s.prices),
		reconcile.WithLogger(opts.Logger()),
		reconcile.WithNoticeSink(reconcile.NoticeFunc(func(n reconcile.Notice) {
			emit(noticeView(n))
		})),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to start reconciler", err)
	}
	defer r.Attach(s.storage)()

	unfollow := projection.Follow(store, store.Resolver(), func(v projection.View) {
		emit(cartViewOf(v))
	})
	defer unfollow()

	if opts.Once {
		r.Enqueue(reconcile.Notification{Kind: reconcile.KindCatalog, Identity: store.Key()})
		r.Enqueue(reconcile.Notification{Kind: reconcile.KindPrice, Identity: store.Key()})
		if _, err := s.storage.Poll(ctx); err != nil {
			return WrapExitError(ExitFailure, "poll failed", err)
		}
		if _, err := r.Drain(ctx); err != nil {
			return WrapExitError(ExitFailure, "reconcile failed", err)
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	err = s.storage.Follow(ctx, opts.Interval)
	r.Stop()
	if runErr := <-done; runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "reconciler stopped", runErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "watch stopped", err)
	}
	return nil
}
