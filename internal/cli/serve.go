package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/config"
	"github.com/roach88/feedsync/internal/fakebackend"
	"github.com/roach88/feedsync/internal/testutil"
)

// ServeOptions holds flags for the serve-fake command.
type ServeOptions struct {
	*RootOptions
	Addr    string
	Seed    int
	Secret  string
	Viewers []string
}

// NewServeFakeCommand creates the serve-fake command.
func NewServeFakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Serve an in-memory feed backend for local development",
		Long: `Serve the feed API from memory.

Posts p-001 .. p-NNN are seeded, authored by @author. A bearer token is
printed for each --viewer so it can be placed in FEED_TOKEN.

Example:
  feedctl serve-fake --addr :3000 --seed 40 --viewer @author --viewer @reader`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeFake(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":3000", "listen address")
	cmd.Flags().IntVar(&opts.Seed, "seed", 25, "number of posts to seed")
	cmd.Flags().StringVar(&opts.Secret, "secret", fakebackend.DefaultSecret, "HS256 secret for bearer tokens")
	cmd.Flags().StringSliceVar(&opts.Viewers, "viewer", nil, "print a bearer token for this handle (repeatable)")

	return cmd
}

func runServeFake(cmd *cobra.Command, opts *ServeOptions) error {
	if opts.Seed < 0 {
		return NewExitError(ExitCommandError, "--seed must be non-negative")
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.RootOptions, defaultLogConfig())

	server := fakebackend.New(fakebackend.WithSecret(opts.Secret), fakebackend.WithLogger(logger))
	server.Seed(testutil.Posts("p", opts.Seed)...)

	out := cmd.OutOrStdout()
	for _, handle := range opts.Viewers {
		fmt.Fprintf(out, "%s\t%s\n", handle, server.Token(handle))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- server.Listen(opts.Addr) }()

	select {
	case err := <-errc:
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down fake backend")
		if err := server.Shutdown(); err != nil {
			return WrapExitError(ExitFailure, "shutdown", err)
		}
		return nil
	}
}

// defaultLogConfig is used by commands that run without a feed session.
func defaultLogConfig() config.Config {
	return config.Config{LogLevel: "info"}
}
