package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/yatra/internal/model"
	"github.com/roach88/yatra/internal/remote"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr   string
	Roster string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an in-memory remote record store over HTTP",
		Long: `Serve the remote record store API from memory, seeded with a roster file.
Devices point remote.url at this server. Records are kept in memory only.

When remote.token_secret is set every /v1 request must carry a bearer token
signed with it.

Example:
  yatra serve --roster roster.yaml --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides serve.addr)")
	cmd.Flags().StringVar(&opts.Roster, "roster", "", "roster YAML file (overrides serve.roster)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelInfo)
	f := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return fail(f, ExitCommandError, "failed to load config", err)
	}
	addr := cfg.Serve.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	rosterPath := cfg.Serve.Roster
	if opts.Roster != "" {
		rosterPath = opts.Roster
	}

	roster := []model.Participant{}
	if rosterPath != "" {
		roster, err = remote.LoadRoster(rosterPath)
		if err != nil {
			return fail(f, ExitCommandError, "failed to load roster", err)
		}
	}

	serverOpts := []remote.ServerOption{remote.WithServerLogger(slog.Default())}
	if s := cfg.Remote.TokenSecret; s != "" {
		serverOpts = append(serverOpts, remote.WithSecret([]byte(s)))
	}
	srv := &http.Server{
		Handler:           remote.NewServer(remote.NewMemory(roster), serverOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fail(f, ExitCommandError, "failed to listen", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	slog.Info("remote store listening", "addr", ln.Addr().String(), "participants", len(roster))
	if f.Format == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", ln.Addr())
	}

	select {
	case err := <-serveErr:
		return WrapExitError(ExitFailure, "server error", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", err)
	}
	slog.Info("remote store stopped")
	return nil
}
