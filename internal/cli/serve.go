package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/postd/internal/config"
	"github.com/roach88/postd/internal/httpapi"
	"github.com/roach88/postd/internal/store"
	"github.com/roach88/postd/internal/validate"
	"github.com/roach88/postd/internal/writer"
)

// shutdownTimeout bounds each shutdown phase (HTTP drain, writer drain).
const shutdownTimeout = 30 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Socket     string
	Database   string
	Driver     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /posts on a unix socket",
		Long: `Open the database, start the writer, and serve the HTTP API on a unix
domain socket until SIGINT or SIGTERM.

On shutdown the HTTP server stops first, then the writer drains every
accepted write, optimizes, and closes the database.

Example:
  postd serve --socket /tmp/benchmark.sock --db ./db.sqlite
  postd serve --config ./postd.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Socket, "socket", "", "unix domain socket path (default /tmp/benchmark.sock)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default ./db.sqlite)")
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "database driver: sqlite3 (cgo) or sqlite (pure Go)")

	return cmd
}

// resolveServeConfig layers flags that were set explicitly over the file
// and environment configuration.
func resolveServeConfig(opts *ServeOptions, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("socket") {
		cfg.Socket = opts.Socket
	}
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("driver") {
		cfg.Driver = opts.Driver
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := resolveServeConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	setupLogging(cmd.ErrOrStderr(), cfg.LogFormat, opts.Verbose)

	v, err := validate.New()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to compile request schema", err)
	}

	slog.Info("opening database", "path", cfg.Database, "driver", cfg.Driver)
	st, err := store.Open(cfg.Database,
		store.WithDriver(cfg.Driver),
		store.WithBusyTimeout(cfg.BusyTimeout),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}

	// From here the coordinator owns the store and closes it on shutdown.
	coord := writer.New(st, writer.WithCapacity(cfg.QueueCapacity))
	coord.Start()

	listener, err := listenUnix(cfg.Socket)
	if err != nil {
		shutdownWriter(coord)
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := httpapi.New(coord, v, httpapi.WithRequestTimeout(cfg.RequestTimeout))

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", cfg.Socket)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = WrapExitError(ExitFailure, "http server error", err)
		}
	}

	// HTTP first, so no new writes arrive while the writer drains.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown incomplete", "error", err)
	}

	shutdownWriter(coord)

	if err := os.Remove(cfg.Socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove socket", "path", cfg.Socket, "error", err)
	}

	slog.Info("server stopped", "stats", coord.Stats())
	return runErr
}

func shutdownWriter(coord *writer.Coordinator) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := coord.Shutdown(ctx); err != nil {
		slog.Error("writer shutdown incomplete", "error", err, "queued", coord.Stats().Queued)
	}
}

// staleDialTimeout bounds the dial that tells a live socket from a stale one.
const staleDialTimeout = time.Second

// listenUnix listens on a unix socket at path, replacing a stale socket
// file left by a previous run. A socket some process still accepts on, or
// any other kind of file at path, is an error and is left untouched.
func listenUnix(path string) (net.Listener, error) {
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("%s exists and is not a socket", path)
		}

		conn, err := net.DialTimeout("unix", path, staleDialTimeout)
		if err == nil {
			conn.Close()
			return nil, fmt.Errorf("socket %s is in use by another process", path)
		}
		if !errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("dial existing socket %s: %w", path, err)
		}

		slog.Info("removing stale socket", "path", path)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return l, nil
}
