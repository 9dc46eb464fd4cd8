package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/data-douser/swamp-go/internal/config"
	"github.com/data-douser/swamp-go/internal/handler"
	"github.com/data-douser/swamp-go/internal/session"
	"github.com/data-douser/swamp-go/internal/storage"
)

// app carries the state shared by every command of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool
	quiet      bool

	cfg      *config.Config
	logger   *slog.Logger
	store    *session.Store
	backends []storage.Backend
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{stdin: stdin, stdout: stdout, stderr: stderr, logger: slog.Default()}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "swamp",
		Short:             "Client for the SWAMP software assurance service",
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the YAML config file (default: "+config.DefaultPath()+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug messages")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Log warnings and errors only")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.userCmd(),
		a.projectsCmd(),
		a.packagesCmd(),
		a.toolsCmd(),
		a.platformsCmd(),
		a.assessCmd(),
		a.resultsCmd(),
	)
	return root
}

// setup loads the configuration, builds the logger and opens the session
// store.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	switch {
	case a.verbose:
		level = slog.LevelDebug
	case a.quiet:
		level = slog.LevelWarn
	}
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	backend, err := a.openStorage(cmd.Context(), cfg.SessionStorage())
	if err != nil {
		return err
	}
	a.store = session.NewStore(backend, a.logger)
	return nil
}

func (a *app) openStorage(ctx context.Context, cfg config.Storage) (storage.Backend, error) {
	backend, err := initStorage(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.backends = append(a.backends, backend)
	return backend, nil
}

// exportStorage opens the backend downloads are written to.
func (a *app) exportStorage(ctx context.Context) (storage.Backend, error) {
	return a.openStorage(ctx, a.cfg.Export)
}

func (a *app) close() {
	for _, b := range a.backends {
		if err := b.Close(); err != nil {
			a.logger.Error("failed to close storage", "storage_type", b.Type(), "error", err)
		}
	}
}

// handlers restores the saved session and returns a handler factory over
// it.
func (a *app) handlers(ctx context.Context) (*handler.Factory, error) {
	opts := a.cfg.TransportOptions()
	opts.Logger = a.logger
	s, err := a.store.Restore(ctx, opts)
	if err != nil {
		return nil, err
	}
	return handler.NewFactory(s, handler.Options{MaxScopes: a.cfg.CacheScopes, Logger: a.logger}), nil
}
