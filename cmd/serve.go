// cmd/serve.go
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-driver/internal/browser"
	"github.com/xkilldash9x/scalpel-driver/internal/config"
	"github.com/xkilldash9x/scalpel-driver/internal/observability"
	"github.com/xkilldash9x/scalpel-driver/internal/server"
	"github.com/xkilldash9x/scalpel-driver/internal/shutdown"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the wire protocol server",
		Long: `Start the wire protocol server. Each new session launches its own
headless Chrome, or a fresh browser context when --remote-url is set.

The server stops on SIGINT or SIGTERM, on GET /shutdown, or when the file
reported at startup as the shutdown event is created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			defer observability.Sync()
			return runServe(cmd.Context(), cfg, observability.GetLogger())
		},
	}

	addServeFlags(serveCmd.Flags())
	return serveCmd
}

// addServeFlags registers the serve overrides. Defaults are for help output
// only; flags left unset never override the config file.
func addServeFlags(f *pflag.FlagSet) {
	defaults := config.NewDefaultConfig()
	f.String("host", defaults.Server().Host, "address to listen on")
	f.Int("port", defaults.Server().Port, "port to listen on (0 picks a free port)")
	f.String("url-prefix", "", `base path for every route, e.g. "/wd/hub"`)
	f.Int("max-sessions", defaults.Server().MaxSessions, "maximum number of concurrent sessions")
	f.Duration("command-timeout", 0, "fail requests whose command takes longer (0 waits indefinitely)")
	f.String("log-level", defaults.Logger().Level, "log level (debug, info, warn, error)")
	f.String("log-file", "", "also write JSON logs to this rotated file")
	f.String("chrome", "", "path to the Chrome executable (default: search PATH)")
	f.String("remote-url", "", "attach to a running browser's DevTools endpoint instead of launching one")
	f.Bool("headless", defaults.Browser().Headless, "run Chrome headless")
}

// runServe serves until ctx is done or a shutdown is requested.
func runServe(ctx context.Context, cfg config.Interface, logger *zap.Logger) error {
	srv := server.New(server.Options{
		Server:   cfg.Server(),
		Session:  cfg.Session(),
		Launcher: browser.NewLauncher(cfg.Browser(), logger),
		Logger:   logger,
		Build:    buildInfo(),
	})

	eventPath := shutdown.EventPath(os.Getpid())
	watcher, err := shutdown.Watch(ctx, eventPath, logger)
	if err != nil {
		logger.Warn("Shutdown event unavailable; use a signal or GET /shutdown.", zap.Error(err))
	} else {
		defer watcher.Close()
		stopWatch := make(chan struct{})
		defer close(stopWatch)
		go func() {
			select {
			case <-watcher.Fired():
				srv.RequestShutdown()
			case <-stopWatch:
			}
		}()
	}

	logger.Info("Starting scalpel-driver.",
		zap.String("version", Version),
		zap.Int("pid", os.Getpid()),
		zap.String("shutdown_event", eventPath),
	)
	return srv.ListenAndServe(ctx)
}
