// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-driver/internal/config"
	"github.com/xkilldash9x/scalpel-driver/internal/observability"
)

type configKeyType struct{}

var configKey = configKeyType{}

// skipConfig marks commands that run without loading configuration.
const skipConfig = "scalpel-driver/skip-config"

// flagKeys maps command line flags onto the config keys they override.
var flagKeys = map[string]string{
	"host":            "server.host",
	"port":            "server.port",
	"url-prefix":      "server.url_prefix",
	"max-sessions":    "server.max_sessions",
	"command-timeout": "server.command_timeout",
	"log-level":       "logger.level",
	"log-file":        "logger.log_file",
	"chrome":          "browser.exec_path",
	"remote-url":      "browser.remote_url",
	"headless":        "browser.headless",
}

// NewRootCommand builds the command tree. Each call returns fresh state, so
// tests can execute it repeatedly.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "scalpel-driver",
		Short:         "Scalpel-driver serves the JSON wire protocol on top of headless Chrome.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			cfg, err := loadConfig(cmd, cfgFile)
			if err != nil {
				return err
			}
			if err := observability.InitializeLogger(cfg.Logger()); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version))
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./scalpel-driver.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newServeCmd(), newStopCmd(), newVersionCmd())
	return root
}

// loadConfig layers defaults, the config file, the environment and finally
// the flags that cmd actually defines.
func loadConfig(cmd *cobra.Command, cfgFile string) (*config.Config, error) {
	v := viper.New()
	if err := config.Configure(v, cfgFile); err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}
	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load or validate config: %w", err)
	}
	return cfg, nil
}

// configFrom returns the configuration loaded by the root command.
func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute runs the command tree with the given signal-aware context.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
