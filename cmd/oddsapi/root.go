package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Vodeneev/oddsapi/internal/pkg/config"
	"github.com/Vodeneev/oddsapi/internal/pkg/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "oddsapi",
		Short:         "Bookmaker odds ingestion and deviation alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"), "path to YAML config (can be set via CONFIG_PATH env var)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override logging.format (text or json)")

	root.AddCommand(newListenCmd(opts))
	root.AddCommand(newNotifyCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newCleanCmd(opts))
	return root
}

// load reads the configuration and installs the default logger for service.
func (o *rootOptions) load(service string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	logger, err := logging.Setup(cfg.Logging, service)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cfg, logger, nil
}
