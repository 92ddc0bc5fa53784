package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/ai-orchestrator/config"
	"github.com/angeloszaimis/ai-orchestrator/pkg/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "orchestrator",
		Short:         "Resilient gateway in front of AI content backends",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config/config.yaml or ./config.yaml)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)
		slog.SetDefault(log)
		return cfg, log, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newFingerprintCmd(),
		newCacheCmd(load),
	)

	return root
}

type loadFunc func() (*config.Config, *slog.Logger, error)
