package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jdziat/sitepipe"
	"github.com/jdziat/sitepipe/pkg/logger"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "sitepipe",
		Short:         "Durable domain-keyed site generation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./config.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(
		newServeCommand(opts),
		newWorkerCommand(opts),
		newTickCommand(opts),
		newMigrateCommand(opts),
		newJobsCommand(opts),
		newSubmitCommand(),
		newWatchCommand(),
	)
	return cmd
}

// load reads configuration and builds the process logger.
func (o *rootOptions) load() (*sitepipe.Config, *zap.Logger, error) {
	cfg, err := sitepipe.LoadConfig(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openApp loads configuration and wires a full App.
func (o *rootOptions) openApp(ctx context.Context) (*sitepipe.App, *zap.Logger, error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	app, err := sitepipe.New(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, fmt.Errorf("start: %w", err)
	}
	return app, log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
