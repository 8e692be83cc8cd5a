package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, log, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer app.Close()

			log.Info("sitepipe starting",
				zap.String("addr", app.Config.Server.Addr),
				zap.String("worker_id", app.Scheduler.WorkerID()),
				zap.Bool("scheduler", app.Config.Scheduler.Enabled),
			)
			err = app.Run(ctx)
			log.Info("sitepipe stopped")
			return err
		},
	}
}

func newWorkerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduler without the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, log, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer app.Close()

			log.Info("sitepipe worker starting", zap.String("worker_id", app.Scheduler.WorkerID()))
			return app.RunWorker(ctx)
		},
	}
}
