package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newTickCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass and print its counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, log, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer app.Close()

			out, err := json.Marshal(app.Scheduler.Tick(ctx))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the job store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// opening the app migrates the store
			app, log, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer app.Close()

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrated %s store\n", app.Config.Database.Driver)
			return err
		},
	}
}
