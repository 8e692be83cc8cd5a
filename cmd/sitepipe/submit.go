package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/sitepipe/pkg/progress"
)

func newSubmitCommand() *cobra.Command {
	var (
		server     string
		payload    string
		follow     bool
		regenerate bool
	)
	cmd := &cobra.Command{
		Use:   "submit <domain>",
		Short: "Submit a domain to a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			body := map[string]any{}
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &body); err != nil {
					return fmt.Errorf("--payload must be a JSON object: %w", err)
				}
			}
			if follow {
				body["track"] = true
			}
			if regenerate {
				body["regenerate"] = true
			}
			raw, err := json.Marshal(body)
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 30 * time.Second}
			res, err := submit(ctx, client, server, args[0], raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", res.JobID, res.Status)
			if !follow {
				return nil
			}

			// streams outlive any client timeout
			term, err := watch(ctx, &http.Client{}, server, res.JobID, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return terminalError(term.Status, term.Error)
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "sitepipe server URL")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON object sent as the job payload")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream progress until the job finishes")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "reuse hints from the payload instead of re-analyzing")
	return cmd
}

func newWatchCommand() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Stream a job's progress from a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			term, err := watch(ctx, &http.Client{}, server, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", term.JobID, term.Status)
			return terminalError(term.Status, term.Error)
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "sitepipe server URL")
	return cmd
}

func terminalError(status progress.SessionStatus, msg string) error {
	if status == progress.SessionFailed {
		return fmt.Errorf("job failed: %s", msg)
	}
	return nil
}
