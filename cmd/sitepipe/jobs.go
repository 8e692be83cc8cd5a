package main

import (
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jdziat/sitepipe"
)

func newJobsCommand(opts *rootOptions) *cobra.Command {
	var (
		status string
		key    string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, log, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			defer app.Close()

			filter := sitepipe.JobFilter{Key: key}
			for _, s := range strings.Split(status, ",") {
				if s = strings.TrimSpace(s); s != "" {
					filter.Statuses = append(filter.Statuses, sitepipe.JobStatus(s))
				}
			}
			jobs, err := app.Queue.List(cmd.Context(), filter, limit)
			if err != nil {
				return err
			}
			renderJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "comma-separated statuses to include")
	cmd.Flags().StringVar(&key, "key", "", "only jobs for this key")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum jobs to list")
	return cmd
}

// renderJobs writes jobs as a table.
func renderJobs(w io.Writer, jobs []*sitepipe.Job) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Key", "Status", "Attempt", "Created", "Error"})
	for _, j := range jobs {
		t.AppendRow(table.Row{
			j.ID,
			j.Key,
			j.Status,
			j.Attempt,
			j.CreatedAt.Format(time.RFC3339),
			truncate(j.Error, 48),
		})
	}
	t.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
