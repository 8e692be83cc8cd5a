package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/sitepipe"
	"github.com/jdziat/sitepipe/pkg/progress"
)

func TestRenderJobs(t *testing.T) {
	var buf bytes.Buffer
	renderJobs(&buf, []*sitepipe.Job{
		{ID: "job-1", Key: "foo.com", Status: sitepipe.StatusQueued, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{ID: "job-2", Key: "bar.com", Status: sitepipe.StatusFailed, Attempt: 1, Error: strings.Repeat("x", 100)},
	})

	out := buf.String()
	assert.Contains(t, out, "foo.com")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, strings.Repeat("x", 45)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 49))
}

func TestSubmit(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"jobId":"abc","status":"queued","statusUrl":"/jobs/abc","progressUrl":"/jobs/abc/stream"}`)
	}))
	defer srv.Close()

	res, err := submit(context.Background(), srv.Client(), srv.URL+"/", "foo.com", json.RawMessage(`{"track":true}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", res.JobID)
	assert.JSONEq(t, `"foo.com"`, string(got["key"]))
	assert.JSONEq(t, `{"track":true}`, string(got["payload"]))
}

func TestSubmit_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"sitepipe: key is required"}`)
	}))
	defer srv.Close()

	_, err := submit(context.Background(), srv.Client(), srv.URL, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "key is required")
}

func sseServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/abc/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			_, _ = io.WriteString(w, e)
		}
	}))
}

func event(name string, v any) string {
	data, _ := json.Marshal(v)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)
}

func TestWatch_Completed(t *testing.T) {
	srv := sseServer(t,
		event("snapshot", progress.Snapshot{SessionID: "abc", Status: progress.SessionRunning, Percent: 50}),
		": heartbeat\n\n",
		event("snapshot", progress.Snapshot{SessionID: "abc", Status: progress.SessionCompleted, Percent: 100, Terminal: true}),
		event("terminal", map[string]string{"jobId": "abc", "status": "completed"}),
	)
	defer srv.Close()

	var out bytes.Buffer
	term, err := watch(context.Background(), srv.Client(), srv.URL, "abc", &out)
	require.NoError(t, err)
	assert.Equal(t, progress.SessionCompleted, term.Status)
	assert.NoError(t, terminalError(term.Status, term.Error))
	assert.Contains(t, out.String(), "100%")
}

func TestWatch_Failed(t *testing.T) {
	srv := sseServer(t,
		event("terminal", map[string]string{"jobId": "abc", "status": "failed", "error": "domain-analysis: boom"}),
	)
	defer srv.Close()

	term, err := watch(context.Background(), srv.Client(), srv.URL, "abc", io.Discard)
	require.NoError(t, err)
	err = terminalError(term.Status, term.Error)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain-analysis: boom")
}

func TestWatch_StreamEndsEarly(t *testing.T) {
	srv := sseServer(t, event("snapshot", progress.Snapshot{SessionID: "abc"}))
	defer srv.Close()

	_, err := watch(context.Background(), srv.Client(), srv.URL, "abc", io.Discard)
	assert.Error(t, err)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "worker", "tick", "migrate", "jobs", "submit", "watch"})
}

func TestTickCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SITEPIPE_DATABASE_DSN", ":memory:")
	t.Setenv("SITEPIPE_LOG_LEVEL", "error")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"tick"})

	require.NoError(t, root.Execute())
	assert.JSONEq(t, `{"processed":0,"succeeded":0,"failed":0,"recovered":0}`, strings.TrimSpace(out.String()))
}
