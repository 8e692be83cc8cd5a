package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/progress"
	"github.com/jdziat/sitepipe/pkg/queue"
)

type sseEvent struct {
	Name string
	Data string
}

// readEvents parses a text/event-stream body until EOF. Comment lines are
// reported as events named ":".
func readEvents(t *testing.T, resp *http.Response) <-chan sseEvent {
	t.Helper()
	out := make(chan sseEvent, 64)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		var ev sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if ev.Name != "" {
					out <- ev
				}
				ev = sseEvent{}
			case strings.HasPrefix(line, ":"):
				ev.Name = ":"
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	return out
}

func openStream(t *testing.T, srv *httptest.Server, id string) *http.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/jobs/"+id+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func next(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed early")
			if ev.Name == ":" {
				continue
			}
			return ev
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for event")
			return sseEvent{}
		}
	}
}

func snapshotOf(t *testing.T, ev sseEvent) progress.Snapshot {
	t.Helper()
	require.Equal(t, EventSnapshot, ev.Name)
	var snap progress.Snapshot
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &snap))
	return snap
}

func assertClosed(t *testing.T, events <-chan sseEvent) {
	t.Helper()
	select {
	case ev, ok := <-events:
		assert.False(t, ok, "unexpected event after terminal: %+v", ev)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after terminal event")
	}
}

func TestStream_LiveSessionEndsWithTerminal(t *testing.T) {
	store := newTestStore(t)
	b := progress.New()
	q := queue.New(store, queue.WithSessions(b))
	job, err := q.Submit(context.Background(), queue.SubmitRequest{Key: "foo.com"})
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(q, WithSessions(b), WithPollInterval(time.Hour)))
	defer srv.Close()

	resp := openStream(t, srv, job.ID)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events := readEvents(t, resp)

	first := snapshotOf(t, next(t, events))
	assert.Equal(t, progress.SessionOpen, first.Status)

	require.NoError(t, b.Publish(job.ID, progress.Delta{Stage: core.StageDomainAnalysis, StageStatus: core.StepRunning}))
	running := snapshotOf(t, next(t, events))
	assert.Equal(t, progress.SessionRunning, running.Status)
	assert.Equal(t, core.StepRunning, running.Agents[core.StageDomainAnalysis].Status)

	require.NoError(t, b.Publish(job.ID, progress.Delta{Status: progress.SessionFailed, Error: "domain-analysis: lookup failed"}))
	final := snapshotOf(t, next(t, events))
	assert.True(t, final.Terminal)

	term := next(t, events)
	require.Equal(t, EventTerminal, term.Name)
	var te TerminalEvent
	require.NoError(t, json.Unmarshal([]byte(term.Data), &te))
	assert.Equal(t, job.ID, te.JobID)
	assert.Equal(t, progress.SessionFailed, te.Status)
	assert.Equal(t, "domain-analysis: lookup failed", te.Error)

	assertClosed(t, events)

	assert.Eventually(t, func() bool {
		s, ok := b.Get(job.ID)
		return ok && s.Subscribers() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStream_JoinsMidPipelineFromHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.Enqueue(ctx, "foo.com", nil)
	require.NoError(t, err)
	jobs, err := store.ClaimNextBatch(ctx, 1, "w", time.Minute)
	require.NoError(t, err)
	id := jobs[0].ID
	for _, stage := range []core.Stage{core.StageDomainAnalysis, core.StageStrategy} {
		require.NoError(t, store.RecordProgress(ctx, &core.ProgressStep{
			JobID: id, Stage: stage, Status: core.StepCompleted, Percent: 100, RecordedAt: time.Now(),
		}))
	}

	// Untracked job, so no session exists until the watcher connects.
	b := progress.New()
	srv := httptest.NewServer(Handler(queue.New(store), WithSessions(b), WithPollInterval(time.Hour)))
	defer srv.Close()

	events := readEvents(t, openStream(t, srv, id))

	first := snapshotOf(t, next(t, events))
	assert.Equal(t, progress.SessionRunning, first.Status)
	assert.Equal(t, 2, first.CompletedSteps)
	assert.Equal(t, core.OverallPercent(2), first.Percent)
	assert.Equal(t, core.StepCompleted, first.Agents[core.StageStrategy].Status)
	assert.Equal(t, core.StepPending, first.Agents[core.StageDesign].Status)

	require.NoError(t, b.Publish(id, progress.Delta{Stage: core.StageDesign, StageStatus: core.StepCompleted}))
	after := snapshotOf(t, next(t, events))
	assert.Equal(t, 3, after.CompletedSteps)
	assert.GreaterOrEqual(t, after.Percent, first.Percent)
}

func TestStream_TerminalJobReplaysFromStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.Enqueue(ctx, "foo.com", nil)
	require.NoError(t, err)
	jobs, err := store.ClaimNextBatch(ctx, 1, "w", time.Minute)
	require.NoError(t, err)
	id := jobs[0].ID
	for _, stage := range core.Stages {
		require.NoError(t, store.RecordProgress(ctx, &core.ProgressStep{
			JobID: id, Stage: stage, Status: core.StepCompleted, Percent: 100, RecordedAt: time.Now(),
		}))
	}
	require.NoError(t, store.Complete(ctx, id, "w", []byte(`{}`)))

	b := progress.New()
	srv := httptest.NewServer(Handler(queue.New(store), WithSessions(b)))
	defer srv.Close()

	events := readEvents(t, openStream(t, srv, id))

	snap := snapshotOf(t, next(t, events))
	assert.Equal(t, progress.SessionCompleted, snap.Status)
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, len(core.Stages), snap.CompletedSteps)
	assert.Equal(t, EventTerminal, next(t, events).Name)
	assertClosed(t, events)

	// a finished job does not leave a session behind
	assert.Zero(t, b.Len())
}

func TestStream_PollsStoreWithoutSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job, err := store.Enqueue(ctx, "foo.com", nil)
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(queue.New(store), WithPollInterval(20*time.Millisecond)))
	defer srv.Close()

	events := readEvents(t, openStream(t, srv, job.ID))
	first := snapshotOf(t, next(t, events))
	assert.False(t, first.Terminal)

	_, err = store.ClaimNextBatch(ctx, 1, "w", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, job.ID, "w", "boom"))

	final := snapshotOf(t, next(t, events))
	assert.Equal(t, progress.SessionFailed, final.Status)
	assert.Equal(t, "boom", final.Error)
	assert.Equal(t, EventTerminal, next(t, events).Name)
	assertClosed(t, events)
}

func TestStream_Heartbeat(t *testing.T) {
	store := newTestStore(t)
	job, err := store.Enqueue(context.Background(), "foo.com", nil)
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(queue.New(store),
		WithSessions(progress.New()),
		WithHeartbeat(20*time.Millisecond),
		WithPollInterval(time.Hour),
	))
	defer srv.Close()

	events := readEvents(t, openStream(t, srv, job.ID))
	snapshotOf(t, next(t, events))

	select {
	case ev := <-events:
		assert.Equal(t, ":", ev.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat")
	}
}

func TestStream_UnknownJob(t *testing.T) {
	h := NewRouter(queue.New(newTestStore(t)), WithSessions(progress.New()))

	rec := do(t, h, http.MethodGet, "/jobs/nope/stream", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
