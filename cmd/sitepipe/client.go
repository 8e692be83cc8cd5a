package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/jdziat/sitepipe/api"
	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/progress"
)

const defaultServer = "http://localhost:8080"

type submitResult struct {
	JobID       string `json:"jobId"`
	Status      string `json:"status"`
	StatusURL   string `json:"statusUrl"`
	ProgressURL string `json:"progressUrl"`
}

// submit posts one job to a running server.
func submit(ctx context.Context, client *http.Client, server, key string, payload json.RawMessage) (*submitResult, error) {
	body, err := json.Marshal(map[string]any{"key": key, "payload": payload})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, responseError(resp)
	}
	var out submitResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
}

// watch follows a job's progress stream, drawing a bar on out, and returns
// the terminal event.
func watch(ctx context.Context, client *http.Client, server, jobID string, out io.Writer) (*api.TerminalEvent, error) {
	url := fmt.Sprintf("%s/jobs/%s/stream", strings.TrimRight(server, "/"), jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(jobID),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
	)

	var event string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			switch event {
			case api.EventSnapshot:
				var snap progress.Snapshot
				if err := json.Unmarshal(data, &snap); err != nil {
					return nil, fmt.Errorf("decode snapshot: %w", err)
				}
				bar.Describe(describe(snap))
				_ = bar.Set(snap.Percent)
			case api.EventTerminal:
				var term api.TerminalEvent
				if err := json.Unmarshal(data, &term); err != nil {
					return nil, fmt.Errorf("decode terminal event: %w", err)
				}
				if term.Status == progress.SessionCompleted {
					_ = bar.Finish()
				}
				_, _ = fmt.Fprintln(out)
				return &term, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("stream closed before the job finished")
}

// describe names the stage currently running, or the session status.
func describe(snap progress.Snapshot) string {
	for stage, agent := range snap.Agents {
		if agent.Status == core.StepRunning {
			return string(stage)
		}
	}
	return string(snap.Status)
}
