package collab

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/pipeline"
)

func messagesServer(t *testing.T, status int, reply string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
}

const okReply = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
"content":[{"type":"text","text":"{\"audience\":\"devs\"}"}],
"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":8}}`

func TestClaudeGenerator_Generate(t *testing.T) {
	var seen map[string]any
	srv := messagesServer(t, http.StatusOK, okReply, &seen)
	defer srv.Close()

	g, err := NewClaudeGenerator(ClaudeConfig{APIKey: "test-key", BaseURL: srv.URL, MaxTokens: 512})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), pipeline.Prompt{
		Stage:     core.StageStrategy,
		System:    "be brief",
		User:      "hello",
		MaxTokens: 2048,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"audience":"devs"}`, out)

	assert.Equal(t, DefaultClaudeModel, seen["model"])
	assert.EqualValues(t, 512, seen["max_tokens"])
	require.NotNil(t, seen["system"])
}

func TestClaudeGenerator_APIError(t *testing.T) {
	srv := messagesServer(t, http.StatusInternalServerError,
		`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`, nil)
	defer srv.Close()

	g, err := NewClaudeGenerator(ClaudeConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), pipeline.Prompt{Stage: core.StageDesign, User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate design")
}

func TestClaudeGenerator_EmptyReply(t *testing.T) {
	srv := messagesServer(t, http.StatusOK, `{"id":"msg_2","type":"message","role":"assistant",
"model":"m","content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`, nil)
	defer srv.Close()

	g, err := NewClaudeGenerator(ClaudeConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), pipeline.Prompt{Stage: core.StageContent, User: "x"})
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestNewClaudeGenerator_RequiresKey(t *testing.T) {
	_, err := NewClaudeGenerator(ClaudeConfig{})
	assert.Error(t, err)
}
