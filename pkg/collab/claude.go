package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/pipeline"
)

// DefaultClaudeModel is used when no model is configured.
const DefaultClaudeModel = "claude-sonnet-4-5"

// ErrEmptyReply is returned when the model answers without text.
var ErrEmptyReply = errors.New("collab: generator returned no text")

// ClaudeConfig configures a ClaudeGenerator.
type ClaudeConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	// BaseURL overrides the API endpoint, mainly for tests and proxies.
	BaseURL string
	Logger  *zap.Logger
}

// ClaudeGenerator implements pipeline.Generator with the Anthropic
// Messages API. The SDK's own retries are disabled; each stage gets one
// bounded attempt.
type ClaudeGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

var _ pipeline.Generator = (*ClaudeGenerator)(nil)

// NewClaudeGenerator creates a generator. An empty API key is an error.
func NewClaudeGenerator(cfg ClaudeConfig) (*ClaudeGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("collab: anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultClaudeModel
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &ClaudeGenerator{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}, nil
}

// Generate implements pipeline.Generator.
func (g *ClaudeGenerator) Generate(ctx context.Context, p pipeline.Prompt) (string, error) {
	maxTokens := p.MaxTokens
	if g.maxTokens > 0 && (maxTokens <= 0 || maxTokens > g.maxTokens) {
		maxTokens = g.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", p.Stage, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyReply
	}

	g.logger.Debug("generator reply",
		zap.String("stage", string(p.Stage)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return b.String(), nil
}
