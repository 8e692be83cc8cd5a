package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jdziat/sitepipe/pkg/core"
)

// Analyzer inspects a domain.
type Analyzer interface {
	Analyze(ctx context.Context, key string) (Analysis, error)
}

// Prompt is one request to a generative service.
type Prompt struct {
	Stage     core.Stage
	System    string
	User      string
	MaxTokens int
}

// Generator returns raw text for a prompt. Stages expect a JSON object
// somewhere in the reply.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Page is everything the build stage assembles.
type Page struct {
	Analysis Analysis
	Design   Design
	Content  Content
}

// Renderer turns a Page into an HTML document.
type Renderer interface {
	Render(ctx context.Context, page Page) ([]byte, error)
}

// DeployRequest is one built page to publish.
type DeployRequest struct {
	JobID string
	Key   string
	HTML  []byte
}

// Publisher makes a built page reachable.
type Publisher interface {
	Publish(ctx context.Context, req DeployRequest) (Deploy, error)
}

// Collaborators groups the external services the default stages call.
// A nil Analyzer falls back to KeyAnalysis and a nil Renderer to
// TemplateRenderer. A nil Generator or Publisher makes the matching stages
// degrade on every run.
type Collaborators struct {
	Analyzer  Analyzer
	Generator Generator
	Renderer  Renderer
	Publisher Publisher
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, key string) (Analysis, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, key string) (Analysis, error) { return f(ctx, key) }

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, req DeployRequest) (Deploy, error)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, req DeployRequest) (Deploy, error) {
	return f(ctx, req)
}

// ErrNoJSON is returned when a generator reply holds no JSON object.
var ErrNoJSON = errors.New("pipeline: reply contains no JSON object")

// decodeReply extracts the outermost JSON object from a generator reply.
func decodeReply(reply string, v any) error {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func (s Strategy) validate() error {
	if s.ValueProposition == "" || s.Audience == "" || len(s.Sections) == 0 {
		return errors.New("strategy reply is incomplete")
	}
	return nil
}

func (d Design) validate() error {
	for _, c := range []string{d.Palette.Primary, d.Palette.Secondary, d.Palette.Accent, d.Palette.Background, d.Palette.Text} {
		if !hexColor.MatchString(c) {
			return fmt.Errorf("design reply has invalid color %q", c)
		}
	}
	if d.Typography.Heading == "" || d.Typography.Body == "" {
		return errors.New("design reply is missing typography")
	}
	return nil
}

func (c Content) validate() error {
	if c.Headline == "" || len(c.Sections) == 0 {
		return errors.New("content reply is incomplete")
	}
	for _, s := range c.Sections {
		if s.Heading == "" || s.Body == "" {
			return errors.New("content reply has an empty section")
		}
	}
	return nil
}
