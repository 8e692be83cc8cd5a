package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jdziat/sitepipe/pkg/core"
)

const generatorMaxTokens = 1024

// DefaultStages returns the six pipeline stages wired to c.
func DefaultStages(c Collaborators) []Stage {
	return []Stage{
		AnalysisStage(c.Analyzer),
		StrategyStage(c.Generator),
		DesignStage(c.Generator),
		ContentStage(c.Generator),
		BuildStage(c.Renderer),
		DeployStage(c.Publisher),
	}
}

// AnalysisStage is the required first stage. When the payload asks for a
// regeneration and carries a prior analysis hint, the hint is reused and
// the analyzer is not called.
func AnalysisStage(a Analyzer) Stage {
	if a == nil {
		a = AnalyzerFunc(func(_ context.Context, key string) (Analysis, error) {
			return KeyAnalysis(key), nil
		})
	}
	return NewStage(core.StageDomainAnalysis, true, func(ctx context.Context, in Input) (any, error) {
		if in.Payload.Regenerate {
			if raw, ok := in.Payload.Hint("analysis"); ok {
				var hinted Analysis
				if err := json.Unmarshal(raw, &hinted); err == nil && hinted.Name != "" {
					hinted.Domain = in.Key
					return hinted, nil
				}
			}
		}
		return a.Analyze(ctx, in.Key)
	}, nil)
}

// StrategyStage asks the generator for positioning.
func StrategyStage(g Generator) Stage {
	return NewStage(core.StageStrategy, false, func(ctx context.Context, in Input) (any, error) {
		if g == nil {
			return nil, ErrNoCollaborator
		}
		analysis, err := Decode[Analysis](in, core.StageDomainAnalysis)
		if err != nil {
			return nil, err
		}

		reply, err := g.Generate(ctx, Prompt{
			Stage:     core.StageStrategy,
			System:    "You are a brand strategist. Reply with one JSON object only.",
			User:      strategyPrompt(analysis, in.Payload.Feedback),
			MaxTokens: generatorMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		var s Strategy
		if err := decodeReply(reply, &s); err != nil {
			return nil, err
		}
		return s, s.validate()
	}, fallbackStrategy)
}

// DesignStage asks the generator for a palette and typography.
func DesignStage(g Generator) Stage {
	return NewStage(core.StageDesign, false, func(ctx context.Context, in Input) (any, error) {
		if g == nil {
			return nil, ErrNoCollaborator
		}
		analysis, err := Decode[Analysis](in, core.StageDomainAnalysis)
		if err != nil {
			return nil, err
		}
		strategy, err := Decode[Strategy](in, core.StageStrategy)
		if err != nil {
			return nil, err
		}

		reply, err := g.Generate(ctx, Prompt{
			Stage:     core.StageDesign,
			System:    "You are a web designer. Reply with one JSON object only.",
			User:      designPrompt(analysis, strategy, in.Payload.Feedback),
			MaxTokens: generatorMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		var d Design
		if err := decodeReply(reply, &d); err != nil {
			return nil, err
		}
		return d, d.validate()
	}, fallbackDesign)
}

// ContentStage asks the generator for page copy.
func ContentStage(g Generator) Stage {
	return NewStage(core.StageContent, false, func(ctx context.Context, in Input) (any, error) {
		if g == nil {
			return nil, ErrNoCollaborator
		}
		analysis, err := Decode[Analysis](in, core.StageDomainAnalysis)
		if err != nil {
			return nil, err
		}
		strategy, err := Decode[Strategy](in, core.StageStrategy)
		if err != nil {
			return nil, err
		}
		design, err := Decode[Design](in, core.StageDesign)
		if err != nil {
			return nil, err
		}

		reply, err := g.Generate(ctx, Prompt{
			Stage:     core.StageContent,
			System:    "You are a copywriter. Reply with one JSON object only.",
			User:      contentPrompt(analysis, strategy, design, in.Payload.Feedback),
			MaxTokens: generatorMaxTokens * 2,
		})
		if err != nil {
			return nil, err
		}
		var c Content
		if err := decodeReply(reply, &c); err != nil {
			return nil, err
		}
		return c, c.validate()
	}, fallbackContent)
}

// BuildStage renders the page.
func BuildStage(r Renderer) Stage {
	if r == nil {
		r = TemplateRenderer{}
	}
	return NewStage(core.StageBuild, false, func(ctx context.Context, in Input) (any, error) {
		page, err := pageFrom(in)
		if err != nil {
			return nil, err
		}
		html, err := r.Render(ctx, page)
		if err != nil {
			return nil, err
		}
		return newBuild(html), nil
	}, fallbackBuild)
}

// DeployStage publishes the built page.
func DeployStage(p Publisher) Stage {
	return NewStage(core.StageDeploy, false, func(ctx context.Context, in Input) (any, error) {
		if p == nil {
			return nil, ErrNoCollaborator
		}
		build, err := Decode[Build](in, core.StageBuild)
		if err != nil {
			return nil, err
		}
		return p.Publish(ctx, DeployRequest{JobID: in.JobID, Key: in.Key, HTML: []byte(build.HTML)})
	}, fallbackDeploy)
}

func pageFrom(in Input) (Page, error) {
	analysis, err := Decode[Analysis](in, core.StageDomainAnalysis)
	if err != nil {
		return Page{}, err
	}
	design, err := Decode[Design](in, core.StageDesign)
	if err != nil {
		return Page{}, err
	}
	content, err := Decode[Content](in, core.StageContent)
	if err != nil {
		return Page{}, err
	}
	return Page{Analysis: analysis, Design: design, Content: content}, nil
}

func newBuild(html []byte) Build {
	sum := sha256.Sum256(html)
	return Build{HTML: string(html), Bytes: len(html), Checksum: hex.EncodeToString(sum[:])}
}

func strategyPrompt(a Analysis, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Domain: %s\nBrand name: %s\nIndustry: %s\nKeywords: %s\n",
		a.Domain, a.Name, a.Industry, strings.Join(a.Keywords, ", "))
	if a.Description != "" {
		fmt.Fprintf(&b, "Existing site description: %s\n", a.Description)
	}
	writeFeedback(&b, feedback)
	b.WriteString(`Return {"audience": string, "tone": string, "valueProposition": string, "sections": [string]} with 3 to 5 section names.`)
	return b.String()
}

func designPrompt(a Analysis, s Strategy, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s (%s)\nTone: %s\nAudience: %s\n", a.Name, a.Industry, s.Tone, s.Audience)
	writeFeedback(&b, feedback)
	b.WriteString(`Return {"palette": {"primary","secondary","accent","background","text"} as #RRGGBB strings, ` +
		`"typography": {"heading": string, "body": string} as web-safe font families, "layout": string}.`)
	return b.String()
}

func contentPrompt(a Analysis, s Strategy, d Design, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s\nValue proposition: %s\nTone: %s\nSections: %s\nLayout: %s\n",
		a.Name, s.ValueProposition, s.Tone, strings.Join(s.Sections, ", "), d.Layout)
	writeFeedback(&b, feedback)
	b.WriteString(`Return {"headline": string, "tagline": string, "sections": [{"heading": string, "body": string}], ` +
		`"callToAction": string} with one entry per section.`)
	return b.String()
}

func writeFeedback(b *strings.Builder, feedback string) {
	if feedback != "" {
		fmt.Fprintf(b, "Requester feedback on the previous version: %s\n", feedback)
	}
}
