package pipeline

import (
	"fmt"
	"hash/fnv"
	"html"
	"strings"

	"github.com/jdziat/sitepipe/pkg/core"
)

// Fallbacks only read the key and prior outputs. They never fail on a
// missing or unreadable prior output; they rebuild it from the key instead.

var fallbackPalettes = []Palette{
	{Primary: "#1F4E79", Secondary: "#2E75B6", Accent: "#F4B183", Background: "#FFFFFF", Text: "#1B1B1B"},
	{Primary: "#2D6A4F", Secondary: "#40916C", Accent: "#FFB703", Background: "#F8F9FA", Text: "#212529"},
	{Primary: "#6A4C93", Secondary: "#8E7DBE", Accent: "#F7C59F", Background: "#FFFDF8", Text: "#2B2D42"},
	{Primary: "#B23A48", Secondary: "#F26A4F", Accent: "#FCD581", Background: "#FFFAF5", Text: "#2E1F27"},
	{Primary: "#264653", Secondary: "#2A9D8F", Accent: "#E9C46A", Background: "#FDFDFD", Text: "#1D3557"},
}

var fallbackTypography = []Typography{
	{Heading: "Georgia, serif", Body: "Helvetica, Arial, sans-serif"},
	{Heading: "Trebuchet MS, sans-serif", Body: "Verdana, sans-serif"},
	{Heading: "Palatino, serif", Body: "Arial, sans-serif"},
}

var fallbackTones = map[string]string{
	"technology":      "confident and precise",
	"food & beverage": "warm and inviting",
	"health":          "calm and reassuring",
	"legal":           "formal and trustworthy",
	"finance":         "clear and trustworthy",
	"creative":        "playful and bold",
}

func seed(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}

func analysisOrKey(in Input) Analysis {
	if a, err := Decode[Analysis](in, core.StageDomainAnalysis); err == nil && a.Name != "" {
		return a
	}
	return KeyAnalysis(in.Key)
}

func strategyOrFallback(in Input) Strategy {
	if s, err := Decode[Strategy](in, core.StageStrategy); err == nil && s.validate() == nil {
		return s
	}
	return buildFallbackStrategy(analysisOrKey(in))
}

func designOrFallback(in Input) Design {
	if d, err := Decode[Design](in, core.StageDesign); err == nil && d.validate() == nil {
		return d
	}
	return buildFallbackDesign(in.Key)
}

func contentOrFallback(in Input) Content {
	if c, err := Decode[Content](in, core.StageContent); err == nil && c.validate() == nil {
		return c
	}
	return buildFallbackContent(analysisOrKey(in), strategyOrFallback(in))
}

func fallbackStrategy(in Input, _ error) (any, error) {
	return buildFallbackStrategy(analysisOrKey(in)), nil
}

func buildFallbackStrategy(a Analysis) Strategy {
	tone, ok := fallbackTones[a.Industry]
	if !ok {
		tone = "friendly and professional"
	}
	return Strategy{
		Audience:         fmt.Sprintf("people looking for %s services", a.Industry),
		Tone:             tone,
		ValueProposition: fmt.Sprintf("%s makes %s simple.", a.Name, a.Industry),
		Sections:         []string{"About", "Services", "Contact"},
	}
}

func fallbackDesign(in Input, _ error) (any, error) {
	return buildFallbackDesign(in.Key), nil
}

func buildFallbackDesign(key string) Design {
	s := seed(key)
	return Design{
		Palette:    fallbackPalettes[s%uint32(len(fallbackPalettes))],
		Typography: fallbackTypography[s%uint32(len(fallbackTypography))],
		Layout:     "single-column",
	}
}

func fallbackContent(in Input, _ error) (any, error) {
	return buildFallbackContent(analysisOrKey(in), strategyOrFallback(in)), nil
}

func buildFallbackContent(a Analysis, s Strategy) Content {
	sections := make([]Section, 0, len(s.Sections))
	for _, name := range s.Sections {
		sections = append(sections, Section{
			Heading: name,
			Body:    sectionBody(name, a),
		})
	}
	return Content{
		Headline:     a.Name,
		Tagline:      s.ValueProposition,
		Sections:     sections,
		CallToAction: "Get in touch",
	}
}

func sectionBody(name string, a Analysis) string {
	switch strings.ToLower(name) {
	case "about":
		return fmt.Sprintf("%s is a %s business at %s.", a.Name, a.Industry, a.Domain)
	case "contact":
		return fmt.Sprintf("Reach the %s team through %s.", a.Name, a.Domain)
	default:
		return fmt.Sprintf("Learn more about %s from %s.", strings.ToLower(name), a.Name)
	}
}

func fallbackBuild(in Input, _ error) (any, error) {
	a := analysisOrKey(in)
	c := contentOrFallback(in)
	d := designOrFallback(in)

	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>%s</title></head>",
		html.EscapeString(a.Name))
	fmt.Fprintf(&b, "<body style=\"background:%s;color:%s\"><h1>%s</h1><p>%s</p>",
		d.Palette.Background, d.Palette.Text, html.EscapeString(c.Headline), html.EscapeString(c.Tagline))
	for _, s := range c.Sections {
		fmt.Fprintf(&b, "<h2>%s</h2><p>%s</p>", html.EscapeString(s.Heading), html.EscapeString(s.Body))
	}
	b.WriteString("</body></html>")
	return newBuild([]byte(b.String())), nil
}

func fallbackDeploy(_ Input, cause error) (any, error) {
	reason := "publisher unavailable"
	if cause != nil {
		reason = fmt.Sprintf("publish skipped: %v", cause)
	}
	return Deploy{Deployed: false, Reason: reason}, nil
}
