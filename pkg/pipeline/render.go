package pipeline

import (
	"bytes"
	"context"
	"html/template"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Analysis.Name}}</title>
<meta name="description" content="{{.Content.Tagline}}">
<style>
:root{--primary:{{.Design.Palette.Primary}};--secondary:{{.Design.Palette.Secondary}};--accent:{{.Design.Palette.Accent}};--bg:{{.Design.Palette.Background}};--text:{{.Design.Palette.Text}}}
body{margin:0;background:var(--bg);color:var(--text);font-family:{{.Design.Typography.Body}}}
h1,h2{font-family:{{.Design.Typography.Heading}};color:var(--primary)}
header{padding:4rem 2rem;background:var(--secondary);color:var(--bg)}
section{padding:2rem;max-width:48rem;margin:0 auto}
a.cta{display:inline-block;padding:.75rem 1.5rem;background:var(--accent);color:var(--text);text-decoration:none}
</style>
</head>
<body class="layout-{{.Design.Layout}}">
<header><h1>{{.Content.Headline}}</h1><p>{{.Content.Tagline}}</p></header>
{{range .Content.Sections}}<section><h2>{{.Heading}}</h2><p>{{.Body}}</p></section>
{{end}}<section><a class="cta" href="mailto:hello@{{.Analysis.Domain}}">{{.Content.CallToAction}}</a></section>
</body>
</html>
`))

// TemplateRenderer renders pages locally with html/template.
type TemplateRenderer struct{}

// Render implements Renderer.
func (TemplateRenderer) Render(_ context.Context, page Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
