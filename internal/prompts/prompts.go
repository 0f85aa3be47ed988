// Package prompts renders the prompts sent to the text-generation backend.
package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Shared is the repository context common to every prompt of a job.
type Shared struct {
	Repository string
	Branch     string
	Catalogue  string
	Summary    string
	Language   string
}

// Topic describes the catalogue node a content prompt is for.
type Topic struct {
	Title          string
	Breadcrumb     []string
	Prompt         string
	DependentFiles []string
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

var outlineTmpl = template.Must(template.New("outline").Funcs(funcs).Parse(`You are a technical writer planning documentation for the repository "{{.Repository}}"{{if .Branch}} (branch {{.Branch}}){{end}}.

Repository summary:
<readme>
{{.Summary}}
</readme>

Repository file catalogue:
<catalogue>
{{.Catalogue}}
</catalogue>

Plan a documentation structure. Respond with a JSON object inside <documentation_structure> tags:
{"items": [{"title": "...", "name": "...", "prompt": "...", "dependent_file": ["path/in/repo"], "children": [ ... ]}]}

Use only file paths that appear in the catalogue. Write titles in {{.Language}}.
`))

var contentTmpl = template.Must(template.New("content").Funcs(funcs).Parse(`You are writing one page of the documentation for the repository "{{.Shared.Repository}}".

Repository file catalogue:
<catalogue>
{{.Shared.Catalogue}}
</catalogue>

Page: {{.Topic.Title}}{{if .Topic.Breadcrumb}}
Location: {{join .Topic.Breadcrumb " > "}}{{end}}
{{if .Topic.DependentFiles}}Relevant files: {{join .Topic.DependentFiles ", "}}
{{end}}
Instructions:
{{.Topic.Prompt}}

Write the page in Markdown in {{.Shared.Language}}. Cite repository files by their path. Mermaid diagrams are welcome.
Wrap the final page in <docs></docs> tags.
`))

var refineTmpl = template.Must(template.New("refine").Parse(`Review and improve the following documentation page for accuracy, structure and clarity.
Keep every statement grounded in the repository. Keep existing file citations. Write in {{.Language}}.
Return only the improved page inside <docs></docs> tags.

<draft>
{{.Draft}}
</draft>
`))

var overviewTmpl = template.Must(template.New("overview").Parse(`Write a concise overview of the repository "{{.Repository}}" for its documentation landing page, in {{.Language}}.

Repository summary:
<readme>
{{.Summary}}
</readme>

Repository file catalogue:
<catalogue>
{{.Catalogue}}
</catalogue>

Describe purpose, main components and how they fit together. Wrap the result in <docs></docs> tags.
`))

var graphTmpl = template.Must(template.New("graph").Parse(`Produce a knowledge map of the repository "{{.Repository}}" as Markdown headings only.
Use "#" for the repository, "##" for major areas and deeper levels for details.
Where a heading corresponds to a file, write it as "Title:path/to/file" with no spaces in the path.
Do not write anything except headings.

Repository file catalogue:
<catalogue>
{{.Catalogue}}
</catalogue>
`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// Outline asks for the documentation structure.
func Outline(s Shared) (string, error) { return render(outlineTmpl, s) }

// Content asks for one documentation page.
func Content(s Shared, t Topic) (string, error) {
	return render(contentTmpl, struct {
		Shared Shared
		Topic  Topic
	}{s, t})
}

// Refine asks the backend to improve a draft page.
func Refine(s Shared, draft string) (string, error) {
	return render(refineTmpl, struct {
		Language string
		Draft    string
	}{s.Language, draft})
}

// Overview asks for the repository overview.
func Overview(s Shared) (string, error) { return render(overviewTmpl, s) }

// KnowledgeGraph asks for a heading-only knowledge map.
func KnowledgeGraph(s Shared) (string, error) { return render(graphTmpl, s) }
