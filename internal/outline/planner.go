// Package outline turns a planned documentation structure into catalogue nodes.
package outline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/llm"
	"git.home.luguber.info/inful/docwiki/internal/models"
	"git.home.luguber.info/inful/docwiki/internal/prompts"
)

// ErrEmptyStructure is returned when a response contains no topics.
var ErrEmptyStructure = errors.New("documentation structure has no items")

// Item is one planned topic as returned by the backend.
type Item struct {
	Title         string   `json:"title"`
	Name          string   `json:"name,omitempty"`
	Prompt        string   `json:"prompt,omitempty"`
	DependentFile []string `json:"dependent_file,omitempty"`
	Children      []Item   `json:"children,omitempty"`
}

// Structure is the planned documentation tree.
type Structure struct {
	Items []Item `json:"items"`
}

const structureTag = "documentation_structure"

// ParseStructure extracts the JSON structure from a backend response. The JSON
// may be wrapped in <documentation_structure> tags or a ```json fence.
func ParseStructure(response string) (*Structure, error) {
	body := response
	if inner, ok := between(body, "<"+structureTag+">", "</"+structureTag+">"); ok {
		body = inner
	}
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "```") {
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	start, end := strings.IndexAny(body, "{["), strings.LastIndexAny(body, "}]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	body = body[start : end+1]

	var s Structure
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &s.Items); err != nil {
			return nil, fmt.Errorf("decode documentation structure: %w", err)
		}
	} else if err := json.Unmarshal([]byte(body), &s); err != nil {
		return nil, fmt.Errorf("decode documentation structure: %w", err)
	}
	if countItems(s.Items) == 0 {
		return nil, ErrEmptyStructure
	}
	return &s, nil
}

func between(s, open, closeTag string) (string, bool) {
	i := strings.Index(s, open)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(open):]
	j := strings.Index(rest, closeTag)
	if j < 0 {
		return rest, true
	}
	return rest[:j], true
}

func countItems(items []Item) int {
	n := 0
	for _, it := range items {
		if strings.TrimSpace(it.Title) != "" {
			n++
		}
		n += countItems(it.Children)
	}
	return n
}

// Nodes flattens the structure in pre-order into catalogue nodes with fresh
// ids, increasing Order and unique slugs. Dependent files are normalized and,
// when known is non-nil, restricted to paths it contains. Items without a
// title are dropped together with their subtree.
func Nodes(jobID string, s *Structure, known map[string]bool) []models.CatalogueNode {
	var out []models.CatalogueNode
	slugs := slugSet{}

	var walk func(items []Item, parentID string)
	walk = func(items []Item, parentID string) {
		for _, it := range items {
			title := strings.TrimSpace(it.Title)
			if title == "" {
				continue
			}
			name := it.Name
			if strings.TrimSpace(name) == "" {
				name = title
			}
			prompt := strings.TrimSpace(it.Prompt)
			if prompt == "" {
				prompt = "Document " + title + "."
			}
			node := models.CatalogueNode{
				ID:             uuid.NewString(),
				JobID:          jobID,
				ParentID:       parentID,
				Title:          title,
				Slug:           slugs.unique(Slugify(name)),
				Prompt:         prompt,
				Order:          len(out),
				DependentFiles: cleanFiles(it.DependentFile, known),
			}
			out = append(out, node)
			walk(it.Children, node.ID)
		}
	}
	walk(s.Items, "")
	return out
}

func cleanFiles(files []string, known map[string]bool) []string {
	var out []string
	seen := map[string]bool{}
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		f = strings.TrimPrefix(path.Clean(strings.TrimPrefix(f, "./")), "/")
		if seen[f] || (known != nil && !known[f]) {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Planner asks the backend for a documentation structure.
type Planner struct {
	backend llm.Backend
	opts    llm.Options
}

// NewPlanner returns a planner using backend with opts.
func NewPlanner(backend llm.Backend, opts llm.Options) *Planner {
	return &Planner{backend: backend, opts: opts}
}

// Plan renders the outline prompt, calls the backend once and returns the nodes.
func (p *Planner) Plan(ctx context.Context, jobID string, shared prompts.Shared, known map[string]bool) ([]models.CatalogueNode, error) {
	prompt, err := prompts.Outline(shared)
	if err != nil {
		return nil, derrors.InternalError("render outline prompt", err)
	}
	resp, err := p.backend.Generate(ctx, prompt, p.opts)
	if err != nil {
		return nil, derrors.GenerationFailed("outline", err)
	}
	s, err := ParseStructure(resp)
	if err != nil {
		return nil, derrors.GenerationFailed("outline", err)
	}
	nodes := Nodes(jobID, s, known)
	if _, err := models.NewCatalogue(nodes); err != nil {
		return nil, derrors.InternalError("invalid catalogue", err)
	}
	return nodes, nil
}
