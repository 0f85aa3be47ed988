// Package knowledge turns heading-structured text into a topic tree.
//
// Parsing is lenient and never fails: non-heading lines and fenced code are
// skipped, level jumps attach directly to the nearest shallower heading, and
// text that contains no heading yields a nil tree.
package knowledge

import (
	"encoding/json"
	"strings"

	"git.home.luguber.info/inful/docwiki/internal/models"
)

// DefaultMaxDepth bounds how deep the produced tree may grow.
const DefaultMaxDepth = 32

// Parser converts heading lines into a KnowledgeGraphNode tree.
type Parser struct {
	// Marker is the heading character; depth is the number of leading markers.
	Marker byte
	// MaxDepth caps tree depth; headings beyond it become siblings at the bound.
	MaxDepth int
}

// New returns a parser using '#' and DefaultMaxDepth.
func New() *Parser {
	return &Parser{Marker: '#', MaxDepth: DefaultMaxDepth}
}

// Parse is shorthand for New().Parse(text).
func Parse(text string) *models.KnowledgeGraphNode {
	return New().Parse(text)
}

type heading struct {
	level     int
	title     string
	reference string
}

type frame struct {
	node  *models.KnowledgeGraphNode
	level int
}

// Parse builds the tree in one forward scan. The first heading is the root;
// later headings at or above the root's level become children of the root.
func (p *Parser) Parse(text string) *models.KnowledgeGraphNode {
	marker := p.Marker
	if marker == 0 {
		marker = '#'
	}
	maxDepth := p.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var root *models.KnowledgeGraphNode
	var stack []frame
	inFence := ""

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if fence := fenceMarker(trimmed); fence != "" {
			switch {
			case inFence == "":
				inFence = fence
			case strings.HasPrefix(trimmed, inFence):
				inFence = ""
			}
			continue
		}
		if inFence != "" {
			continue
		}

		h, ok := parseHeading(trimmed, marker)
		if !ok {
			continue
		}
		node := &models.KnowledgeGraphNode{Title: h.title, Reference: h.reference}

		if root == nil {
			root = node
			stack = []frame{{node: root, level: h.level}}
			continue
		}

		if h.level <= stack[0].level {
			stack = stack[:1]
		}
		// Close headings at the same or a deeper level; the root is never closed.
		for len(stack) > 1 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		// Depth bound: the new node sits at depth len(stack).
		if len(stack) > maxDepth {
			stack = stack[:maxDepth]
		}

		parent := stack[len(stack)-1].node
		parent.Children = append(parent.Children, node)
		stack = append(stack, frame{node: node, level: h.level})
	}
	return root
}

// parseHeading recognises "<markers> text" with an optional "title:reference".
func parseHeading(line string, marker byte) (heading, bool) {
	level := 0
	for level < len(line) && line[level] == marker {
		level++
	}
	if level == 0 {
		return heading{}, false
	}
	rest := line[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return heading{}, false
	}
	text := strings.TrimSpace(rest)
	// Closing markers ("## Title ##") are decoration.
	text = strings.TrimSpace(strings.TrimRight(text, string(marker)))
	if text == "" {
		return heading{}, false
	}

	h := heading{level: level, title: text}
	if idx := strings.IndexByte(text, ':'); idx > 0 {
		title := strings.TrimSpace(text[:idx])
		ref := strings.TrimSpace(text[idx+1:])
		if title != "" && ref != "" && !strings.ContainsAny(ref, " \t") {
			h.title = title
			h.reference = ref
		}
	}
	return h, true
}

func fenceMarker(line string) string {
	switch {
	case strings.HasPrefix(line, "```"):
		return "```"
	case strings.HasPrefix(line, "~~~"):
		return "~~~"
	default:
		return ""
	}
}

// Marshal serializes a tree for storage in the document record.
func Marshal(root *models.KnowledgeGraphNode) (string, error) {
	if root == nil {
		return "", nil
	}
	data, err := json.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Unmarshal reverses Marshal. Empty input yields a nil tree.
func Unmarshal(data string) (*models.KnowledgeGraphNode, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var root models.KnowledgeGraphNode
	if err := json.Unmarshal([]byte(data), &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// Render writes the tree back as heading text, one heading per node.
func Render(root *models.KnowledgeGraphNode) string {
	if root == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(n *models.KnowledgeGraphNode, depth int)
	walk = func(n *models.KnowledgeGraphNode, depth int) {
		sb.WriteString(strings.Repeat("#", depth+1))
		sb.WriteByte(' ')
		sb.WriteString(n.Title)
		if n.Reference != "" {
			sb.WriteByte(':')
			sb.WriteString(n.Reference)
		}
		sb.WriteByte('\n')
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return sb.String()
}
