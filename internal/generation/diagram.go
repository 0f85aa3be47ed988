package generation

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type span struct{ start, stop int }

// mermaidSpans returns the source ranges of every line inside ```mermaid fences.
func mermaidSpans(src []byte) [][]span {
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks [][]span
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		fcb, ok := n.(*gmast.FencedCodeBlock)
		if !ok {
			return gmast.WalkContinue, nil
		}
		if !strings.EqualFold(strings.TrimSpace(string(fcb.Language(src))), "mermaid") {
			return gmast.WalkSkipChildren, nil
		}
		lines := fcb.Lines()
		block := make([]span, 0, lines.Len())
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			block = append(block, span{start: seg.Start, stop: seg.Stop})
		}
		blocks = append(blocks, block)
		return gmast.WalkSkipChildren, nil
	})
	return blocks
}

// RepairMermaid removes parentheses inside [...] node labels of mermaid
// fenced blocks, which mermaid otherwise parses as shape syntax. Everything
// outside mermaid fences is returned unchanged.
func RepairMermaid(s string) string {
	src := []byte(s)
	blocks := mermaidSpans(src)
	if len(blocks) == 0 {
		return s
	}

	type edit struct {
		span
		text string
	}
	var edits []edit
	for _, block := range blocks {
		depth := 0
		for _, sp := range block {
			fixed, d := stripLabelParens(s[sp.start:sp.stop], depth)
			depth = d
			if fixed != s[sp.start:sp.stop] {
				edits = append(edits, edit{span: sp, text: fixed})
			}
		}
	}
	if len(edits) == 0 {
		return s
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var sb strings.Builder
	last := 0
	for _, e := range edits {
		sb.WriteString(s[last:e.start])
		sb.WriteString(e.text)
		last = e.stop
	}
	sb.WriteString(s[last:])
	return sb.String()
}

// stripLabelParens drops '(' and ')' while inside square brackets. depth
// carries bracket nesting across lines of one block.
func stripLabelParens(line string, depth int) (string, int) {
	var sb strings.Builder
	sb.Grow(len(line))
	for _, r := range line {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '(', ')':
			if depth > 0 {
				continue
			}
		}
		sb.WriteRune(r)
	}
	return sb.String(), depth
}
