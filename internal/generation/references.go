package generation

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var lineSuffix = regexp.MustCompile(`(#L\d+(-L?\d+)?|:\d+(-\d+)?)$`)

// normalizeCitation turns a link destination or code span into a repository-relative path.
func normalizeCitation(raw string) string {
	c := strings.TrimSpace(raw)
	if c == "" || strings.Contains(c, "://") || strings.HasPrefix(c, "mailto:") {
		return ""
	}
	if unescaped, err := url.PathUnescape(c); err == nil {
		c = unescaped
	}
	c = lineSuffix.ReplaceAllString(c, "")
	if i := strings.IndexAny(c, "?#"); i >= 0 {
		c = c[:i]
	}
	c = strings.TrimPrefix(c, "./")
	c = strings.TrimPrefix(c, "/")
	if c == "" {
		return ""
	}
	return path.Clean(c)
}

// CitedPaths returns known repository paths cited in markdown content, either
// as link destinations or as inline code spans, sorted.
func CitedPaths(content string, known map[string]bool) []string {
	if len(known) == 0 {
		return nil
	}
	src := []byte(content)
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	found := map[string]bool{}
	consider := func(raw string) {
		if p := normalizeCitation(raw); p != "" && known[p] {
			found[p] = true
		}
	}
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Link:
			consider(string(node.Destination))
		case *gmast.CodeSpan:
			var sb strings.Builder
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*gmast.Text); ok {
					sb.Write(t.Segment.Value(src))
				}
			}
			consider(sb.String())
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})

	out := make([]string, 0, len(found))
	for p := range found {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// References is the node's dependent files followed by the other known
// paths the content cites, without duplicates.
func References(dependent []string, content string, known map[string]bool) []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range dependent {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, p := range CitedPaths(content, known) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
