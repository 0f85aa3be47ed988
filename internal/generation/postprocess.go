package generation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	// ErrEmptyOutput is returned when post-processing leaves nothing.
	ErrEmptyOutput = errors.New("backend returned empty content")
	// ErrTruncatedOutput is returned for an opening <docs> tag without its closing tag.
	ErrTruncatedOutput = errors.New("backend output is truncated: <docs> is not closed")
)

var thinkingBlocks = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
}

const (
	docsOpen  = "<docs>"
	docsClose = "</docs>"
)

// PostProcess cleans a raw backend response: reasoning regions are removed,
// the <docs> payload (or a whole-response markdown fence) is unwrapped,
// whitespace is trimmed and mermaid labels are repaired.
func PostProcess(raw string) (string, error) {
	s := StripThinking(raw)
	s, err := Unwrap(s)
	if err != nil {
		return "", err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyOutput
	}
	return RepairMermaid(s), nil
}

// StripThinking removes <think>…</think> and <thinking>…</thinking> regions.
func StripThinking(s string) string {
	for _, re := range thinkingBlocks {
		s = re.ReplaceAllString(s, "")
	}
	return s
}

// Unwrap returns the content of the <docs> element when present, otherwise
// the body of a fence labelled markdown or md that is the whole response.
// Anything else is returned unchanged.
func Unwrap(s string) (string, error) {
	if start := strings.Index(s, docsOpen); start >= 0 {
		end := strings.LastIndex(s, docsClose)
		if end < start {
			return "", ErrTruncatedOutput
		}
		return s[start+len(docsOpen) : end], nil
	}

	if body, ok := wholeMarkdownFence([]byte(s)); ok {
		return body, nil
	}
	return s, nil
}

// wholeMarkdownFence reports the body of a fenced block labelled markdown or
// md when that block is the only top-level node of the document.
func wholeMarkdownFence(src []byte) (string, bool) {
	root := goldmark.New().Parser().Parse(text.NewReader(src))
	if root.ChildCount() != 1 {
		return "", false
	}
	fcb, ok := root.FirstChild().(*gmast.FencedCodeBlock)
	if !ok {
		return "", false
	}
	switch strings.ToLower(string(fcb.Language(src))) {
	case "markdown", "md":
	default:
		return "", false
	}

	var b strings.Builder
	lines := fcb.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String(), true
}
