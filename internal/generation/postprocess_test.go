package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostProcess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  error
	}{
		{name: "plain", in: "  # Title\n\nBody\n", want: "# Title\n\nBody"},
		{name: "docs tags", in: "preamble\n<docs>\n# A\n</docs>\ntrailer", want: "# A"},
		{name: "thinking stripped", in: "<think>plan</think><docs>ok</docs>", want: "ok"},
		{name: "markdown fence", in: "```markdown\n# A\n```", want: "# A"},
		{name: "md fence with nested code", in: "````md\n# A\n\n```go\nx := 1\n```\n````\n", want: "# A\n\n```go\nx := 1\n```"},
		{
			name: "leading markdown fence followed by more content",
			in:   "```markdown\n# Title\nIntro\n```\n\nExample:\n\n```go\nx := 1\n```",
			want: "```markdown\n# Title\nIntro\n```\n\nExample:\n\n```go\nx := 1\n```",
		},
		{name: "go fence kept", in: "```go\nx := 1\n```", want: "```go\nx := 1\n```"},
		{name: "truncated docs", in: "<docs>\n# A partial", err: ErrTruncatedOutput},
		{name: "empty", in: "  \n", err: ErrEmptyOutput},
		{name: "only thinking", in: "<thinking>x</thinking>", err: ErrEmptyOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PostProcess(tt.in)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepairMermaid(t *testing.T) {
	in := "Text (kept)\n\n```mermaid\ngraph TD\n  A[Foo (bar)] --> B[Plain]\n  C{Is (it)?}\n```\n\n```go\nx := f(a)[0]\n```\n"
	got := RepairMermaid(in)

	assert.Contains(t, got, "A[Foo bar]")
	assert.Contains(t, got, "B[Plain]")
	assert.Contains(t, got, "Text (kept)")
	assert.Contains(t, got, "x := f(a)[0]")
}

func TestRepairMermaid_NoDiagram(t *testing.T) {
	in := "# Title\n\nA [link](x.md) (note)."
	assert.Equal(t, in, RepairMermaid(in))
}

func TestCitedPaths(t *testing.T) {
	known := map[string]bool{"cmd/main.go": true, "README.md": true}
	content := "See [main](cmd/main.go:12), [web](https://example.com/cmd/main.go), `README.md` and `fmt.Println`."
	assert.Equal(t, []string{"README.md", "cmd/main.go"}, CitedPaths(content, known))
}

func TestReferences_DedupesDependentFirst(t *testing.T) {
	known := map[string]bool{"a.go": true, "b.go": true}
	got := References([]string{"b.go"}, "uses `a.go` and `b.go`", known)
	assert.Equal(t, []string{"b.go", "a.go"}, got)
}
