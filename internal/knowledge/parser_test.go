package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docwiki/internal/models"
)

// titles renders a tree as "A(B,C(D))" for compact assertions.
func titles(n *models.KnowledgeGraphNode) string {
	if n == nil {
		return ""
	}
	if len(n.Children) == 0 {
		return n.Title
	}
	parts := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		parts = append(parts, titles(c))
	}
	return n.Title + "(" + strings.Join(parts, ",") + ")"
}

func TestParse_NestedHeadings(t *testing.T) {
	root := Parse("# A\n## B\n## C\n### D")
	require.NotNil(t, root)
	assert.Equal(t, "A(B,C(D))", titles(root))
}

func TestParse_LevelJumpAttachesDirectly(t *testing.T) {
	root := Parse("# A\n#### B\n#### C\n## D")
	assert.Equal(t, "A(B,C,D)", titles(root))
}

func TestParse_LaterTopLevelHeadingsBecomeRootChildren(t *testing.T) {
	root := Parse("## A\n### B\n# C\n### F\n## D\n## E")
	assert.Equal(t, "A(B,C(F),D,E)", titles(root))
}

func TestParse_IgnoresNonHeadingsAndFences(t *testing.T) {
	text := strings.Join([]string{
		"intro text",
		"# Project",
		"Some paragraph with a # in it",
		"```bash",
		"# not a heading",
		"```",
		"## Setup",
		"#hashtag",
		"   ## Indented",
		"##",
	}, "\n")
	root := Parse(text)
	assert.Equal(t, "Project(Setup,Indented)", titles(root))
}

func TestParse_References(t *testing.T) {
	root := Parse("# Repo:README.md\n## Config: internal/config/config.go\n## Note: see below\n## :orphan\n## Url:https://example.com/x")
	require.NotNil(t, root)
	assert.Equal(t, "Repo", root.Title)
	assert.Equal(t, "README.md", root.Reference)

	require.Len(t, root.Children, 4)
	assert.Equal(t, "Config", root.Children[0].Title)
	assert.Equal(t, "internal/config/config.go", root.Children[0].Reference)

	assert.Equal(t, "Note: see below", root.Children[1].Title)
	assert.Empty(t, root.Children[1].Reference)

	assert.Equal(t, ":orphan", root.Children[2].Title)
	assert.Empty(t, root.Children[2].Reference)

	assert.Equal(t, "Url", root.Children[3].Title)
	assert.Equal(t, "https://example.com/x", root.Children[3].Reference)
}

func TestParse_NoHeadings(t *testing.T) {
	assert.Nil(t, Parse(""))
	assert.Nil(t, Parse("just text\nmore text"))
}

func TestParse_DepthBound(t *testing.T) {
	p := &Parser{Marker: '#', MaxDepth: 2}
	root := p.Parse("# A\n## B\n### C\n#### D\n##### E")
	assert.Equal(t, "A(B(C,D,E))", titles(root))

	var lines []string
	for i := 1; i <= 100; i++ {
		lines = append(lines, strings.Repeat("#", i)+" h")
	}
	deep := New().Parse(strings.Join(lines, "\n"))
	depth := 0
	for n := deep; len(n.Children) > 0; n = n.Children[0] {
		depth++
	}
	assert.Equal(t, DefaultMaxDepth, depth)
	assert.Equal(t, 100, deep.Size())
}

func TestParse_CustomMarker(t *testing.T) {
	p := &Parser{Marker: '*'}
	root := p.Parse("* A\n** B\n# ignored")
	assert.Equal(t, "A(B)", titles(root))
}

func TestParse_Deterministic(t *testing.T) {
	text := "# A\n## B:b.go\n### C\n## D"
	first, err := Marshal(Parse(text))
	require.NoError(t, err)
	second, err := Marshal(Parse(text))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	back, err := Unmarshal(first)
	require.NoError(t, err)
	assert.Equal(t, "# A\n## B:b.go\n### C\n## D\n", Render(back))
}
