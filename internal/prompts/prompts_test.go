package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_IncludesTopicAndContext(t *testing.T) {
	s := Shared{Repository: "acme/widgets", Catalogue: "cmd/\n  main.go\n", Language: "en"}
	out, err := Content(s, Topic{
		Title:          "Install",
		Breadcrumb:     []string{"Getting Started", "Install"},
		Prompt:         "Explain installation.",
		DependentFiles: []string{"go.mod", "Makefile"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "acme/widgets")
	assert.Contains(t, out, "Getting Started > Install")
	assert.Contains(t, out, "go.mod, Makefile")
	assert.Contains(t, out, "cmd/\n  main.go")
	assert.Contains(t, out, "<docs></docs>")
}

func TestOtherPrompts(t *testing.T) {
	s := Shared{Repository: "r", Branch: "dev", Summary: "sum", Catalogue: "cat", Language: "de"}
	for name, fn := range map[string]func(Shared) (string, error){
		"outline":  Outline,
		"overview": Overview,
		"graph":    KnowledgeGraph,
	} {
		out, err := fn(s)
		require.NoError(t, err, name)
		assert.Contains(t, out, "cat", name)
	}

	out, err := Refine(s, "draft text")
	require.NoError(t, err)
	assert.Contains(t, out, "draft text")
	assert.Contains(t, out, "de")
}
