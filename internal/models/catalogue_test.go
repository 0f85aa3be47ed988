package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNodes() []CatalogueNode {
	return []CatalogueNode{
		{ID: "c", ParentID: "a", Title: "Install", Order: 2, Complete: true, Content: "x"},
		{ID: "a", Title: "Getting Started", Order: 0},
		{ID: "b", ParentID: "a", Title: "Overview", Order: 1},
		{ID: "d", Title: "Architecture", Order: 3},
	}
}

func TestNewCatalogue_BuildsArena(t *testing.T) {
	cat, err := NewCatalogue(sampleNodes())
	require.NoError(t, err)
	require.Equal(t, 4, cat.Len())

	roots := cat.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "a", roots[0].ID)
	assert.Equal(t, "d", roots[1].ID)

	kids := cat.Children("a")
	require.Len(t, kids, 2)
	assert.Equal(t, "b", kids[0].ID)
	assert.Equal(t, "c", kids[1].ID)

	path := cat.Path("c")
	require.Len(t, path, 2)
	assert.Equal(t, "a", path[0].ID)
	assert.Equal(t, "c", path[1].ID)

	var visited []string
	cat.Walk(func(n *CatalogueNode, _ int) bool {
		visited = append(visited, n.ID)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c", "d"}, visited)

	var incomplete []string
	for _, n := range cat.Incomplete() {
		incomplete = append(incomplete, n.ID)
	}
	assert.Equal(t, []string{"a", "b", "d"}, incomplete)
}

func TestNewCatalogue_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		nodes []CatalogueNode
	}{
		{"self parent", []CatalogueNode{{ID: "a", ParentID: "a", Order: 0}}},
		{"cycle", []CatalogueNode{
			{ID: "a", ParentID: "b", Order: 0},
			{ID: "b", ParentID: "a", Order: 1},
		}},
		{"unknown parent", []CatalogueNode{{ID: "a", ParentID: "zz", Order: 1}}},
		{"parent after child", []CatalogueNode{
			{ID: "a", Order: 5},
			{ID: "b", ParentID: "a", Order: 2},
		}},
		{"duplicate id", []CatalogueNode{{ID: "a"}, {ID: "a", Order: 1}}},
		{"empty id", []CatalogueNode{{Title: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalogue(tt.nodes)
			require.Error(t, err)
		})
	}
}

func TestFileTreeNode_PathsSorted(t *testing.T) {
	root := NewDirectory("repo")
	src := NewDirectory("src")
	src.Add(NewFile("main.go"))
	src.Add(NewFile("a.go"))
	root.Add(src)
	root.Add(NewFile("README.md"))

	assert.Equal(t, []string{"README.md", "src/a.go", "src/main.go"}, root.Paths())
}
