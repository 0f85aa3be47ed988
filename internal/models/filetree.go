package models

import "sort"

// FileKind distinguishes files from directories in a scanned tree.
type FileKind string

const (
	KindFile      FileKind = "file"
	KindDirectory FileKind = "directory"
)

// FileTreeNode is a transient in-memory view of a scanned directory.
type FileTreeNode struct {
	Name     string                   `json:"name"`
	Kind     FileKind                 `json:"kind"`
	Children map[string]*FileTreeNode `json:"children,omitempty"`
}

// NewDirectory returns an empty directory node.
func NewDirectory(name string) *FileTreeNode {
	return &FileTreeNode{Name: name, Kind: KindDirectory, Children: map[string]*FileTreeNode{}}
}

// NewFile returns a file node.
func NewFile(name string) *FileTreeNode {
	return &FileTreeNode{Name: name, Kind: KindFile}
}

// IsDir reports whether the node is a directory.
func (n *FileTreeNode) IsDir() bool { return n.Kind == KindDirectory }

// Add inserts child under n, replacing any existing entry with the same name.
func (n *FileTreeNode) Add(child *FileTreeNode) {
	if n.Children == nil {
		n.Children = map[string]*FileTreeNode{}
	}
	n.Children[child.Name] = child
}

// SortedChildren returns the children ordered by name.
func (n *FileTreeNode) SortedChildren() []*FileTreeNode {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*FileTreeNode, 0, len(names))
	for _, name := range names {
		out = append(out, n.Children[name])
	}
	return out
}

// Paths returns every file path below n (slash separated, relative to n), sorted.
func (n *FileTreeNode) Paths() []string {
	var out []string
	var walk func(node *FileTreeNode, prefix string)
	walk = func(node *FileTreeNode, prefix string) {
		for _, child := range node.SortedChildren() {
			p := child.Name
			if prefix != "" {
				p = prefix + "/" + child.Name
			}
			if child.IsDir() {
				walk(child, p)
				continue
			}
			out = append(out, p)
		}
	}
	walk(n, "")
	return out
}
