package models

// KnowledgeGraphNode is one heading in a topic tree derived from generated documentation.
type KnowledgeGraphNode struct {
	Title     string                `json:"title"`
	Reference string                `json:"reference,omitempty"`
	Children  []*KnowledgeGraphNode `json:"children,omitempty"`
}

// Size returns the number of nodes in the subtree rooted at n.
func (n *KnowledgeGraphNode) Size() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += c.Size()
	}
	return total
}
