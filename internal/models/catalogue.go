package models

import (
	"fmt"
	"sort"
)

// CatalogueNode is one documentation topic planned for a job.
type CatalogueNode struct {
	ID             string   `json:"id"`
	JobID          string   `json:"job_id"`
	ParentID       string   `json:"parent_id,omitempty"` // empty for top-level topics
	Title          string   `json:"title"`
	Slug           string   `json:"slug"`
	Prompt         string   `json:"prompt"`
	Order          int      `json:"order"`
	Complete       bool     `json:"complete"`
	Content        string   `json:"content,omitempty"`
	References     []string `json:"references,omitempty"`
	DependentFiles []string `json:"dependent_files,omitempty"`
}

// Catalogue is an arena of catalogue nodes indexed by id with explicit child lists.
type Catalogue struct {
	nodes    map[string]*CatalogueNode
	children map[string][]string // parent id ("" for roots) -> child ids sorted by Order
}

// NewCatalogue validates nodes and builds the arena. Every ParentID must
// reference a node in the set, parents must have a lower Order than their
// children, and ids must be unique; together these rule out cycles.
func NewCatalogue(nodes []CatalogueNode) (*Catalogue, error) {
	c := &Catalogue{
		nodes:    make(map[string]*CatalogueNode, len(nodes)),
		children: make(map[string][]string),
	}
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, fmt.Errorf("catalogue node %q has empty id", n.Title)
		}
		if _, dup := c.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate catalogue node id %s", n.ID)
		}
		c.nodes[n.ID] = &n
	}
	for _, n := range c.nodes {
		if n.ParentID == "" {
			c.children[""] = append(c.children[""], n.ID)
			continue
		}
		if n.ParentID == n.ID {
			return nil, fmt.Errorf("catalogue node %s is its own parent", n.ID)
		}
		parent, ok := c.nodes[n.ParentID]
		if !ok {
			return nil, fmt.Errorf("catalogue node %s references unknown parent %s", n.ID, n.ParentID)
		}
		if parent.Order >= n.Order {
			return nil, fmt.Errorf("catalogue node %s (order %d) must come after parent %s (order %d)",
				n.ID, n.Order, parent.ID, parent.Order)
		}
		c.children[n.ParentID] = append(c.children[n.ParentID], n.ID)
	}
	for parent := range c.children {
		ids := c.children[parent]
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := c.nodes[ids[i]], c.nodes[ids[j]]
			if a.Order != b.Order {
				return a.Order < b.Order
			}
			return a.ID < b.ID
		})
	}
	return c, nil
}

// Len returns the number of nodes.
func (c *Catalogue) Len() int { return len(c.nodes) }

// Node returns the node with the given id.
func (c *Catalogue) Node(id string) (*CatalogueNode, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// Roots returns the top-level nodes in order.
func (c *Catalogue) Roots() []*CatalogueNode { return c.Children("") }

// Children returns the direct children of id in order.
func (c *Catalogue) Children(id string) []*CatalogueNode {
	ids := c.children[id]
	out := make([]*CatalogueNode, 0, len(ids))
	for _, cid := range ids {
		out = append(out, c.nodes[cid])
	}
	return out
}

// Path returns the ancestor chain from the root down to id, inclusive.
func (c *Catalogue) Path(id string) []*CatalogueNode {
	var chain []*CatalogueNode
	for n, ok := c.nodes[id]; ok; n, ok = c.nodes[n.ParentID] {
		chain = append([]*CatalogueNode{n}, chain...)
		if n.ParentID == "" {
			break
		}
	}
	return chain
}

// Walk visits nodes in pre-order. Returning false from fn stops the walk.
func (c *Catalogue) Walk(fn func(n *CatalogueNode, depth int) bool) {
	var visit func(id string, depth int) bool
	visit = func(id string, depth int) bool {
		for _, child := range c.Children(id) {
			if !fn(child, depth) {
				return false
			}
			if !visit(child.ID, depth+1) {
				return false
			}
		}
		return true
	}
	visit("", 0)
}

// Ordered returns all nodes sorted by Order.
func (c *Catalogue) Ordered() []*CatalogueNode {
	out := make([]*CatalogueNode, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Incomplete returns the nodes still lacking content, in Order.
func (c *Catalogue) Incomplete() []*CatalogueNode {
	var out []*CatalogueNode
	for _, n := range c.Ordered() {
		if !n.Complete {
			out = append(out, n)
		}
	}
	return out
}
