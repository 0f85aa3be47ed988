package catalogue

import (
	"encoding/json"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/docwiki/internal/config"
	"git.home.luguber.info/inful/docwiki/internal/models"
)

// Render produces the textual form of a scanned tree. The output for a given
// tree and format is byte-identical across calls.
func Render(root *models.FileTreeNode, format config.CatalogueFormat) (string, error) {
	switch format {
	case config.CatalogueFormatCompact, "":
		return renderCompact(root), nil
	case config.CatalogueFormatJSON:
		return renderJSON(root)
	case config.CatalogueFormatPaths:
		return renderPaths(root), nil
	case config.CatalogueFormatTree:
		return renderTree(root), nil
	default:
		return "", fmt.Errorf("unsupported catalogue format: %s", format)
	}
}

func renderCompact(root *models.FileTreeNode) string {
	var sb strings.Builder
	var walk func(n *models.FileTreeNode, depth int)
	walk = func(n *models.FileTreeNode, depth int) {
		for _, child := range n.SortedChildren() {
			sb.WriteString(strings.Repeat("  ", depth))
			sb.WriteString(child.Name)
			if child.IsDir() {
				sb.WriteString("/\n")
				walk(child, depth+1)
				continue
			}
			sb.WriteByte('\n')
		}
	}
	walk(root, 0)
	return sb.String()
}

func renderPaths(root *models.FileTreeNode) string {
	paths := root.Paths()
	if len(paths) == 0 {
		return ""
	}
	return strings.Join(paths, "\n") + "\n"
}

func renderTree(root *models.FileTreeNode) string {
	var sb strings.Builder
	sb.WriteString(".\n")
	var walk func(n *models.FileTreeNode, prefix string)
	walk = func(n *models.FileTreeNode, prefix string) {
		children := n.SortedChildren()
		for i, child := range children {
			last := i == len(children)-1
			branch, next := "├── ", "│   "
			if last {
				branch, next = "└── ", "    "
			}
			sb.WriteString(prefix + branch + child.Name)
			if child.IsDir() {
				sb.WriteString("/\n")
				walk(child, prefix+next)
				continue
			}
			sb.WriteByte('\n')
		}
	}
	walk(root, "")
	return sb.String()
}

// jsonTree maps directories to nested objects and files to the string "file".
func jsonTree(n *models.FileTreeNode) map[string]any {
	out := make(map[string]any, len(n.Children))
	for name, child := range n.Children {
		if child.IsDir() {
			out[name] = jsonTree(child)
			continue
		}
		out[name] = string(models.KindFile)
	}
	return out
}

func renderJSON(root *models.FileTreeNode) (string, error) {
	// encoding/json sorts map keys, which keeps the output stable.
	data, err := json.MarshalIndent(jsonTree(root), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal catalogue: %w", err)
	}
	return string(data) + "\n", nil
}
