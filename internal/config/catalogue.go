package config

import "strings"

// CatalogueFormat selects how the scanned file tree is rendered for the backend.
type CatalogueFormat string

const (
	CatalogueFormatCompact CatalogueFormat = "compact"
	CatalogueFormatJSON    CatalogueFormat = "json"
	CatalogueFormatPaths   CatalogueFormat = "paths"
	CatalogueFormatTree    CatalogueFormat = "tree"
)

// NormalizeCatalogueFormat converts user input into a typed format, returning empty string for unknown.
func NormalizeCatalogueFormat(raw string) CatalogueFormat {
	switch CatalogueFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case CatalogueFormatCompact:
		return CatalogueFormatCompact
	case CatalogueFormatJSON:
		return CatalogueFormatJSON
	case CatalogueFormatPaths, "path", "flat":
		return CatalogueFormatPaths
	case CatalogueFormatTree, "unix":
		return CatalogueFormatTree
	default:
		return ""
	}
}
