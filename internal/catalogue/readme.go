package catalogue

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var readmeCandidates = []string{"README.md", "README.markdown", "README.rst", "README.txt", "README"}

// ReadSummary returns up to limit bytes of the repository README, cut at a
// rune boundary. It returns "" when no README exists.
func ReadSummary(root string, limit int) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names[strings.ToLower(e.Name())] = e.Name()
		}
	}
	for _, candidate := range readmeCandidates {
		actual, ok := names[strings.ToLower(candidate)]
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, actual))
		if err != nil {
			return "", err
		}
		return truncateRunes(strings.TrimSpace(string(data)), limit), nil
	}
	return "", nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
