package catalogue

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFileName is the repository-local ignore file read in addition to .gitignore.
const IgnoreFileName = ".docwikiignore"

// Pattern represents a single ignore pattern with its properties.
type Pattern struct {
	pattern  string
	negated  bool
	dirOnly  bool
	anchored bool // leading "/" matches from the scan root only
}

// Matcher holds compiled gitignore-style patterns. Later patterns win, so a
// negation in .docwikiignore can re-include something the defaults exclude.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher creates an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// AddPattern adds a single gitignore-style line.
func (m *Matcher) AddPattern(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	p := Pattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	if line == "" {
		return
	}
	// Unanchored patterns without a slash match the basename at any level.
	if !p.anchored && !strings.Contains(line, "/") {
		line = "**/" + line
	}

	p.pattern = line
	m.patterns = append(m.patterns, p)
}

// AddPatterns adds multiple lines.
func (m *Matcher) AddPatterns(lines []string) {
	for _, line := range lines {
		m.AddPattern(line)
	}
}

// LoadFile loads patterns from a gitignore-style file. A missing file is not an error.
func (m *Matcher) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int { return len(m.patterns) }

// Match reports whether the slash-separated path (relative to the scan root) is ignored.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")

	ignored := false
	for _, p := range m.patterns {
		var matched bool
		if p.dirOnly && !isDir {
			matched = matchParentDir(p.pattern, path)
		} else {
			matched = matchPattern(p.pattern, path)
		}
		if matched {
			ignored = !p.negated
		}
	}
	return ignored
}

// matchParentDir reports whether any proper parent directory of path matches pattern.
func matchParentDir(pattern, path string) bool {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if matchPattern(pattern, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, path string) bool {
	if ok, _ := doublestar.Match(pattern, path); ok {
		return true
	}
	if !strings.HasSuffix(pattern, "/**") {
		if ok, _ := doublestar.Match(pattern+"/**", path); ok {
			return true
		}
	}
	return false
}

// DefaultIgnorePatterns are always applied before repository and config patterns.
var DefaultIgnorePatterns = []string{
	// version control
	".git/", ".svn/", ".hg/",
	// editors and OS files
	".idea/", ".vscode/", ".DS_Store", "Thumbs.db", "*.swp", "*.swo",
	// dependency and build output
	"node_modules/", "vendor/", "bower_components/", "dist/", "build/", "out/",
	"target/", "bin/", "obj/", ".next/", ".nuxt/", ".gradle/", ".terraform/",
	"coverage/", ".cache/",
	// python
	"__pycache__/", ".venv/", "venv/", ".tox/", ".mypy_cache/", ".pytest_cache/", "*.py[cod]",
	// binaries and archives
	"*.exe", "*.dll", "*.so", "*.dylib", "*.o", "*.a", "*.class", "*.jar",
	"*.zip", "*.tar", "*.gz", "*.7z",
	// media
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.ico", "*.svg", "*.webp", "*.mp4", "*.mp3",
	"*.woff", "*.woff2", "*.ttf", "*.eot", "*.pdf",
	// lock files and logs
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "go.sum", "Cargo.lock",
	"poetry.lock", "composer.lock", "*.log", "*.min.js", "*.min.css", "*.map",
}

// LoadIgnoreSet builds the ignore set for a repository root: built-in defaults,
// then .gitignore, then .docwikiignore, then the configured extra patterns.
func LoadIgnoreSet(root string, extra []string) (*Matcher, error) {
	m := NewMatcher()
	m.AddPatterns(DefaultIgnorePatterns)
	if err := m.LoadFile(filepath.Join(root, ".gitignore")); err != nil {
		return nil, err
	}
	if err := m.LoadFile(filepath.Join(root, IgnoreFileName)); err != nil {
		return nil, err
	}
	m.AddPatterns(extra)
	return m, nil
}
