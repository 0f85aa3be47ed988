// Package catalogue scans a repository into a file tree and renders it as
// compact text suitable as shared context for documentation generation.
package catalogue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
	"git.home.luguber.info/inful/docwiki/internal/models"
)

// Options bound the cost of a scan. Zero values mean unbounded.
type Options struct {
	MaxDepth   int
	MaxEntries int
}

// Result is the outcome of a scan.
type Result struct {
	Root      *models.FileTreeNode
	Entries   int
	Warnings  []string
	Truncated bool
}

// Builder walks a directory tree applying an ignore set.
type Builder struct {
	ignore *Matcher
	opts   Options
}

// NewBuilder returns a builder. A nil matcher ignores nothing.
func NewBuilder(ignore *Matcher, opts Options) *Builder {
	if ignore == nil {
		ignore = NewMatcher()
	}
	return &Builder{ignore: ignore, opts: opts}
}

type walkState struct {
	result  *Result
	visited map[string]struct{} // resolved real paths of directories already entered
}

// Build scans root. Ignored entries are pruned before recursing into them,
// unreadable directories and symlink cycles are skipped with a warning.
func (b *Builder) Build(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, derrors.WorkspaceError("stat catalogue root", err).WithContext("path", root)
	}
	if !info.IsDir() {
		return nil, derrors.WorkspaceError("catalogue root", fmt.Errorf("%s is not a directory", root))
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, derrors.WorkspaceError("resolve catalogue root", err).WithContext("path", root)
	}

	st := &walkState{
		result:  &Result{Root: models.NewDirectory(filepath.Base(root))},
		visited: map[string]struct{}{resolved: {}},
	}
	if err := b.walk(ctx, st, root, "", st.result.Root, 1); err != nil {
		return nil, err
	}
	return st.result, nil
}

func (b *Builder) warn(st *walkState, msg, path string, err error) {
	w := msg + ": " + path
	if err != nil {
		w += ": " + err.Error()
	}
	st.result.Warnings = append(st.result.Warnings, w)
	slog.Warn("Catalogue scan: "+msg, logfields.Path(path), logfields.Error(err))
}

func (b *Builder) full(st *walkState) bool {
	if b.opts.MaxEntries > 0 && st.result.Entries >= b.opts.MaxEntries {
		st.result.Truncated = true
		return true
	}
	return false
}

func (b *Builder) walk(ctx context.Context, st *walkState, abs, rel string, node *models.FileTreeNode, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		b.warn(st, "unreadable directory", rel, err)
		return nil
	}

	// os.ReadDir returns entries sorted by filename.
	for _, entry := range entries {
		if b.full(st) {
			return nil
		}
		name := entry.Name()
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		childAbs := filepath.Join(abs, name)

		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			target, statErr := os.Stat(childAbs)
			if statErr != nil {
				b.warn(st, "broken symlink", childRel, statErr)
				continue
			}
			isDir = target.IsDir()
		}

		if b.ignore.Match(childRel, isDir) {
			continue
		}

		if !isDir {
			node.Add(models.NewFile(name))
			st.result.Entries++
			continue
		}

		resolved, evalErr := filepath.EvalSymlinks(childAbs)
		if evalErr != nil {
			b.warn(st, "unresolvable directory", childRel, evalErr)
			continue
		}
		if _, seen := st.visited[resolved]; seen {
			b.warn(st, "symlink cycle", childRel, nil)
			continue
		}
		st.visited[resolved] = struct{}{}

		dir := models.NewDirectory(name)
		node.Add(dir)
		st.result.Entries++

		if b.opts.MaxDepth > 0 && depth >= b.opts.MaxDepth {
			st.result.Truncated = true
			continue
		}
		if err := b.walk(ctx, st, childAbs, childRel, dir, depth+1); err != nil {
			return err
		}
	}
	return nil
}
