// SPDX-License-Identifier: MPL-2.0

package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// defaultIgnorePatterns are always excluded from traversal, on top of any
// configured patterns. Matched against the slash-form path relative to the
// scan root.
var defaultIgnorePatterns = []string{
	"**/.git",
	"**/node_modules",
	"**/.DS_Store",
}

type (
	// walker traverses a directory tree with an explicit worklist and a
	// depth guard, over an injected filesystem so traversal is testable
	// against virtual trees.
	walker struct {
		fs       afero.Fs
		maxDepth int
		ignores  []string
	}

	// workItem is one pending directory visit.
	workItem struct {
		dir   string
		depth int
	}
)

func newWalker(afs afero.Fs, maxDepth int, extraIgnores []string) *walker {
	return &walker{
		fs:       afs,
		maxDepth: maxDepth,
		ignores:  append(append([]string{}, defaultIgnorePatterns...), extraIgnores...),
	}
}

// walk visits every regular file under root, calling visit with the path and
// the root-relative slash-form path. Cancellation is cooperative: the context
// is checked between directory visits, never mid read. Unreadable directories
// are skipped with a warning so one bad subtree never aborts the traversal.
// A missing root is not an error; there is simply nothing to visit.
func (w *walker) walk(ctx context.Context, root string, visit func(path, rel string, info fs.FileInfo), warn func(Diagnostic)) error {
	if ok, err := afero.DirExists(w.fs, root); err != nil || !ok {
		return nil
	}

	stack := []workItem{{dir: root, depth: 0}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan canceled: %w", err)
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := afero.ReadDir(w.fs, item.dir)
		if err != nil {
			warn(Diagnostic{
				Severity: SeverityWarning,
				Code:     "dir_unreadable",
				Message:  fmt.Sprintf("skipping unreadable directory: %v", err),
				Path:     item.dir,
				Cause:    err,
			})
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(item.dir, entry.Name())
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if w.ignored(rel) {
				continue
			}

			if entry.IsDir() {
				if item.depth+1 > w.maxDepth {
					warn(Diagnostic{
						Severity: SeverityWarning,
						Code:     "max_depth_exceeded",
						Message:  fmt.Sprintf("skipping directory beyond depth %d", w.maxDepth),
						Path:     path,
					})
					continue
				}
				stack = append(stack, workItem{dir: path, depth: item.depth + 1})
				continue
			}

			if entry.Mode().IsRegular() {
				visit(path, rel, entry)
			}
		}
	}

	return nil
}

// ignored reports whether a root-relative slash path matches an ignore glob.
// An ignored directory prunes its whole subtree.
func (w *walker) ignored(rel string) bool {
	for _, pattern := range w.ignores {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
