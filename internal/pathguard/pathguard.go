// SPDX-License-Identifier: MPL-2.0

// Package pathguard enforces the allow-list consulted by every internal file
// read and write: a path is permitted only under the home configuration
// root, the current working root, or the directory of a discovered project.
package pathguard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// ErrDenied is wrapped by every rejection so callers can classify it as a
// permission failure.
var ErrDenied = errors.New("path outside allowed roots")

// Guard holds the allow-list. The project list is recomputed as discovery
// finds new projects, never fixed at startup.
type Guard struct {
	mu          sync.RWMutex
	homeRoot    string
	workingRoot string
	projectDirs []string
}

// New creates a Guard allowing the home configuration root and the current
// working root.
func New(homeRoot, workingRoot string) *Guard {
	return &Guard{
		homeRoot:    filepath.Clean(homeRoot),
		workingRoot: filepath.Clean(workingRoot),
	}
}

// SetProjectDirs replaces the project directories of the allow-list with the
// latest discovery output.
func (g *Guard) SetProjectDirs(dirs []string) {
	cleaned := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		cleaned = append(cleaned, filepath.Clean(dir))
	}
	g.mu.Lock()
	g.projectDirs = cleaned
	g.mu.Unlock()
}

// Check returns nil when path falls under an allowed root, or an error
// wrapping ErrDenied otherwise.
func (g *Guard) Check(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDenied, path)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if under(g.homeRoot, abs) || under(g.workingRoot, abs) {
		return nil
	}
	for _, dir := range g.projectDirs {
		if under(dir, abs) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDenied, path)
}

// Allowed reports whether path passes Check.
func (g *Guard) Allowed(path string) bool {
	return g.Check(path) == nil
}

// under reports whether path equals root or lives beneath it.
func under(root, path string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
