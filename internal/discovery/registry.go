// SPDX-License-Identifier: MPL-2.0

package discovery

import (
	"fmt"
	"sync"

	"github.com/scopehub/scopehub/internal/resource"
)

// Registry is the aggregated, deduplicated catalog of one scan pass, keyed
// by (type, scope, qualifier). On a key collision the first-discovered record
// wins and the duplicate is dropped with a warning; duplicates are a
// scan-hygiene signal (symlink loops, overlapping roots), never resolved by
// last write wins.
type Registry struct {
	mu    sync.Mutex
	items map[resource.ID]*resource.Item
	order []resource.ID
	diags []Diagnostic
}

// NewRegistry creates an empty catalog.
func NewRegistry() *Registry {
	return &Registry{items: make(map[resource.ID]*resource.Item)}
}

// Add records an item. It returns false when the identity was already
// present; the incumbent stays and a duplicate warning is accumulated.
func (r *Registry) Add(item *resource.Item) bool {
	id := item.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[id]; ok {
		r.diags = append(r.diags, duplicateDiagnostic(item, existing.SourcePath))
		return false
	}

	r.items[id] = item
	r.order = append(r.order, id)
	return true
}

// duplicateDiagnostic describes a dropped later copy of an already cataloged
// identity.
func duplicateDiagnostic(item *resource.Item, existingSource string) Diagnostic {
	return Diagnostic{
		Severity: SeverityWarning,
		Code:     "duplicate_resource",
		Message: fmt.Sprintf("duplicate %s %q already cataloged from %s; dropping later copy",
			item.Type, item.Qualifier, existingSource),
		Path: item.SourcePath,
	}
}

// AddDiagnostic accumulates a scan diagnostic alongside the catalog.
func (r *Registry) AddDiagnostic(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags = append(r.diags, d)
}

// Get looks up an item by identity.
func (r *Registry) Get(id resource.ID) (*resource.Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	return item, ok
}

// Items returns the cataloged items in discovery order.
func (r *Registry) Items() []*resource.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*resource.Item, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out
}

// Diagnostics returns the accumulated scan diagnostics.
func (r *Registry) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// ProjectDirs returns the directories of every cataloged project descriptor,
// in discovery order. Consumers use this to widen the path allow-list as new
// projects appear.
func (r *Registry) ProjectDirs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dirs []string
	for _, id := range r.order {
		item := r.items[id]
		if item.Type != resource.TypeProject {
			continue
		}
		if meta, ok := item.Meta.(resource.ProjectMeta); ok {
			dirs = append(dirs, meta.Path)
		}
	}
	return dirs
}
