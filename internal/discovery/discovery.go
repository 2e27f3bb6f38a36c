// SPDX-License-Identifier: MPL-2.0

package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/scopehub/scopehub/internal/config"
	"github.com/scopehub/scopehub/internal/resource"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// ScopeDirName is the resource root inside a project directory; the user
// root carries the same name under the home directory.
const ScopeDirName = config.UserRootDirName

type (
	// Discovery drives scan passes over the user scope and every known
	// project scope. One instance is owned by the running service and passed
	// explicitly to consumers; there is no ambient global catalog.
	Discovery struct {
		fs       afero.Fs
		cfg      *config.Config
		userRoot string
		logger   *slog.Logger
	}

	// collector is a per-scope result accumulator. Scopes are scanned on
	// independent goroutines with independent collectors and merged into one
	// registry at the end, so no scan-time state is shared.
	collector struct {
		items []*resource.Item
		diags []Diagnostic
	}
)

func (c *collector) emitItem(item *resource.Item) {
	c.items = append(c.items, item)
}

func (c *collector) emitDiag(d Diagnostic) {
	c.diags = append(c.diags, d)
	if d.Item != nil {
		// Partial records stay visible in the catalog.
		c.items = append(c.items, d.Item)
	}
}

// New creates a Discovery over the real filesystem, with the user root
// resolved from configuration.
func New(cfg *config.Config) (*Discovery, error) {
	userRoot, err := cfg.ResolveUserRoot()
	if err != nil {
		return nil, fmt.Errorf("resolve user root: %w", err)
	}
	return NewWithFs(cfg, afero.NewOsFs(), userRoot), nil
}

// NewWithFs creates a Discovery over an injected filesystem. Tests use an
// in-memory afero filesystem.
func NewWithFs(cfg *config.Config, afs afero.Fs, userRoot string) *Discovery {
	return &Discovery{
		fs:       afs,
		cfg:      cfg,
		userRoot: filepath.Clean(userRoot),
		logger:   slog.Default().With("component", "discovery"),
	}
}

// UserRoot returns the user-scope resource root.
func (d *Discovery) UserRoot() string {
	return d.userRoot
}

// Snapshot runs one complete scan pass and returns the merged catalog. An
// empty type list selects all types. Independent scopes are scanned
// concurrently; when the configured scan timeout expires, the partial result
// is returned with Incomplete set rather than hanging.
func (d *Discovery) Snapshot(ctx context.Context, types []resource.Type) (*Result, error) {
	ctx, cancel := d.scanContext(ctx)
	defer cancel()

	selected := newTypeSet(types)

	// Project descriptors come first: they define which scopes the rest of
	// the pass covers.
	projects := &collector{}
	scanErr := d.newScanner().scanProjects(ctx, d.userRoot, d.cfg.WorkspaceRoots, projects)

	projectDirs := projectDirsOf(projects.items)
	scopes := make([]*collector, len(projectDirs)+1)

	if scanErr == nil {
		g, gctx := errgroup.WithContext(ctx)

		scopes[0] = &collector{}
		g.Go(func() error {
			return d.newScanner().scanScope(gctx, resource.UserScope(), d.userRoot, selected, scopes[0])
		})

		for i, dir := range projectDirs {
			c := &collector{}
			scopes[i+1] = c
			g.Go(func() error {
				return d.newScanner().scanScope(gctx, resource.ProjectScope(dir), filepath.Join(dir, ScopeDirName), selected, c)
			})
		}

		scanErr = g.Wait()
	}

	// Merge partial results in deterministic order: project descriptors,
	// user scope, then project scopes in discovery order. First-wins
	// deduplication happens here.
	reg := NewRegistry()
	mergeCollector(reg, projects, selected[resource.TypeProject])
	for _, c := range scopes {
		if c != nil {
			mergeCollector(reg, c, true)
		}
	}

	result := &Result{Items: reg.Items(), Diagnostics: reg.Diagnostics()}
	if scanErr != nil {
		result.Incomplete = true
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Severity: SeverityWarning,
			Code:     "scan_incomplete",
			Message:  fmt.Sprintf("scan stopped early, results are partial: %v", scanErr),
			Cause:    scanErr,
		})
	}

	d.logger.Debug("scan pass finished",
		"items", len(result.Items),
		"diagnostics", len(result.Diagnostics),
		"incomplete", result.Incomplete)
	return result, nil
}

// StreamScan runs one scan pass as a single producer, invoking onItem for
// each well-formed item and onDiag for warnings, parse errors, and dropped
// duplicates. Items already delivered remain valid when the context is
// canceled; the error reports why the pass stopped early.
func (d *Discovery) StreamScan(ctx context.Context, types []resource.Type, onItem func(*resource.Item), onDiag func(Diagnostic)) error {
	ctx, cancel := d.scanContext(ctx)
	defer cancel()

	selected := newTypeSet(types)
	seen := make(map[resource.ID]*resource.Item)
	snk := &streamSink{seen: seen, onItem: onItem, onDiag: onDiag}

	projects := &collector{}
	if err := d.newScanner().scanProjects(ctx, d.userRoot, d.cfg.WorkspaceRoots, projects); err != nil {
		flushCollector(snk, projects, selected[resource.TypeProject])
		return err
	}
	flushCollector(snk, projects, selected[resource.TypeProject])

	if err := d.newScanner().scanScope(ctx, resource.UserScope(), d.userRoot, selected, snk); err != nil {
		return err
	}
	for _, dir := range projectDirsOf(projects.items) {
		if err := d.newScanner().scanScope(ctx, resource.ProjectScope(dir), filepath.Join(dir, ScopeDirName), selected, snk); err != nil {
			return err
		}
	}
	return nil
}

func (d *Discovery) newScanner() *scanner {
	return newScanner(d.fs, d.cfg.MaxDepth, d.cfg.IgnorePatterns)
}

// scanContext applies the configured overall scan timeout.
func (d *Discovery) scanContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.ScanTimeout > 0 {
		return context.WithTimeout(ctx, d.cfg.ScanTimeout)
	}
	return context.WithCancel(ctx)
}

// mergeCollector folds one scope's partial results into the registry.
// includeItems is false when the scope's items were scanned only for their
// side effects (project discovery with the project type deselected).
func mergeCollector(reg *Registry, c *collector, includeItems bool) {
	if includeItems {
		for _, item := range c.items {
			reg.Add(item)
		}
	}
	for _, diag := range c.diags {
		reg.AddDiagnostic(diag)
	}
}

// flushCollector forwards buffered project-phase output to a stream sink.
func flushCollector(snk sink, c *collector, includeItems bool) {
	if includeItems {
		for _, item := range c.items {
			snk.emitItem(item)
		}
	}
	for _, diag := range c.diags {
		if diag.Item != nil && !includeItems {
			continue
		}
		snk.emitDiag(diag)
	}
}

func projectDirsOf(items []*resource.Item) []string {
	var dirs []string
	seen := make(map[string]bool)
	for _, item := range items {
		meta, ok := item.Meta.(resource.ProjectMeta)
		if !ok {
			continue
		}
		if seen[meta.Path] {
			continue
		}
		seen[meta.Path] = true
		dirs = append(dirs, meta.Path)
	}
	return dirs
}

// streamSink deduplicates inline for the streaming path; the registry does
// the same first-wins job for batch snapshots.
type streamSink struct {
	seen   map[resource.ID]*resource.Item
	onItem func(*resource.Item)
	onDiag func(Diagnostic)
}

func (s *streamSink) emitItem(item *resource.Item) {
	id := item.ID()
	if existing, ok := s.seen[id]; ok {
		s.onDiag(duplicateDiagnostic(item, existing.SourcePath))
		return
	}
	s.seen[id] = item
	s.onItem(item)
}

func (s *streamSink) emitDiag(d Diagnostic) {
	if d.Item != nil {
		id := d.Item.ID()
		if existing, ok := s.seen[id]; ok {
			s.onDiag(duplicateDiagnostic(d.Item, existing.SourcePath))
			return
		}
		s.seen[id] = d.Item
	}
	s.onDiag(d)
}
