// SPDX-License-Identifier: MPL-2.0

// Package settings layers settings documents into one effective
// configuration with per-key provenance.
package settings

import (
	"fmt"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/spf13/afero"

	"github.com/scopehub/scopehub/internal/config"
	"github.com/scopehub/scopehub/internal/pathguard"
	"github.com/scopehub/scopehub/internal/resource"
)

const (
	// LayerUser is the user-global settings document.
	LayerUser = "user"
	// LayerProject is the project-shared settings document.
	LayerProject = "project"
	// LayerLocal is the per-project local override document.
	LayerLocal = "local"
)

type (
	// Layer is one settings document in the precedence chain.
	Layer struct {
		// Name identifies the tier ("user", "project", "local").
		Name string
		// Path is the backing document, for diagnostics.
		Path string
		// Doc is the parsed document tree.
		Doc map[string]any
	}

	// Effective is the merge output. Sources records, per top-level key,
	// which layer contributed the final value.
	Effective struct {
		Merged  map[string]any    `json:"merged"`
		Sources map[string]string `json:"sources"`
	}

	// Resolver reads the precedence chain off the filesystem. Project paths
	// are checked against the allow-list before any document is read.
	Resolver struct {
		fs       afero.Fs
		userRoot string
		guard    *pathguard.Guard
	}
)

// NewResolver creates a Resolver over an injected filesystem.
func NewResolver(afs afero.Fs, userRoot string, guard *pathguard.Guard) *Resolver {
	return &Resolver{fs: afs, userRoot: filepath.Clean(userRoot), guard: guard}
}

// Effective resolves and merges the settings chain for a target context:
// always the user-global document, plus the project-shared and local
// override documents when projectPath is given. Precedence is
// local > project > user. Missing documents are skipped; malformed ones are
// an error, not silently dropped. A project path outside the allow-list is
// rejected before anything is read.
func (r *Resolver) Effective(projectPath string) (*Effective, error) {
	chain := []struct {
		name string
		path string
	}{
		{LayerUser, filepath.Join(r.userRoot, resource.SettingsFileName)},
	}
	if projectPath != "" {
		if err := r.guard.Check(projectPath); err != nil {
			return nil, err
		}
		scopeRoot := filepath.Join(projectPath, config.UserRootDirName)
		chain = append(chain,
			struct{ name, path string }{LayerProject, filepath.Join(scopeRoot, resource.SettingsFileName)},
			struct{ name, path string }{LayerLocal, filepath.Join(scopeRoot, resource.SettingsLocalFileName)},
		)
	}

	var layers []Layer
	for _, link := range chain {
		data, err := afero.ReadFile(r.fs, link.path)
		if err != nil {
			continue // absent layers are the normal case
		}
		doc, err := resource.ParseSettingsDoc(data)
		if err != nil {
			return nil, fmt.Errorf("settings layer %s (%s): %w", link.name, link.path, err)
		}
		layers = append(layers, Layer{Name: link.name, Path: link.path, Doc: doc})
	}

	return Merge(layers)
}

// Merge deep-merges layers from lowest to highest precedence: scalars are
// overridden by higher layers, object subtrees merge recursively. The layers
// slice must already be ordered low to high.
func Merge(layers []Layer) (*Effective, error) {
	merged := map[string]any{}
	sources := map[string]string{}

	for _, layer := range layers {
		if err := mergo.Merge(&merged, layer.Doc, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge settings layer %s: %w", layer.Name, err)
		}
		// Provenance: the highest layer defining a top-level key owns its
		// final value.
		for key := range layer.Doc {
			sources[key] = layer.Name
		}
	}

	return &Effective{Merged: merged, Sources: sources}, nil
}
