// SPDX-License-Identifier: MPL-2.0

package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/scopehub/scopehub/internal/resource"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
)

const (
	// AgentsDirName holds agent definitions within a scope root.
	AgentsDirName = "agents"
	// CommandsDirName holds command definitions within a scope root.
	CommandsDirName = "commands"
	// HooksDirName holds standalone hook files within a scope root.
	HooksDirName = "hooks"
	// ProjectsFileName is the user-scope project registry file.
	ProjectsFileName = "projects.json"
)

type (
	// sink receives scanner output: well-formed items via emitItem and
	// everything non-fatal (warnings, partial records) via emitDiag.
	sink interface {
		emitItem(*resource.Item)
		emitDiag(Diagnostic)
	}

	// typeSet selects which resource types a scan pass covers.
	typeSet map[resource.Type]bool

	// scanner walks one scope root and parses its files into resource items.
	scanner struct {
		fs     afero.Fs
		walker *walker
	}

	// projectsFile is the shape of projects.json.
	projectsFile struct {
		Projects []struct {
			Name string `json:"name"`
			Path string `json:"path"`
		} `json:"projects"`
	}
)

// newTypeSet builds a selector; an empty type list selects every type.
func newTypeSet(types []resource.Type) typeSet {
	set := make(typeSet, len(types))
	for _, t := range types {
		set[t] = true
	}
	if len(set) == 0 {
		for _, t := range resource.AllTypes() {
			set[t] = true
		}
	}
	return set
}

func newScanner(afs afero.Fs, maxDepth int, ignores []string) *scanner {
	return &scanner{
		fs:     afs,
		walker: newWalker(afs, maxDepth, ignores),
	}
}

// scanScope catalogs every selected resource type under one scope root.
func (s *scanner) scanScope(ctx context.Context, scope resource.Scope, root string, types typeSet, snk sink) error {
	if types[resource.TypeAgent] {
		if err := s.scanMarkdown(ctx, scope, root, AgentsDirName, resource.TypeAgent, snk); err != nil {
			return err
		}
	}
	if types[resource.TypeCommand] {
		if err := s.scanMarkdown(ctx, scope, root, CommandsDirName, resource.TypeCommand, snk); err != nil {
			return err
		}
	}
	if types[resource.TypeHook] {
		if err := s.scanHookFiles(ctx, scope, root, snk); err != nil {
			return err
		}
	}
	if types[resource.TypeSettings] || types[resource.TypeHook] {
		s.scanSettingsDocs(scope, root, types, snk)
	}
	return nil
}

// scanMarkdown catalogs the markdown definitions under root/<dir>. Nested
// subdirectories qualify the item ("commands/git/sync.md"), bounded by the
// walker's depth guard.
func (s *scanner) scanMarkdown(ctx context.Context, scope resource.Scope, root, dir string, t resource.Type, snk sink) error {
	return s.walker.walk(ctx, filepath.Join(root, dir), func(path, rel string, info fs.FileInfo) {
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return
		}

		qualifier := dir + "/" + rel
		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			snk.emitDiag(Diagnostic{
				Severity: SeverityError,
				Code:     "file_unreadable",
				Message:  fmt.Sprintf("cannot read %s: %v", t, err),
				Path:     path,
				Cause:    err,
			})
			return
		}

		item := &resource.Item{
			Type:           t,
			Scope:          scope,
			Qualifier:      qualifier,
			SourcePath:     path,
			ProjectContext: scope.ProjectPath,
			LastModified:   info.ModTime(),
		}

		var parseErr error
		switch t {
		case resource.TypeAgent:
			var meta resource.AgentMeta
			meta, item.Content, parseErr = resource.ParseAgent(data)
			if parseErr == nil {
				item.Meta = meta
			}
		case resource.TypeCommand:
			var meta resource.CommandMeta
			meta, item.Content, parseErr = resource.ParseCommand(data)
			if parseErr == nil {
				item.Meta = meta
			}
		}

		if parseErr != nil {
			item.ParseError = parseErr.Error()
			snk.emitDiag(Diagnostic{
				Severity: SeverityError,
				Code:     string(t) + "_parse_error",
				Message:  fmt.Sprintf("malformed %s metadata: %v", t, parseErr),
				Path:     path,
				Cause:    parseErr,
				Item:     item,
			})
			return
		}

		item.Active = true
		snk.emitItem(item)
	}, snk.emitDiag)
}

// scanHookFiles catalogs the standalone hook files under root/hooks.
func (s *scanner) scanHookFiles(ctx context.Context, scope resource.Scope, root string, snk sink) error {
	return s.walker.walk(ctx, filepath.Join(root, HooksDirName), func(path, rel string, info fs.FileInfo) {
		if !strings.EqualFold(filepath.Ext(path), ".json") {
			return
		}

		qualifier := HooksDirName + "/" + rel
		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			snk.emitDiag(Diagnostic{
				Severity: SeverityError,
				Code:     "file_unreadable",
				Message:  fmt.Sprintf("cannot read hook: %v", err),
				Path:     path,
				Cause:    err,
			})
			return
		}

		item := &resource.Item{
			Type:           resource.TypeHook,
			Scope:          scope,
			Qualifier:      qualifier,
			SourcePath:     path,
			ProjectContext: scope.ProjectPath,
			Content:        string(data),
			LastModified:   info.ModTime(),
		}

		meta, err := resource.ParseHookFile(data)
		if err != nil {
			item.ParseError = err.Error()
			snk.emitDiag(Diagnostic{
				Severity: SeverityError,
				Code:     "hook_parse_error",
				Message:  fmt.Sprintf("malformed hook file: %v", err),
				Path:     path,
				Cause:    err,
				Item:     item,
			})
			return
		}

		item.Meta = meta
		item.Active = true
		snk.emitItem(item)
	}, snk.emitDiag)
}

// scanSettingsDocs catalogs the settings documents of a scope and, when hooks
// are selected, the hook entries embedded under their "hooks" key. A hook
// embedded in settings.json gets the qualifier "settings.json#<name>".
func (s *scanner) scanSettingsDocs(scope resource.Scope, root string, types typeSet, snk sink) {
	for _, name := range []string{resource.SettingsFileName, resource.SettingsLocalFileName} {
		path := filepath.Join(root, name)
		info, err := s.fs.Stat(path)
		if err != nil {
			continue // absent settings documents are the normal case
		}

		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			snk.emitDiag(Diagnostic{
				Severity: SeverityError,
				Code:     "file_unreadable",
				Message:  fmt.Sprintf("cannot read settings document: %v", err),
				Path:     path,
				Cause:    err,
			})
			continue
		}

		item := &resource.Item{
			Type:           resource.TypeSettings,
			Scope:          scope,
			Qualifier:      name,
			SourcePath:     path,
			ProjectContext: scope.ProjectPath,
			Content:        string(data),
			LastModified:   info.ModTime(),
		}

		doc, err := resource.ParseSettingsDoc(data)
		if err != nil {
			item.ParseError = err.Error()
			if types[resource.TypeSettings] {
				snk.emitDiag(Diagnostic{
					Severity: SeverityError,
					Code:     "settings_parse_error",
					Message:  fmt.Sprintf("malformed settings document: %v", err),
					Path:     path,
					Cause:    err,
					Item:     item,
				})
			}
			continue
		}

		if types[resource.TypeSettings] {
			item.Meta = resource.SettingsMeta{Keys: resource.TopLevelKeys(doc)}
			item.Active = true
			snk.emitItem(item)
		}

		if types[resource.TypeHook] {
			for _, hook := range resource.EmbeddedHooks(doc) {
				snk.emitItem(&resource.Item{
					Type:           resource.TypeHook,
					Scope:          scope,
					Qualifier:      name + "#" + hook.Name,
					SourcePath:     path,
					ProjectContext: scope.ProjectPath,
					Meta:           hook,
					LastModified:   info.ModTime(),
					Active:         true,
				})
			}
		}
	}
}

// scanProjects catalogs project descriptors: entries of the user-scope
// projects.json plus any workspace-root subdirectory holding a .scopehub
// root. Both sources feed the same registry, so a project listed in
// projects.json and found under a workspace root stays a single entry.
func (s *scanner) scanProjects(ctx context.Context, userRoot string, workspaceRoots []string, snk sink) error {
	registryPath := filepath.Join(userRoot, ProjectsFileName)
	if info, err := s.fs.Stat(registryPath); err == nil {
		data, err := afero.ReadFile(s.fs, registryPath)
		if err != nil {
			snk.emitDiag(Diagnostic{
				Severity: SeverityError,
				Code:     "file_unreadable",
				Message:  fmt.Sprintf("cannot read project registry: %v", err),
				Path:     registryPath,
				Cause:    err,
			})
		} else {
			var parsed projectsFile
			if err := json.Unmarshal(jsonc.ToJSON(data), &parsed); err != nil {
				snk.emitDiag(Diagnostic{
					Severity: SeverityError,
					Code:     "projects_parse_error",
					Message:  fmt.Sprintf("malformed project registry: %v", err),
					Path:     registryPath,
					Cause:    err,
				})
			} else {
				for _, p := range parsed.Projects {
					if p.Path == "" {
						continue
					}
					snk.emitItem(projectItem(p.Name, p.Path, registryPath, info))
				}
			}
		}
	}

	for _, root := range workspaceRoots {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan canceled: %w", err)
		}
		entries, err := afero.ReadDir(s.fs, root)
		if err != nil {
			snk.emitDiag(Diagnostic{
				Severity: SeverityWarning,
				Code:     "dir_unreadable",
				Message:  fmt.Sprintf("skipping unreadable workspace root: %v", err),
				Path:     root,
				Cause:    err,
			})
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			if ok, _ := afero.DirExists(s.fs, filepath.Join(dir, ScopeDirName)); !ok {
				continue
			}
			snk.emitItem(projectItem(entry.Name(), dir, dir, entry))
		}
	}

	return nil
}

func projectItem(name, path, sourcePath string, info fs.FileInfo) *resource.Item {
	clean := filepath.Clean(path)
	if name == "" {
		name = filepath.Base(clean)
	}
	return &resource.Item{
		Type:         resource.TypeProject,
		Scope:        resource.UserScope(),
		Qualifier:    filepath.ToSlash(clean),
		SourcePath:   sourcePath,
		Meta:         resource.ProjectMeta{Name: name, Path: clean},
		LastModified: info.ModTime(),
		Active:       true,
	}
}
