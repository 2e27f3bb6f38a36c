// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"
)

const (
	// TypeAgent is an agent definition: a markdown file with YAML frontmatter.
	TypeAgent Type = "agent"
	// TypeCommand is a command definition: a markdown file with YAML frontmatter.
	TypeCommand Type = "command"
	// TypeHook is a hook configuration: a standalone JSON file under hooks/
	// or a named entry under the "hooks" key of a settings document.
	TypeHook Type = "hook"
	// TypeSettings is a settings document (JSONC).
	TypeSettings Type = "settings"
	// TypeProject is a project descriptor.
	TypeProject Type = "project"
)

const (
	// ScopeUser is the global/user tier.
	ScopeUser ScopeKind = "user"
	// ScopeProject is a per-project tier.
	ScopeProject ScopeKind = "project"
)

// ErrInvalidScope is returned when a Scope violates its kind/path invariant.
var ErrInvalidScope = errors.New("invalid scope")

type (
	// Type identifies a resource category.
	Type string

	// ScopeKind distinguishes the user tier from project tiers.
	ScopeKind string

	// Scope is the deployment tier of a resource. ProjectPath is required
	// if and only if Kind is ScopeProject.
	Scope struct {
		Kind        ScopeKind `json:"kind"`
		ProjectPath string    `json:"projectPath,omitempty"`
	}

	// ID is the catalog identity of an item: (type, scope, qualifier).
	// Items at different scopes with the same logical name are distinct
	// entities and are never merged.
	ID string

	// Item is one cataloged resource. Scanners produce Items; nothing
	// mutates them afterwards.
	Item struct {
		Type  Type  `json:"type"`
		Scope Scope `json:"scope"`

		// Qualifier is the scope-relative identity path, e.g.
		// "agents/reviewer.md" or "settings.json#fmt-on-save" for a hook
		// embedded in a settings document.
		Qualifier string `json:"qualifier"`

		// SourcePath is the absolute path of the backing file.
		SourcePath string `json:"sourcePath"`

		// ProjectContext is the project directory for project-scoped items.
		ProjectContext string `json:"projectContext,omitempty"`

		// Content is the raw file content (the markdown body for
		// frontmatter-backed types).
		Content string `json:"content,omitempty"`

		// Meta is the type-specific parsed metadata. Nil when parsing
		// failed entirely; see ParseError.
		Meta Metadata `json:"meta,omitempty"`

		// ParseError is set when the metadata header was malformed. The
		// item is still cataloged as a partial record — visibility over
		// silent loss.
		ParseError string `json:"parseError,omitempty"`

		LastModified time.Time `json:"lastModified"`
		Active       bool      `json:"active"`
	}

	// Metadata is the tagged union of per-type parsed payloads. All
	// implementations are value structs produced at parse time.
	Metadata interface {
		ResourceType() Type
	}

	// AgentMeta is the frontmatter of an agent definition.
	AgentMeta struct {
		Name        string   `json:"name" yaml:"name"`
		Description string   `json:"description,omitempty" yaml:"description"`
		Tools       []string `json:"tools,omitempty" yaml:"tools"`
		Model       string   `json:"model,omitempty" yaml:"model"`
	}

	// CommandMeta is the frontmatter of a command definition.
	CommandMeta struct {
		Name         string `json:"name" yaml:"name"`
		Description  string `json:"description,omitempty" yaml:"description"`
		ArgumentHint string `json:"argumentHint,omitempty" yaml:"argument-hint"`
	}

	// HookMeta describes a hook: the event it fires on and the command it
	// runs. Name doubles as the merge key when the hook lives inside a
	// settings document.
	HookMeta struct {
		Name    string `json:"name" yaml:"name"`
		Event   string `json:"event,omitempty" yaml:"event"`
		Matcher string `json:"matcher,omitempty" yaml:"matcher"`
		Command string `json:"command,omitempty" yaml:"command"`
		Timeout int    `json:"timeout,omitempty" yaml:"timeout"`
	}

	// SettingsMeta summarizes a settings document.
	SettingsMeta struct {
		Keys []string `json:"keys,omitempty"`
	}

	// ProjectMeta describes a discovered project.
	ProjectMeta struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
)

// ResourceType implements Metadata.
func (AgentMeta) ResourceType() Type { return TypeAgent }

// ResourceType implements Metadata.
func (CommandMeta) ResourceType() Type { return TypeCommand }

// ResourceType implements Metadata.
func (HookMeta) ResourceType() Type { return TypeHook }

// ResourceType implements Metadata.
func (SettingsMeta) ResourceType() Type { return TypeSettings }

// ResourceType implements Metadata.
func (ProjectMeta) ResourceType() Type { return TypeProject }

// AllTypes returns every resource type in catalog order.
func AllTypes() []Type {
	return []Type{TypeAgent, TypeCommand, TypeHook, TypeSettings, TypeProject}
}

// IsValid reports whether t is a known resource type.
func (t Type) IsValid() bool {
	switch t {
	case TypeAgent, TypeCommand, TypeHook, TypeSettings, TypeProject:
		return true
	default:
		return false
	}
}

// UserScope returns the user-tier scope.
func UserScope() Scope {
	return Scope{Kind: ScopeUser}
}

// ProjectScope returns a project-tier scope rooted at projectPath.
func ProjectScope(projectPath string) Scope {
	return Scope{Kind: ScopeProject, ProjectPath: filepath.Clean(projectPath)}
}

// Validate enforces the kind/path invariant.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeUser:
		if s.ProjectPath != "" {
			return fmt.Errorf("%w: user scope must not carry a project path", ErrInvalidScope)
		}
	case ScopeProject:
		if s.ProjectPath == "" {
			return fmt.Errorf("%w: project scope requires a project path", ErrInvalidScope)
		}
	default:
		return fmt.Errorf("%w: unknown scope kind %q", ErrInvalidScope, s.Kind)
	}
	return nil
}

// Key returns a stable string form of the scope used inside IDs.
func (s Scope) Key() string {
	if s.Kind == ScopeProject {
		return string(ScopeProject) + ":" + filepath.ToSlash(filepath.Clean(s.ProjectPath))
	}
	return string(ScopeUser)
}

// String returns a human-readable scope name.
func (s Scope) String() string {
	if s.Kind == ScopeProject {
		return "project " + s.ProjectPath
	}
	return "user"
}

// NewID builds the catalog identity for (type, scope, qualifier). The
// qualifier is normalized to slash form so identities compare equal across
// platforms.
func NewID(t Type, s Scope, qualifier string) ID {
	return ID(string(t) + "/" + s.Key() + "/" + path.Clean(filepath.ToSlash(qualifier)))
}

// ID returns the item's catalog identity.
func (it *Item) ID() ID {
	return NewID(it.Type, it.Scope, it.Qualifier)
}

// Name returns the item's logical name: the metadata name when present,
// otherwise the qualifier's base without extension.
func (it *Item) Name() string {
	switch m := it.Meta.(type) {
	case AgentMeta:
		if m.Name != "" {
			return m.Name
		}
	case CommandMeta:
		if m.Name != "" {
			return m.Name
		}
	case HookMeta:
		if m.Name != "" {
			return m.Name
		}
	case ProjectMeta:
		if m.Name != "" {
			return m.Name
		}
	}
	base := path.Base(filepath.ToSlash(it.Qualifier))
	if i := len(base) - len(path.Ext(base)); i > 0 {
		base = base[:i]
	}
	return base
}

// DocumentMerged reports whether items of type t are deployed by merging
// into a shared settings document rather than copying a standalone file.
// Embedded hooks are detected per item via EmbeddedInDocument.
func (t Type) DocumentMerged() bool {
	return t == TypeSettings
}

// EmbeddedInDocument reports whether the item lives inside a shared
// settings document (qualifier of the form "<doc>#<key>").
func (it *Item) EmbeddedInDocument() bool {
	_, _, ok := SplitEmbeddedQualifier(it.Qualifier)
	return ok
}

// SplitEmbeddedQualifier splits "<doc>#<key>" qualifiers into the document
// path and the merge key. ok is false for plain file qualifiers.
func SplitEmbeddedQualifier(qualifier string) (doc, key string, ok bool) {
	for i := len(qualifier) - 1; i >= 0; i-- {
		if qualifier[i] == '#' {
			return qualifier[:i], qualifier[i+1:], qualifier[:i] != "" && qualifier[i+1:] != ""
		}
	}
	return "", "", false
}
