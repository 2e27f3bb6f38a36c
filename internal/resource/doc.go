// SPDX-License-Identifier: MPL-2.0

// Package resource defines the catalog's data model: resource types, scopes,
// identities, and the parsed representations of the files that back them.
//
// A resource is a configuration artifact discovered on disk — an agent or
// command definition (markdown with YAML frontmatter), a hook (standalone
// JSON file or an entry embedded in a settings document), a settings
// document (JSONC), or a project descriptor.
//
// Items are value records materialized fresh on every scan pass; they are
// never mutated in place. Filesystem truth is re-read each cycle.
package resource
