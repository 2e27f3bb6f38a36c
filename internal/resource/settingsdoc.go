// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tidwall/jsonc"
)

const (
	// SettingsFileName is the shared settings document within a scope root.
	SettingsFileName = "settings.json"
	// SettingsLocalFileName is the per-project local override document. It
	// is never shared between machines and takes precedence over the
	// project settings document.
	SettingsLocalFileName = "settings.local.json"
	// HooksKey is the settings-document key under which embedded hooks live.
	HooksKey = "hooks"
)

// ParseSettingsDoc decodes a settings document. Comments and trailing commas
// are tolerated (JSONC); the result is a plain key/value tree.
func ParseSettingsDoc(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, fmt.Errorf("settings document: %w", err)
	}
	return doc, nil
}

// ParseHookFile decodes a standalone hook file (strict-ish JSON, JSONC
// tolerated like settings documents).
func ParseHookFile(data []byte) (HookMeta, error) {
	var meta HookMeta
	if err := json.Unmarshal(jsonc.ToJSON(data), &meta); err != nil {
		return HookMeta{}, fmt.Errorf("hook file: %w", err)
	}
	return meta, nil
}

// EmbeddedHooks extracts the named hook entries under doc's "hooks" key.
// Entries that are not objects are skipped; hook names come back sorted so
// scan output is deterministic.
func EmbeddedHooks(doc map[string]any) []HookMeta {
	raw, ok := doc[HooksKey].(map[string]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)

	hooks := make([]HookMeta, 0, len(names))
	for _, name := range names {
		entry, ok := raw[name].(map[string]any)
		if !ok {
			continue
		}
		meta := HookMeta{Name: name}
		if v, ok := entry["event"].(string); ok {
			meta.Event = v
		}
		if v, ok := entry["matcher"].(string); ok {
			meta.Matcher = v
		}
		if v, ok := entry["command"].(string); ok {
			meta.Command = v
		}
		if v, ok := entry["timeout"].(float64); ok {
			meta.Timeout = int(v)
		}
		hooks = append(hooks, meta)
	}
	return hooks
}

// HookEntry converts a HookMeta into the settings-document representation
// used when merging a hook into a document's "hooks" key.
func (m HookMeta) HookEntry() map[string]any {
	entry := map[string]any{}
	if m.Event != "" {
		entry["event"] = m.Event
	}
	if m.Matcher != "" {
		entry["matcher"] = m.Matcher
	}
	if m.Command != "" {
		entry["command"] = m.Command
	}
	if m.Timeout != 0 {
		entry["timeout"] = m.Timeout
	}
	return entry
}

// TopLevelKeys returns doc's top-level keys in sorted order.
func TopLevelKeys(doc map[string]any) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// EncodeSettingsDoc renders a settings tree back to indented JSON with a
// trailing newline, matching how the documents are kept on disk.
func EncodeSettingsDoc(doc map[string]any) ([]byte, error) {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("settings document: %w", err)
	}
	return append(out, '\n'), nil
}
