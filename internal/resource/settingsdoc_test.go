// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"testing"
)

func TestParseSettingsDoc_ToleratesComments(t *testing.T) {
	data := []byte(`{
  // default model for this machine
  "model": "fast",
  "hooks": {
    "fmt-on-save": {"event": "post-write", "command": "gofmt -w"},
  },
}`)

	doc, err := ParseSettingsDoc(data)
	if err != nil {
		t.Fatalf("ParseSettingsDoc() returned error: %v", err)
	}
	if doc["model"] != "fast" {
		t.Errorf("model = %v", doc["model"])
	}
}

func TestParseSettingsDoc_Malformed(t *testing.T) {
	if _, err := ParseSettingsDoc([]byte("{not json at all")); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func TestEmbeddedHooks(t *testing.T) {
	doc := map[string]any{
		"model": "fast",
		"hooks": map[string]any{
			"lint":        map[string]any{"event": "pre-commit", "command": "golangci-lint run", "timeout": float64(30)},
			"fmt-on-save": map[string]any{"event": "post-write", "command": "gofmt -w", "matcher": "*.go"},
			"broken":      "not an object",
		},
	}

	hooks := EmbeddedHooks(doc)
	if len(hooks) != 2 {
		t.Fatalf("EmbeddedHooks() returned %d hooks, want 2", len(hooks))
	}
	// Sorted by name for deterministic scan output.
	if hooks[0].Name != "fmt-on-save" || hooks[1].Name != "lint" {
		t.Errorf("hook order = %q, %q", hooks[0].Name, hooks[1].Name)
	}
	if hooks[0].Matcher != "*.go" {
		t.Errorf("matcher = %q", hooks[0].Matcher)
	}
	if hooks[1].Timeout != 30 {
		t.Errorf("timeout = %d", hooks[1].Timeout)
	}
}

func TestEmbeddedHooks_NoHooksKey(t *testing.T) {
	if got := EmbeddedHooks(map[string]any{"model": "fast"}); got != nil {
		t.Errorf("EmbeddedHooks() = %v, want nil", got)
	}
}

func TestHookEntryRoundTrip(t *testing.T) {
	meta := HookMeta{Name: "lint", Event: "pre-commit", Command: "make lint", Timeout: 10}
	entry := meta.HookEntry()

	doc := map[string]any{HooksKey: map[string]any{"lint": entry}}
	hooks := EmbeddedHooks(doc)
	if len(hooks) != 1 {
		t.Fatalf("got %d hooks, want 1", len(hooks))
	}
	if hooks[0].Event != meta.Event || hooks[0].Command != meta.Command {
		t.Errorf("round-tripped hook = %+v", hooks[0])
	}
}
