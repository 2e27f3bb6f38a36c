// SPDX-License-Identifier: MPL-2.0

package assign

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/scopehub/scopehub/internal/pathguard"
	"github.com/scopehub/scopehub/internal/resource"
)

const (
	userRoot   = "/home/dev/.scopehub"
	projectDir = "/work/api"
)

type mapResolver map[resource.ID]*resource.Item

func (m mapResolver) Resolve(_ context.Context, id resource.ID) (*resource.Item, bool, error) {
	item, ok := m[id]
	return item, ok, nil
}

func newTestEngine(afs afero.Fs, items ...*resource.Item) *Engine {
	guard := pathguard.New(userRoot, "/work")
	guard.SetProjectDirs([]string{projectDir})

	catalog := mapResolver{}
	for _, item := range items {
		catalog[item.ID()] = item
	}
	return New(afs, guard, catalog, userRoot)
}

func write(t *testing.T, afs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(afs, path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readString(t *testing.T, afs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(afs, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func userAgent(path, qualifier string) *resource.Item {
	return &resource.Item{
		Type:       resource.TypeAgent,
		Scope:      resource.UserScope(),
		Qualifier:  qualifier,
		SourcePath: path,
		Meta:       resource.AgentMeta{Name: "reviewer"},
		Active:     true,
	}
}

func TestAssignRejectsProjectDescriptor(t *testing.T) {
	afs := afero.NewMemMapFs()
	write(t, afs, userRoot+"/projects.json", `{"projects":[{"name":"api","path":"/work/api"}]}`)

	item := &resource.Item{
		Type:       resource.TypeProject,
		Scope:      resource.UserScope(),
		Qualifier:  "/work/api",
		SourcePath: userRoot + "/projects.json",
		Meta:       resource.ProjectMeta{Name: "api", Path: "/work/api"},
		Active:     true,
	}
	engine := newTestEngine(afs, item)

	res := engine.Assign(context.Background(), Request{
		ResourceID: item.ID(),
		Target:     resource.ProjectScope(projectDir),
		Operation:  OpCopy,
	})
	if res.Err == nil {
		t.Fatal("Assign() accepted a project descriptor")
	}
	var verr *ValidationError
	if !errors.As(res.Err, &verr) {
		t.Fatalf("error = %T, want ValidationError", res.Err)
	}

	// Nothing was written anywhere under the target scope.
	if ok, _ := afero.DirExists(afs, projectDir+"/.scopehub"); ok {
		t.Error("rejected assignment created target scope files")
	}
}

func TestAssignCopyLeavesSourceIntact(t *testing.T) {
	afs := afero.NewMemMapFs()
	const doc = "---\nname: reviewer\n---\nReview things.\n"
	write(t, afs, userRoot+"/agents/reviewer.md", doc)

	item := userAgent(userRoot+"/agents/reviewer.md", "agents/reviewer.md")
	engine := newTestEngine(afs, item)

	res := engine.Assign(context.Background(), Request{
		ResourceID: item.ID(),
		Target:     resource.ProjectScope(projectDir),
		Operation:  OpCopy,
	})
	if res.Err != nil {
		t.Fatalf("Assign() error = %v", res.Err)
	}
	if !res.Success {
		t.Fatal("Assign() not successful")
	}
	if res.TargetPath != projectDir+"/.scopehub/agents/reviewer.md" {
		t.Errorf("TargetPath = %q", res.TargetPath)
	}

	if got := readString(t, afs, userRoot+"/agents/reviewer.md"); got != doc {
		t.Error("copy modified the source")
	}
	if got := readString(t, afs, res.TargetPath); got != doc {
		t.Errorf("target content = %q", got)
	}
}

func TestAssignMoveRemovesSource(t *testing.T) {
	afs := afero.NewMemMapFs()
	const doc = "---\nname: reviewer\n---\nReview things.\n"
	write(t, afs, userRoot+"/agents/reviewer.md", doc)

	item := userAgent(userRoot+"/agents/reviewer.md", "agents/reviewer.md")
	engine := newTestEngine(afs, item)

	res := engine.Assign(context.Background(), Request{
		ResourceID: item.ID(),
		Target:     resource.ProjectScope(projectDir),
		Operation:  OpMove,
	})
	if res.Err != nil {
		t.Fatalf("Assign() error = %v", res.Err)
	}

	if ok, _ := afero.Exists(afs, userRoot+"/agents/reviewer.md"); ok {
		t.Error("move left the source behind")
	}
	if got := readString(t, afs, res.TargetPath); got != doc {
		t.Errorf("target content = %q", got)
	}
}

func TestAssignConflictMakesNoChange(t *testing.T) {
	afs := afero.NewMemMapFs()
	const srcDoc = "---\nname: reviewer\n---\nNew version.\n"
	const destDoc = "---\nname: reviewer\n---\nExisting version.\n"
	write(t, afs, userRoot+"/agents/reviewer.md", srcDoc)
	write(t, afs, projectDir+"/.scopehub/agents/reviewer.md", destDoc)

	item := userAgent(userRoot+"/agents/reviewer.md", "agents/reviewer.md")
	engine := newTestEngine(afs, item)

	res := engine.Assign(context.Background(), Request{
		ResourceID: item.ID(),
		Target:     resource.ProjectScope(projectDir),
		Operation:  OpCopy,
	})

	var conflict *ConflictError
	if !errors.As(res.Err, &conflict) {
		t.Fatalf("Assign() error = %v, want ConflictError", res.Err)
	}
	if res.Success {
		t.Error("conflicting assignment reported success")
	}
	if got := readString(t, afs, projectDir+"/.scopehub/agents/reviewer.md"); got != destDoc {
		t.Error("conflict still changed the destination")
	}
	if got := readString(t, afs, userRoot+"/agents/reviewer.md"); got != srcDoc {
		t.Error("conflict changed the source")
	}
}

func TestAssignOverwriteReplacesDestination(t *testing.T) {
	afs := afero.NewMemMapFs()
	const srcDoc = "---\nname: reviewer\n---\nNew version.\n"
	write(t, afs, userRoot+"/agents/reviewer.md", srcDoc)
	write(t, afs, projectDir+"/.scopehub/agents/reviewer.md", "old")

	item := userAgent(userRoot+"/agents/reviewer.md", "agents/reviewer.md")
	engine := newTestEngine(afs, item)

	res := engine.Assign(context.Background(), Request{
		ResourceID: item.ID(),
		Target:     resource.ProjectScope(projectDir),
		Operation:  OpCopy,
		Overwrite:  true,
	})
	if res.Err != nil {
		t.Fatalf("Assign() error = %v", res.Err)
	}
	if got := readString(t, afs, res.TargetPath); got != srcDoc {
		t.Errorf("target content = %q, want overwritten", got)
	}
}

func TestAssignRejectsPathOutsideAllowList(t *testing.T) {
	afs := afero.NewMemMapFs()
	write(t, afs, userRoot+"/agents/reviewer.md", "---\nname: reviewer\n---\nBody.\n")

	item := userAgent(userRoot+"/agents/reviewer.md", "agents/reviewer.md")
	engine := newTestEngine(afs, item)

	res := engine.Assign(context.Background(), Request{
		ResourceID: item.ID(),
		Target:     resource.ProjectScope("/srv/undiscovered"),
		Operation:  OpCopy,
	})

	var permission *PermissionError
	if !errors.As(res.Err, &permission) {
		t.Fatalf("Assign() error = %v, want PermissionError", res.Err)
	}
	if !errors.Is(res.Err, pathguard.ErrDenied) {
		t.Errorf("PermissionError should wrap the allow-list rejection, got %v", res.Err)
	}
}

func TestAssignUnknownResourceIsValidationError(t *testing.T) {
	engine := newTestEngine(afero.NewMemMapFs())

	res := engine.Assign(context.Background(), Request{
		ResourceID: resource.NewID(resource.TypeAgent, resource.UserScope(), "agents/ghost.md"),
		Target:     resource.ProjectScope(projectDir),
		Operation:  OpCopy,
	})

	var validation *ValidationError
	if !errors.As(res.Err, &validation) {
		t.Fatalf("Assign() error = %v, want ValidationError", res.Err)
	}
}

func TestAssignInvalidScopeIsValidationError(t *testing.T) {
	engine := newTestEngine(afero.NewMemMapFs())

	res := engine.Assign(context.Background(), Request{
		ResourceID: resource.NewID(resource.TypeAgent, resource.UserScope(), "agents/a.md"),
		Target:     resource.Scope{Kind: resource.ScopeProject}, // missing project path
		Operation:  OpCopy,
	})

	var validation *ValidationError
	if !errors.As(res.Err, &validation) {
		t.Fatalf("Assign() error = %v, want ValidationError", res.Err)
	}
}

func TestAssignEmbeddedHookMergesIntoDocument(t *testing.T) {
	afs := afero.NewMemMapFs()
	write(t, afs, userRoot+"/settings.json",
		`{"theme": "dark", "hooks": {"lint": {"event": "pre-commit", "command": "golangci-lint run"}}}`)
	write(t, afs, projectDir+"/.scopehub/settings.json",
		`{"hooks": {"fmt": {"command": "gofmt -w"}}}`)

	item := &resource.Item{
		Type:       resource.TypeHook,
		Scope:      resource.UserScope(),
		Qualifier:  "settings.json#lint",
		SourcePath: userRoot + "/settings.json",
		Meta:       resource.HookMeta{Name: "lint", Event: "pre-commit", Command: "golangci-lint run"},
		Active:     true,
	}
	engine := newTestEngine(afs, item)

	res := engine.Assign(context.Background(), Request{
		ResourceID: item.ID(),
		Target:     resource.ProjectScope(projectDir),
		Operation:  OpCopy,
	})
	if res.Err != nil {
		t.Fatalf("Assign() error = %v", res.Err)
	}

	destDoc, err := resource.ParseSettingsDoc([]byte(readString(t, afs, projectDir+"/.scopehub/settings.json")))
	if err != nil {
		t.Fatalf("destination document broken after merge: %v", err)
	}
	hooks := destDoc[resource.HooksKey].(map[string]any)
	if _, ok := hooks["fmt"]; !ok {
		t.Error("merge lost the existing hook entry")
	}
	lint, ok := hooks["lint"].(map[string]any)
	if !ok {
		t.Fatal("merged hook entry missing")
	}
	if lint["command"] != "golangci-lint run" {
		t.Errorf("merged hook = %v", lint)
	}

	// Copy leaves the source document untouched.
	srcDoc, err := resource.ParseSettingsDoc([]byte(readString(t, afs, userRoot+"/settings.json")))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := srcDoc[resource.HooksKey].(map[string]any)["lint"]; !ok {
		t.Error("copy removed the source hook entry")
	}
}

func TestAssignEmbeddedHookMoveRemovesSourceEntry(t *testing.T) {
	afs := afero.NewMemMapFs()
	write(t, afs, userRoot+"/settings.json",
		`{"theme": "dark", "hooks": {"lint": {"command": "golangci-lint run"}}}`)

	item := &resource.Item{
		Type:       resource.TypeHook,
		Scope:      resource.UserScope(),
		Qualifier:  "settings.json#lint",
		SourcePath: userRoot + "/settings.json",
		Meta:       resource.HookMeta{Name: "lint", Command: "golangci-lint run"},
		Active:     true,
	}
	engine := newTestEngine(afs, item)

	res := engine.Assign(context.Background(), Request{
		ResourceID: item.ID(),
		Target:     resource.ProjectScope(projectDir),
		Operation:  OpMove,
	})
	if res.Err != nil {
		t.Fatalf("Assign() error = %v", res.Err)
	}

	srcDoc, err := resource.ParseSettingsDoc([]byte(readString(t, afs, userRoot+"/settings.json")))
	if err != nil {
		t.Fatalf("source document broken after move: %v", err)
	}
	if _, ok := srcDoc[resource.HooksKey]; ok {
		t.Error("move left the hook entry in the source document")
	}
	if srcDoc["theme"] != "dark" {
		t.Error("move disturbed unrelated source keys")
	}
}

func TestAssignEmbeddedHookConflict(t *testing.T) {
	afs := afero.NewMemMapFs()
	write(t, afs, userRoot+"/settings.json",
		`{"hooks": {"lint": {"command": "new"}}}`)
	destBefore := `{"hooks": {"lint": {"command": "old"}}}`
	write(t, afs, projectDir+"/.scopehub/settings.json", destBefore)

	item := &resource.Item{
		Type:       resource.TypeHook,
		Scope:      resource.UserScope(),
		Qualifier:  "settings.json#lint",
		SourcePath: userRoot + "/settings.json",
		Meta:       resource.HookMeta{Name: "lint", Command: "new"},
		Active:     true,
	}
	engine := newTestEngine(afs, item)

	res := engine.Assign(context.Background(), Request{
		ResourceID: item.ID(),
		Target:     resource.ProjectScope(projectDir),
		Operation:  OpCopy,
	})

	var conflict *ConflictError
	if !errors.As(res.Err, &conflict) {
		t.Fatalf("Assign() error = %v, want ConflictError", res.Err)
	}
	if got := readString(t, afs, projectDir+"/.scopehub/settings.json"); got != destBefore {
		t.Error("conflict still changed the destination document")
	}
}

func TestAssignSettingsDocumentMergesTopLevelKeys(t *testing.T) {
	afs := afero.NewMemMapFs()
	write(t, afs, userRoot+"/settings.json", `{"theme": "dark"}`)
	write(t, afs, projectDir+"/.scopehub/settings.json", `{"editor": "hx"}`)

	item := &resource.Item{
		Type:       resource.TypeSettings,
		Scope:      resource.UserScope(),
		Qualifier:  resource.SettingsFileName,
		SourcePath: userRoot + "/settings.json",
		Meta:       resource.SettingsMeta{Keys: []string{"theme"}},
		Active:     true,
	}
	engine := newTestEngine(afs, item)

	res := engine.Assign(context.Background(), Request{
		ResourceID: item.ID(),
		Target:     resource.ProjectScope(projectDir),
		Operation:  OpCopy,
	})
	if res.Err != nil {
		t.Fatalf("Assign() error = %v", res.Err)
	}

	destDoc, err := resource.ParseSettingsDoc([]byte(readString(t, afs, projectDir+"/.scopehub/settings.json")))
	if err != nil {
		t.Fatal(err)
	}
	if destDoc["theme"] != "dark" || destDoc["editor"] != "hx" {
		t.Errorf("merged document = %v", destDoc)
	}
}

func TestAssignConcurrentDisjointDestinations(t *testing.T) {
	afs := afero.NewMemMapFs()
	write(t, afs, userRoot+"/agents/a.md", "---\nname: a\n---\nA.\n")
	write(t, afs, userRoot+"/agents/b.md", "---\nname: b\n---\nB.\n")

	itemA := userAgent(userRoot+"/agents/a.md", "agents/a.md")
	itemB := userAgent(userRoot+"/agents/b.md", "agents/b.md")
	engine := newTestEngine(afs, itemA, itemB)

	done := make(chan Result, 2)
	for _, item := range []*resource.Item{itemA, itemB} {
		go func() {
			done <- engine.Assign(context.Background(), Request{
				ResourceID: item.ID(),
				Target:     resource.ProjectScope(projectDir),
				Operation:  OpCopy,
			})
		}()
	}
	for i := 0; i < 2; i++ {
		if res := <-done; res.Err != nil {
			t.Errorf("concurrent Assign() error = %v", res.Err)
		}
	}
}
