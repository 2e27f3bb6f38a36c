// SPDX-License-Identifier: MPL-2.0

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/scopehub/scopehub/internal/assign"
	"github.com/scopehub/scopehub/internal/cache"
	"github.com/scopehub/scopehub/internal/config"
	"github.com/scopehub/scopehub/internal/discovery"
	"github.com/scopehub/scopehub/internal/pathguard"
	"github.com/scopehub/scopehub/internal/resource"
	"github.com/scopehub/scopehub/internal/settings"
)

const testUserRoot = "/home/dev/.scopehub"

// snapshotResolver resolves assignment targets against a fresh scan, the
// same way the composition root wires it.
type snapshotResolver struct {
	d *discovery.Discovery
}

func (r snapshotResolver) Resolve(ctx context.Context, id resource.ID) (*resource.Item, bool, error) {
	res, err := r.d.Snapshot(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	for _, item := range res.Items {
		if item.ID() == id {
			return item, true, nil
		}
	}
	return nil, false, nil
}

func newTestServer(t *testing.T, afs afero.Fs) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	d := discovery.NewWithFs(cfg, afs, testUserRoot)

	guard := pathguard.New(testUserRoot, "/work")
	guard.SetProjectDirs([]string{"/work/api"})

	srv, err := New(Options{
		Token:        "test-token",
		StreamBuffer: 16,
		Catalog:      d,
		Assigner:     assign.New(afs, guard, snapshotResolver{d: d}, testUserRoot),
		Settings:     settings.NewResolver(afs, testUserRoot, guard),
		Cache:        cache.New[*discovery.Result](cfg.Cache.TTL, cfg.Cache.Staleness),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func seedFs(t *testing.T) afero.Fs {
	t.Helper()
	afs := afero.NewMemMapFs()
	files := map[string]string{
		testUserRoot + "/agents/reviewer.md":      "---\nname: reviewer\n---\nReview things.\n",
		testUserRoot + "/agents/broken.md":        "no header\n",
		testUserRoot + "/settings.json":           `{"theme": "dark"}`,
		"/work/api/.scopehub/settings.json":       `{"theme": "light"}`,
		"/work/api/.scopehub/settings.local.json": `{"debug": true}`,
	}
	for path, content := range files {
		if err := afero.WriteFile(afs, path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return afs
}

func doRequest(t *testing.T, srv *Server, method, path string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL()+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+srv.Token())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t, seedFs(t))

	resp, err := http.Get(srv.URL() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

func TestResourcesRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t, seedFs(t))

	resp, err := http.Get(srv.URL() + "/api/resources")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestResourcesBatchReturnsCatalog(t *testing.T) {
	srv := newTestServer(t, seedFs(t))

	resp := doRequest(t, srv, http.MethodGet, "/api/resources?type=agent", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload ResourcesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	// One well-formed agent and one partial record.
	if len(payload.Items) != 2 {
		t.Errorf("items = %d, want 2", len(payload.Items))
	}
	var parseErrors int
	for _, d := range payload.Diagnostics {
		if d.Code == "agent_parse_error" {
			parseErrors++
		}
	}
	if parseErrors != 1 {
		t.Errorf("agent_parse_error diagnostics = %d, want 1", parseErrors)
	}
}

func TestResourcesRejectsUnknownType(t *testing.T) {
	srv := newTestServer(t, seedFs(t))

	resp := doRequest(t, srv, http.MethodGet, "/api/resources?type=gadget", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStreamEmitsEventProtocol(t *testing.T) {
	srv := newTestServer(t, seedFs(t))

	resp := doRequest(t, srv, http.MethodGet, "/api/resources/stream?type=agent", nil)
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var eventTypes []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventTypes = append(eventTypes, strings.TrimPrefix(line, "event: "))
		}
	}

	if len(eventTypes) < 4 {
		t.Fatalf("events = %v", eventTypes)
	}
	if eventTypes[0] != "connected" || eventTypes[1] != "scan_started" {
		t.Errorf("preamble = %v", eventTypes[:2])
	}
	if last := eventTypes[len(eventTypes)-1]; last != "scan_complete" {
		t.Errorf("terminal event = %q", last)
	}

	counts := map[string]int{}
	for _, et := range eventTypes {
		counts[et]++
	}
	if counts["item_found"] != 1 || counts["item_error"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestAssignEndpointCopiesResource(t *testing.T) {
	afs := seedFs(t)
	srv := newTestServer(t, afs)

	req := assign.Request{
		ResourceID: resource.NewID(resource.TypeAgent, resource.UserScope(), "agents/reviewer.md"),
		Target:     resource.ProjectScope("/work/api"),
		Operation:  assign.OpCopy,
	}
	body, _ := json.Marshal(req)

	resp := doRequest(t, srv, http.MethodPost, "/api/assign", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload AssignResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if !payload.Success || payload.TargetPath == "" {
		t.Errorf("payload = %+v", payload)
	}
	if ok, _ := afero.Exists(afs, "/work/api/.scopehub/agents/reviewer.md"); !ok {
		t.Error("assignment did not create the target file")
	}
}

func TestAssignEndpointMapsConflictToStatus(t *testing.T) {
	afs := seedFs(t)
	if err := afero.WriteFile(afs, "/work/api/.scopehub/agents/reviewer.md", []byte("occupied"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, afs)

	req := assign.Request{
		ResourceID: resource.NewID(resource.TypeAgent, resource.UserScope(), "agents/reviewer.md"),
		Target:     resource.ProjectScope("/work/api"),
		Operation:  assign.OpCopy,
	}
	body, _ := json.Marshal(req)

	resp := doRequest(t, srv, http.MethodPost, "/api/assign", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}

	var payload AssignResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Error == nil || payload.Error.Kind != "conflict" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestSettingsEndpointReturnsProvenance(t *testing.T) {
	srv := newTestServer(t, seedFs(t))

	resp := doRequest(t, srv, http.MethodGet, "/api/settings?project=/work/api", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload settings.Effective
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Merged["theme"] != "light" {
		t.Errorf("theme = %v, want project override", payload.Merged["theme"])
	}
	if payload.Sources["theme"] != settings.LayerProject || payload.Sources["debug"] != settings.LayerLocal {
		t.Errorf("sources = %v", payload.Sources)
	}
}

func TestSettingsEndpointRejectsUndiscoveredProject(t *testing.T) {
	afs := seedFs(t)
	if err := afero.WriteFile(afs, "/srv/elsewhere/.scopehub/settings.json", []byte(`{"secret": true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, afs)

	resp := doRequest(t, srv, http.MethodGet, "/api/settings?project=/srv/elsewhere", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestCachedBatchAvoidsRescan(t *testing.T) {
	afs := seedFs(t)
	srv := newTestServer(t, afs)

	resp := doRequest(t, srv, http.MethodGet, "/api/resources?type=agent", nil)
	resp.Body.Close()

	// New file after the first scan: the cached snapshot keeps serving the
	// old view until a refresh is forced.
	if err := afero.WriteFile(afs, testUserRoot+"/agents/late.md", []byte("---\nname: late\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/resources?type=agent", nil)
	var cached ResourcesResponse
	if err := json.NewDecoder(resp.Body).Decode(&cached); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(cached.Items) != 2 {
		t.Errorf("cached items = %d, want 2 (stale view)", len(cached.Items))
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/resources?type=agent&refresh=1", nil)
	var fresh ResourcesResponse
	if err := json.NewDecoder(resp.Body).Decode(&fresh); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(fresh.Items) != 3 {
		t.Errorf("refreshed items = %d, want 3", len(fresh.Items))
	}
}
