// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scopehub/scopehub/internal/testutil"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, resolved, err := loadWithOptions(context.Background(), LoadOptions{
		ConfigDirPath: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if resolved != "" {
		t.Errorf("resolved path = %q, want empty (no file present)", resolved)
	}
	if cfg.MaxDepth != 8 {
		t.Errorf("MaxDepth = %d, want 8", cfg.MaxDepth)
	}
	if cfg.ScanTimeout != 30*time.Second {
		t.Errorf("ScanTimeout = %v, want 30s", cfg.ScanTimeout)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
	}
	if cfg.Cache.Staleness != 5*time.Minute {
		t.Errorf("Cache.Staleness = %v, want 5m", cfg.Cache.Staleness)
	}
	if cfg.Server.StreamBuffer != 64 {
		t.Errorf("Server.StreamBuffer = %d, want 64", cfg.Server.StreamBuffer)
	}
}

func TestLoadCUEOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "config.cue"), []byte(`
user_root: "/srv/hub"
max_depth: 3
scan_timeout: "5s"

cache: {
	staleness: "90s"
}

workspace_roots: ["/code", "/work"]
`))

	cfg, resolved, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if resolved != filepath.Join(dir, "config.cue") {
		t.Errorf("resolved path = %q", resolved)
	}
	if cfg.UserRoot != "/srv/hub" {
		t.Errorf("UserRoot = %q, want /srv/hub", cfg.UserRoot)
	}
	if cfg.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3", cfg.MaxDepth)
	}
	if cfg.ScanTimeout != 5*time.Second {
		t.Errorf("ScanTimeout = %v, want 5s", cfg.ScanTimeout)
	}
	if cfg.Cache.Staleness != 90*time.Second {
		t.Errorf("Cache.Staleness = %v, want 90s", cfg.Cache.Staleness)
	}
	// Unset fields keep their defaults.
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v, want default 24h", cfg.Cache.TTL)
	}
	if len(cfg.WorkspaceRoots) != 2 || cfg.WorkspaceRoots[0] != "/code" {
		t.Errorf("WorkspaceRoots = %v", cfg.WorkspaceRoots)
	}
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "config.cue"), []byte(`max_depth: 0`))

	_, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err == nil {
		t.Fatal("expected schema violation error for max_depth 0")
	}
}

func TestLoadRejectsInvalidCUE(t *testing.T) {
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "config.cue"), []byte(`max_depth: {{`))

	_, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err == nil {
		t.Fatal("expected parse error for invalid CUE")
	}
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	_, _, err := loadWithOptions(context.Background(), LoadOptions{
		ConfigFilePath: filepath.Join(t.TempDir(), "nope.cue"),
	})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want mention of missing file", err)
	}
}

func TestResolveUserRootDefaultsToHome(t *testing.T) {
	home := t.TempDir()
	t.Cleanup(testutil.SetHomeDir(t, home))

	cfg := DefaultConfig()
	root, err := cfg.ResolveUserRoot()
	if err != nil {
		t.Fatalf("ResolveUserRoot() error = %v", err)
	}
	if root != filepath.Join(home, UserRootDirName) {
		t.Errorf("root = %q, want %q", root, filepath.Join(home, UserRootDirName))
	}

	cfg.UserRoot = "/custom/root"
	root, err = cfg.ResolveUserRoot()
	if err != nil {
		t.Fatalf("ResolveUserRoot() error = %v", err)
	}
	if root != "/custom/root" {
		t.Errorf("root = %q, want /custom/root", root)
	}
}

func TestGenerateCUERoundTrips(t *testing.T) {
	dir := t.TempDir()
	src := DefaultConfig()
	src.UserRoot = "/srv/hub"
	src.WorkspaceRoots = []string{"/code"}
	testutil.MustWriteFile(t, filepath.Join(dir, "config.cue"), []byte(GenerateCUE(src)))

	cfg, _, err := loadWithOptions(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if cfg.UserRoot != src.UserRoot {
		t.Errorf("UserRoot = %q, want %q", cfg.UserRoot, src.UserRoot)
	}
	if cfg.MaxDepth != src.MaxDepth {
		t.Errorf("MaxDepth = %d, want %d", cfg.MaxDepth, src.MaxDepth)
	}
	if cfg.ScanTimeout != src.ScanTimeout {
		t.Errorf("ScanTimeout = %v, want %v", cfg.ScanTimeout, src.ScanTimeout)
	}
}

func TestLoadCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := loadWithOptions(ctx, LoadOptions{ConfigDirPath: t.TempDir()})
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}
