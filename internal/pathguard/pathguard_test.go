// SPDX-License-Identifier: MPL-2.0

package pathguard

import (
	"errors"
	"testing"
)

func TestCheckAllowsConfiguredRoots(t *testing.T) {
	g := New("/home/dev/.scopehub", "/work/current")

	allowed := []string{
		"/home/dev/.scopehub/agents/reviewer.md",
		"/home/dev/.scopehub",
		"/work/current/notes.md",
	}
	for _, path := range allowed {
		if err := g.Check(path); err != nil {
			t.Errorf("Check(%q) = %v, want allowed", path, err)
		}
	}

	denied := []string{
		"/home/dev/other/file.md",
		"/home/dev/.scopehub-evil/file.md",
		"/etc/passwd",
		"/work/current/../elsewhere/x",
	}
	for _, path := range denied {
		err := g.Check(path)
		if !errors.Is(err, ErrDenied) {
			t.Errorf("Check(%q) = %v, want ErrDenied", path, err)
		}
	}
}

func TestCheckTracksDiscoveredProjects(t *testing.T) {
	g := New("/home/dev/.scopehub", "/work/current")

	target := "/code/api/.scopehub/agents/reviewer.md"
	if err := g.Check(target); !errors.Is(err, ErrDenied) {
		t.Fatalf("Check before discovery = %v, want ErrDenied", err)
	}

	// Discovery found a new project; the allow-list widens.
	g.SetProjectDirs([]string{"/code/api"})
	if err := g.Check(target); err != nil {
		t.Errorf("Check after discovery = %v, want allowed", err)
	}

	// A later pass without that project narrows the list again.
	g.SetProjectDirs(nil)
	if err := g.Check(target); !errors.Is(err, ErrDenied) {
		t.Errorf("Check after project removal = %v, want ErrDenied", err)
	}
}
