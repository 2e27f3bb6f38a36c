// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/scopehub/scopehub/internal/config"
	"github.com/scopehub/scopehub/internal/discovery"
	"github.com/scopehub/scopehub/internal/resource"

	"github.com/spf13/afero"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: all Cobra command handlers receive an App
	// reference and build the discovery/assignment stack through it.
	App struct {
		Config config.Provider
		fs     afero.Fs
		stdout io.Writer
		stderr io.Writer
	}

	// catalogResolver resolves assignment targets against a snapshot that was
	// already taken, so one CLI invocation scans exactly once.
	catalogResolver struct {
		result *discovery.Result
	}

	// liveResolver resolves against a fresh scan on every call. Serve mode
	// uses it so assignments see the current filesystem truth instead of a
	// startup-time snapshot.
	liveResolver struct {
		d *discovery.Discovery
	}
)

// newApp creates an App with production defaults.
func newApp() *App {
	return &App{
		Config: config.NewProvider(),
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// loadConfig loads configuration for a command run. When the user explicitly
// specified a config file, load failures are fatal; otherwise the command
// stays operational on defaults with a warning.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: cfgFile})
	if err == nil {
		return cfg, nil
	}
	if cfgFile != "" {
		return nil, err
	}

	fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
	return config.DefaultConfig(), nil
}

// catalog builds a Discovery over the loaded configuration.
func (a *App) catalog(ctx context.Context) (*discovery.Discovery, *config.Config, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	d, err := discovery.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return d, cfg, nil
}

func (r catalogResolver) Resolve(_ context.Context, id resource.ID) (*resource.Item, bool, error) {
	for _, item := range r.result.Items {
		if item.ID() == id {
			return item, true, nil
		}
	}
	return nil, false, nil
}

func (r liveResolver) Resolve(ctx context.Context, id resource.ID) (*resource.Item, bool, error) {
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

// projectDirs extracts the discovered project directories from a snapshot.
func projectDirs(res *discovery.Result) []string {
	var dirs []string
	for _, item := range res.Items {
		if item.Type != resource.TypeProject {
			continue
		}
		if meta, ok := item.Meta.(resource.ProjectMeta); ok && meta.Path != "" {
			dirs = append(dirs, meta.Path)
		}
	}
	return dirs
}

// renderDiagnostics writes scan diagnostics to stderr with severity prefixes.
func renderDiagnostics(diags []discovery.Diagnostic, stderr io.Writer) {
	for _, diag := range diags {
		prefix := WarningStyle.Render("warning")
		if diag.Severity == discovery.SeverityError {
			prefix = ErrorStyle.Render("error")
		}

		if diag.Path != "" {
			fmt.Fprintf(stderr, "%s: %s (%s)\n", prefix, diag.Message, diag.Path)
			continue
		}
		fmt.Fprintf(stderr, "%s: %s\n", prefix, diag.Message)
	}
}

// parseTypeArg validates an optional resource type argument. Empty selects
// every type.
func parseTypeArg(raw string) ([]resource.Type, error) {
	if raw == "" || raw == "all" {
		return nil, nil
	}
	t := resource.Type(raw)
	if !t.IsValid() {
		return nil, fmt.Errorf("unknown resource type %q (valid: agent, command, hook, settings, project)", raw)
	}
	return []resource.Type{t}, nil
}
