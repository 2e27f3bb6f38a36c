// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/scopehub/scopehub/internal/issue"
	"github.com/scopehub/scopehub/internal/resource"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

// newShowCommand creates the `scopehub show` command.
func newShowCommand(app *App) *cobra.Command {
	var projectPath string

	showCmd := &cobra.Command{
		Use:   "show <type> <name>",
		Short: "Render a single resource",
		Long: `Render a single resource by type and name.

Markdown-backed resources (agents, commands) are rendered with their
frontmatter summary followed by the styled body. Other types print their
parsed metadata. Without --project the user scope is searched first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showResource(cmd, app, args[0], args[1], projectPath)
		},
	}

	showCmd.Flags().StringVar(&projectPath, "project", "", "search only the given project scope")
	return showCmd
}

func showResource(cmd *cobra.Command, app *App, typeArg, name, projectPath string) error {
	t := resource.Type(typeArg)
	if !t.IsValid() {
		return fmt.Errorf("unknown resource type %q (valid: agent, command, hook, settings, project)", typeArg)
	}

	d, _, err := app.catalog(cmd.Context())
	if err != nil {
		return err
	}

	result, err := d.Snapshot(cmd.Context(), []resource.Type{t})
	if err != nil {
		return err
	}

	item := findItem(result.Items, t, name, projectPath)
	if item == nil {
		return issue.NewErrorContext().
			WithOperation("show resource").
			WithResource(typeArg + " " + name).
			WithSuggestion("run 'scopehub list " + typeArg + "' to see what is cataloged").
			WithSuggestion("pass --project <path> to search a project scope").
			BuildError()
	}

	return renderItem(app, item)
}

// findItem locates a resource by name or qualifier. With a project path only
// that scope is searched; otherwise the user scope wins over project scopes.
func findItem(items []*resource.Item, t resource.Type, name, projectPath string) *resource.Item {
	if projectPath != "" {
		projectPath = filepath.Clean(projectPath)
	}

	var fallback *resource.Item
	for _, item := range items {
		if item.Type != t {
			continue
		}
		if item.Name() != name && item.Qualifier != name {
			continue
		}

		if projectPath != "" {
			if item.Scope.Kind == resource.ScopeProject && item.Scope.ProjectPath == projectPath {
				return item
			}
			continue
		}

		if item.Scope.Kind == resource.ScopeUser {
			return item
		}
		if fallback == nil {
			fallback = item
		}
	}
	return fallback
}

func renderItem(app *App, item *resource.Item) error {
	fmt.Fprintln(app.stdout, TitleStyle.Render(item.Name())+SubtitleStyle.Render(fmt.Sprintf(" (%s, %s)", item.Type, item.Scope)))
	fmt.Fprintln(app.stdout, VerboseStyle.Render("source: "+item.SourcePath))
	if item.ParseError != "" {
		fmt.Fprintln(app.stdout, ErrorStyle.Render("malformed: ")+item.ParseError)
	}
	fmt.Fprintln(app.stdout)

	printItemMeta(app, item)

	if item.Content == "" {
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// Plain output still beats no output when the terminal renderer
		// cannot be built.
		fmt.Fprintln(app.stdout, item.Content)
		return nil //nolint:nilerr // degraded rendering is not a command failure
	}

	out, err := renderer.Render(item.Content)
	if err != nil {
		fmt.Fprintln(app.stdout, item.Content)
		return nil //nolint:nilerr // degraded rendering is not a command failure
	}
	fmt.Fprint(app.stdout, out)
	return nil
}

func printItemMeta(app *App, item *resource.Item) {
	key := NameStyle
	val := VerboseStyle

	switch m := item.Meta.(type) {
	case resource.AgentMeta:
		if m.Description != "" {
			fmt.Fprintf(app.stdout, "%s: %s\n", key.Render("description"), val.Render(m.Description))
		}
		if len(m.Tools) > 0 {
			fmt.Fprintf(app.stdout, "%s: %s\n", key.Render("tools"), val.Render(fmt.Sprintf("%v", m.Tools)))
		}
		if m.Model != "" {
			fmt.Fprintf(app.stdout, "%s: %s\n", key.Render("model"), val.Render(m.Model))
		}
	case resource.CommandMeta:
		if m.Description != "" {
			fmt.Fprintf(app.stdout, "%s: %s\n", key.Render("description"), val.Render(m.Description))
		}
		if m.ArgumentHint != "" {
			fmt.Fprintf(app.stdout, "%s: %s\n", key.Render("argument-hint"), val.Render(m.ArgumentHint))
		}
	case resource.HookMeta:
		fmt.Fprintf(app.stdout, "%s: %s\n", key.Render("event"), val.Render(m.Event))
		if m.Matcher != "" {
			fmt.Fprintf(app.stdout, "%s: %s\n", key.Render("matcher"), val.Render(m.Matcher))
		}
		fmt.Fprintf(app.stdout, "%s: %s\n", key.Render("command"), val.Render(m.Command))
		if m.Timeout > 0 {
			fmt.Fprintf(app.stdout, "%s: %s\n", key.Render("timeout"), val.Render(fmt.Sprintf("%ds", m.Timeout)))
		}
	case resource.SettingsMeta:
		for _, k := range m.Keys {
			fmt.Fprintf(app.stdout, "%s %s\n", key.Render("-"), val.Render(k))
		}
	case resource.ProjectMeta:
		fmt.Fprintf(app.stdout, "%s: %s\n", key.Render("path"), val.Render(m.Path))
	}
}
