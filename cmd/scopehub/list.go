// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/scopehub/scopehub/internal/discovery"
	"github.com/scopehub/scopehub/internal/resource"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// newListCommand creates the `scopehub list` command.
func newListCommand(app *App) *cobra.Command {
	var asJSON bool

	listCmd := &cobra.Command{
		Use:   "list [type]",
		Short: "Catalog resources across every scope",
		Long: `Catalog resources across the user scope and every discovered project scope.

An optional type argument narrows the catalog to one resource type:
agent, command, hook, settings, or project.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var typeArg string
			if len(args) == 1 {
				typeArg = args[0]
			}
			return listResources(cmd, app, typeArg, asJSON)
		},
	}

	listCmd.Flags().BoolVar(&asJSON, "json", false, "output the catalog as JSON")
	return listCmd
}

func listResources(cmd *cobra.Command, app *App, typeArg string, asJSON bool) error {
	types, err := parseTypeArg(typeArg)
	if err != nil {
		return err
	}

	d, _, err := app.catalog(cmd.Context())
	if err != nil {
		return err
	}

	result, err := d.Snapshot(cmd.Context(), types)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(app.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	renderDiagnostics(result.Diagnostics, app.stderr)
	if result.Incomplete {
		fmt.Fprintln(app.stderr, WarningStyle.Render("warning")+": scan incomplete, catalog may be missing entries")
	}

	if len(result.Items) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("No resources found."))
		return nil
	}

	printCatalog(app, result)
	return nil
}

// printCatalog renders the catalog grouped by scope, user scope first and
// project scopes in discovery order.
func printCatalog(app *App, result *discovery.Result) {
	scopeStyle := lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)
	typeStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	descStyle := lipgloss.NewStyle().Foreground(ColorVerbose)
	brokenStyle := lipgloss.NewStyle().Foreground(ColorError)

	byScope := make(map[string][]*resource.Item)
	var scopeOrder []string
	for _, item := range result.Items {
		key := item.Scope.String()
		if _, seen := byScope[key]; !seen {
			scopeOrder = append(scopeOrder, key)
		}
		byScope[key] = append(byScope[key], item)
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Resource Catalog"))
	fmt.Fprintln(app.stdout)

	for _, scope := range scopeOrder {
		fmt.Fprintln(app.stdout, scopeStyle.Render(fmt.Sprintf("Scope %s:", scope)))

		for _, item := range byScope[scope] {
			line := fmt.Sprintf("  %-10s %s", typeStyle.Render(string(item.Type)), NameStyle.Render(item.Name()))
			if desc := itemDescription(item); desc != "" {
				line += " - " + descStyle.Render(desc)
			}
			if item.ParseError != "" {
				line += " " + brokenStyle.Render("(malformed: "+item.ParseError+")")
			}
			if GetVerbose() {
				line += " " + VerboseStyle.Render("["+item.SourcePath+"]")
			}
			fmt.Fprintln(app.stdout, line)
		}
		fmt.Fprintln(app.stdout)
	}
}

// itemDescription returns the metadata description when the type carries one.
func itemDescription(item *resource.Item) string {
	switch m := item.Meta.(type) {
	case resource.AgentMeta:
		return m.Description
	case resource.CommandMeta:
		return m.Description
	case resource.HookMeta:
		if m.Event != "" {
			return "on " + m.Event
		}
	case resource.SettingsMeta:
		if len(m.Keys) > 0 {
			return fmt.Sprintf("%d keys", len(m.Keys))
		}
	case resource.ProjectMeta:
		return m.Path
	}
	return ""
}
