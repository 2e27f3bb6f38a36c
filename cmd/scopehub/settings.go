// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/scopehub/scopehub/internal/pathguard"
	"github.com/scopehub/scopehub/internal/resource"
	"github.com/scopehub/scopehub/internal/settings"

	"github.com/spf13/cobra"
)

// newSettingsCommand creates the `scopehub settings` command.
func newSettingsCommand(app *App) *cobra.Command {
	var (
		projectPath string
		asJSON      bool
	)

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show effective settings with provenance",
		Long: `Show the effective settings after merging the precedence chain.

Layers merge lowest to highest: user settings.json, then the project's
settings.json, then the project's settings.local.json. Each top-level key
is annotated with the layer it came from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showSettings(cmd, app, projectPath, asJSON)
		},
	}

	settingsCmd.Flags().StringVar(&projectPath, "project", "", "include the given project's settings layers")
	settingsCmd.Flags().BoolVar(&asJSON, "json", false, "output merged settings and sources as JSON")
	return settingsCmd
}

func showSettings(cmd *cobra.Command, app *App, projectPath string, asJSON bool) error {
	d, _, err := app.catalog(cmd.Context())
	if err != nil {
		return err
	}

	workingRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	guard := pathguard.New(d.UserRoot(), workingRoot)
	if projectPath != "" {
		// The allow-list only admits discovered projects, so the project
		// catalog seeds it before any settings document is read.
		res, err := d.Snapshot(cmd.Context(), []resource.Type{resource.TypeProject})
		if err != nil {
			return err
		}
		guard.SetProjectDirs(projectDirs(res))
	}

	effective, err := settings.NewResolver(app.fs, d.UserRoot(), guard).Effective(projectPath)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(app.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(effective)
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Effective Settings"))
	if projectPath != "" {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("project: "+projectPath))
	}
	fmt.Fprintln(app.stdout)

	if len(effective.Merged) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("(no settings configured)"))
		return nil
	}

	keys := make([]string, 0, len(effective.Merged))
	for k := range effective.Merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value, err := json.Marshal(effective.Merged[k])
		if err != nil {
			value = []byte(fmt.Sprintf("%v", effective.Merged[k]))
		}
		fmt.Fprintf(app.stdout, "%s: %s %s\n",
			NameStyle.Render(k),
			string(value),
			SubtitleStyle.Render("(from "+effective.Sources[k]+")"))
	}
	return nil
}
