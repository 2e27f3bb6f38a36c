// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/scopehub/scopehub/internal/assign"
	"github.com/scopehub/scopehub/internal/issue"
	"github.com/scopehub/scopehub/internal/pathguard"
	"github.com/scopehub/scopehub/internal/resource"

	"github.com/spf13/cobra"
)

// newAssignCommand creates the `scopehub assign` command.
func newAssignCommand(app *App) *cobra.Command {
	var (
		targetProject string
		fromProject   string
		move          bool
		overwrite     bool
	)

	assignCmd := &cobra.Command{
		Use:   "assign <type> <name>",
		Short: "Deploy a resource to another scope",
		Long: `Deploy a cataloged resource to another scope by copy or move.

The source is located by type and name (or qualifier). Without
--from-project the user scope is searched first; without --project the
user scope is the target. Conflicts fail closed unless --overwrite is
given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return assignResource(cmd, app, assignOptions{
				typeArg:       args[0],
				name:          args[1],
				targetProject: targetProject,
				fromProject:   fromProject,
				move:          move,
				overwrite:     overwrite,
			})
		},
	}

	assignCmd.Flags().StringVar(&targetProject, "project", "", "target project directory (default: user scope)")
	assignCmd.Flags().StringVar(&fromProject, "from-project", "", "source project directory (default: user scope first)")
	assignCmd.Flags().BoolVar(&move, "move", false, "remove the source after deploying")
	assignCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an occupied destination")
	return assignCmd
}

type assignOptions struct {
	typeArg       string
	name          string
	targetProject string
	fromProject   string
	move          bool
	overwrite     bool
}

func assignResource(cmd *cobra.Command, app *App, opts assignOptions) error {
	t := resource.Type(opts.typeArg)
	if !t.IsValid() {
		return fmt.Errorf("unknown resource type %q (valid: agent, command, hook, settings, project)", opts.typeArg)
	}

	d, _, err := app.catalog(cmd.Context())
	if err != nil {
		return err
	}

	// One snapshot serves both source resolution and the project allow-list.
	result, err := d.Snapshot(cmd.Context(), nil)
	if err != nil {
		return err
	}

	item := findItem(result.Items, t, opts.name, opts.fromProject)
	if item == nil {
		return issue.NewErrorContext().
			WithOperation("assign resource").
			WithResource(opts.typeArg + " " + opts.name).
			WithSuggestion("run 'scopehub list " + opts.typeArg + "' to see what is cataloged").
			BuildError()
	}

	target := resource.UserScope()
	if opts.targetProject != "" {
		target = resource.ProjectScope(opts.targetProject)
	}

	workingRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

	guard := pathguard.New(d.UserRoot(), workingRoot)
	guard.SetProjectDirs(projectDirs(result))

	engine := assign.New(app.fs, guard, catalogResolver{result: result}, d.UserRoot())

	op := assign.OpCopy
	if opts.move {
		op = assign.OpMove
	}

	res := engine.Assign(cmd.Context(), assign.Request{
		ResourceID: item.ID(),
		Type:       t,
		Target:     target,
		Operation:  op,
		Overwrite:  opts.overwrite,
	})
	if res.Err != nil {
		return assignFailure(res.Err)
	}

	fmt.Fprintf(app.stdout, "%s %s %s %s -> %s\n",
		SuccessStyle.Render("✓"),
		string(op),
		string(t),
		NameStyle.Render(item.Name()),
		res.TargetPath)
	return nil
}

// assignFailure maps the assignment error taxonomy to user-facing errors.
func assignFailure(err error) error {
	switch assign.Kind(err) {
	case "conflict":
		return issue.NewErrorContext().
			WithOperation("assign resource").
			WithSuggestion("pass --overwrite to replace the occupied destination").
			Wrap(err).
			BuildError()
	case "permission":
		return issue.NewErrorContext().
			WithOperation("assign resource").
			WithSuggestion("targets must live under your home root, working directory, or a discovered project").
			Wrap(err).
			BuildError()
	case "partial_failure":
		return issue.NewErrorContext().
			WithOperation("assign resource").
			WithSuggestion("the target was written but the source could not be removed; remove it manually").
			Wrap(err).
			BuildError()
	default:
		return err
	}
}
