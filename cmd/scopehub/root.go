// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for scopehub.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/scopehub/scopehub/internal/config"
	"github.com/scopehub/scopehub/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "scopehub",
		Short: "A resource catalog for assistant configuration",
		Long: TitleStyle.Render("scopehub") + SubtitleStyle.Render(" - A resource catalog for assistant configuration") + `

scopehub discovers agents, commands, hooks, settings, and project
descriptors across your user scope (~/.scopehub) and every known
project scope, and deploys them between scopes by copy or move.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Put agent and command markdown files under ~/.scopehub/
  2. Register projects in ~/.scopehub/projects.json
  3. Inspect the catalog with: scopehub list

` + SubtitleStyle.Render("Examples:") + `
  scopehub list                 Catalog every resource in every scope
  scopehub list agent           Catalog agents only
  scopehub show agent reviewer  Render an agent definition
  scopehub assign agent reviewer --project ~/src/api
  scopehub settings --project ~/src/api
  scopehub serve                Run the local HTTP service`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/scopehub/config.cue)")

	app := newApp()
	rootCmd.AddCommand(newListCommand(app))
	rootCmd.AddCommand(newShowCommand(app))
	rootCmd.AddCommand(newAssignCommand(app))
	rootCmd.AddCommand(newSettingsCommand(app))
	rootCmd.AddCommand(newServeCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initRootConfig reads in config file and ENV variables if set.
func initRootConfig() {
	cfg, err := config.NewProvider().Load(context.Background(), config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		// Always surface config loading errors to the user
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
	}

	// Apply verbose from config if not set via flag
	if cfg != nil && !verbose {
		verbose = cfg.UI.Verbose
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}
