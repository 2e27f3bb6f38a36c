// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/scopehub/scopehub/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `scopehub config` command tree.
// Subcommands that read configuration use the App's ConfigProvider.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage scopehub configuration",
		Long: `Manage scopehub configuration.

Configuration is stored in:
  - Linux: ~/.config/scopehub/config.cue
  - macOS: ~/Library/Application Support/scopehub/config.cue
  - Windows: %APPDATA%\scopehub\config.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfigFile()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output raw configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Print(config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}

	keyStyle := NameStyle
	valueStyle := SuccessStyle

	fmt.Println(TitleStyle.Render("Current Configuration"))
	fmt.Println()

	cfgDir, dirErr := config.ConfigDir()
	if dirErr == nil && fileExistsCheck(cfgDir+"/config.cue") {
		fmt.Printf("%s: %s\n", keyStyle.Render("Config file"), cfgDir+"/config.cue")
	} else {
		fmt.Printf("%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Println()

	userRoot, rootErr := cfg.ResolveUserRoot()
	if rootErr != nil {
		userRoot = cfg.UserRoot
	}
	fmt.Printf("%s: %s\n", keyStyle.Render("user_root"), valueStyle.Render(userRoot))
	fmt.Printf("%s: %s\n", keyStyle.Render("max_depth"), valueStyle.Render(fmt.Sprintf("%d", cfg.MaxDepth)))
	fmt.Printf("%s: %s\n", keyStyle.Render("scan_timeout"), valueStyle.Render(cfg.ScanTimeout.String()))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("workspace_roots"))
	if len(cfg.WorkspaceRoots) == 0 {
		fmt.Printf("  %s\n", SubtitleStyle.Render("(none configured)"))
	} else {
		for _, root := range cfg.WorkspaceRoots {
			fmt.Printf("  - %s\n", valueStyle.Render(root))
		}
	}

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("ignore_patterns"))
	if len(cfg.IgnorePatterns) == 0 {
		fmt.Printf("  %s\n", SubtitleStyle.Render("(built-in defaults only)"))
	} else {
		for _, pat := range cfg.IgnorePatterns {
			fmt.Printf("  - %s\n", valueStyle.Render(pat))
		}
	}

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("cache"))
	fmt.Printf("  ttl: %s\n", valueStyle.Render(cfg.Cache.TTL.String()))
	fmt.Printf("  staleness: %s\n", valueStyle.Render(cfg.Cache.Staleness.String()))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("server"))
	fmt.Printf("  addr: %s\n", valueStyle.Render(cfg.Server.Addr))
	fmt.Printf("  stream_buffer: %s\n", valueStyle.Render(fmt.Sprintf("%d", cfg.Server.StreamBuffer)))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("ui"))
	fmt.Printf("  verbose: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.UI.Verbose)))

	return nil
}

func initConfigFile() error {
	path, err := config.CreateDefaultConfig()
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}

	fmt.Printf("%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func showConfigPath() error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}

	fmt.Printf("Config directory: %s\n", cfgDir)
	fmt.Printf("Config file: %s/config.cue\n", cfgDir)
	return nil
}

// fileExistsCheck checks if a file exists and is not a directory.
func fileExistsCheck(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
