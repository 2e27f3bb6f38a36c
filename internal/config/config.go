// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/scopehub/scopehub/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name, used for config and resource paths.
	AppName = "scopehub"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// UserRootDirName is the user-scope resource root under the home
	// directory; the same name is used for per-project roots.
	UserRootDirName = ".scopehub"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the scopehub configuration directory using
// platform-specific conventions: Windows uses %APPDATA%, macOS uses
// ~/Library/Application Support, and Linux/others use $XDG_CONFIG_HOME
// (defaulting to ~/.config).
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// UserRoot resolves the user-scope resource root: the configured override
// when set, otherwise ~/.scopehub.
func (c *Config) ResolveUserRoot() (string, error) {
	if c.UserRoot != "" {
		return filepath.Clean(c.UserRoot), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, UserRootDirName), nil
}

// loadWithOptions performs option-driven config loading. A missing file is
// not an error; the defaults apply.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("user_root", defaults.UserRoot)
	v.SetDefault("workspace_roots", defaults.WorkspaceRoots)
	v.SetDefault("ignore_patterns", defaults.IgnorePatterns)
	v.SetDefault("max_depth", defaults.MaxDepth)
	v.SetDefault("scan_timeout", defaults.ScanTimeout)
	v.SetDefault("cache.ttl", defaults.Cache.TTL)
	v.SetDefault("cache.staleness", defaults.Cache.Staleness)
	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.token", defaults.Server.Token)
	v.SetDefault("server.stream_buffer", defaults.Server.StreamBuffer)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	resolvedPath := ""

	if opts.ConfigFilePath != "" {
		// An explicitly requested file must exist and parse.
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'scopehub config show' to see the effective configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the values match the expected schema").
				Wrap(err).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir := opts.ConfigDirPath
		if cfgDir == "" {
			var err error
			cfgDir, err = ConfigDir()
			if err != nil {
				return nil, "", err
			}
		}

		cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
		if fileExists(cuePath) {
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", issue.NewErrorContext().
					WithOperation("load configuration").
					WithResource(cuePath).
					WithSuggestion("Check that the file contains valid CUE syntax").
					WithSuggestion("Remove the file to fall back to defaults").
					Wrap(err).
					BuildError()
			}
			resolvedPath = cuePath
		}
		// No config file found: defaults apply, no error.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, resolvedPath, nil
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config
// schema, and merges its contents into viper. Concrete(false) is used
// because every config field is optional.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return fmt.Errorf("invalid CUE in %s: %w", path, userValue.Err())
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("config %s does not match schema: %w", path, err)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a default config file if none exists.
func CreateDefaultConfig() (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil // already present
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, nil
}

// GenerateCUE renders a CUE representation of the configuration.
func GenerateCUE(cfg *Config) string {
	out := "// scopehub configuration file.\n\n"

	if cfg.UserRoot != "" {
		out += fmt.Sprintf("user_root: %q\n", cfg.UserRoot)
	}
	if len(cfg.WorkspaceRoots) > 0 {
		out += "workspace_roots: [\n"
		for _, root := range cfg.WorkspaceRoots {
			out += fmt.Sprintf("\t%q,\n", root)
		}
		out += "]\n"
	}
	out += fmt.Sprintf("max_depth:    %d\n", cfg.MaxDepth)
	out += fmt.Sprintf("scan_timeout: %q\n", cfg.ScanTimeout.String())

	out += "\ncache: {\n"
	out += fmt.Sprintf("\tttl:       %q\n", cfg.Cache.TTL.String())
	out += fmt.Sprintf("\tstaleness: %q\n", cfg.Cache.Staleness.String())
	out += "}\n"

	out += "\nserver: {\n"
	out += fmt.Sprintf("\taddr:          %q\n", cfg.Server.Addr)
	out += fmt.Sprintf("\tstream_buffer: %d\n", cfg.Server.StreamBuffer)
	out += "}\n"

	out += "\nui: {\n"
	out += fmt.Sprintf("\tverbose: %v\n", cfg.UI.Verbose)
	out += "}\n"

	return out
}
