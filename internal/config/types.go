// SPDX-License-Identifier: MPL-2.0

package config

import "time"

type (
	// Config is the effective scopehub configuration.
	Config struct {
		// UserRoot overrides the user-scope resource root. Empty means
		// ~/.scopehub.
		UserRoot string `mapstructure:"user_root"`

		// WorkspaceRoots are directories scanned for project descriptors
		// (directories containing a .scopehub/ root).
		WorkspaceRoots []string `mapstructure:"workspace_roots"`

		// IgnorePatterns are doublestar globs excluded from traversal, in
		// addition to the built-in defaults.
		IgnorePatterns []string `mapstructure:"ignore_patterns"`

		// MaxDepth bounds directory recursion below each scan root.
		MaxDepth int `mapstructure:"max_depth"`

		// ScanTimeout bounds one full discovery pass. On expiry, partial
		// results are returned with an incomplete marker.
		ScanTimeout time.Duration `mapstructure:"scan_timeout"`

		Cache  CacheConfig  `mapstructure:"cache"`
		Server ServerConfig `mapstructure:"server"`
		UI     UIConfig     `mapstructure:"ui"`
	}

	// CacheConfig tunes the snapshot cache.
	CacheConfig struct {
		// TTL is the hard expiry; entries older than this are treated as
		// absent.
		TTL time.Duration `mapstructure:"ttl"`
		// Staleness is the threshold past which a cached entry is served
		// immediately but refreshed in the background.
		Staleness time.Duration `mapstructure:"staleness"`
	}

	// ServerConfig tunes the local HTTP service.
	ServerConfig struct {
		// Addr is the listen address. The default binds a random port on
		// loopback.
		Addr string `mapstructure:"addr"`
		// Token enables bearer-token auth when non-empty.
		Token string `mapstructure:"token"`
		// StreamBuffer is the bounded event-channel capacity for streaming
		// discovery; a slow consumer creates backpressure once it fills.
		StreamBuffer int `mapstructure:"stream_buffer"`
	}

	// UIConfig tunes CLI output.
	UIConfig struct {
		Verbose bool `mapstructure:"verbose"`
	}
)

// DefaultConfig returns the built-in defaults used when no config file is
// present.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:    8,
		ScanTimeout: 30 * time.Second,
		Cache: CacheConfig{
			TTL:       24 * time.Hour,
			Staleness: 5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:0",
			StreamBuffer: 64,
		},
	}
}
