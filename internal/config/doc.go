// SPDX-License-Identifier: MPL-2.0

// Package config loads scopehub configuration.
//
// Configuration lives in a config.cue file in the platform config
// directory. The file is validated against an embedded CUE schema and
// merged into viper on top of the built-in defaults, so a missing or
// partial file is never an error.
package config
