// SPDX-License-Identifier: MPL-2.0

package discovery

import "github.com/scopehub/scopehub/internal/resource"

const (
	// SeverityWarning indicates a recoverable scan warning.
	SeverityWarning Severity = "warning"
	// SeverityError indicates a non-fatal per-item scan error.
	SeverityError Severity = "error"
)

type (
	// Severity represents scan diagnostic severity.
	Severity string

	// Diagnostic is a structured scan diagnostic returned to callers
	// (rather than written to stderr) for consistent rendering policy.
	Diagnostic struct {
		// Severity is the diagnostic level (warning or error).
		Severity Severity
		// Code is a machine-readable identifier (e.g., "agent_parse_error").
		Code string
		// Message is the human-readable description.
		Message string
		// Path is the file path associated with this diagnostic (optional).
		Path string
		// Cause is the underlying error (optional, for programmatic inspection).
		Cause error
		// Item is the partial record for parse errors (optional). The file
		// stays visible in the catalog even when its metadata is broken.
		Item *resource.Item
	}

	// Result bundles one scan pass: the deduplicated catalog items plus the
	// diagnostics produced while building them. Incomplete is set when the
	// scan timed out or was canceled before covering every scope.
	Result struct {
		Items       []*resource.Item
		Diagnostics []Diagnostic
		Incomplete  bool
	}
)
