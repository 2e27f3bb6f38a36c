// SPDX-License-Identifier: MPL-2.0

package assign

import (
	"errors"
	"fmt"
)

type (
	// ValidationError reports a bad target or a missing source. Nothing was
	// written.
	ValidationError struct {
		Path   string
		Reason string
	}

	// ConflictError reports an occupied destination with no overwrite
	// permitted. Nothing was written.
	ConflictError struct {
		Path string
		Key  string // merge key for document-merged destinations
	}

	// PermissionError reports denied filesystem access, including allow-list
	// rejections.
	PermissionError struct {
		Path  string
		Cause error
	}

	// PartialFailure reports a move whose write succeeded but whose source
	// cleanup failed. The target is correct; the source needs manual
	// attention. The write is never undone, prioritizing no data loss over
	// strict atomicity.
	PartialFailure struct {
		TargetPath string
		SourcePath string
		Cause      error
	}
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid assignment: %s (%s)", e.Reason, e.Path)
}

func (e *ConflictError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("destination %s already holds key %q and overwrite was not requested", e.Path, e.Key)
	}
	return fmt.Sprintf("destination %s already exists and overwrite was not requested", e.Path)
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Path)
}

func (e *PermissionError) Unwrap() error { return e.Cause }

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("written to %s but source cleanup failed at %s: %v", e.TargetPath, e.SourcePath, e.Cause)
}

func (e *PartialFailure) Unwrap() error { return e.Cause }

// Kind classifies an assignment error for wire and CLI rendering.
func Kind(err error) string {
	var (
		validation *ValidationError
		conflict   *ConflictError
		permission *PermissionError
		partial    *PartialFailure
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &permission):
		return "permission"
	case errors.As(err, &partial):
		return "partial_failure"
	default:
		return "internal"
	}
}
