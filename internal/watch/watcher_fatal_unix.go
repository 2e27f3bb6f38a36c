// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import (
	"errors"
	"syscall"
)

// isFatalFsnotifyError classifies errors after which the watcher cannot
// recover. On Linux these are inotify resource exhaustion: ENOSPC (watch
// limit), EMFILE (per-process fd limit), ENFILE (system-wide fd limit).
func isFatalFsnotifyError(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
