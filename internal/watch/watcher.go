// SPDX-License-Identifier: MPL-2.0

// Package watch monitors resource roots and fires a debounced callback when
// files under them change. Events inside the debounce window coalesce, so
// the callback sees one batch with the full set of changed paths. Serve mode
// uses the batches to invalidate cache entries.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is the quiet period after the last event before the
// callback fires, long enough for editor write-then-rename sequences to
// coalesce.
const defaultDebounce = 500 * time.Millisecond

// defaultIgnores are always excluded from watching. They cover VCS metadata,
// dependency caches, editor swap files, and OS metadata noise.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Roots are the directories to watch: the user resource root plus
		// each discovered project's resource root. Roots that do not exist
		// yet are skipped.
		Roots []string

		// Patterns select which files trigger callbacks (doublestar globs,
		// matched against the root-relative path). Empty watches all
		// non-ignored files.
		Patterns []string

		// Ignore are additional glob patterns merged with the built-in
		// defaults.
		Ignore []string

		// Debounce is the quiet period before the callback fires. Zero or
		// negative falls back to the default.
		Debounce time.Duration

		// OnChange receives the deduplicated root-relative paths that
		// changed. A nil callback is a no-op.
		OnChange func(ctx context.Context, changed []string) error
	}

	// Watcher monitors the configured roots. Run must be called exactly
	// once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		debounce time.Duration
		roots    []string
		logger   *slog.Logger
		started  atomic.Bool
	}
)

// New creates a Watcher and registers every non-ignored directory under the
// configured roots.
func New(cfg Config) (*Watcher, error) {
	if err := validatePatterns(cfg.Patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	roots := make([]string, 0, len(cfg.Roots))
	for _, root := range cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		roots = append(roots, abs)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  append(append([]string{}, defaultIgnores...), cfg.Ignore...),
		debounce: debounce,
		roots:    roots,
		logger:   slog.Default().With("component", "watch"),
	}

	if err := w.addRoots(); err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	return w, nil
}

// Run blocks until ctx is canceled, dispatching debounced callbacks. It
// returns nil on clean cancellation and propagates fatal watcher errors. A
// second call returns an error immediately.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire drains the pending set into one OnChange call. The skip-if-busy
	// guard reschedules instead of overlapping callbacks when one runs
	// longer than the debounce window.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Collect(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Warn("change callback failed", "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		localTimer := timer
		mu.Unlock()
		if localTimer != nil && !localTimer.Stop() {
			select {
			case <-localTimer.C:
			default:
			}
		}
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close fsnotify", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watch: fsnotify event channel closed unexpectedly")
			}

			rel, ok := w.relToRoot(evt.Name)
			if !ok || w.isIgnored(rel) || !w.matchesPatterns(rel) {
				continue
			}

			// Directories created after startup join the watch set.
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}

			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// addRoots registers every non-ignored directory under each root. Missing
// roots and inaccessible subdirectories are skipped, not fatal.
func (w *Watcher) addRoots() error {
	for _, root := range w.roots {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				w.logger.Warn("skipping inaccessible path", "path", path, "error", walkErr)
				return nil //nolint:nilerr // intentional skip
			}
			if !d.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil //nolint:nilerr // skip paths that cannot be made relative
			}
			if w.isIgnored(rel) || w.isIgnored(rel+"/") {
				return filepath.SkipDir
			}
			if addErr := w.fsw.Add(path); addErr != nil {
				return fmt.Errorf("watch: add directory %q: %w", path, addErr)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("watch: walk %s: %w", root, err)
		}
	}
	return nil
}

// maybeAddDir extends the watch set when a directory appears under a root.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	rel, ok := w.relToRoot(path)
	if !ok || w.isIgnored(rel) || w.isIgnored(rel+"/") {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn("add new directory", "path", path, "error", err)
	}
}

// relToRoot resolves a path against the root that contains it.
func (w *Watcher) relToRoot(path string) (string, bool) {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || len(rel) > 1 && rel[:2] == ".." {
			continue
		}
		return rel, true
	}
	return "", false
}

func (w *Watcher) isIgnored(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Watcher) matchesPatterns(rel string) bool {
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.cfg.Patterns {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

// validatePatterns rejects invalid globs at construction time rather than
// silently failing to match at runtime.
func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if _, err := doublestar.Match(pat, ""); err != nil {
			return fmt.Errorf("watch: invalid %s pattern %q: %w", label, pat, err)
		}
	}
	return nil
}
