// SPDX-License-Identifier: MPL-2.0

// Package assign deploys a cataloged resource to another scope by copy or
// move. The catalog is never mutated here; the next scan pass reflects the
// new filesystem truth.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/scopehub/scopehub/internal/config"
	"github.com/scopehub/scopehub/internal/pathguard"
	"github.com/scopehub/scopehub/internal/resource"
)

const (
	// OpCopy duplicates the resource at the target scope.
	OpCopy Operation = "copy"
	// OpMove deploys to the target scope and removes the source afterwards.
	OpMove Operation = "move"
)

type (
	// Operation is the assignment mode.
	Operation string

	// Request describes one assignment.
	Request struct {
		ResourceID resource.ID    `json:"resourceId"`
		Type       resource.Type  `json:"resourceType"`
		Target     resource.Scope `json:"targetScope"`
		Operation  Operation      `json:"operation"`
		// Overwrite permits replacing an occupied destination. The default
		// is fail-closed: conflicts error out with no filesystem change.
		Overwrite bool `json:"overwrite,omitempty"`
	}

	// Result reports one assignment outcome. Err is nil on success.
	Result struct {
		Success    bool        `json:"success"`
		ResourceID resource.ID `json:"resourceId"`
		Operation  Operation   `json:"operation"`
		TargetPath string      `json:"targetPath,omitempty"`
		Err        error       `json:"-"`
	}

	// Resolver looks a resource up by catalog identity. Discovery-backed
	// services resolve against their latest snapshot.
	Resolver interface {
		Resolve(ctx context.Context, id resource.ID) (*resource.Item, bool, error)
	}

	// Engine performs assignments. At most one operation is in flight per
	// destination path (file path or merged-document path); disjoint
	// destinations proceed concurrently without global locking.
	Engine struct {
		fs       afero.Fs
		guard    *pathguard.Guard
		resolver Resolver
		userRoot string
		logger   *slog.Logger

		mu    sync.Mutex
		locks map[string]*sync.Mutex
	}
)

// New creates an Engine over an injected filesystem.
func New(afs afero.Fs, guard *pathguard.Guard, resolver Resolver, userRoot string) *Engine {
	return &Engine{
		fs:       afs,
		guard:    guard,
		resolver: resolver,
		userRoot: filepath.Clean(userRoot),
		logger:   slog.Default().With("component", "assign"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Assign performs one copy or move. Failures are classified (validation,
// conflict, permission, partial failure) and returned in the result; writes
// are never silently retried.
func (e *Engine) Assign(ctx context.Context, req Request) Result {
	res := Result{ResourceID: req.ResourceID, Operation: req.Operation}

	if req.Operation != OpCopy && req.Operation != OpMove {
		res.Err = &ValidationError{Reason: fmt.Sprintf("unknown operation %q", req.Operation)}
		return res
	}
	if err := req.Target.Validate(); err != nil {
		res.Err = &ValidationError{Reason: err.Error()}
		return res
	}

	item, ok, err := e.resolver.Resolve(ctx, req.ResourceID)
	if err != nil {
		res.Err = fmt.Errorf("resolve %s: %w", req.ResourceID, err)
		return res
	}
	if !ok {
		res.Err = &ValidationError{Reason: fmt.Sprintf("resource %s not cataloged", req.ResourceID)}
		return res
	}
	if req.Type != "" && req.Type != item.Type {
		res.Err = &ValidationError{
			Path:   item.SourcePath,
			Reason: fmt.Sprintf("resource is a %s, not a %s", item.Type, req.Type),
		}
		return res
	}
	// Project descriptors are catalog records about where projects live,
	// not deployable artifacts; there is no meaningful target layout for
	// them at another scope.
	if item.Type == resource.TypeProject {
		res.Err = &ValidationError{
			Path:   item.SourcePath,
			Reason: "project descriptors cannot be assigned",
		}
		return res
	}

	targetRoot := e.scopeRoot(req.Target)

	if doc, key, embedded := resource.SplitEmbeddedQualifier(item.Qualifier); embedded {
		res.Err = e.assignEmbedded(item, req, filepath.Join(targetRoot, filepath.FromSlash(doc)), key, &res)
	} else if item.Type.DocumentMerged() {
		res.Err = e.assignDocument(item, req, filepath.Join(targetRoot, filepath.FromSlash(item.Qualifier)), &res)
	} else {
		res.Err = e.assignFile(item, req, filepath.Join(targetRoot, filepath.FromSlash(item.Qualifier)), &res)
	}

	if res.Err == nil {
		res.Success = true
		e.logger.Info("assignment applied",
			"resource", string(req.ResourceID),
			"operation", string(req.Operation),
			"target", res.TargetPath)
	}
	return res
}

// scopeRoot maps a scope to its resource root directory.
func (e *Engine) scopeRoot(s resource.Scope) string {
	if s.Kind == resource.ScopeProject {
		return filepath.Join(s.ProjectPath, config.UserRootDirName)
	}
	return e.userRoot
}

// assignFile deploys a standalone file-backed resource: read source, ensure
// the target directory, write, and for a move delete the source only after
// the write is confirmed.
func (e *Engine) assignFile(item *resource.Item, req Request, targetPath string, res *Result) error {
	unlock := e.lockPaths(targetPath)
	defer unlock()

	if err := e.checkPaths(item.SourcePath, targetPath); err != nil {
		return err
	}
	if targetPath == item.SourcePath {
		return &ValidationError{Path: targetPath, Reason: "source and destination are the same file"}
	}

	if !req.Overwrite {
		if ok, _ := afero.Exists(e.fs, targetPath); ok {
			return &ConflictError{Path: targetPath}
		}
	}

	data, err := afero.ReadFile(e.fs, item.SourcePath)
	if err != nil {
		return classifyRead(item.SourcePath, err)
	}

	if err := e.fs.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return classifyWrite(targetPath, err)
	}
	if err := afero.WriteFile(e.fs, targetPath, data, 0o644); err != nil {
		return classifyWrite(targetPath, err)
	}
	res.TargetPath = targetPath

	if req.Operation == OpMove {
		if err := e.fs.Remove(item.SourcePath); err != nil {
			return &PartialFailure{TargetPath: targetPath, SourcePath: item.SourcePath, Cause: err}
		}
	}
	return nil
}

// assignDocument deploys a whole settings document by merging its top-level
// keys into the destination document rather than writing a standalone file.
func (e *Engine) assignDocument(item *resource.Item, req Request, targetPath string, res *Result) error {
	unlock := e.lockPaths(targetPath)
	defer unlock()

	if err := e.checkPaths(item.SourcePath, targetPath); err != nil {
		return err
	}
	if targetPath == item.SourcePath {
		return &ValidationError{Path: targetPath, Reason: "source and destination are the same document"}
	}

	srcData, err := afero.ReadFile(e.fs, item.SourcePath)
	if err != nil {
		return classifyRead(item.SourcePath, err)
	}
	srcDoc, err := resource.ParseSettingsDoc(srcData)
	if err != nil {
		return &ValidationError{Path: item.SourcePath, Reason: fmt.Sprintf("source is not a valid settings document: %v", err)}
	}

	destDoc, err := e.readDocument(targetPath)
	if err != nil {
		return err
	}

	if !req.Overwrite {
		for _, key := range resource.TopLevelKeys(srcDoc) {
			if _, occupied := destDoc[key]; occupied {
				return &ConflictError{Path: targetPath, Key: key}
			}
		}
	}
	for key, value := range srcDoc {
		destDoc[key] = value
	}

	if err := e.writeDocument(targetPath, destDoc); err != nil {
		return err
	}
	res.TargetPath = targetPath

	if req.Operation == OpMove {
		if err := e.fs.Remove(item.SourcePath); err != nil {
			return &PartialFailure{TargetPath: targetPath, SourcePath: item.SourcePath, Cause: err}
		}
	}
	return nil
}

// assignEmbedded deploys a hook that lives inside a settings document,
// read-modify-writing the destination document with the hook name as the
// merge key. A move also rewrites the source document to drop the entry.
func (e *Engine) assignEmbedded(item *resource.Item, req Request, targetPath, key string, res *Result) error {
	meta, ok := item.Meta.(resource.HookMeta)
	if !ok {
		return &ValidationError{Path: item.SourcePath, Reason: "embedded resource has no usable hook metadata"}
	}

	// The move rewrites both documents; lock both destinations.
	unlock := e.lockPaths(targetPath, item.SourcePath)
	defer unlock()

	if err := e.checkPaths(item.SourcePath, targetPath); err != nil {
		return err
	}
	if targetPath == item.SourcePath {
		return &ValidationError{Path: targetPath, Reason: "source and destination are the same document"}
	}

	destDoc, err := e.readDocument(targetPath)
	if err != nil {
		return err
	}

	hooks, _ := destDoc[resource.HooksKey].(map[string]any)
	if hooks == nil {
		hooks = map[string]any{}
	}
	if _, occupied := hooks[key]; occupied && !req.Overwrite {
		return &ConflictError{Path: targetPath, Key: resource.HooksKey + "." + key}
	}
	hooks[key] = meta.HookEntry()
	destDoc[resource.HooksKey] = hooks

	if err := e.writeDocument(targetPath, destDoc); err != nil {
		return err
	}
	res.TargetPath = targetPath

	if req.Operation == OpMove {
		if err := e.removeEmbedded(item.SourcePath, key); err != nil {
			return &PartialFailure{TargetPath: targetPath, SourcePath: item.SourcePath, Cause: err}
		}
	}
	return nil
}

// removeEmbedded drops one hook entry from a source settings document.
func (e *Engine) removeEmbedded(docPath, key string) error {
	data, err := afero.ReadFile(e.fs, docPath)
	if err != nil {
		return err
	}
	doc, err := resource.ParseSettingsDoc(data)
	if err != nil {
		return err
	}
	hooks, ok := doc[resource.HooksKey].(map[string]any)
	if !ok {
		return nil // already gone
	}
	delete(hooks, key)
	if len(hooks) == 0 {
		delete(doc, resource.HooksKey)
	}
	return e.writeDocumentRaw(docPath, doc)
}

// readDocument loads a destination settings document; an absent document is
// an empty tree, a malformed one is a validation failure (never overwritten
// blindly).
func (e *Engine) readDocument(path string) (map[string]any, error) {
	data, err := afero.ReadFile(e.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, classifyRead(path, err)
	}
	doc, err := resource.ParseSettingsDoc(data)
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: fmt.Sprintf("destination document is malformed: %v", err)}
	}
	return doc, nil
}

func (e *Engine) writeDocument(path string, doc map[string]any) error {
	if err := e.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return classifyWrite(path, err)
	}
	return e.writeDocumentRaw(path, doc)
}

func (e *Engine) writeDocumentRaw(path string, doc map[string]any) error {
	data, err := resource.EncodeSettingsDoc(doc)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(e.fs, path, data, 0o644); err != nil {
		return classifyWrite(path, err)
	}
	return nil
}

// checkPaths applies the allow-list to both endpoints.
func (e *Engine) checkPaths(source, target string) error {
	if err := e.guard.Check(source); err != nil {
		return &PermissionError{Path: source, Cause: err}
	}
	if err := e.guard.Check(target); err != nil {
		return &PermissionError{Path: target, Cause: err}
	}
	return nil
}

// lockPaths serializes operations on the given destination paths. Paths are
// acquired in sorted order so concurrent multi-path operations cannot
// deadlock.
func (e *Engine) lockPaths(paths ...string) func() {
	sorted := append([]string{}, paths...)
	sort.Strings(sorted)

	locks := make([]*sync.Mutex, 0, len(sorted))
	seen := map[string]bool{}
	for _, p := range sorted {
		if seen[p] {
			continue
		}
		seen[p] = true
		locks = append(locks, e.lockFor(p))
	}

	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (e *Engine) lockFor(path string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[path]
	if !ok {
		l = &sync.Mutex{}
		e.locks[path] = l
	}
	return l
}

func classifyRead(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return &ValidationError{Path: path, Reason: "source does not exist"}
	}
	if errors.Is(err, os.ErrPermission) {
		return &PermissionError{Path: path, Cause: err}
	}
	return fmt.Errorf("read %s: %w", path, err)
}

func classifyWrite(path string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		return &PermissionError{Path: path, Cause: err}
	}
	return fmt.Errorf("write %s: %w", path, err)
}
