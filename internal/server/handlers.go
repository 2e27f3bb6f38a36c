// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/scopehub/scopehub/internal/assign"
	"github.com/scopehub/scopehub/internal/discovery"
	"github.com/scopehub/scopehub/internal/pathguard"
	"github.com/scopehub/scopehub/internal/resource"
	"github.com/scopehub/scopehub/internal/stream"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleResources serves batch discovery through the snapshot cache. The
// "type" query selects one resource type ("all" or empty covers every type);
// "refresh" forces a synchronous rescan regardless of cache state.
func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	types, key, err := parseTypeQuery(r.URL.Query().Get("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fetch := func(ctx context.Context) (*discovery.Result, error) {
		return s.opts.Catalog.Snapshot(ctx, types)
	}

	var result *discovery.Result
	if r.URL.Query().Get("refresh") != "" {
		result, err = s.opts.Cache.ForceRefresh(r.Context(), key, fetch)
	} else {
		result, err = s.opts.Cache.Get(r.Context(), key, fetch)
	}
	if err != nil {
		s.logger.Error("discovery failed", "error", err)
		http.Error(w, "discovery failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ResourcesResponse{
		Items:       result.Items,
		Diagnostics: toDiagnosticPayloads(result.Diagnostics),
		Incomplete:  result.Incomplete,
	})
}

// handleStream serves discovery as server-sent events: one event per
// protocol entry (connected, scan_started, item_found, item_error,
// scan_complete, error). Client disconnect cancels the scan at its next
// checkpoint.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	types, _, err := parseTypeQuery(r.URL.Query().Get("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctrl := stream.NewController(s.opts.Catalog, s.opts.StreamBuffer)
	events, err := ctrl.Start(r.Context(), types)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("encode stream event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
			// Consumer went away; the request context cancels the scan.
			return
		}
		flusher.Flush()
	}
}

// handleAssign performs one synchronous assignment.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	if s.opts.Assigner == nil {
		http.Error(w, "assignment not available", http.StatusNotImplemented)
		return
	}

	var req assign.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	res := s.opts.Assigner.Assign(r.Context(), req)
	status := http.StatusOK
	if res.Err != nil {
		status = statusForAssignError(res.Err)
	} else {
		// The catalog changed on disk; drop cached snapshots so the next
		// batch read rescans.
		s.opts.Cache.InvalidateAll()
	}
	writeJSON(w, status, toAssignResponse(res))
}

// handleSettings serves the effective settings for an optional project.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.opts.Settings == nil {
		http.Error(w, "settings not available", http.StatusNotImplemented)
		return
	}

	effective, err := s.opts.Settings.Effective(r.URL.Query().Get("project"))
	if err != nil {
		if errors.Is(err, pathguard.ErrDenied) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, effective)
}

func parseTypeQuery(raw string) ([]resource.Type, string, error) {
	if raw == "" || raw == "all" {
		return nil, "resources:all", nil
	}
	t := resource.Type(raw)
	if !t.IsValid() {
		return nil, "", fmt.Errorf("unknown resource type %q", raw)
	}
	return []resource.Type{t}, "resources:" + raw, nil
}

func statusForAssignError(err error) int {
	switch assign.Kind(err) {
	case "validation":
		return http.StatusUnprocessableEntity
	case "conflict":
		return http.StatusConflict
	case "permission":
		return http.StatusForbidden
	case "partial_failure":
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
