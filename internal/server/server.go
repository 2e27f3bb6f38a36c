// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scopehub/scopehub/internal/assign"
	"github.com/scopehub/scopehub/internal/cache"
	"github.com/scopehub/scopehub/internal/discovery"
	"github.com/scopehub/scopehub/internal/resource"
	"github.com/scopehub/scopehub/internal/settings"
)

type (
	// Catalog is the discovery surface the server consumes: one batch scan
	// plus the callback-driven streaming scan.
	Catalog interface {
		Snapshot(ctx context.Context, types []resource.Type) (*discovery.Result, error)
		StreamScan(ctx context.Context, types []resource.Type, onItem func(*resource.Item), onDiag func(discovery.Diagnostic)) error
	}

	// Assigner performs assignments.
	Assigner interface {
		Assign(ctx context.Context, req assign.Request) assign.Result
	}

	// SettingsResolver resolves the effective settings chain.
	SettingsResolver interface {
		Effective(projectPath string) (*settings.Effective, error)
	}

	// Options configures a Server.
	Options struct {
		// Addr is the listen address; empty binds a random loopback port.
		Addr string
		// Token enables bearer auth; empty generates a random token.
		Token string
		// StreamBuffer is the per-stream event channel capacity.
		StreamBuffer int

		Catalog  Catalog
		Assigner Assigner
		Settings SettingsResolver
		// Cache backs the batch endpoint; snapshots are keyed per requested
		// type.
		Cache *cache.Store[*discovery.Result]

		Logger *log.Logger
	}

	// Server is the localhost HTTP service.
	Server struct {
		opts       Options
		httpServer *http.Server
		listener   net.Listener
		addr       string
		token      string
		logger     *log.Logger
	}
)

// New creates a Server bound to its listener. The server does not accept
// connections until Start is called.
func New(opts Options) (*Server, error) {
	if opts.Catalog == nil || opts.Cache == nil {
		return nil, fmt.Errorf("server: catalog and cache are required")
	}

	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen on %s: %w", addr, err)
	}

	token := opts.Token
	if token == "" {
		token, err = generateToken(32)
		if err != nil {
			listener.Close() //nolint:errcheck // best-effort cleanup
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		opts:     opts,
		listener: listener,
		addr:     listener.Addr().String(),
		token:    token,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/resources", s.auth(s.handleResources))
	mux.HandleFunc("GET /api/resources/stream", s.auth(s.handleStream))
	mux.HandleFunc("POST /api/assign", s.auth(s.handleAssign))
	mux.HandleFunc("GET /api/settings", s.auth(s.handleSettings))

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses are long-lived
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start begins accepting connections. Non-blocking.
func (s *Server) Start() {
	s.logger.Info("listening", "addr", s.addr)
	go func() {
		if err := s.httpServer.Serve(s.listener); err != http.ErrServerClosed {
			s.logger.Error("serve failed", "error", err)
		}
	}()
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Address returns the bound address (e.g. "127.0.0.1:54321").
func (s *Server) Address() string { return s.addr }

// URL returns the base URL of the service.
func (s *Server) URL() string { return "http://" + s.addr }

// Token returns the bearer token clients must present.
func (s *Server) Token() string { return s.token }

// InvalidateCache drops the given dataset keys; the watcher calls this when
// resource roots change.
func (s *Server) InvalidateCache(keys ...string) {
	if len(keys) == 0 {
		s.opts.Cache.InvalidateAll()
		return
	}
	s.opts.Cache.Invalidate(keys...)
}

// auth enforces the bearer token.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("server: generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
