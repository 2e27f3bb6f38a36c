// SPDX-License-Identifier: MPL-2.0

// Package cache is a snapshot store with a hard TTL, a staleness threshold,
// and stale-while-revalidate reads.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SchemaVersion tags cached payloads. An entry written under a different
// version is treated as absent, never returned.
const SchemaVersion = 1

type (
	// Clock abstracts time for tests.
	Clock interface {
		Now() time.Time
	}

	// Fetcher produces a fresh payload for a cache key.
	Fetcher[T any] func(ctx context.Context) (T, error)

	// Store holds one snapshot per logical dataset key. Reads within the
	// staleness threshold are served from memory; reads past it are served
	// from memory while a background refresh overwrites the entry; reads
	// past the hard TTL fetch synchronously.
	Store[T any] struct {
		ttl           time.Duration
		staleness     time.Duration
		clock         Clock
		schemaVersion int
		logger        *slog.Logger

		mu      sync.Mutex
		entries map[string]entry[T]

		// group collapses concurrent fetches of the same key, so a stampede
		// of stale reads triggers one refresh.
		group singleflight.Group
	}

	entry[T any] struct {
		payload       T
		fetchedAt     time.Time
		schemaVersion int
	}

	realClock struct{}
)

func (realClock) Now() time.Time { return time.Now() }

// New creates a Store over the wall clock.
func New[T any](ttl, staleness time.Duration) *Store[T] {
	return NewWithClock[T](ttl, staleness, realClock{})
}

// NewWithClock creates a Store with an injected clock for tests.
func NewWithClock[T any](ttl, staleness time.Duration, clock Clock) *Store[T] {
	return &Store[T]{
		ttl:           ttl,
		staleness:     staleness,
		clock:         clock,
		schemaVersion: SchemaVersion,
		logger:        slog.Default().With("component", "cache"),
		entries:       make(map[string]entry[T]),
	}
}

// Get returns the payload for key per the read contract: absent or
// hard-expired entries fetch synchronously; fresh entries return as is;
// stale entries return immediately and refresh in the background. The caller
// is never blocked by a background refresh.
func (s *Store[T]) Get(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	now := s.clock.Now()
	valid := ok && e.schemaVersion == s.schemaVersion && now.Sub(e.fetchedAt) < s.ttl
	stale := valid && now.Sub(e.fetchedAt) > s.staleness
	s.mu.Unlock()

	if !valid {
		return s.fetchAndStore(ctx, key, fetch)
	}

	if stale {
		// Stale-while-revalidate: the refresh runs detached from the
		// caller's lifetime and overwrites the entry on completion.
		bg := context.WithoutCancel(ctx)
		go func() {
			if _, err := s.fetchAndStore(bg, key, fetch); err != nil {
				s.logger.Warn("background refresh failed; keeping stale entry",
					"key", key, "error", err)
			}
		}()
	}

	return e.payload, nil
}

// ForceRefresh bypasses entry state and fetches synchronously.
func (s *Store[T]) ForceRefresh(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	return s.fetchAndStore(ctx, key, fetch)
}

// Invalidate drops the given keys. The next read fetches synchronously.
func (s *Store[T]) Invalidate(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
	}
}

// InvalidateAll drops every entry.
func (s *Store[T]) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry[T])
}

func (s *Store[T]) fetchAndStore(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	payload, err, _ := s.group.Do(key, func() (any, error) {
		fresh, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch %q: %w", key, err)
		}
		s.mu.Lock()
		s.entries[key] = entry[T]{
			payload:       fresh,
			fetchedAt:     s.clock.Now(),
			schemaVersion: s.schemaVersion,
		}
		s.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return payload.(T), nil
}
