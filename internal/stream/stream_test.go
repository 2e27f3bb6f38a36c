// SPDX-License-Identifier: MPL-2.0

package stream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/scopehub/scopehub/internal/config"
	"github.com/scopehub/scopehub/internal/discovery"
	"github.com/scopehub/scopehub/internal/resource"

	"github.com/spf13/afero"
)

// gatedSource emits one item per gate tick, checking cancellation between
// emissions the way a real scanner checks between directory visits.
type gatedSource struct {
	total int
	gate  chan struct{}
}

func (s *gatedSource) StreamScan(ctx context.Context, _ []resource.Type, onItem func(*resource.Item), _ func(discovery.Diagnostic)) error {
	for i := 0; i < s.total; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.gate:
		}
		onItem(&resource.Item{
			Type:      resource.TypeAgent,
			Scope:     resource.UserScope(),
			Qualifier: fmt.Sprintf("agents/a%d.md", i),
			Meta:      resource.AgentMeta{Name: fmt.Sprintf("a%d", i)},
			Active:    true,
		})
	}
	return nil
}

func mustRecv(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed early")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestStreamEmitsExactEventSequence(t *testing.T) {
	const userRoot = "/home/dev/.scopehub"
	afs := afero.NewMemMapFs()
	wellFormed, malformed := 4, 2
	for i := 0; i < wellFormed; i++ {
		path := fmt.Sprintf("%s/agents/a%d.md", userRoot, i)
		doc := fmt.Sprintf("---\nname: a%d\n---\nBody.\n", i)
		if err := afero.WriteFile(afs, path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < malformed; i++ {
		path := fmt.Sprintf("%s/agents/bad%d.md", userRoot, i)
		if err := afero.WriteFile(afs, path, []byte("no header\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.DefaultConfig()
	source := discovery.NewWithFs(cfg, afs, userRoot)
	ctrl := NewController(source, 8)

	events, err := ctrl.Start(context.Background(), []resource.Type{resource.TypeAgent})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var seq []EventType
	for ev := range events {
		seq = append(seq, ev.Type)
	}

	if seq[0] != EventConnected || seq[1] != EventScanStarted {
		t.Errorf("stream preamble = %v", seq[:2])
	}
	if last := seq[len(seq)-1]; last != EventScanComplete {
		t.Errorf("terminal event = %v, want scan_complete", last)
	}

	counts := map[EventType]int{}
	for _, typ := range seq {
		counts[typ]++
	}
	if counts[EventItemFound] != wellFormed {
		t.Errorf("item_found = %d, want %d", counts[EventItemFound], wellFormed)
	}
	if counts[EventItemError] != malformed {
		t.Errorf("item_error = %d, want %d", counts[EventItemError], malformed)
	}
	if counts[EventScanComplete] != 1 {
		t.Errorf("scan_complete = %d, want 1", counts[EventScanComplete])
	}

	if got := ctrl.State(); got != StateComplete {
		t.Errorf("state = %v, want complete", got)
	}
}

func TestStreamCancelDeliversExactlyEmittedItems(t *testing.T) {
	const total, emitBeforeCancel = 10, 3
	source := &gatedSource{total: total, gate: make(chan struct{})}
	ctrl := NewController(source, 1)

	events, err := ctrl.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if ev := mustRecv(t, events); ev.Type != EventConnected {
		t.Fatalf("first event = %v", ev.Type)
	}
	if ev := mustRecv(t, events); ev.Type != EventScanStarted {
		t.Fatalf("second event = %v", ev.Type)
	}

	var items []*resource.Item
	for i := 0; i < emitBeforeCancel; i++ {
		source.gate <- struct{}{}
		ev := mustRecv(t, events)
		if ev.Type != EventItemFound {
			t.Fatalf("event %d = %v, want item_found", i, ev.Type)
		}
		items = append(items, ev.Item)
	}

	ctrl.Cancel()

	// The channel closes without further item_found events; no terminal
	// event is emitted on cancellation.
	for ev := range events {
		if ev.Type == EventItemFound {
			t.Errorf("item_found after cancel: %+v", ev.Item)
		}
	}

	if len(items) != emitBeforeCancel {
		t.Fatalf("usable items = %d, want %d", len(items), emitBeforeCancel)
	}
	for _, item := range items {
		if item == nil || item.Meta == nil {
			t.Error("emitted item is not usable after cancel")
		}
	}
	if got := ctrl.State(); got != StateCancelled {
		t.Errorf("state = %v, want cancelled", got)
	}
}

func TestStreamControllerIsSingleUse(t *testing.T) {
	source := &gatedSource{total: 0, gate: make(chan struct{})}
	ctrl := NewController(source, 1)

	events, err := ctrl.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for range events {
	}

	if _, err := ctrl.Start(context.Background(), nil); err != ErrAlreadyStarted {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStreamItemErrorIsNonFatal(t *testing.T) {
	source := sourceFunc(func(ctx context.Context, _ []resource.Type, onItem func(*resource.Item), onDiag func(discovery.Diagnostic)) error {
		onDiag(discovery.Diagnostic{Severity: discovery.SeverityError, Code: "agent_parse_error", Path: "/x/a.md"})
		onItem(&resource.Item{Type: resource.TypeAgent, Scope: resource.UserScope(), Qualifier: "agents/b.md"})
		return nil
	})
	ctrl := NewController(source, 4)

	events, err := ctrl.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var seq []EventType
	for ev := range events {
		seq = append(seq, ev.Type)
	}
	want := []EventType{EventConnected, EventScanStarted, EventItemError, EventItemFound, EventScanComplete}
	if len(seq) != len(want) {
		t.Fatalf("sequence = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", seq, want)
		}
	}
}

// sourceFunc adapts a function to the Source interface.
type sourceFunc func(context.Context, []resource.Type, func(*resource.Item), func(discovery.Diagnostic)) error

func (f sourceFunc) StreamScan(ctx context.Context, types []resource.Type, onItem func(*resource.Item), onDiag func(discovery.Diagnostic)) error {
	return f(ctx, types, onItem, onDiag)
}
