// SPDX-License-Identifier: MPL-2.0

// Package stream drives a discovery scan progressively, emitting items over
// a bounded event channel as they are found.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/scopehub/scopehub/internal/discovery"
	"github.com/scopehub/scopehub/internal/resource"
)

const (
	// EventConnected is emitted once when the stream opens.
	EventConnected EventType = "connected"
	// EventScanStarted is emitted when the scan pass begins.
	EventScanStarted EventType = "scan_started"
	// EventItemFound carries one discovered resource item.
	EventItemFound EventType = "item_found"
	// EventItemError reports a non-fatal per-item failure. It never ends
	// the stream.
	EventItemError EventType = "item_error"
	// EventScanComplete is the final event of a successful pass.
	EventScanComplete EventType = "scan_complete"
	// EventError is the final event of a failed pass.
	EventError EventType = "error"
)

const (
	// StateIdle means the controller has not started.
	StateIdle State = "idle"
	// StateScanning means the producer is emitting events.
	StateScanning State = "scanning"
	// StateComplete means the pass finished and the channel is closed.
	StateComplete State = "complete"
	// StateError means the pass failed fatally.
	StateError State = "error"
	// StateCancelled means the consumer stopped the pass. Items already
	// emitted remain valid.
	StateCancelled State = "cancelled"
)

// ErrAlreadyStarted is returned when Start is called on a spent controller.
var ErrAlreadyStarted = errors.New("stream already started")

type (
	// EventType discriminates stream events.
	EventType string

	// State is the controller lifecycle phase.
	State string

	// Event is one entry of the stream. Item is set for item_found; Code,
	// Message, and Path describe item_error and error events.
	Event struct {
		Type    EventType      `json:"type"`
		Item    *resource.Item `json:"item,omitempty"`
		Code    string         `json:"code,omitempty"`
		Message string         `json:"message,omitempty"`
		Path    string         `json:"path,omitempty"`
	}

	// Source produces a scan pass through callbacks. Discovery implements it.
	Source interface {
		StreamScan(ctx context.Context, types []resource.Type, onItem func(*resource.Item), onDiag func(discovery.Diagnostic)) error
	}

	// Controller runs one scan pass as the single producer of a bounded
	// event channel. A slow consumer creates backpressure on the producer,
	// never unbounded buffering. Controllers are single use.
	Controller struct {
		source Source
		buffer int
		logger *slog.Logger

		mu     sync.Mutex
		state  State
		cancel context.CancelFunc
	}
)

// NewController creates an idle controller. buffer is the event channel
// capacity; values below 1 are clamped to 1.
func NewController(source Source, buffer int) *Controller {
	if buffer < 1 {
		buffer = 1
	}
	return &Controller{
		source: source,
		buffer: buffer,
		logger: slog.Default().With("component", "stream"),
		state:  StateIdle,
	}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancel stops the pass at the scanner's next checkpoint. Events already
// delivered remain valid; the channel closes without a terminal event.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.state == StateScanning {
		c.state = StateCancelled
	}
}

// Start begins the scan pass and returns the event channel. The channel is
// closed after the terminal event (scan_complete or error) or on
// cancellation.
func (c *Controller) Start(ctx context.Context, types []resource.Type) (<-chan Event, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateScanning
	c.mu.Unlock()

	events := make(chan Event, c.buffer)
	go c.run(ctx, types, events)
	return events, nil
}

func (c *Controller) run(ctx context.Context, types []resource.Type, events chan<- Event) {
	defer close(events)

	if !c.send(ctx, events, Event{Type: EventConnected}) {
		c.setState(StateCancelled)
		return
	}
	if !c.send(ctx, events, Event{Type: EventScanStarted}) {
		c.setState(StateCancelled)
		return
	}

	err := c.source.StreamScan(ctx, types,
		func(item *resource.Item) {
			c.send(ctx, events, Event{Type: EventItemFound, Item: item})
		},
		func(d discovery.Diagnostic) {
			// Per-item failures and scan warnings are non-fatal.
			c.send(ctx, events, Event{
				Type:    EventItemError,
				Item:    d.Item,
				Code:    d.Code,
				Message: d.Message,
				Path:    d.Path,
			})
		})

	switch {
	case err == nil:
		c.send(ctx, events, Event{Type: EventScanComplete})
		c.setState(StateComplete)
	case errors.Is(err, context.Canceled):
		c.setState(StateCancelled)
	default:
		c.send(ctx, events, Event{Type: EventError, Code: "scan_failed", Message: err.Error()})
		c.setState(StateError)
		c.logger.Warn("scan pass failed", "error", err)
	}
}

// send delivers one event, blocking for consumer backpressure. It reports
// false when the context ended before the event could be delivered.
func (c *Controller) send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Cancel already recorded the terminal state.
	if c.state == StateScanning {
		c.state = s
	}
}
