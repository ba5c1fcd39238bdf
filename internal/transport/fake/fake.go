// Package fake provides a scripted in-memory channel for tests.
package fake

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/schema"
	"github.com/ychx/walrus/internal/transport"
)

// Handler scripts the server side of one method.
type Handler func(params json.RawMessage) (any, error)

// Channel is an in-memory transport.Channel driven by scripted handlers and
// explicitly pushed events.
type Channel struct {
	mu        sync.Mutex
	handlers  map[schema.Method]Handler
	events    chan *schema.Event
	calls     []schema.Method
	connected bool
	lost      bool
}

// New constructs a fake channel with an unbounded-ish event buffer.
func New() *Channel {
	return &Channel{
		handlers:  make(map[schema.Method]Handler),
		events:    make(chan *schema.Event, 1024),
		calls:     nil,
		connected: false,
		lost:      false,
	}
}

// Handle scripts the response for a method.
func (c *Channel) Handle(method schema.Method, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = h
}

// HandleOK scripts a fixed successful payload for a method.
func (c *Channel) HandleOK(method schema.Method, payload any) {
	c.Handle(method, func(json.RawMessage) (any, error) { return payload, nil })
}

// Connect marks the channel connected.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

// Call dispatches to the scripted handler for the method.
func (c *Channel) Call(ctx context.Context, method schema.Method, params any) *transport.Result {
	c.mu.Lock()
	c.calls = append(c.calls, method)
	handler, ok := c.handlers[method]
	lost := c.lost
	c.mu.Unlock()

	if lost {
		return transport.Completed(nil, errs.New("fake/call", errs.CodeNetwork,
			errs.WithMessage("connection lost")))
	}
	if !ok {
		return transport.Completed(nil, errs.New("fake/call", errs.CodeServerRejected,
			errs.WithRawMessage("method not scripted: "+string(method))))
	}

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return transport.Completed(nil, errs.New("fake/call", errs.CodeInvalid, errs.WithCause(err)))
		}
		raw = data
	}
	payload, err := handler(raw)
	if err != nil {
		return transport.Completed(nil, err)
	}
	if payload == nil {
		return transport.Completed(nil, nil)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return transport.Completed(nil, errs.New("fake/call", errs.CodeInvalid, errs.WithCause(err)))
	}
	return transport.Completed(data, nil)
}

// Events returns the push stream fed by PushEvent and DropConnection.
func (c *Channel) Events() <-chan *schema.Event { return c.events }

// Close marks the channel closed.
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

// PushEvent delivers one event with a marshalled payload on the push stream.
func (c *Channel) PushEvent(kind schema.EventKind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.events <- &schema.Event{EventID: uuid.NewString(), Kind: kind, Payload: data}
	return nil
}

// PushRawEvent delivers a pre-built event, preserving its event id. Useful
// for duplicate-delivery scenarios.
func (c *Channel) PushRawEvent(ev *schema.Event) {
	c.events <- ev
}

// DropConnection makes later calls fail with a network error and emits the
// connection-lost status event.
func (c *Channel) DropConnection() error {
	c.mu.Lock()
	c.lost = true
	c.mu.Unlock()
	return c.PushEvent(schema.KindStatus, schema.StatusUpdate{Gap: false, Reason: "connection lost"})
}

// RestoreConnection re-enables calls and emits the gap signal that forces a
// full resync.
func (c *Channel) RestoreConnection() error {
	c.mu.Lock()
	c.lost = false
	c.mu.Unlock()
	return c.PushEvent(schema.KindStatus, schema.StatusUpdate{Gap: true, Reason: "stream resumed"})
}

// Calls returns the methods invoked so far, in order.
func (c *Channel) Calls() []schema.Method {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.Method(nil), c.calls...)
}
