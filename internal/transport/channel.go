// Package transport abstracts the ordered duplex session channel to the server.
//
// The core requires only: ordering preserved, at-most-once delivery per event
// id, and a distinguishable gap signal after a stream resume. The websocket
// implementation lives in this package; tests use the fake sub-package.
package transport

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/ychx/walrus/internal/schema"
)

// Channel is one session's ordered, reliable, full-duplex message channel.
type Channel interface {
	// Connect establishes the channel. It returns once the stream is open;
	// implementations keep the channel alive with reconnect internally and
	// signal every gap through a status event.
	Connect(ctx context.Context) error
	// Call issues a typed request and returns its single-completion future.
	Call(ctx context.Context, method schema.Method, params any) *Result
	// Events returns the ordered server push stream. Status transitions,
	// including gap signals, are delivered in-band as KindStatus events.
	Events() <-chan *schema.Event
	// Close tears the channel down and fails all pending calls.
	Close(ctx context.Context) error
}

// Frame is the wire envelope multiplexing push events and call responses.
type Frame struct {
	Type     string           `json:"type"`
	Event    *schema.Event    `json:"event,omitempty"`
	Response *schema.Response `json:"response,omitempty"`
}

// Frame type discriminators.
const (
	FrameEvent    = "event"
	FrameResponse = "response"
)

// EncodeRequest marshals a request envelope for the wire.
func EncodeRequest(req schema.Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeFrame unmarshals one wire frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}
