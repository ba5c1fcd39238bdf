package transport

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/observability"
	"github.com/ychx/walrus/internal/schema"
)

const (
	// The server throttles client control traffic; keep writes under budget.
	writeInterval        = 100 * time.Millisecond
	writeBurst           = 10
	writeTimeout         = 5 * time.Second
	maxReconnectInterval = 30 * time.Second
	readLimit            = 2 * 1024 * 1024
	eventBuffer          = 256
	// seenEventCap bounds the at-most-once dedupe window.
	seenEventCap = 4096
)

// WSChannel implements Channel over a websocket connection with automatic
// reconnection. Every reconnect is surfaced as a gap: the consumer must
// resynchronize from a full snapshot, never from an incremental delta.
type WSChannel struct {
	url    string
	ctx    context.Context
	cancel context.CancelFunc

	conn   *websocket.Conn
	connMu sync.RWMutex

	events  chan *schema.Event
	limiter *rate.Limiter
	clock   func() time.Time

	pendingMu sync.Mutex
	pending   map[string]*Result

	seenMu    sync.Mutex
	seenIDs   map[string]struct{}
	seenOrder []string

	closeOnce sync.Once
}

// NewWSChannel constructs a websocket channel for the given endpoint.
func NewWSChannel(url string) *WSChannel {
	ctx, cancel := context.WithCancel(context.Background())
	c := new(WSChannel)
	c.url = url
	c.ctx = ctx
	c.cancel = cancel
	c.events = make(chan *schema.Event, eventBuffer)
	c.limiter = rate.NewLimiter(rate.Every(writeInterval), writeBurst)
	c.clock = time.Now
	c.pending = make(map[string]*Result)
	c.seenIDs = make(map[string]struct{}, seenEventCap)
	return c
}

// Connect dials the endpoint and starts the read/reconnect loop. It returns
// after the first successful dial; later drops reconnect in the background.
func (c *WSChannel) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return errs.New("transport/connect", errs.CodeNetwork,
			errs.WithMessage("dial failed"), errs.WithCause(err))
	}
	c.setConn(conn)
	go c.run(conn)
	return nil
}

func (c *WSChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

func (c *WSChannel) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *WSChannel) currentConn() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// run reads frames until the connection drops, then reconnects with
// exponential backoff. Pending calls fail on every drop; the plan or caller
// decides whether to retry.
func (c *WSChannel) run(conn *websocket.Conn) {
	for {
		err := c.readLoop(conn)
		if c.ctx.Err() != nil {
			return
		}
		observability.Log().Error("sync channel lost",
			observability.Field{Key: "error", Value: err})
		c.failPending(errs.New("transport/stream", errs.CodeNetwork,
			errs.WithMessage("connection lost"), errs.WithCause(err)))
		c.emitStatus(schema.StatusUpdate{Gap: false, Reason: "connection lost"})

		conn = c.reconnect()
		if conn == nil {
			return
		}
		c.setConn(conn)
		// A resumed stream always signals a gap: the consumer resyncs from a
		// full snapshot regardless of how short the outage was.
		c.emitStatus(schema.StatusUpdate{Gap: true, Reason: "stream resumed"})
	}
}

func (c *WSChannel) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			// Malformed frames are advisory: log and keep the stream alive.
			observability.Log().Error("malformed frame skipped",
				observability.Field{Key: "error", Value: err})
			continue
		}
		switch frame.Type {
		case FrameResponse:
			c.resolveResponse(frame.Response)
		case FrameEvent:
			c.deliverEvent(frame.Event)
		default:
			observability.Log().Debug("unknown frame type skipped",
				observability.Field{Key: "type", Value: frame.Type})
		}
	}
}

func (c *WSChannel) reconnect() *websocket.Conn {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxReconnectInterval
	for {
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			backoffCfg.Reset()
			continue
		}
		select {
		case <-c.ctx.Done():
			return nil
		case <-time.After(sleep):
		}
		conn, err := c.dial(c.ctx)
		if err == nil {
			return conn
		}
		observability.Log().Debug("reconnect attempt failed",
			observability.Field{Key: "error", Value: err})
	}
}

func (c *WSChannel) resolveResponse(resp *schema.Response) {
	if resp == nil {
		return
	}
	c.pendingMu.Lock()
	result, ok := c.pending[resp.RequestID]
	delete(c.pending, resp.RequestID)
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	if !resp.OK {
		result.Complete(nil, errs.New("transport/call", errs.CodeServerRejected,
			errs.WithRawMessage(resp.Error)))
		return
	}
	result.Complete(resp.Data, nil)
}

func (c *WSChannel) deliverEvent(ev *schema.Event) {
	if ev == nil || !ev.Kind.Valid() {
		observability.Log().Error("malformed event skipped")
		return
	}
	if ev.EventID != "" && c.alreadySeen(ev.EventID) {
		return
	}
	ev.ReceivedAt = c.clock().UTC()
	select {
	case <-c.ctx.Done():
	case c.events <- ev:
	}
}

func (c *WSChannel) alreadySeen(id string) bool {
	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	if _, dup := c.seenIDs[id]; dup {
		return true
	}
	c.seenIDs[id] = struct{}{}
	c.seenOrder = append(c.seenOrder, id)
	if len(c.seenOrder) > seenEventCap {
		oldest := c.seenOrder[0]
		c.seenOrder = c.seenOrder[1:]
		delete(c.seenIDs, oldest)
	}
	return false
}

func (c *WSChannel) emitStatus(status schema.StatusUpdate) {
	payload, err := json.Marshal(status)
	if err != nil {
		return
	}
	ev := &schema.Event{
		EventID:    uuid.NewString(),
		Kind:       schema.KindStatus,
		Payload:    payload,
		ReceivedAt: c.clock().UTC(),
	}
	select {
	case <-c.ctx.Done():
	case c.events <- ev:
	}
}

// Call issues a request and returns its future. Connection loss or timeout
// completes the future with a network error; a server refusal completes it
// with the verbatim rejection reason.
func (c *WSChannel) Call(ctx context.Context, method schema.Method, params any) *Result {
	result := NewResult()

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			result.Complete(nil, errs.New("transport/call", errs.CodeInvalid,
				errs.WithMessage("marshal params"), errs.WithCause(err)))
			return result
		}
		rawParams = data
	}

	req := schema.Request{RequestID: uuid.NewString(), Method: method, Params: rawParams}
	data, err := EncodeRequest(req)
	if err != nil {
		result.Complete(nil, errs.New("transport/call", errs.CodeInvalid,
			errs.WithMessage("marshal request"), errs.WithCause(err)))
		return result
	}

	conn := c.currentConn()
	if conn == nil {
		result.Complete(nil, errs.New("transport/call", errs.CodeUnavailable,
			errs.WithMessage("channel not connected")))
		return result
	}

	c.pendingMu.Lock()
	c.pending[req.RequestID] = result
	c.pendingMu.Unlock()

	go func() {
		if err := c.limiter.Wait(ctx); err != nil {
			c.failCall(req.RequestID, errs.New("transport/call", errs.CodeNetwork,
				errs.WithMessage("rate limit wait"), errs.WithCause(err)))
			return
		}
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
			c.failCall(req.RequestID, errs.New("transport/call", errs.CodeNetwork,
				errs.WithMessage("write failed"), errs.WithCause(err)))
		}
	}()

	return result
}

func (c *WSChannel) failCall(requestID string, err error) {
	c.pendingMu.Lock()
	result, ok := c.pending[requestID]
	delete(c.pending, requestID)
	c.pendingMu.Unlock()
	if ok {
		result.Complete(nil, err)
	}
}

func (c *WSChannel) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]*Result)
	c.pendingMu.Unlock()
	for _, result := range pending {
		result.Complete(nil, err)
	}
}

// Events returns the ordered push stream.
func (c *WSChannel) Events() <-chan *schema.Event { return c.events }

// Close tears the channel down and fails all pending calls. The event stream
// stops delivering after Close; it is not closed, so late senders never panic.
func (c *WSChannel) Close(ctx context.Context) error {
	var closeErrs []error
	c.closeOnce.Do(func() {
		c.cancel()
		c.failPending(errs.New("transport/close", errs.CodeUnavailable,
			errs.WithMessage("channel closed")))
		if conn := c.currentConn(); conn != nil {
			if err := conn.Close(websocket.StatusNormalClosure, "client shutdown"); err != nil {
				closeErrs = append(closeErrs, err)
			}
		}
	})
	return observability.AggregateErrors("transport/close", closeErrs,
		observability.Field{Key: "url", Value: c.url})
}
