package transport

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/ychx/walrus/errs"
)

// Result is a single-completion future for an asynchronous call. It completes
// exactly once with either a payload or a typed error; later completions are
// no-ops.
type Result struct {
	done chan struct{}
	once sync.Once
	data json.RawMessage
	err  error
}

// NewResult constructs an incomplete result.
func NewResult() *Result {
	return &Result{done: make(chan struct{}), once: sync.Once{}, data: nil, err: nil}
}

// Completed constructs a result that already carries the given outcome.
// Used for local precondition failures returned without any network call.
func Completed(data json.RawMessage, err error) *Result {
	r := NewResult()
	r.Complete(data, err)
	return r
}

// Complete resolves the future. Only the first call has any effect.
func (r *Result) Complete(data json.RawMessage, err error) {
	r.once.Do(func() {
		r.data = data
		r.err = err
		close(r.done)
	})
}

// Done exposes the completion signal.
func (r *Result) Done() <-chan struct{} { return r.done }

// Wait blocks until completion or context expiry. Context expiry surfaces on
// the same channel as any other transient network failure.
func (r *Result) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, errs.New("transport/wait", errs.CodeNetwork,
			errs.WithMessage("call timed out"), errs.WithCause(ctx.Err()))
	case <-r.done:
		return r.data, r.err
	}
}

// DecodeInto waits for completion and unmarshals the payload into out.
func (r *Result) DecodeInto(ctx context.Context, out any) error {
	data, err := r.Wait(ctx)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.New("transport/decode", errs.CodeInvalid,
			errs.WithMessage("malformed response payload"), errs.WithCause(err))
	}
	return nil
}
