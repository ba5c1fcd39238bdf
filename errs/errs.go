// Package errs provides structured error types shared across the walrus client core.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category in the client core taxonomy.
type Code string

const (
	// CodeNetwork indicates a transient transport failure (connection lost, timeout). Retryable.
	CodeNetwork Code = "network"
	// CodeServerRejected indicates the server refused the operation; the reason is kept verbatim.
	CodeServerRejected Code = "server_rejected"
	// CodeInsufficientFunds indicates a local precondition failure: the requested amount
	// exceeds the spendable balance. Never sent to the server.
	CodeInsufficientFunds Code = "insufficient_funds"
	// CodeInsufficientInputs indicates no eligible txout subset covers amount plus fee.
	CodeInsufficientInputs Code = "insufficient_inputs"
	// CodeInvariant indicates a ledger consistency violation; fatal, forces a full resync.
	CodeInvariant Code = "invariant_violation"
	// CodePlanBusy indicates a concurrent stage/submit attempt on a withdraw plan.
	CodePlanBusy Code = "plan_busy"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeNotFound indicates a missing coin, market or record.
	CodeNotFound Code = "not_found"
	// CodeUnavailable indicates the session or channel is not in a usable state.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the client core.
type E struct {
	Op      string
	Code    Code
	Message string
	// RawMsg preserves the server-reported rejection reason verbatim.
	RawMsg      string
	Remediation string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the operation and error code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{
		Op:          strings.TrimSpace(op),
		Code:        code,
		Message:     "",
		RawMsg:      "",
		Remediation: "",
		cause:       nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithRawMessage captures the raw server rejection reason. It is stored untrimmed
// so callers can surface it exactly as the server sent it.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
	}
}

// WithRemediation attaches remediation guidance to the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) {
		e.Remediation = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	op := strings.TrimSpace(e.Op)
	if op == "" {
		op = "unknown"
	}
	parts = append(parts, "op="+op)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RawMsg != "" {
		parts = append(parts, "server="+strconv.Quote(e.RawMsg))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the taxonomy code from err, walking the unwrap chain.
func CodeOf(err error) (Code, bool) {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code, true
	}
	return "", false
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

// Retryable reports whether the failure is transient and safe to retry.
func Retryable(err error) bool {
	return Is(err, CodeNetwork) || Is(err, CodeUnavailable)
}
