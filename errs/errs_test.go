package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New("ledger/apply", CodeInvariant, WithMessage("free below zero"))

	if err == nil {
		t.Fatal("expected non-nil error")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "ledger/apply") {
		t.Errorf("expected operation in error string, got %q", errStr)
	}
	if !strings.Contains(errStr, string(CodeInvariant)) {
		t.Errorf("expected code in error string, got %q", errStr)
	}
}

func TestRawMessagePreservedVerbatim(t *testing.T) {
	raw := "  txout already spent  "
	err := New("withdraw/submit", CodeServerRejected, WithRawMessage(raw))

	if err.RawMsg != raw {
		t.Errorf("raw message altered: %q", err.RawMsg)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := New("transport/call", CodeNetwork, WithCause(cause))

	if !errors.Is(err, cause) {
		t.Error("expected cause in unwrap chain")
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("stage inputs: %w", New("withdraw/stage", CodeInsufficientInputs))

	code, ok := CodeOf(err)
	if !ok {
		t.Fatal("expected taxonomy code")
	}
	if code != CodeInsufficientInputs {
		t.Errorf("expected %s, got %s", CodeInsufficientInputs, code)
	}

	if _, ok := CodeOf(errors.New("plain")); ok {
		t.Error("plain error should not carry a code")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		code Code
		want bool
	}{
		{CodeNetwork, true},
		{CodeUnavailable, true},
		{CodeServerRejected, false},
		{CodeInsufficientFunds, false},
		{CodePlanBusy, false},
		{CodeInvariant, false},
	}
	for _, tc := range cases {
		if got := Retryable(New("t", tc.code)); got != tc.want {
			t.Errorf("Retryable(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
