package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ychx/walrus/errs"
)

func TestResultFirstCompletionWins(t *testing.T) {
	r := NewResult()
	r.Complete(json.RawMessage(`"first"`), nil)
	r.Complete(nil, errors.New("second"))

	data, err := r.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(data) != `"first"` {
		t.Fatalf("data = %s, want \"first\"", data)
	}
}

func TestResultWaitHonoursContext(t *testing.T) {
	r := NewResult()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Wait(ctx)
	if !errs.Is(err, errs.CodeNetwork) {
		t.Fatalf("err = %v, want network code", err)
	}
}

func TestResultCompletedIsImmediate(t *testing.T) {
	want := errs.New("test", errs.CodeInsufficientFunds)
	r := Completed(nil, want)
	select {
	case <-r.Done():
	default:
		t.Fatal("Completed result not done")
	}
	if _, err := r.Wait(context.Background()); !errs.Is(err, errs.CodeInsufficientFunds) {
		t.Fatalf("err = %v", err)
	}
}

func TestResultDecodeInto(t *testing.T) {
	r := Completed(json.RawMessage(`{"withdrawal_id":"w-1"}`), nil)
	var out struct {
		WithdrawalID string `json:"withdrawal_id"`
	}
	if err := r.DecodeInto(context.Background(), &out); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
	if out.WithdrawalID != "w-1" {
		t.Fatalf("WithdrawalID = %q", out.WithdrawalID)
	}
}
