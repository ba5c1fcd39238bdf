package signing

import (
	"context"
	"testing"

	"github.com/ychx/walrus/errs"
)

func TestRequireKey(t *testing.T) {
	s := NewFakeSigner(KeyLogin)
	if err := RequireKey(s, KeyLogin); err != nil {
		t.Fatalf("RequireKey(login): %v", err)
	}
	err := RequireKey(s, KeyWithdraw)
	if !errs.Is(err, errs.CodeUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if err := RequireKey(nil, KeyLogin); err == nil {
		t.Fatal("nil signer accepted")
	}
}

func TestFakeSignerBuildRawTx(t *testing.T) {
	s := NewFakeSigner(KeyWithdraw)
	tx, err := s.BuildRawTx(context.Background(), TxRequest{Coin: "BTC", Amount: "100"})
	if err != nil {
		t.Fatalf("BuildRawTx: %v", err)
	}
	if tx.RawTx == "" || tx.Signature == "" {
		t.Fatalf("tx = %+v", tx)
	}
}
