package ledger

import (
	"testing"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/schema"
)

func testSnapshot() *schema.InitSnapshot {
	return &schema.InitSnapshot{
		Coins: []schema.CoinInfo{
			{Name: "BTC", Display: "Bitcoin", Type: schema.CoinTxout, Scale: 8, WithdrawFee: "1000", WithdrawFeePerInput: "100"},
			{Name: "ETH", Display: "Ethereum", Type: schema.CoinEVM, Scale: 18, WithdrawFee: "2000"},
		},
		Balances: []schema.BalanceSnapshot{
			{Coin: "BTC", Seq: 5, Sum: "100", Free: "100"},
			{Coin: "ETH", Seq: 3, Sum: "50", Free: "30", Offtrade: "20"},
		},
	}
}

func mustLoad(t *testing.T) *Ledger {
	t.Helper()
	l := New()
	if err := l.LoadSnapshot(testSnapshot()); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	return l
}

func TestApplyDelta(t *testing.T) {
	l := mustLoad(t)

	applied, err := l.ApplyDelta(schema.BalanceDelta{
		Coin: "BTC",
		Seq:  6,
		Add:  map[string]string{"withdrawals": "10", "free": "-10"},
	})
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if !applied {
		t.Fatal("expected delta to apply")
	}

	bal, ok := l.Balance("BTC")
	if !ok {
		t.Fatal("missing BTC balance")
	}
	if bal.Free.Int64() != 90 {
		t.Errorf("free = %d, want 90", bal.Free.Int64())
	}
	if bal.Withdrawals.Int64() != 10 {
		t.Errorf("withdrawals = %d, want 10", bal.Withdrawals.Int64())
	}
}

func TestApplyDeltaDuplicateStampDropped(t *testing.T) {
	l := mustLoad(t)

	delta := schema.BalanceDelta{
		Coin: "BTC",
		Seq:  6,
		Add:  map[string]string{"withdrawals": "10", "free": "-10"},
	}

	if applied, err := l.ApplyDelta(delta); err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	// Duplicate delivery with the same stamp must not re-apply.
	if applied, err := l.ApplyDelta(delta); err != nil || applied {
		t.Fatalf("duplicate apply: applied=%v err=%v", applied, err)
	}

	bal, _ := l.Balance("BTC")
	if bal.Free.Int64() != 90 || bal.Withdrawals.Int64() != 10 {
		t.Errorf("after duplicate: free=%d withdrawals=%d, want 90/10", bal.Free.Int64(), bal.Withdrawals.Int64())
	}
}

func TestApplyDeltaStaleStampDropped(t *testing.T) {
	l := mustLoad(t)

	applied, err := l.ApplyDelta(schema.BalanceDelta{
		Coin: "BTC",
		Seq:  4, // before the snapshot stamp
		Add:  map[string]string{"free": "-50"},
	})
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if applied {
		t.Fatal("stale delta must be dropped")
	}
	bal, _ := l.Balance("BTC")
	if bal.Free.Int64() != 100 {
		t.Errorf("free = %d, want 100", bal.Free.Int64())
	}
}

func TestApplyDeltaNegativeRejected(t *testing.T) {
	l := mustLoad(t)

	_, err := l.ApplyDelta(schema.BalanceDelta{
		Coin: "BTC",
		Seq:  6,
		Add:  map[string]string{"free": "-200", "sum": "-200"},
	})
	if !errs.Is(err, errs.CodeInvariant) {
		t.Fatalf("expected invariant violation, got %v", err)
	}

	// The rejected delta must not commit, not even partially.
	bal, _ := l.Balance("BTC")
	if bal.Free.Int64() != 100 || bal.Seq != 5 {
		t.Errorf("balance mutated by rejected delta: free=%d seq=%d", bal.Free.Int64(), bal.Seq)
	}
}

func TestApplyDeltaUnknownCoin(t *testing.T) {
	l := mustLoad(t)
	_, err := l.ApplyDelta(schema.BalanceDelta{Coin: "DOGE", Seq: 1})
	if !errs.Is(err, errs.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestDerivedFree(t *testing.T) {
	l := New()
	snap := testSnapshot()
	snap.Balances = []schema.BalanceSnapshot{{
		Coin: "BTC", Seq: 1,
		Sum: "1000", Free: "700",
		Orders: "200", OrdersInDebit: "50", OrdersInTxouts: "0",
		Offtrade: "100", Withdrawals: "50",
		Debit: "50", Credit: "0",
	}}
	if err := l.LoadSnapshot(snap); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	// free = 1000 - 50 + 0 - (200-50-0) - 100 - 0 - 50 = 650
	free, ok := l.Free("BTC")
	if !ok {
		t.Fatal("missing coin")
	}
	if free.Int64() != 650 {
		t.Errorf("derived free = %d, want 650", free.Int64())
	}
}

func TestSpendableScopes(t *testing.T) {
	l := mustLoad(t)

	avail, ok := l.Spendable("ETH", ScopeAvailable)
	if !ok {
		t.Fatal("missing coin")
	}
	// derived free = 50 - 20 offtrade = 30
	if avail.Int64() != 30 {
		t.Errorf("available = %d, want 30", avail.Int64())
	}

	alloc, _ := l.Spendable("ETH", ScopeAllocated)
	if alloc.Int64() != 20 {
		t.Errorf("allocated = %d, want 20", alloc.Int64())
	}
}

func TestBalanceSnapshotIsCopy(t *testing.T) {
	l := mustLoad(t)
	bal, _ := l.Balance("BTC")
	bal.Free.SetInt64(0)

	again, _ := l.Balance("BTC")
	if again.Free.Int64() != 100 {
		t.Error("Balance() returned a shared reference")
	}
}

func TestApplyTxoutsAndRead(t *testing.T) {
	l := mustLoad(t)
	err := l.ApplyTxouts(schema.TxoutSnapshot{
		Coin: "BTC",
		Txouts: []schema.TxoutRecord{
			{Coin: "BTC", ID: "a", Amount: "30", Spendable: true},
			{Coin: "BTC", ID: "b", Amount: "20", Spendable: true},
		},
	})
	if err != nil {
		t.Fatalf("ApplyTxouts() error = %v", err)
	}
	got := l.Txouts("BTC")
	if len(got) != 2 || got[0].ID != "a" {
		t.Errorf("txouts = %+v", got)
	}
}

func TestDepositUpsert(t *testing.T) {
	l := mustLoad(t)
	l.ApplyDeposit(schema.DepositRecord{Coin: "BTC", ID: "d1", Amount: "5", Status: "pending"})
	l.ApplyDeposit(schema.DepositRecord{Coin: "BTC", ID: "d1", Amount: "5", Status: "confirmed"})

	deps := l.Deposits("BTC")
	if len(deps) != 1 {
		t.Fatalf("expected 1 deposit, got %d", len(deps))
	}
	if deps[0].Status != "confirmed" {
		t.Errorf("status = %s", deps[0].Status)
	}
}

func TestResetClearsEverything(t *testing.T) {
	l := mustLoad(t)
	l.Reset()

	if names := l.CoinNames(); len(names) != 0 {
		t.Errorf("coins survived reset: %v", names)
	}
	if _, ok := l.Balance("BTC"); ok {
		t.Error("balance survived reset")
	}
}

func TestLoadSnapshotRejectsUnknownBalanceCoin(t *testing.T) {
	l := New()
	snap := testSnapshot()
	snap.Balances = append(snap.Balances, schema.BalanceSnapshot{Coin: "XRP", Seq: 1})
	if err := l.LoadSnapshot(snap); !errs.Is(err, errs.CodeInvalid) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}
