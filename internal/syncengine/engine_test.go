package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/ychx/walrus/internal/book"
	"github.com/ychx/walrus/internal/ledger"
	"github.com/ychx/walrus/internal/schema"
	"github.com/ychx/walrus/internal/transport/fake"
)

func testSnapshot() *schema.InitSnapshot {
	return &schema.InitSnapshot{
		Coins: []schema.CoinInfo{
			{Name: "BTC", Display: "Bitcoin", Type: schema.CoinTxout, Scale: 8, WithdrawFee: "1000", WithdrawFeePerInput: "100"},
			{Name: "LTC", Display: "Litecoin", Type: schema.CoinTxout, Scale: 8, WithdrawFee: "500"},
		},
		Markets: []schema.MarketInfo{
			{Name: "LTC/BTC", CoinA: "LTC", CoinB: "BTC", Group: "btc", FeeRate: "0.002"},
		},
		Balances: []schema.BalanceSnapshot{
			{Coin: "BTC", Seq: 5, Sum: "100", Free: "100"},
			{Coin: "LTC", Seq: 2, Sum: "40", Free: "40"},
		},
		Account: &schema.AccountInfo{AccountID: "acct-1", Login: "alice", Discount: "0.5"},
	}
}

type harness struct {
	ch     *fake.Channel
	eng    *Engine
	led    *ledger.Ledger
	bk     *book.Book
	notes  chan Notification
	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ch := fake.New()
	ch.HandleOK(schema.MethodInit, testSnapshot())

	led := ledger.New()
	bk := book.New()
	eng, err := New(Config{Channel: ch, Ledger: led, Book: bk})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	notes := make(chan Notification, 64)
	eng.Subscribe("test", func(_ context.Context, n Notification) {
		notes <- n
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	h := &harness{ch: ch, eng: eng, led: led, bk: bk, notes: notes, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop")
		}
	})
	h.waitNote(t, NotifyLogin)
	return h
}

// waitNote drains notifications until the wanted kind arrives.
func (h *harness) waitNote(t *testing.T, kind NotificationKind) Notification {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-h.notes:
			if n.Kind == kind {
				return n
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s notification", kind)
		}
	}
}

func TestRunAppliesInitSnapshot(t *testing.T) {
	h := newHarness(t)

	if h.eng.State() != StateStreaming {
		t.Errorf("state = %v, want streaming", h.eng.State())
	}
	if _, ok := h.led.Coin("BTC"); !ok {
		t.Error("BTC coin missing after init")
	}
	if _, ok := h.bk.Market("LTC/BTC"); !ok {
		t.Error("LTC/BTC market missing after init")
	}
}

func TestLifecycleNotificationsInOrder(t *testing.T) {
	ch := fake.New()
	ch.HandleOK(schema.MethodInit, testSnapshot())
	eng, err := New(Config{Channel: ch, Ledger: ledger.New(), Book: book.New()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	notes := make(chan Notification, 64)
	eng.Subscribe("order", func(_ context.Context, n Notification) {
		notes <- n
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	var seen []NotificationKind
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-notes:
			seen = append(seen, n.Kind)
		case <-deadline:
			t.Fatalf("never reached ready, saw %v", seen)
		}
		if len(seen) > 0 && seen[len(seen)-1] == NotifyReady {
			break
		}
	}

	pos := map[NotificationKind]int{}
	for i, k := range seen {
		if _, ok := pos[k]; !ok {
			pos[k] = i
		}
	}
	connecting, ok := pos[NotifyConnecting]
	if !ok {
		t.Fatalf("no connecting notification in %v", seen)
	}
	dataInit, ok := pos[NotifyDataInit]
	if !ok {
		t.Fatalf("no data_init notification in %v", seen)
	}
	if !(connecting < dataInit && dataInit < pos[NotifyReady]) {
		t.Errorf("lifecycle out of order: %v", seen)
	}
}

func TestInboundEventsMirroredAsMessages(t *testing.T) {
	h := newHarness(t)

	if err := h.ch.PushEvent(schema.KindBalanceDelta, schema.BalanceDelta{
		Coin: "BTC",
		Seq:  6,
		Add:  map[string]string{"free": "-10", "orders": "10"},
	}); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}

	n := h.waitNote(t, NotifyMessage)
	if n.Event == nil || n.Event.Kind != schema.KindBalanceDelta {
		t.Fatalf("message event = %+v", n.Event)
	}
}

func TestBalanceDeltaAppliedAndNotified(t *testing.T) {
	h := newHarness(t)

	err := h.ch.PushEvent(schema.KindBalanceDelta, schema.BalanceDelta{
		Coin: "BTC",
		Seq:  6,
		Add:  map[string]string{"withdrawals": "10", "free": "-10"},
	})
	if err != nil {
		t.Fatalf("PushEvent: %v", err)
	}

	n := h.waitNote(t, NotifyBalance)
	if n.Coin != "BTC" {
		t.Errorf("notification coin = %q, want BTC", n.Coin)
	}
	bal, _ := h.led.Balance("BTC")
	if bal.Withdrawals.Int64() != 10 {
		t.Errorf("withdrawals = %d, want 10", bal.Withdrawals.Int64())
	}
}

func TestStaleDeltaDroppedSilently(t *testing.T) {
	h := newHarness(t)

	// Seq 5 equals the snapshot stamp, so the delta is stale.
	if err := h.ch.PushEvent(schema.KindBalanceDelta, schema.BalanceDelta{
		Coin: "BTC",
		Seq:  5,
		Add:  map[string]string{"free": "-10"},
	}); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}
	// A later valid delta proves the loop kept going.
	if err := h.ch.PushEvent(schema.KindBalanceDelta, schema.BalanceDelta{
		Coin: "LTC",
		Seq:  3,
		Add:  map[string]string{"free": "-5", "orders": "5"},
	}); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}

	n := h.waitNote(t, NotifyBalance)
	if n.Coin != "LTC" {
		t.Errorf("first balance notification for %q, want LTC", n.Coin)
	}
	bal, _ := h.led.Balance("BTC")
	if bal.Free.Int64() != 100 {
		t.Errorf("BTC free = %d, want untouched 100", bal.Free.Int64())
	}
}

func TestInvariantViolationForcesResync(t *testing.T) {
	h := newHarness(t)

	// Driving free negative breaks the non-negativity invariant.
	if err := h.ch.PushEvent(schema.KindBalanceDelta, schema.BalanceDelta{
		Coin: "BTC",
		Seq:  6,
		Add:  map[string]string{"free": "-200"},
	}); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}

	h.waitNote(t, NotifyConnError)
	h.waitNote(t, NotifyLogin) // second init snapshot applied

	inits := 0
	for _, m := range h.ch.Calls() {
		if m == schema.MethodInit {
			inits++
		}
	}
	if inits < 2 {
		t.Errorf("init calls = %d, want at least 2", inits)
	}
	bal, _ := h.led.Balance("BTC")
	if bal.Free.Int64() != 100 {
		t.Errorf("free = %d, want snapshot value 100", bal.Free.Int64())
	}
}

func TestGapSignalForcesResync(t *testing.T) {
	h := newHarness(t)

	// Divergent delta the server will not repeat after the gap.
	if err := h.ch.PushEvent(schema.KindBalanceDelta, schema.BalanceDelta{
		Coin: "BTC",
		Seq:  6,
		Add:  map[string]string{"free": "-10", "orders": "10"},
	}); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}
	h.waitNote(t, NotifyBalance)

	if err := h.ch.RestoreConnection(); err != nil {
		t.Fatalf("RestoreConnection: %v", err)
	}
	h.waitNote(t, NotifyLogin)

	bal, _ := h.led.Balance("BTC")
	if bal.Free.Int64() != 100 {
		t.Errorf("free = %d, want snapshot 100 after resync", bal.Free.Int64())
	}
}

func TestConnectionLostNotifiesWithoutResync(t *testing.T) {
	h := newHarness(t)

	if err := h.ch.DropConnection(); err != nil {
		t.Fatalf("DropConnection: %v", err)
	}
	n := h.waitNote(t, NotifyConnError)
	if n.Reason != "connection lost" {
		t.Errorf("reason = %q", n.Reason)
	}
}

func TestMalformedEventSkipped(t *testing.T) {
	h := newHarness(t)

	h.ch.PushRawEvent(&schema.Event{
		EventID: "bad-1",
		Kind:    schema.KindBalanceDelta,
		Payload: []byte(`{"coin":`),
	})
	if err := h.ch.PushEvent(schema.KindBalanceDelta, schema.BalanceDelta{
		Coin: "BTC",
		Seq:  6,
		Add:  map[string]string{"free": "-1", "orders": "1"},
	}); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}

	n := h.waitNote(t, NotifyBalance)
	if n.Coin != "BTC" {
		t.Errorf("coin = %q", n.Coin)
	}
}

func TestBookDeltaNotifiesSide(t *testing.T) {
	h := newHarness(t)

	if err := h.ch.PushEvent(schema.KindBookDelta, schema.BookDelta{
		Market: "LTC/BTC",
		Side:   schema.SideBuy,
		Index:  1,
		Pos:    0,
		Scope:  schema.ScopeMarket,
		Entry: schema.OrderEntry{
			Market: "LTC/BTC", Side: schema.SideBuy, Index: 1,
			Price: "250", Amount: "10", Remaining: "10", Status: schema.OrderOpen,
		},
	}); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}

	n := h.waitNote(t, NotifyBuys)
	if n.Market != "LTC/BTC" {
		t.Errorf("market = %q", n.Market)
	}
	cur := h.bk.Buys("LTC/BTC", schema.ScopeMarket, 10)
	if cur.Len() != 1 {
		t.Errorf("buys len = %d, want 1", cur.Len())
	}
}

func TestUserTradeNotifiesUserScope(t *testing.T) {
	h := newHarness(t)

	if err := h.ch.PushEvent(schema.KindTradeAppend, schema.TradeAppend{
		Scope: schema.ScopeUser,
		Trade: schema.TradeRecord{
			Market: "LTC/BTC", TradeID: "t-1", Price: "250", Amount: "4",
			Timestamp: 1700000000, Side: schema.SideBuy, Own: true,
		},
	}); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}

	h.waitNote(t, NotifyUserTrades)
	if got := h.bk.Trades("LTC/BTC", schema.ScopeUser, 10).Len(); got != 1 {
		t.Errorf("user trades = %d, want 1", got)
	}
	if got := h.bk.Trades("LTC/BTC", schema.ScopeMarket, 10).Len(); got != 1 {
		t.Errorf("market trades = %d, want mirrored 1", got)
	}
}
