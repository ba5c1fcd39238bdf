package book

import (
	"testing"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/schema"
)

func testSnapshot() *schema.InitSnapshot {
	return &schema.InitSnapshot{
		Markets: []schema.MarketInfo{
			{Name: "BTC/USDT", CoinA: "BTC", CoinB: "USDT", Group: "majors", FeeRate: "0.002"},
			{Name: "ETH/USDT", CoinA: "ETH", CoinB: "USDT", Group: "majors", FeeRate: "0.002"},
			{Name: "ETH/BTC", CoinA: "ETH", CoinB: "BTC", Group: "crosses", FeeRate: "0.001"},
		},
		Books: []schema.OrderEntry{
			{Market: "BTC/USDT", Side: schema.SideBuy, Index: 1, Price: "100.0", Amount: "5", Remaining: "5", Status: schema.OrderOpen},
			{Market: "BTC/USDT", Side: schema.SideBuy, Index: 2, Price: "99.5", Amount: "3", Remaining: "3", Status: schema.OrderOpen},
		},
		Trades: []schema.TradeRecord{
			{Market: "BTC/USDT", TradeID: "t1", Price: "100.0", Amount: "1", Timestamp: 1000, Side: schema.SideBuy},
			{Market: "BTC/USDT", TradeID: "t2", Price: "100.1", Amount: "2", Timestamp: 1001, Side: schema.SideSell, Own: true},
		},
	}
}

func mustLoad(t *testing.T) *Book {
	t.Helper()
	b := New()
	if err := b.LoadSnapshot(testSnapshot()); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	return b
}

func TestMarketLookups(t *testing.T) {
	b := mustLoad(t)

	names := b.MarketNames()
	if len(names) != 3 || names[0] != "BTC/USDT" {
		t.Errorf("market names = %v", names)
	}
	if groups := b.GroupNames(); len(groups) != 2 || groups[0] != "majors" {
		t.Errorf("group names = %v", groups)
	}
	if in := b.MarketsInGroup("majors"); len(in) != 2 {
		t.Errorf("majors = %v", in)
	}
	if byB := b.MarketsByCoinB("USDT"); len(byB) != 2 {
		t.Errorf("by coinb = %v", byB)
	}
	if _, ok := b.Market("XRP/USDT"); ok {
		t.Error("unexpected market")
	}
}

func TestApplyBookEventInsertAtServerPosition(t *testing.T) {
	b := mustLoad(t)

	// Server slots the new entry between the existing two.
	err := b.ApplyBookEvent(schema.BookDelta{
		Market: "BTC/USDT", Side: schema.SideBuy, Index: 3, Pos: 1, Scope: schema.ScopeMarket,
		Entry: schema.OrderEntry{Market: "BTC/USDT", Side: schema.SideBuy, Index: 3, Price: "99.8", Amount: "1", Remaining: "1", Status: schema.OrderOpen},
	})
	if err != nil {
		t.Fatalf("ApplyBookEvent() error = %v", err)
	}

	cur := b.Buys("BTC/USDT", schema.ScopeMarket, 10)
	page, _ := cur.Next()
	if len(page) != 3 {
		t.Fatalf("buys = %d entries", len(page))
	}
	if page[0].Index != 1 || page[1].Index != 3 || page[2].Index != 2 {
		t.Errorf("server order not preserved: %v %v %v", page[0].Index, page[1].Index, page[2].Index)
	}
}

func TestApplyBookEventReplaceAndRemove(t *testing.T) {
	b := mustLoad(t)

	err := b.ApplyBookEvent(schema.BookDelta{
		Market: "BTC/USDT", Side: schema.SideBuy, Index: 1, Scope: schema.ScopeMarket,
		Entry: schema.OrderEntry{Market: "BTC/USDT", Side: schema.SideBuy, Index: 1, Price: "100.0", Amount: "5", Remaining: "2", Status: schema.OrderPartial},
	})
	if err != nil {
		t.Fatalf("replace error = %v", err)
	}
	cur := b.Buys("BTC/USDT", schema.ScopeMarket, 10)
	page, _ := cur.Next()
	if page[0].Remaining != "2" || page[0].Status != schema.OrderPartial {
		t.Errorf("replace not applied: %+v", page[0])
	}

	err = b.ApplyBookEvent(schema.BookDelta{
		Market: "BTC/USDT", Side: schema.SideBuy, Index: 1, Scope: schema.ScopeMarket, Remove: true,
	})
	if err != nil {
		t.Fatalf("remove error = %v", err)
	}
	cur = b.Buys("BTC/USDT", schema.ScopeMarket, 10)
	page, _ = cur.Next()
	if len(page) != 1 || page[0].Index != 2 {
		t.Errorf("remove not applied: %+v", page)
	}
}

func TestUserScopeMirrorsIntoMarket(t *testing.T) {
	b := mustLoad(t)

	err := b.ApplyBookEvent(schema.BookDelta{
		Market: "ETH/USDT", Side: schema.SideSell, Index: 7, Pos: 0, Scope: schema.ScopeUser,
		Entry: schema.OrderEntry{Market: "ETH/USDT", Side: schema.SideSell, Index: 7, Price: "10", Amount: "1", Remaining: "1", Status: schema.OrderOpen, Own: true},
	})
	if err != nil {
		t.Fatalf("ApplyBookEvent() error = %v", err)
	}

	user, _ := b.Sells("ETH/USDT", schema.ScopeUser, 10).Next()
	market, _ := b.Sells("ETH/USDT", schema.ScopeMarket, 10).Next()
	if len(user) != 1 || len(market) != 1 {
		t.Errorf("user=%d market=%d entries, want 1/1", len(user), len(market))
	}
}

func TestApplyTradeEventDeduplicates(t *testing.T) {
	b := mustLoad(t)

	tr := schema.TradeRecord{Market: "BTC/USDT", TradeID: "t3", Price: "101", Amount: "1", Timestamp: 1002, Side: schema.SideBuy}
	if err := b.ApplyTradeEvent(schema.TradeAppend{Scope: schema.ScopeMarket, Trade: tr}); err != nil {
		t.Fatalf("ApplyTradeEvent() error = %v", err)
	}
	if err := b.ApplyTradeEvent(schema.TradeAppend{Scope: schema.ScopeMarket, Trade: tr}); err != nil {
		t.Fatalf("duplicate ApplyTradeEvent() error = %v", err)
	}

	cur := b.Trades("BTC/USDT", schema.ScopeMarket, 10)
	if cur.Len() != 3 {
		t.Errorf("trades = %d, want 3", cur.Len())
	}
}

func TestOwnTradeAppearsInBothScopes(t *testing.T) {
	b := mustLoad(t)

	user := b.Trades("BTC/USDT", schema.ScopeUser, 10)
	if user.Len() != 1 {
		t.Errorf("user trades = %d, want 1", user.Len())
	}
	market := b.Trades("BTC/USDT", schema.ScopeMarket, 10)
	if market.Len() != 2 {
		t.Errorf("market trades = %d, want 2", market.Len())
	}
}

func TestApplyUnknownMarket(t *testing.T) {
	b := mustLoad(t)
	err := b.ApplyBookEvent(schema.BookDelta{Market: "XRP/USDT", Side: schema.SideBuy, Scope: schema.ScopeMarket})
	if !errs.Is(err, errs.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
	err = b.ApplyTradeEvent(schema.TradeAppend{Scope: schema.ScopeMarket, Trade: schema.TradeRecord{Market: "XRP/USDT", TradeID: "x"}})
	if !errs.Is(err, errs.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestTradeCursorPaging(t *testing.T) {
	b := mustLoad(t)
	cur := b.Trades("BTC/USDT", schema.ScopeMarket, 1)

	first, ok := cur.Next()
	if !ok || first[0].TradeID != "t1" {
		t.Fatalf("first page = %+v", first)
	}
	second, _ := cur.Next()
	if second[0].TradeID != "t2" {
		t.Fatalf("second page = %+v", second)
	}
	cur.Reset()
	again, _ := cur.Next()
	if again[0].TradeID != "t1" {
		t.Error("cursor not restartable")
	}
}
