// Package book maintains the per-market order book and trade history cache.
//
// The book mirrors server-authoritative data: list ordering inside each side
// is exactly the order the server declared. The sync engine is the only
// writer; readers get snapshot copies.
package book

import (
	"sync"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/paging"
	"github.com/ychx/walrus/internal/schema"
)

type sideKey struct {
	market string
	side   schema.Side
	scope  schema.Scope
}

type tradeKey struct {
	market string
	scope  schema.Scope
}

// Book is the market metadata, order book and trade cache for one session.
type Book struct {
	mu          sync.RWMutex
	markets     map[string]schema.MarketInfo
	marketOrder []string
	groupOrder  []string
	groups      map[string][]string
	byCoinB     map[string][]string

	sides    map[sideKey][]schema.OrderEntry
	trades   map[tradeKey][]schema.TradeRecord
	tradeIDs map[tradeKey]map[string]struct{}
}

// New constructs an empty book.
func New() *Book {
	b := new(Book)
	b.reset()
	return b
}

func (b *Book) reset() {
	b.markets = make(map[string]schema.MarketInfo)
	b.marketOrder = nil
	b.groupOrder = nil
	b.groups = make(map[string][]string)
	b.byCoinB = make(map[string][]string)
	b.sides = make(map[sideKey][]schema.OrderEntry)
	b.trades = make(map[tradeKey][]schema.TradeRecord)
	b.tradeIDs = make(map[tradeKey]map[string]struct{})
}

// Reset discards all cached state. Used on logout.
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

// LoadSnapshot replaces the entire book content from a full init batch.
func (b *Book) LoadSnapshot(snap *schema.InitSnapshot) error {
	if snap == nil {
		return errs.New("book/snapshot", errs.CodeInvalid, errs.WithMessage("nil snapshot"))
	}

	markets := make(map[string]schema.MarketInfo, len(snap.Markets))
	order := make([]string, 0, len(snap.Markets))
	groups := make(map[string][]string)
	byCoinB := make(map[string][]string)
	for _, m := range snap.Markets {
		if !m.Validate() {
			return errs.New("book/snapshot", errs.CodeInvalid, errs.WithMessage("malformed market info: "+m.Name))
		}
		markets[m.Name] = m
		order = append(order, m.Name)
		if m.Group != "" {
			groups[m.Group] = append(groups[m.Group], m.Name)
		}
		byCoinB[m.CoinB] = append(byCoinB[m.CoinB], m.Name)
	}

	groupOrder := append([]string(nil), snap.GroupOrder...)
	if len(groupOrder) == 0 {
		// Fall back to group discovery order from the market list.
		seen := make(map[string]struct{})
		for _, name := range order {
			g := markets[name].Group
			if g == "" {
				continue
			}
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			groupOrder = append(groupOrder, g)
		}
	}

	sides := make(map[sideKey][]schema.OrderEntry)
	for _, e := range snap.Books {
		if _, ok := markets[e.Market]; !ok {
			return errs.New("book/snapshot", errs.CodeInvalid, errs.WithMessage("book entry for unknown market: "+e.Market))
		}
		scope := schema.ScopeMarket
		if e.Own {
			scope = schema.ScopeUser
		}
		key := sideKey{market: e.Market, side: e.Side, scope: scope}
		sides[key] = append(sides[key], e)
		if e.Own {
			// Own entries also appear in the all-market view.
			mk := sideKey{market: e.Market, side: e.Side, scope: schema.ScopeMarket}
			sides[mk] = append(sides[mk], e)
		}
	}

	trades := make(map[tradeKey][]schema.TradeRecord)
	tradeIDs := make(map[tradeKey]map[string]struct{})
	appendTrade := func(key tradeKey, tr schema.TradeRecord) {
		ids, ok := tradeIDs[key]
		if !ok {
			ids = make(map[string]struct{})
			tradeIDs[key] = ids
		}
		if _, dup := ids[tr.TradeID]; dup {
			return
		}
		ids[tr.TradeID] = struct{}{}
		trades[key] = append(trades[key], tr)
	}
	for _, tr := range snap.Trades {
		if _, ok := markets[tr.Market]; !ok {
			return errs.New("book/snapshot", errs.CodeInvalid, errs.WithMessage("trade for unknown market: "+tr.Market))
		}
		appendTrade(tradeKey{market: tr.Market, scope: schema.ScopeMarket}, tr)
		if tr.Own {
			appendTrade(tradeKey{market: tr.Market, scope: schema.ScopeUser}, tr)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.markets = markets
	b.marketOrder = order
	b.groupOrder = groupOrder
	b.groups = groups
	b.byCoinB = byCoinB
	b.sides = sides
	b.trades = trades
	b.tradeIDs = tradeIDs
	return nil
}

// ApplyBookEvent inserts, replaces or removes one book entry. Replacement is
// keyed by (market, side, index); inserts land at the server-declared
// position, clamped to the list bounds.
func (b *Book) ApplyBookEvent(d schema.BookDelta) error {
	if !d.Side.Valid() || !d.Scope.Valid() {
		return errs.New("book/apply", errs.CodeInvalid, errs.WithMessage("malformed book delta"))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.markets[d.Market]; !ok {
		return errs.New("book/apply", errs.CodeNotFound, errs.WithMessage("unknown market: "+d.Market))
	}
	key := sideKey{market: d.Market, side: d.Side, scope: d.Scope}
	b.applySide(key, d)
	if d.Scope == schema.ScopeUser {
		// Keep the all-market mirror in step with the user's own entries.
		b.applySide(sideKey{market: d.Market, side: d.Side, scope: schema.ScopeMarket}, d)
	}
	return nil
}

func (b *Book) applySide(key sideKey, d schema.BookDelta) {
	list := b.sides[key]
	at := -1
	for i := range list {
		if list[i].Index == d.Index {
			at = i
			break
		}
	}
	switch {
	case d.Remove:
		if at >= 0 {
			b.sides[key] = append(list[:at], list[at+1:]...)
		}
	case at >= 0:
		list[at] = d.Entry
	default:
		pos := d.Pos
		if pos < 0 || pos > len(list) {
			pos = len(list)
		}
		list = append(list, schema.OrderEntry{})
		copy(list[pos+1:], list[pos:])
		list[pos] = d.Entry
		b.sides[key] = list
	}
}

// ApplyTradeEvent appends one trade. Duplicate trade ids are dropped.
func (b *Book) ApplyTradeEvent(d schema.TradeAppend) error {
	if !d.Scope.Valid() {
		return errs.New("book/apply", errs.CodeInvalid, errs.WithMessage("malformed trade scope"))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.markets[d.Trade.Market]; !ok {
		return errs.New("book/apply", errs.CodeNotFound, errs.WithMessage("unknown market: "+d.Trade.Market))
	}
	b.appendTradeLocked(tradeKey{market: d.Trade.Market, scope: d.Scope}, d.Trade)
	if d.Scope == schema.ScopeUser {
		b.appendTradeLocked(tradeKey{market: d.Trade.Market, scope: schema.ScopeMarket}, d.Trade)
	}
	return nil
}

func (b *Book) appendTradeLocked(key tradeKey, tr schema.TradeRecord) {
	ids, ok := b.tradeIDs[key]
	if !ok {
		ids = make(map[string]struct{})
		b.tradeIDs[key] = ids
	}
	if _, dup := ids[tr.TradeID]; dup {
		return
	}
	ids[tr.TradeID] = struct{}{}
	b.trades[key] = append(b.trades[key], tr)
}

// Market returns the metadata for a market.
func (b *Book) Market(name string) (schema.MarketInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.markets[name]
	return m, ok
}

// MarketNames returns market names in server-declared order.
func (b *Book) MarketNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.marketOrder...)
}

// GroupNames returns market group names in server-declared order.
func (b *Book) GroupNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.groupOrder...)
}

// MarketsInGroup returns the market names belonging to a group.
func (b *Book) MarketsInGroup(group string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.groups[group]...)
}

// MarketsByCoinB returns the market names quoted in the given coin.
func (b *Book) MarketsByCoinB(coinb string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.byCoinB[coinb]...)
}

// Buys returns a restartable page cursor over the buy side of a market.
func (b *Book) Buys(market string, scope schema.Scope, pageSize int) *paging.Cursor[schema.OrderEntry] {
	return b.sideCursor(market, schema.SideBuy, scope, pageSize)
}

// Sells returns a restartable page cursor over the sell side of a market.
func (b *Book) Sells(market string, scope schema.Scope, pageSize int) *paging.Cursor[schema.OrderEntry] {
	return b.sideCursor(market, schema.SideSell, scope, pageSize)
}

func (b *Book) sideCursor(market string, side schema.Side, scope schema.Scope, pageSize int) *paging.Cursor[schema.OrderEntry] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.sides[sideKey{market: market, side: side, scope: scope}]
	return paging.NewCursor(append([]schema.OrderEntry(nil), list...), pageSize)
}

// Trades returns a restartable page cursor over the trade history of a market.
func (b *Book) Trades(market string, scope schema.Scope, pageSize int) *paging.Cursor[schema.TradeRecord] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.trades[tradeKey{market: market, scope: scope}]
	return paging.NewCursor(append([]schema.TradeRecord(nil), list...), pageSize)
}
