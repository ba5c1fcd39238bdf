package schema

import "strings"

// Side distinguishes the two halves of an order book.
type Side string

const (
	// SideBuy marks bid-side entries.
	SideBuy Side = "buy"
	// SideSell marks ask-side entries.
	SideSell Side = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Scope distinguishes user-owned entries from all-market entries.
type Scope string

const (
	// ScopeMarket covers entries visible to everyone.
	ScopeMarket Scope = "market"
	// ScopeUser covers the authenticated user's own entries.
	ScopeUser Scope = "user"
)

// Valid reports whether the scope is one of the two known values.
func (s Scope) Valid() bool { return s == ScopeMarket || s == ScopeUser }

// MarketInfo carries market metadata loaded from the init snapshot.
type MarketInfo struct {
	Name  string `json:"name"`
	CoinA string `json:"coina"`
	CoinB string `json:"coinb"`
	Group string `json:"group"`
	// FeeRate is the base trading fee fraction as a decimal string, e.g. "0.002".
	FeeRate string `json:"fee_rate"`
}

// Validate checks the structural fields of the market info.
func (m MarketInfo) Validate() bool {
	return strings.TrimSpace(m.Name) != "" &&
		strings.TrimSpace(m.CoinA) != "" &&
		strings.TrimSpace(m.CoinB) != ""
}

// OrderStatus tracks the lifecycle of a book entry.
type OrderStatus string

const (
	// OrderOpen marks a resting order with its full amount remaining.
	OrderOpen OrderStatus = "open"
	// OrderPartial marks a partially filled order.
	OrderPartial OrderStatus = "partially_filled"
	// OrderFilled marks a fully executed order.
	OrderFilled OrderStatus = "filled"
	// OrderCancelled marks a cancelled order.
	OrderCancelled OrderStatus = "cancelled"
)

// OrderEntry is a single order book row. Price stays an exact decimal string:
// the cache preserves server ordering and never re-sorts numerically.
type OrderEntry struct {
	Market    string      `json:"market"`
	Side      Side        `json:"side"`
	Index     int64       `json:"index"`
	Price     string      `json:"price"`
	Amount    string      `json:"amount"`
	Remaining string      `json:"remaining"`
	Status    OrderStatus `json:"status"`
	Own       bool        `json:"own"`
}

// TradeRecord is an immutable executed-trade row.
type TradeRecord struct {
	Market    string `json:"market"`
	TradeID   string `json:"trade_id"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"ts"`
	Side      Side   `json:"side"`
	Own       bool   `json:"own"`
}
