package schema

import (
	"time"

	json "github.com/goccy/go-json"
)

// EventKind identifies the server push event categories on the sync channel.
type EventKind string

const (
	// KindInitSnapshot carries the full initial data batch after connect or resync.
	KindInitSnapshot EventKind = "init_snapshot"
	// KindBalanceDelta mutates per-coin balance fields.
	KindBalanceDelta EventKind = "balance_delta"
	// KindBookDelta inserts or replaces an order book entry.
	KindBookDelta EventKind = "book_delta"
	// KindTradeAppend appends an executed trade.
	KindTradeAppend EventKind = "trade_append"
	// KindTxoutSnapshot replaces the txout set for one coin.
	KindTxoutSnapshot EventKind = "txout_snapshot"
	// KindDepositUpdate upserts a pending deposit record.
	KindDepositUpdate EventKind = "deposit_update"
	// KindWithdrawalUpdate upserts a pending withdrawal record.
	KindWithdrawalUpdate EventKind = "withdrawal_update"
	// KindStatus reports channel status transitions, including stream gaps.
	KindStatus EventKind = "status"
)

// Valid reports whether the kind is known.
func (k EventKind) Valid() bool {
	switch k {
	case KindInitSnapshot, KindBalanceDelta, KindBookDelta, KindTradeAppend,
		KindTxoutSnapshot, KindDepositUpdate, KindWithdrawalUpdate, KindStatus:
		return true
	}
	return false
}

// Event is one framed server push message. Delivery is ordered and
// at-most-once per EventID; the payload is decoded per Kind.
type Event struct {
	EventID    string          `json:"event_id"`
	Kind       EventKind       `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"-"`
}

// BalanceDelta mutates the named sub-fields of one coin's balance.
// Seq is a per-coin monotonically increasing stamp; deltas with a stale
// stamp are dropped, never re-applied. Set overwrites fields, Add
// increments them (negative increments encoded with a leading '-').
type BalanceDelta struct {
	Coin string `json:"coin"`
	Seq  uint64 `json:"seq"`
	// Set maps field name to an absolute decimal value in base units.
	Set map[string]string `json:"set,omitempty"`
	// Add maps field name to a signed decimal increment in base units.
	Add map[string]string `json:"add,omitempty"`
	// Cycle, when present, overwrites the peg epoch counter.
	Cycle *int64 `json:"cycle,omitempty"`
}

// BookDelta inserts, replaces or removes one order book entry keyed by
// (market, side, index). Pos is the server-declared ordinal position for an
// insert; the cache places entries exactly where the server says and never
// re-sorts, since price strings are exact decimals and local numeric sorting
// could diverge from server tie-break rules.
type BookDelta struct {
	Market string     `json:"market"`
	Side   Side       `json:"side"`
	Index  int64      `json:"index"`
	Pos    int        `json:"pos"`
	Scope  Scope      `json:"scope"`
	Remove bool       `json:"remove,omitempty"`
	Entry  OrderEntry `json:"entry"`
}

// TradeAppend adds one trade record keyed by (market, trade id).
type TradeAppend struct {
	Scope Scope       `json:"scope"`
	Trade TradeRecord `json:"trade"`
}

// TxoutSnapshot replaces the full txout set for a coin.
type TxoutSnapshot struct {
	Coin   string        `json:"coin"`
	Txouts []TxoutRecord `json:"txouts"`
}

// DepositUpdate upserts a pending deposit.
type DepositUpdate struct {
	Deposit DepositRecord `json:"deposit"`
}

// WithdrawalUpdate upserts a pending withdrawal.
type WithdrawalUpdate struct {
	Withdrawal WithdrawalRecord `json:"withdrawal"`
}

// StatusUpdate reports stream health. Gap set means events were lost and
// the local caches must be rebuilt from a fresh full snapshot.
type StatusUpdate struct {
	Gap    bool   `json:"gap,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// BalanceSnapshot is the full wire form of one coin's balance in an init batch.
type BalanceSnapshot struct {
	Coin           string `json:"coin"`
	Seq            uint64 `json:"seq"`
	Sum            string `json:"sum"`
	Free           string `json:"free"`
	Debit          string `json:"debit"`
	Credit         string `json:"credit"`
	Txouts         string `json:"txouts"`
	Offtrade       string `json:"offtrade"`
	Orders         string `json:"orders"`
	OrdersInDebit  string `json:"orders_in_debit"`
	OrdersInTxouts string `json:"orders_in_txouts"`
	Deposits       string `json:"deposits"`
	Withdrawals    string `json:"withdrawals"`
	Clearance      string `json:"clearance"`
	Cycle          int64  `json:"cycle"`
}

// AccountInfo carries the authenticated identity and user-scoped metadata.
type AccountInfo struct {
	AccountID string `json:"account_id"`
	Login     string `json:"login"`
	TwoFA     bool   `json:"twofa"`
	// Discount is the user trading discount fraction as a decimal string.
	Discount string `json:"discount"`
	// Rewards maps coin name to accumulated reward in base units.
	Rewards map[string]string `json:"rewards,omitempty"`
	// HoldingAddresses maps coin name to the user's deposit address.
	HoldingAddresses map[string]string `json:"holding_addresses,omitempty"`
	// UserLocktimes and ServerLocktimes map coin name to unix seconds; the two
	// views may diverge while a chain change is in flight.
	UserLocktimes   map[string]int64 `json:"user_locktimes,omitempty"`
	ServerLocktimes map[string]int64 `json:"server_locktimes,omitempty"`
	InvitationCode  string           `json:"invitation_code,omitempty"`
	InvitationTitle string           `json:"invitation_title,omitempty"`
}

// InitSnapshot is the complete server state batch delivered after connect,
// login, or a forced resync. Applying it wholesale replaces every cache.
type InitSnapshot struct {
	Coins       []CoinInfo         `json:"coins"`
	Markets     []MarketInfo       `json:"markets"`
	GroupOrder  []string           `json:"group_order"`
	Balances    []BalanceSnapshot  `json:"balances"`
	Books       []OrderEntry       `json:"books"`
	Trades      []TradeRecord      `json:"trades"`
	Txouts      []TxoutRecord      `json:"txouts"`
	Deposits    []DepositRecord    `json:"deposits"`
	Withdrawals []WithdrawalRecord `json:"withdrawals"`
	Account     *AccountInfo       `json:"account,omitempty"`
	// USDRates maps coin name to a display-only USD estimate. Estimates are
	// not monetary amounts and never feed accounting.
	USDRates map[string]float64 `json:"usd_rates,omitempty"`
}

// DecodePayload unmarshals the event payload into out.
func (e *Event) DecodePayload(out any) error {
	return json.Unmarshal(e.Payload, out)
}
