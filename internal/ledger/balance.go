// Package ledger maintains the per-coin balance accounting mirror.
//
// The ledger is exclusively owned by the sync engine: all mutation happens on
// the engine's event loop, all reads return value copies. Amounts are
// arbitrary-precision integers in base units; a negative field is a protocol
// bug, never a representable state.
package ledger

import (
	"math/big"

	"github.com/ychx/walrus/internal/numeric"
)

// Balance field names as they appear in balance delta events.
const (
	FieldSum            = "sum"
	FieldFree           = "free"
	FieldDebit          = "debit"
	FieldCredit         = "credit"
	FieldTxouts         = "txouts"
	FieldOfftrade       = "offtrade"
	FieldOrders         = "orders"
	FieldOrdersInDebit  = "orders_in_debit"
	FieldOrdersInTxouts = "orders_in_txouts"
	FieldDeposits       = "deposits"
	FieldWithdrawals    = "withdrawals"
	FieldClearance      = "clearance"
)

// Balance is one coin's accounting record. Every big.Int field is
// non-negative; debit/credit separate the sign structurally.
type Balance struct {
	Coin string
	// Seq is the last applied per-coin event stamp.
	Seq            uint64
	Sum            *big.Int
	Free           *big.Int
	Debit          *big.Int
	Credit         *big.Int
	Txouts         *big.Int
	Offtrade       *big.Int
	Orders         *big.Int
	OrdersInDebit  *big.Int
	OrdersInTxouts *big.Int
	Deposits       *big.Int
	Withdrawals    *big.Int
	Clearance      *big.Int
	// Cycle is the peg epoch counter for peg_t1 coins.
	Cycle int64
}

func newBalance(coin string) *Balance {
	return &Balance{
		Coin:           coin,
		Seq:            0,
		Sum:            new(big.Int),
		Free:           new(big.Int),
		Debit:          new(big.Int),
		Credit:         new(big.Int),
		Txouts:         new(big.Int),
		Offtrade:       new(big.Int),
		Orders:         new(big.Int),
		OrdersInDebit:  new(big.Int),
		OrdersInTxouts: new(big.Int),
		Deposits:       new(big.Int),
		Withdrawals:    new(big.Int),
		Clearance:      new(big.Int),
		Cycle:          0,
	}
}

// Clone returns a deep value copy so concurrent readers never observe a
// balance mutated mid-read.
func (b *Balance) Clone() Balance {
	out := Balance{
		Coin:           b.Coin,
		Seq:            b.Seq,
		Sum:            numeric.Clone(b.Sum),
		Free:           numeric.Clone(b.Free),
		Debit:          numeric.Clone(b.Debit),
		Credit:         numeric.Clone(b.Credit),
		Txouts:         numeric.Clone(b.Txouts),
		Offtrade:       numeric.Clone(b.Offtrade),
		Orders:         numeric.Clone(b.Orders),
		OrdersInDebit:  numeric.Clone(b.OrdersInDebit),
		OrdersInTxouts: numeric.Clone(b.OrdersInTxouts),
		Deposits:       numeric.Clone(b.Deposits),
		Withdrawals:    numeric.Clone(b.Withdrawals),
		Clearance:      numeric.Clone(b.Clearance),
		Cycle:          b.Cycle,
	}
	return out
}

// field returns the addressable field for a delta field name.
func (b *Balance) field(name string) (**big.Int, bool) {
	switch name {
	case FieldSum:
		return &b.Sum, true
	case FieldFree:
		return &b.Free, true
	case FieldDebit:
		return &b.Debit, true
	case FieldCredit:
		return &b.Credit, true
	case FieldTxouts:
		return &b.Txouts, true
	case FieldOfftrade:
		return &b.Offtrade, true
	case FieldOrders:
		return &b.Orders, true
	case FieldOrdersInDebit:
		return &b.OrdersInDebit, true
	case FieldOrdersInTxouts:
		return &b.OrdersInTxouts, true
	case FieldDeposits:
		return &b.Deposits, true
	case FieldWithdrawals:
		return &b.Withdrawals, true
	case FieldClearance:
		return &b.Clearance, true
	}
	return nil, false
}

// derivedFree computes the spendable free amount from the accounting identity:
//
//	free = sum - debit + credit
//	     - (orders - orders_in_debit - orders_in_txouts)
//	     - offtrade - clearance - withdrawals
//
// Orders already funded from debit or from allocated txouts are excluded to
// avoid double-counting against debit and offtrade.
func (b *Balance) derivedFree() *big.Int {
	free := numeric.Clone(b.Sum)
	free.Sub(free, b.Debit)
	free.Add(free, b.Credit)

	freeOrders := numeric.Clone(b.Orders)
	freeOrders.Sub(freeOrders, b.OrdersInDebit)
	freeOrders.Sub(freeOrders, b.OrdersInTxouts)
	free.Sub(free, freeOrders)

	free.Sub(free, b.Offtrade)
	free.Sub(free, b.Clearance)
	free.Sub(free, b.Withdrawals)
	return free
}

// validate reports the first negative field, or ok when all invariants hold.
func (b *Balance) validate() (string, bool) {
	fields := []struct {
		name string
		v    *big.Int
	}{
		{FieldSum, b.Sum},
		{FieldFree, b.Free},
		{FieldDebit, b.Debit},
		{FieldCredit, b.Credit},
		{FieldTxouts, b.Txouts},
		{FieldOfftrade, b.Offtrade},
		{FieldOrders, b.Orders},
		{FieldOrdersInDebit, b.OrdersInDebit},
		{FieldOrdersInTxouts, b.OrdersInTxouts},
		{FieldDeposits, b.Deposits},
		{FieldWithdrawals, b.Withdrawals},
		{FieldClearance, b.Clearance},
	}
	for _, f := range fields {
		if f.v == nil || f.v.Sign() < 0 {
			return f.name, false
		}
	}
	if b.derivedFree().Sign() < 0 {
		return FieldFree, false
	}
	return "", true
}
