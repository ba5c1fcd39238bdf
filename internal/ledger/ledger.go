package ledger

import (
	"math/big"
	"sync"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/numeric"
	"github.com/ychx/walrus/internal/schema"
)

// BalanceScope selects which pool of funds a query or withdraw targets.
type BalanceScope string

const (
	// ScopeAvailable covers freely spendable funds.
	ScopeAvailable BalanceScope = "available"
	// ScopeAllocated covers earmarked (offtrade) funds.
	ScopeAllocated BalanceScope = "allocated"
)

// Valid reports whether the scope is one of the two known values.
func (s BalanceScope) Valid() bool { return s == ScopeAvailable || s == ScopeAllocated }

// Ledger is the server-authoritative balance mirror for one session.
// The sync engine is the only writer; readers get value copies.
type Ledger struct {
	mu          sync.RWMutex
	coins       map[string]schema.CoinInfo
	coinOrder   []string
	balances    map[string]*Balance
	txouts      map[string][]schema.TxoutRecord
	deposits    map[string][]schema.DepositRecord
	withdrawals map[string][]schema.WithdrawalRecord
	usdRates    map[string]float64
}

// New constructs an empty ledger.
func New() *Ledger {
	l := new(Ledger)
	l.reset()
	return l
}

func (l *Ledger) reset() {
	l.coins = make(map[string]schema.CoinInfo)
	l.coinOrder = nil
	l.balances = make(map[string]*Balance)
	l.txouts = make(map[string][]schema.TxoutRecord)
	l.deposits = make(map[string][]schema.DepositRecord)
	l.withdrawals = make(map[string][]schema.WithdrawalRecord)
	l.usdRates = make(map[string]float64)
}

// Reset discards all cached state. Used on logout.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
}

// LoadSnapshot replaces the entire ledger content from a full init batch.
// The swap is atomic: readers see either the old state or the new one.
func (l *Ledger) LoadSnapshot(snap *schema.InitSnapshot) error {
	if snap == nil {
		return errs.New("ledger/snapshot", errs.CodeInvalid, errs.WithMessage("nil snapshot"))
	}

	coins := make(map[string]schema.CoinInfo, len(snap.Coins))
	order := make([]string, 0, len(snap.Coins))
	for _, c := range snap.Coins {
		if !c.Validate() {
			return errs.New("ledger/snapshot", errs.CodeInvalid, errs.WithMessage("malformed coin info: "+c.Name))
		}
		coins[c.Name] = c
		order = append(order, c.Name)
	}

	balances := make(map[string]*Balance, len(snap.Balances))
	for _, bs := range snap.Balances {
		coin, ok := coins[bs.Coin]
		if !ok {
			return errs.New("ledger/snapshot", errs.CodeInvalid, errs.WithMessage("balance for unknown coin: "+bs.Coin))
		}
		bal, err := balanceFromSnapshot(bs, coin)
		if err != nil {
			return err
		}
		balances[bs.Coin] = bal
	}
	// Coins without a snapshot entry start zeroed.
	for name := range coins {
		if _, ok := balances[name]; !ok {
			balances[name] = newBalance(name)
		}
	}

	txouts := make(map[string][]schema.TxoutRecord)
	for _, tx := range snap.Txouts {
		txouts[tx.Coin] = append(txouts[tx.Coin], tx)
	}
	deposits := make(map[string][]schema.DepositRecord)
	for _, d := range snap.Deposits {
		deposits[d.Coin] = append(deposits[d.Coin], d)
	}
	withdrawals := make(map[string][]schema.WithdrawalRecord)
	for _, w := range snap.Withdrawals {
		withdrawals[w.Coin] = append(withdrawals[w.Coin], w)
	}
	rates := make(map[string]float64, len(snap.USDRates))
	for coin, rate := range snap.USDRates {
		rates[coin] = rate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.coins = coins
	l.coinOrder = order
	l.balances = balances
	l.txouts = txouts
	l.deposits = deposits
	l.withdrawals = withdrawals
	l.usdRates = rates
	return nil
}

func balanceFromSnapshot(bs schema.BalanceSnapshot, coin schema.CoinInfo) (*Balance, error) {
	bal := newBalance(bs.Coin)
	bal.Seq = bs.Seq
	bal.Cycle = bs.Cycle
	fields := []struct {
		name string
		dst  **big.Int
		raw  string
	}{
		{FieldSum, &bal.Sum, bs.Sum},
		{FieldFree, &bal.Free, bs.Free},
		{FieldDebit, &bal.Debit, bs.Debit},
		{FieldCredit, &bal.Credit, bs.Credit},
		{FieldTxouts, &bal.Txouts, bs.Txouts},
		{FieldOfftrade, &bal.Offtrade, bs.Offtrade},
		{FieldOrders, &bal.Orders, bs.Orders},
		{FieldOrdersInDebit, &bal.OrdersInDebit, bs.OrdersInDebit},
		{FieldOrdersInTxouts, &bal.OrdersInTxouts, bs.OrdersInTxouts},
		{FieldDeposits, &bal.Deposits, bs.Deposits},
		{FieldWithdrawals, &bal.Withdrawals, bs.Withdrawals},
		{FieldClearance, &bal.Clearance, bs.Clearance},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, ok := new(big.Int).SetString(f.raw, 10)
		if !ok || v.Sign() < 0 {
			return nil, errs.New("ledger/snapshot", errs.CodeInvalid,
				errs.WithMessage("malformed balance field "+f.name+" for "+bs.Coin))
		}
		*f.dst = v
	}
	if field, ok := bal.validate(); !ok {
		return nil, errs.New("ledger/snapshot", errs.CodeInvariant,
			errs.WithMessage("negative balance field "+field+" for "+bs.Coin))
	}
	return bal, nil
}

// ApplyDelta applies one seq-stamped balance event. Events with a stale stamp
// are dropped (applied=false, nil error): duplicate delivery is a no-op.
// A delta that would leave any field negative is rejected without committing
// and reported as an invariant violation.
func (l *Ledger) ApplyDelta(d schema.BalanceDelta) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[d.Coin]
	if !ok {
		return false, errs.New("ledger/apply", errs.CodeNotFound, errs.WithMessage("unknown coin: "+d.Coin))
	}
	if d.Seq <= bal.Seq {
		return false, nil
	}

	// Mutate a working copy; commit only when every invariant holds.
	work := bal.Clone()
	work.Seq = d.Seq
	if d.Cycle != nil {
		work.Cycle = *d.Cycle
	}
	for name, raw := range d.Set {
		dst, ok := work.field(name)
		if !ok {
			return false, errs.New("ledger/apply", errs.CodeInvalid, errs.WithMessage("unknown balance field: "+name))
		}
		v, okv := new(big.Int).SetString(raw, 10)
		if !okv {
			return false, errs.New("ledger/apply", errs.CodeInvalid, errs.WithMessage("malformed set value for "+name))
		}
		*dst = v
	}
	for name, raw := range d.Add {
		dst, ok := work.field(name)
		if !ok {
			return false, errs.New("ledger/apply", errs.CodeInvalid, errs.WithMessage("unknown balance field: "+name))
		}
		v, okv := new(big.Int).SetString(raw, 10)
		if !okv {
			return false, errs.New("ledger/apply", errs.CodeInvalid, errs.WithMessage("malformed add value for "+name))
		}
		(*dst).Add(*dst, v)
	}

	if field, ok := work.validate(); !ok {
		return false, errs.New("ledger/apply", errs.CodeInvariant,
			errs.WithMessage("balance field "+field+" would go negative for "+d.Coin))
	}

	l.balances[d.Coin] = &work
	return true, nil
}

// ApplyTxouts replaces the txout set for one coin.
func (l *Ledger) ApplyTxouts(snap schema.TxoutSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.coins[snap.Coin]; !ok {
		return errs.New("ledger/txouts", errs.CodeNotFound, errs.WithMessage("unknown coin: "+snap.Coin))
	}
	l.txouts[snap.Coin] = append([]schema.TxoutRecord(nil), snap.Txouts...)
	return nil
}

// ApplyDeposit upserts a pending deposit record keyed by (coin, id).
func (l *Ledger) ApplyDeposit(rec schema.DepositRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.deposits[rec.Coin]
	for i := range list {
		if list[i].ID == rec.ID {
			list[i] = rec
			return
		}
	}
	l.deposits[rec.Coin] = append(list, rec)
}

// ApplyWithdrawal upserts a pending withdrawal record keyed by (coin, id).
func (l *Ledger) ApplyWithdrawal(rec schema.WithdrawalRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.withdrawals[rec.Coin]
	for i := range list {
		if list[i].ID == rec.ID {
			list[i] = rec
			return
		}
	}
	l.withdrawals[rec.Coin] = append(list, rec)
}

// Coin returns the metadata for a coin.
func (l *Ledger) Coin(name string) (schema.CoinInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.coins[name]
	return c, ok
}

// CoinNames returns coin names in server-declared order.
func (l *Ledger) CoinNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.coinOrder...)
}

// Balance returns a snapshot copy of one coin's balance.
func (l *Ledger) Balance(coin string) (Balance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bal, ok := l.balances[coin]
	if !ok {
		return Balance{}, false
	}
	return bal.Clone(), true
}

// Free returns the derived freely spendable amount for a coin.
func (l *Ledger) Free(coin string) (*big.Int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bal, ok := l.balances[coin]
	if !ok {
		return nil, false
	}
	return bal.derivedFree(), true
}

// Spendable returns the amount withdrawable under the given scope.
func (l *Ledger) Spendable(coin string, scope BalanceScope) (*big.Int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bal, ok := l.balances[coin]
	if !ok {
		return nil, false
	}
	switch scope {
	case ScopeAllocated:
		return numeric.Clone(bal.Offtrade), true
	default:
		return bal.derivedFree(), true
	}
}

// Txouts returns a copy of the cached txout records for a coin.
func (l *Ledger) Txouts(coin string) []schema.TxoutRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]schema.TxoutRecord(nil), l.txouts[coin]...)
}

// Deposits returns a copy of the pending deposit records for a coin.
func (l *Ledger) Deposits(coin string) []schema.DepositRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]schema.DepositRecord(nil), l.deposits[coin]...)
}

// Withdrawals returns a copy of the pending withdrawal records for a coin.
func (l *Ledger) Withdrawals(coin string) []schema.WithdrawalRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]schema.WithdrawalRecord(nil), l.withdrawals[coin]...)
}

// USDRate returns the display-only USD estimate for one coin unit.
func (l *Ledger) USDRate(coin string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rate, ok := l.usdRates[coin]
	return rate, ok
}
