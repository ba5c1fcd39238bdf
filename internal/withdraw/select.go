package withdraw

import (
	"math/big"
	"sort"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/numeric"
	"github.com/ychx/walrus/internal/schema"
)

// candidate is a spendable txout with its parsed amount.
type candidate struct {
	rec    schema.TxoutRecord
	amount *big.Int
}

// selectInputs picks txouts covering amount plus the count-dependent fee.
// Selection is greedy largest first; equal amounts break ties on earliest
// lock time, then identifier. Txouts locked past now or flagged unspendable
// are ineligible. The returned fee reflects the final input count.
func selectInputs(coin schema.CoinInfo, txouts []schema.TxoutRecord, amount *big.Int, now int64) ([]schema.TxoutRecord, *big.Int, error) {
	eligible := make([]candidate, 0, len(txouts))
	for _, rec := range txouts {
		if !rec.Spendable || rec.LockTime > now || rec.ServerLockTime > now {
			continue
		}
		v, ok := numeric.ParseAmount(rec.Amount, 0)
		if !ok {
			continue
		}
		eligible = append(eligible, candidate{rec: rec, amount: v})
	}
	sort.Slice(eligible, func(i, j int) bool {
		if c := eligible[i].amount.Cmp(eligible[j].amount); c != 0 {
			return c > 0
		}
		if eligible[i].rec.LockTime != eligible[j].rec.LockTime {
			return eligible[i].rec.LockTime < eligible[j].rec.LockTime
		}
		return eligible[i].rec.ID < eligible[j].rec.ID
	})

	selected := make([]schema.TxoutRecord, 0, len(eligible))
	total := new(big.Int)
	for _, c := range eligible {
		selected = append(selected, c.rec)
		total.Add(total, c.amount)
		fee := Fee(coin, len(selected))
		target := new(big.Int).Add(amount, fee)
		if total.Cmp(target) >= 0 {
			return selected, fee, nil
		}
	}
	return nil, nil, errs.New("withdraw/select-inputs", errs.CodeInsufficientInputs,
		errs.WithMessage("spendable txouts do not cover amount plus fee"),
		errs.WithRemediation("wait for lock times to expire or reduce the amount"))
}
