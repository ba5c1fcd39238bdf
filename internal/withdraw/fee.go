package withdraw

import (
	"math/big"

	"github.com/ychx/walrus/internal/numeric"
	"github.com/ychx/walrus/internal/schema"
)

// Fee computes the network fee for a withdraw on the given coin with the
// given number of staged inputs. Account-based coins charge the flat fee
// only; txout coins add the per-input component.
func Fee(coin schema.CoinInfo, inputCount int) *big.Int {
	base, ok := numeric.ParseAmount(coin.WithdrawFee, 0)
	if !ok {
		base = new(big.Int)
	}
	if inputCount <= 0 || coin.WithdrawFeePerInput == "" {
		return base
	}
	perInput, ok := numeric.ParseAmount(coin.WithdrawFeePerInput, 0)
	if !ok {
		return base
	}
	total := new(big.Int).Mul(perInput, big.NewInt(int64(inputCount)))
	return total.Add(total, base)
}
