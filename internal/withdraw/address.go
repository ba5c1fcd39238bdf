package withdraw

import (
	"strings"

	"github.com/ychx/walrus/errs"
	"github.com/ychx/walrus/internal/schema"
)

// ValidateAddress performs structural checks on a destination address for the
// coin type. It catches obvious mistakes locally; the server remains the
// authority on address validity.
func ValidateAddress(coinType schema.CoinType, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return errs.New("withdraw/validate-address", errs.CodeInvalid,
			errs.WithMessage("destination address is empty"))
	}
	switch coinType {
	case schema.CoinEVM, schema.CoinERC20:
		if !strings.HasPrefix(addr, "0x") || len(addr) != 42 || !isHex(addr[2:]) {
			return errs.New("withdraw/validate-address", errs.CodeInvalid,
				errs.WithMessage("not a valid account address: "+addr))
		}
	case schema.CoinTxout, schema.CoinPeg:
		if len(addr) < 26 || len(addr) > 90 || strings.ContainsAny(addr, " \t\n") {
			return errs.New("withdraw/validate-address", errs.CodeInvalid,
				errs.WithMessage("not a valid destination address: "+addr))
		}
	default:
		return errs.New("withdraw/validate-address", errs.CodeInvalid,
			errs.WithMessage("unknown coin type: "+string(coinType)))
	}
	return nil
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
