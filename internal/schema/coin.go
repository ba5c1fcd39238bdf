// Package schema defines the wire-level event and record types exchanged with the server.
package schema

import "strings"

// CoinType tags the chain-specific accounting semantics of a coin.
type CoinType string

const (
	// CoinTxout marks unspent-output based coins; withdraws require an inputs stage.
	CoinTxout CoinType = "txout_t1"
	// CoinERC20 marks ERC20 token coins (account-based).
	CoinERC20 CoinType = "erc20_t1"
	// CoinEVM marks native EVM account coins.
	CoinEVM CoinType = "evm_t1"
	// CoinPeg marks peg-cycle coins whose backing resets per epoch.
	CoinPeg CoinType = "peg_t1"
)

// Valid reports whether the coin type is one of the known tags.
func (t CoinType) Valid() bool {
	switch t {
	case CoinTxout, CoinERC20, CoinEVM, CoinPeg:
		return true
	}
	return false
}

// NeedsInputsStage reports whether a withdraw on this coin type must stage txout inputs.
func (t CoinType) NeedsInputsStage() bool {
	return t == CoinTxout
}

// Cancellable reports whether a submitted withdraw can still be cancelled.
// Unspent-output withdraws are irreversible once broadcast.
func (t CoinType) Cancellable() bool {
	return t == CoinERC20 || t == CoinEVM
}

// CoinInfo carries immutable coin metadata loaded from the init snapshot.
type CoinInfo struct {
	Name    string   `json:"name"`
	Display string   `json:"display"`
	Type    CoinType `json:"type"`
	// Scale is the number of fractional decimal digits in the coin's display unit.
	Scale int `json:"scale"`
	// WithdrawFee is the flat network fee in base units as a decimal string.
	WithdrawFee string `json:"withdraw_fee"`
	// WithdrawFeePerInput is the per-input fee component for txout coins.
	WithdrawFeePerInput string `json:"withdraw_fee_per_input,omitempty"`
}

// Validate checks the structural fields of the coin info.
func (c CoinInfo) Validate() bool {
	return strings.TrimSpace(c.Name) != "" && c.Type.Valid() && c.Scale >= 0
}

// TxoutRecord is an unspent-output style unit of value.
type TxoutRecord struct {
	Coin   string `json:"coin"`
	ID     string `json:"id"`
	Amount string `json:"amount"`
	// LockTime is the user-visible earliest spend time (unix seconds).
	LockTime int64 `json:"locktime"`
	// ServerLockTime is the server-authoritative variant; it may diverge from LockTime.
	ServerLockTime int64 `json:"server_locktime"`
	Spendable      bool  `json:"spendable"`
}

// DepositRecord describes a pending inbound transfer.
type DepositRecord struct {
	Coin      string `json:"coin"`
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	Txid      string `json:"txid,omitempty"`
	Timestamp int64  `json:"ts"`
	Status    string `json:"status"`
}

// Withdrawal statuses as reported by the server. Completed, cancelled and
// failed are terminal.
const (
	WithdrawalPending   = "pending"
	WithdrawalCompleted = "completed"
	WithdrawalCancelled = "cancelled"
	WithdrawalFailed    = "failed"
)

// WithdrawalRecord describes an outbound transfer in processing.
type WithdrawalRecord struct {
	Coin        string `json:"coin"`
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Fee         string `json:"fee"`
	Destination string `json:"destination"`
	Txid        string `json:"txid,omitempty"`
	Timestamp   int64  `json:"ts"`
	Status      string `json:"status"`
}
