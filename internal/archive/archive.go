// Package archive persists the durable slice of the stream: executed trades
// and withdrawals that reached a terminal state. Everything else is cache
// state rebuilt from the next snapshot.
package archive

import (
	"context"

	"github.com/ychx/walrus/internal/schema"
)

// Store is the durable sink for stream facts. Implementations must be safe
// for concurrent use and idempotent on replay.
type Store interface {
	// RecordTrade persists one executed trade. Replays of the same trade id
	// for the same market are no-ops.
	RecordTrade(ctx context.Context, market string, tr schema.TradeRecord) error
	// RecordWithdrawal persists a withdrawal that reached a terminal status.
	RecordWithdrawal(ctx context.Context, rec schema.WithdrawalRecord) error
	// Close releases the store's resources.
	Close()
}

// TerminalWithdrawal reports whether the record's status is final.
func TerminalWithdrawal(rec schema.WithdrawalRecord) bool {
	switch rec.Status {
	case schema.WithdrawalCompleted, schema.WithdrawalCancelled, schema.WithdrawalFailed:
		return true
	default:
		return false
	}
}
