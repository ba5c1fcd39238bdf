// Package postgres implements the durable archive on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ychx/walrus/internal/schema"
)

// Store persists trades and terminal withdrawals. Writes are idempotent on
// their natural keys, so event replays after a resync are harmless.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a store to the database at dsn.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect archive database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool. The caller keeps ownership of it.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const tradeInsertSQL = `
INSERT INTO trades (market, trade_id, price, amount, side, own, executed_at)
VALUES (@market, @trade_id, @price::numeric, @amount::numeric, @side, @own, to_timestamp(@executed_at))
ON CONFLICT (market, trade_id) DO NOTHING;
`

// RecordTrade persists one executed trade.
func (s *Store) RecordTrade(ctx context.Context, market string, tr schema.TradeRecord) error {
	args := pgx.NamedArgs{
		"market":      market,
		"trade_id":    tr.TradeID,
		"price":       tr.Price,
		"amount":      tr.Amount,
		"side":        string(tr.Side),
		"own":         tr.Own,
		"executed_at": tr.Timestamp,
	}
	if _, err := s.pool.Exec(ctx, tradeInsertSQL, args); err != nil {
		return fmt.Errorf("insert trade %s/%s: %w", market, tr.TradeID, err)
	}
	return nil
}

const withdrawalInsertSQL = `
INSERT INTO withdrawals (id, coin, amount, fee, destination, txid, status, executed_at)
VALUES (@id, @coin, @amount::numeric, @fee::numeric, @destination, @txid, @status, to_timestamp(@executed_at))
ON CONFLICT (id) DO UPDATE SET
    txid   = EXCLUDED.txid,
    status = EXCLUDED.status;
`

// RecordWithdrawal persists a withdrawal in a terminal state. A later update
// for the same id wins, carrying the final txid.
func (s *Store) RecordWithdrawal(ctx context.Context, rec schema.WithdrawalRecord) error {
	fee := rec.Fee
	if fee == "" {
		fee = "0"
	}
	args := pgx.NamedArgs{
		"id":          rec.ID,
		"coin":        rec.Coin,
		"amount":      rec.Amount,
		"fee":         fee,
		"destination": rec.Destination,
		"txid":        rec.Txid,
		"status":      rec.Status,
		"executed_at": rec.Timestamp,
	}
	if _, err := s.pool.Exec(ctx, withdrawalInsertSQL, args); err != nil {
		return fmt.Errorf("insert withdrawal %s: %w", rec.ID, err)
	}
	return nil
}

// TradesSince returns archived trades for a market executed at or after the
// cutoff, newest first.
func (s *Store) TradesSince(ctx context.Context, market string, cutoff time.Time, limit int) ([]schema.TradeRecord, error) {
	const query = `
SELECT trade_id, price::text, amount::text, side, own, EXTRACT(EPOCH FROM executed_at)::bigint
FROM trades
WHERE market = @market AND executed_at >= @cutoff
ORDER BY executed_at DESC
LIMIT @limit;
`
	rows, err := s.pool.Query(ctx, query, pgx.NamedArgs{
		"market": market,
		"cutoff": cutoff,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []schema.TradeRecord
	for rows.Next() {
		tr := schema.TradeRecord{Market: market}
		var side string
		if err := rows.Scan(&tr.TradeID, &tr.Price, &tr.Amount, &side, &tr.Own, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		tr.Side = schema.Side(side)
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}

// Withdrawal returns one archived withdrawal by id.
func (s *Store) Withdrawal(ctx context.Context, id string) (schema.WithdrawalRecord, bool, error) {
	const query = `
SELECT coin, amount::text, fee::text, destination, COALESCE(txid, ''), status, EXTRACT(EPOCH FROM executed_at)::bigint
FROM withdrawals
WHERE id = @id;
`
	rec := schema.WithdrawalRecord{ID: id}
	err := s.pool.QueryRow(ctx, query, pgx.NamedArgs{"id": id}).Scan(
		&rec.Coin, &rec.Amount, &rec.Fee, &rec.Destination, &rec.Txid, &rec.Status, &rec.Timestamp)
	if err == pgx.ErrNoRows {
		return schema.WithdrawalRecord{}, false, nil
	}
	if err != nil {
		return schema.WithdrawalRecord{}, false, fmt.Errorf("query withdrawal %s: %w", id, err)
	}
	return rec, true, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
