package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swapledger/internal/model"
)

// Store provides Postgres persistence for the trade ledger and sync markers.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the trades and sync_state tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trades (
	id BIGSERIAL PRIMARY KEY,
	chain TEXT NOT NULL,
	tx_hash TEXT NOT NULL,
	log_index BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	block_time TIMESTAMPTZ NOT NULL,
	pool_address TEXT NOT NULL,
	side TEXT NOT NULL,
	tracked_amount TEXT,
	quote_symbol TEXT,
	quote_amount TEXT,
	maker TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	raw JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tx_hash, log_index)
);
CREATE INDEX IF NOT EXISTS trades_status_block_idx ON trades (status, block_number);
CREATE INDEX IF NOT EXISTS trades_pool_address_idx ON trades (pool_address);
CREATE INDEX IF NOT EXISTS trades_maker_idx ON trades (maker);
CREATE TABLE IF NOT EXISTS sync_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// InsertTrade writes one ledger row. ON CONFLICT DO NOTHING makes re-delivery
// of the same (tx_hash, log_index) a silent success.
func (s *Store) InsertTrade(ctx context.Context, record model.TradeRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (
			chain, tx_hash, log_index, block_number, block_time, pool_address,
			side, tracked_amount, quote_symbol, quote_amount, maker, status, raw
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`,
		record.Chain,
		record.TxHash,
		int64(record.LogIndex),
		int64(record.BlockNumber),
		record.BlockTime,
		record.PoolAddress,
		record.Side,
		record.TrackedAmount,
		record.QuoteSymbol,
		record.QuoteAmount,
		record.Maker,
		record.Status,
		record.Raw,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", record.TxHash, err)
	}
	return nil
}

// MarkConfirmed promotes pending rows for the transaction. Zero rows affected
// means the trade is already confirmed or unknown; both are fine.
func (s *Store) MarkConfirmed(ctx context.Context, txHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trades SET status = $1 WHERE tx_hash = $2 AND status = $3
	`, model.StatusConfirmed, txHash, model.StatusPending)
	if err != nil {
		return fmt.Errorf("mark confirmed %s: %w", txHash, err)
	}
	return nil
}

// ListPending returns pending trades at or below maxBlock, oldest first.
func (s *Store) ListPending(ctx context.Context, maxBlock uint64, limit int) ([]model.PendingTrade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, block_number FROM trades
		WHERE status = $1 AND block_number <= $2
		ORDER BY block_number ASC
		LIMIT $3
	`, model.StatusPending, int64(maxBlock), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var pending []model.PendingTrade
	for rows.Next() {
		var txHash string
		var blockNumber int64
		if err := rows.Scan(&txHash, &blockNumber); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		pending = append(pending, model.PendingTrade{TxHash: txHash, BlockNumber: uint64(blockNumber)})
	}
	return pending, rows.Err()
}

// ListTrades serves filtered reporting reads, newest first.
func (s *Store) ListTrades(ctx context.Context, filter model.TradeFilter) ([]model.TradeRecord, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Maker != "" {
		add("maker = $%d", strings.ToLower(filter.Maker))
	}
	if filter.Pool != "" {
		add("pool_address = $%d", strings.ToLower(filter.Pool))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.Since.IsZero() {
		add("block_time >= $%d", filter.Since)
	}

	query := `
		SELECT chain, tx_hash, log_index, block_number, block_time, pool_address,
			side, tracked_amount, quote_symbol, quote_amount, maker, status, raw
		FROM trades
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY block_number DESC, log_index DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var (
			record      model.TradeRecord
			logIndex    int64
			blockNumber int64
			blockTime   time.Time
		)
		if err := rows.Scan(
			&record.Chain,
			&record.TxHash,
			&logIndex,
			&blockNumber,
			&blockTime,
			&record.PoolAddress,
			&record.Side,
			&record.TrackedAmount,
			&record.QuoteSymbol,
			&record.QuoteAmount,
			&record.Maker,
			&record.Status,
			&record.Raw,
		); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		record.LogIndex = uint64(logIndex)
		record.BlockNumber = uint64(blockNumber)
		record.BlockTime = blockTime
		trades = append(trades, record)
	}
	return trades, rows.Err()
}

// GetSyncState reads a sync marker, returning fallback when absent.
func (s *Store) GetSyncState(ctx context.Context, key, fallback string) (string, error) {
	var value string
	row := s.pool.QueryRow(ctx, `SELECT value FROM sync_state WHERE key = $1`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fallback, nil
		}
		return "", fmt.Errorf("get sync state %s: %w", key, err)
	}
	return value, nil
}

// SetSyncState upserts a sync marker. Last write wins.
func (s *Store) SetSyncState(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set sync state %s: %w", key, err)
	}
	return nil
}
