// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
	"github.com/rovshanmuradov/solana-sniper/internal/storage"
	"go.uber.org/zap"
)

const (
	pgErrUniqueViolation = "23505"
	migrationLockID      = 101
)

const schema = `
CREATE TABLE IF NOT EXISTS closed_trades (
	trade_id       TEXT PRIMARY KEY,
	mint           VARCHAR(44) NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	symbol         TEXT NOT NULL DEFAULT '',
	entry_price    DOUBLE PRECISION NOT NULL,
	exit_price     DOUBLE PRECISION NOT NULL,
	invested_usd   DOUBLE PRECISION NOT NULL,
	pnl_usd        DOUBLE PRECISION NOT NULL,
	reason         VARCHAR(20) NOT NULL,
	entry_time     TIMESTAMPTZ NOT NULL,
	exit_time      TIMESTAMPTZ NOT NULL,
	sell_signature VARCHAR(88) NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS closed_trades_exit_time_idx ON closed_trades (exit_time DESC);
CREATE INDEX IF NOT EXISTS closed_trades_mint_idx ON closed_trades (mint);
`

// Store is a Postgres trade journal.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ storage.TradeJournal = (*Store)(nil)

// NewStore connects, verifies the connection and applies the schema.
func NewStore(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	config.MaxConns = 4
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool, logger: logger.Named("postgres")}
	if err := s.RunMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// RunMigrations creates the journal table under an advisory lock.
func (s *Store) RunMigrations(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migrationLockID).Scan(&locked); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !locked {
		return errors.New("another migration is in progress")
	}
	defer conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID)

	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) RecordTrade(ctx context.Context, t ledger.ClosedTrade) error {
	const query = `
		INSERT INTO closed_trades (
			trade_id, mint, name, symbol,
			entry_price, exit_price, invested_usd, pnl_usd,
			reason, entry_time, exit_time, sell_signature
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Mint, t.Name, t.Symbol,
		t.EntryPrice, t.ExitPrice, t.Invested, t.PnL,
		string(t.Reason), t.EntryTime, t.ExitTime, t.SellSignature,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateTrade
		}
		return fmt.Errorf("insert closed trade: %w", err)
	}
	s.logger.Debug("Trade journaled", zap.String("trade_id", t.ID), zap.String("mint", t.Mint))
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]ledger.ClosedTrade, error) {
	const query = `
		SELECT trade_id, mint, name, symbol,
			entry_price, exit_price, invested_usd, pnl_usd,
			reason, entry_time, exit_time, sell_signature
		FROM closed_trades
		ORDER BY exit_time DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query closed trades: %w", err)
	}
	trades, err := pgx.CollectRows(rows, scanTrade)
	if err != nil {
		return nil, fmt.Errorf("scan closed trades: %w", err)
	}
	return trades, nil
}

// TradeByID returns pgx.ErrNoRows wrapped when id is unknown.
func (s *Store) TradeByID(ctx context.Context, id string) (ledger.ClosedTrade, error) {
	const query = `
		SELECT trade_id, mint, name, symbol,
			entry_price, exit_price, invested_usd, pnl_usd,
			reason, entry_time, exit_time, sell_signature
		FROM closed_trades
		WHERE trade_id = $1
	`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return ledger.ClosedTrade{}, fmt.Errorf("query closed trade: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTrade)
	if err != nil {
		return ledger.ClosedTrade{}, fmt.Errorf("closed trade %s: %w", id, err)
	}
	return t, nil
}

func scanTrade(row pgx.CollectableRow) (ledger.ClosedTrade, error) {
	var (
		t      ledger.ClosedTrade
		reason string
	)
	err := row.Scan(&t.ID, &t.Mint, &t.Name, &t.Symbol,
		&t.EntryPrice, &t.ExitPrice, &t.Invested, &t.PnL,
		&reason, &t.EntryTime, &t.ExitTime, &t.SellSignature)
	t.Reason = ledger.ExitReason(reason)
	return t, err
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

// IsNotFound reports whether err means no trade matched.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
