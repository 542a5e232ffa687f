package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smalltimedevs/aramid-trader/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			token_address TEXT NOT NULL,
			token_name TEXT NOT NULL,
			entry_price_native REAL NOT NULL,
			entry_price_usd REAL NOT NULL,
			amount_invested REAL NOT NULL,
			units_received REAL NOT NULL,
			target_gain_pct REAL NOT NULL,
			target_loss_pct REAL NOT NULL,
			trade_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			opened_at DATETIME NOT NULL,
			exit_price_native REAL NOT NULL DEFAULT 0,
			exit_price_usd REAL NOT NULL DEFAULT 0,
			realized_pct REAL NOT NULL DEFAULT 0,
			close_reason TEXT NOT NULL DEFAULT '',
			closed_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_token_status ON trades(token_address, status);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

const tradeColumns = `id, token_address, token_name, entry_price_native, entry_price_usd,
	amount_invested, units_received, target_gain_pct, target_loss_pct,
	trade_type, status, opened_at, exit_price_native, exit_price_usd,
	realized_pct, close_reason, closed_at`

func scanTrade(row interface{ Scan(...any) error }) (*domain.Trade, error) {
	var t domain.Trade
	var closedAt sql.NullTime
	err := row.Scan(&t.ID, &t.TokenAddress, &t.TokenName, &t.EntryPriceNative, &t.EntryPriceUSD,
		&t.AmountInvested, &t.UnitsReceived, &t.TargetGainPct, &t.TargetLossPct,
		&t.TradeType, &t.Status, &t.OpenedAt, &t.ExitPriceNative, &t.ExitPriceUSD,
		&t.RealizedPct, &t.CloseReason, &closedAt)
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	return &t, nil
}

func (s *SQLiteStore) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	query := `INSERT INTO trades (` + tradeColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var closedAt any
	if !trade.ClosedAt.IsZero() {
		closedAt = trade.ClosedAt
	}
	_, err := s.db.ExecContext(ctx, query,
		trade.ID, trade.TokenAddress, trade.TokenName, trade.EntryPriceNative, trade.EntryPriceUSD,
		trade.AmountInvested, trade.UnitsReceived, trade.TargetGainPct, trade.TargetLossPct,
		trade.TradeType, trade.Status, trade.OpenedAt, trade.ExitPriceNative, trade.ExitPriceUSD,
		trade.RealizedPct, trade.CloseReason, closedAt)
	return err
}

func (s *SQLiteStore) GetTrade(ctx context.Context, id string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = ?`
	t, err := scanTrade(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTradeNotFound
	}
	return t, err
}

func (s *SQLiteStore) ListActive(ctx context.Context) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = ? ORDER BY opened_at`
	return s.queryTrades(ctx, query, domain.StatusActive)
}

func (s *SQLiteStore) FindActiveByToken(ctx context.Context, tokenAddress string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE token_address = ? AND status = ? LIMIT 1`
	t, err := scanTrade(s.db.QueryRowContext(ctx, query, tokenAddress, domain.StatusActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *SQLiteStore) UpdateTargets(ctx context.Context, id string, gainPct, lossPct float64) error {
	query := `UPDATE trades SET target_gain_pct = ?, target_loss_pct = ? WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, query, gainPct, lossPct, id, domain.StatusActive)
	if err != nil {
		return err
	}
	return requireActiveRow(res)
}

func (s *SQLiteStore) TopUp(ctx context.Context, id string, addedAmount, addedUnits float64) (*domain.Trade, error) {
	query := `UPDATE trades SET amount_invested = amount_invested + ?, units_received = units_received + ?
			  WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, query, addedAmount, addedUnits, id, domain.StatusActive)
	if err != nil {
		return nil, err
	}
	if err := requireActiveRow(res); err != nil {
		return nil, err
	}
	return s.GetTrade(ctx, id)
}

func (s *SQLiteStore) RecordClose(ctx context.Context, id string, exitNative, exitUSD, realizedPct float64, reason string) error {
	return s.closeTrade(ctx, id, domain.StatusCompleted, exitNative, exitUSD, realizedPct, reason)
}

func (s *SQLiteStore) Archive(ctx context.Context, id string, reason string) error {
	return s.closeTrade(ctx, id, domain.StatusExpired, 0, 0, 0, reason)
}

// closeTrade is the sole writer of the terminal fields. The status guard in the
// WHERE clause makes the transition monotonic even under concurrent closers.
func (s *SQLiteStore) closeTrade(ctx context.Context, id string, status domain.TradeStatus, exitNative, exitUSD, realizedPct float64, reason string) error {
	query := `UPDATE trades SET status = ?, exit_price_native = ?, exit_price_usd = ?,
			  realized_pct = ?, close_reason = ?, closed_at = ?
			  WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, query, status, exitNative, exitUSD, realizedPct, reason, time.Now().UTC(), id, domain.StatusActive)
	if err != nil {
		return err
	}
	return requireActiveRow(res)
}

func (s *SQLiteStore) ListClosed(ctx context.Context, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status != ? ORDER BY closed_at DESC LIMIT ?`
	return s.queryTrades(ctx, query, domain.StatusActive, limit)
}

func (s *SQLiteStore) RecentlyClosed(ctx context.Context, tokenAddress string, since time.Time) (bool, error) {
	query := `SELECT COUNT(1) FROM trades WHERE token_address = ? AND status != ? AND closed_at >= ?`
	var n int
	if err := s.db.QueryRowContext(ctx, query, tokenAddress, domain.StatusActive, since).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) queryTrades(ctx context.Context, query string, args ...any) ([]*domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func requireActiveRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrTradeNotActive
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
