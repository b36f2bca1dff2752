package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"poe-autotrade/internal/models"
)

type DB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS trade_history (
    id TEXT PRIMARY KEY,
    user_name TEXT NOT NULL,
    item_name TEXT NOT NULL,
    price TEXT NOT NULL,
    currency TEXT NOT NULL,
    stash_tab TEXT NOT NULL,
    p1_num INTEGER NOT NULL,
    p2_num INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    reason TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    duration_ms INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trade_history_started ON trade_history(started_at);
`

// DefaultPath returns the database location under the user config dir.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "poe-autotrade", "trades.db"), nil
}

// New opens (creating if needed) the sqlite database at path.
func New(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// RecordTrade stores one finished trade session.
func (d *DB) RecordTrade(r models.TradeRecord) error {
	query := `
		INSERT INTO trade_history (
			id, user_name, item_name, price, currency, stash_tab,
			p1_num, p2_num, outcome, reason, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.Exec(query,
		r.ID, r.User, r.Item, r.Price.String(), r.Currency, r.Tab,
		r.P1Num, r.P2Num, string(r.Outcome), r.Reason,
		r.StartedAt.UTC(), r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// Recent returns up to limit trades, newest first.
func (d *DB) Recent(limit int) ([]models.TradeRecord, error) {
	query := `
		SELECT id, user_name, item_name, price, currency, stash_tab,
		       p1_num, p2_num, outcome, reason, started_at, duration_ms
		FROM trade_history
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var (
			r          models.TradeRecord
			price      string
			outcome    string
			durationMs int64
		)
		if err := rows.Scan(
			&r.ID, &r.User, &r.Item, &price, &r.Currency, &r.Tab,
			&r.P1Num, &r.P2Num, &outcome, &r.Reason, &r.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		r.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q for trade %s: %w", price, r.ID, err)
		}
		r.Outcome = models.TradeOutcome(outcome)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		trades = append(trades, r)
	}
	return trades, rows.Err()
}

// Totals sums completed trade prices per currency.
func (d *DB) Totals() (map[string]decimal.Decimal, error) {
	rows, err := d.db.Query(`SELECT currency, price FROM trade_history WHERE outcome = ?`, string(models.OutcomeCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var currency, price string
		if err := rows.Scan(&currency, &price); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			continue
		}
		totals[currency] = totals[currency].Add(p)
	}
	return totals, rows.Err()
}

// Cleanup deletes trades started before now minus olderThan.
func (d *DB) Cleanup(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	res, err := d.db.Exec("DELETE FROM trade_history WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old trades: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
