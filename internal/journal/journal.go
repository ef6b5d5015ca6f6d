// Package journal mirrors executed trades into an append-only SQLite table
// for audit and after-hours analysis. The JSON state file remains the source
// of truth; the journal is written after a fill has been persisted.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/seenimoa/papertrade/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id     TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         INTEGER NOT NULL,
	product_type TEXT NOT NULL,
	qty          INTEGER NOT NULL,
	price        REAL NOT NULL,
	value        REAL NOT NULL,
	order_tag    TEXT NOT NULL DEFAULT '',
	traded_at    TEXT NOT NULL,
	recorded_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_traded_at ON trades(traded_at);
`

// Journal is a SQLite trade log.
type Journal struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Open opens (and creates if needed) the journal at path.
func Open(path string, log *slog.Logger) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if log == nil {
		log = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	log = log.With("component", "journal")
	log.Info("trade journal opened", "path", path)
	return &Journal{db: db, log: log, now: time.Now}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends trades. Trades already journaled are skipped, so replaying
// a batch is harmless.
func (j *Journal) Record(ctx context.Context, trades ...models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO trades
		(trade_id, order_id, symbol, side, product_type, qty, price, value, order_tag, traded_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	recorded := j.now().UTC().Format(time.RFC3339Nano)
	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.OrderID, t.Symbol, int(t.Side), string(t.ProductType),
			t.TradedQty, t.TradedPrice, t.TradeValue, t.OrderTag,
			t.TradedAt.UTC().Format(time.RFC3339Nano), recorded,
		); err != nil {
			return fmt.Errorf("journal trade %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// Filter narrows a Trades query. Zero values match everything.
type Filter struct {
	Symbol string
	Since  time.Time
	Limit  int
}

// Trades returns journaled trades, newest first.
func (j *Journal) Trades(ctx context.Context, f Filter) ([]models.Trade, error) {
	q := `SELECT trade_id, order_id, symbol, side, product_type, qty, price, value, order_tag, traded_at
		FROM trades WHERE 1=1`
	var args []any
	if f.Symbol != "" {
		q += ` AND symbol = ?`
		args = append(args, f.Symbol)
	}
	if !f.Since.IsZero() {
		q += ` AND traded_at >= ?`
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	q += ` ORDER BY traded_at DESC, trade_id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		var (
			t        models.Trade
			side     int
			product  string
			tradedAt string
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &side, &product,
			&t.TradedQty, &t.TradedPrice, &t.TradeValue, &t.OrderTag, &tradedAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		t.Side = models.OrderSide(side)
		t.ProductType = models.ProductType(product)
		if ts, err := time.Parse(time.RFC3339Nano, tradedAt); err == nil {
			t.TradedAt = ts
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SymbolSummary aggregates journaled fills for one symbol.
type SymbolSummary struct {
	Symbol    string  `json:"symbol"`
	Trades    int     `json:"trades"`
	BuyQty    int     `json:"buy_qty"`
	SellQty   int     `json:"sell_qty"`
	BuyValue  float64 `json:"buy_value"`
	SellValue float64 `json:"sell_value"`
}

// Summary aggregates the journal per symbol.
func (j *Journal) Summary(ctx context.Context) ([]SymbolSummary, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT symbol, COUNT(*),
		COALESCE(SUM(CASE WHEN side > 0 THEN qty END), 0),
		COALESCE(SUM(CASE WHEN side < 0 THEN qty END), 0),
		COALESCE(SUM(CASE WHEN side > 0 THEN value END), 0),
		COALESCE(SUM(CASE WHEN side < 0 THEN value END), 0)
		FROM trades GROUP BY symbol ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("summarise journal: %w", err)
	}
	defer rows.Close()

	var out []SymbolSummary
	for rows.Next() {
		var s SymbolSummary
		if err := rows.Scan(&s.Symbol, &s.Trades, &s.BuyQty, &s.SellQty, &s.BuyValue, &s.SellValue); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
