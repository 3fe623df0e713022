package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"SwapSentinel/internal/logger"
)

// SQLiteRecorder journals trades and decisions to SQLite.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	// The candle cache may share the file.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("trade journal opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id         TEXT PRIMARY KEY,
			timestamp  INTEGER NOT NULL,
			tick_id    TEXT,
			side       TEXT NOT NULL,
			in_amount  REAL,
			out_amount REAL,
			price      REAL,
			signature  TEXT,
			confirmed  INTEGER NOT NULL DEFAULT 0,
			error      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(timestamp)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			tick_id   TEXT,
			price     REAL,
			rsi       REAL,
			sma       REAL,
			signal    TEXT,
			position  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordTrade(ctx context.Context, t *Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO trades
		(id, timestamp, tick_id, side, in_amount, out_amount, price, signature, confirmed, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Timestamp.Unix(), t.TickID, t.Side,
		t.InAmount, t.OutAmount, t.Price,
		t.Signature, t.Confirmed, t.Error,
	)
	return err
}

func (r *SQLiteRecorder) RecordDecision(ctx context.Context, d *Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO decisions
		(timestamp, tick_id, price, rsi, sma, signal, position)
		VALUES (?,?,?,?,?,?,?)`,
		ts.Unix(), d.TickID, d.Price, d.RSI, d.SMA, d.Signal, d.Position,
	)
	return err
}

// RecentTrades returns up to limit trades, newest first.
func (r *SQLiteRecorder) RecentTrades(ctx context.Context, limit int) ([]Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT
		id, timestamp, tick_id, side, in_amount, out_amount, price, signature, confirmed, error
		FROM trades ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var (
			t                      Trade
			ts                     int64
			tickID, sig, errString sql.NullString
		)
		if err := rows.Scan(&t.ID, &ts, &tickID, &t.Side, &t.InAmount, &t.OutAmount,
			&t.Price, &sig, &t.Confirmed, &errString); err != nil {
			return nil, err
		}
		t.Timestamp = time.Unix(ts, 0)
		t.TickID, t.Signature, t.Error = tickID.String, sig.String, errString.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
