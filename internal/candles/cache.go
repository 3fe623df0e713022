package candles

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"SwapSentinel/internal/logger"
	"SwapSentinel/internal/model"
)

// Cache is the persistent per-timeframe OHLC store. It is the single source
// of truth for indicator computation.
type Cache struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	c := &Cache{db: db, now: time.Now}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("candle cache opened", zap.String("path", path))
	return c, nil
}

func (c *Cache) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			timeframe TEXT    NOT NULL,
			timestamp INTEGER NOT NULL,
			open      REAL,
			high      REAL,
			low       REAL,
			close     REAL,
			volume    REAL,
			PRIMARY KEY (timeframe, timestamp)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_tf_ts ON candles(timeframe, timestamp DESC)`,
	}
	for _, s := range stmts {
		if _, err := c.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:30], err)
		}
	}
	return nil
}

// Upsert inserts or replaces bars keyed by (timeframe, timestamp). Re-ingesting
// a stored bar overwrites it, so the forming bar converges to its final values.
func (c *Cache) Upsert(ctx context.Context, bars []model.Candle) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO candles
		(timeframe, timestamp, open, high, low, close, volume)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if b.Timeframe == "" {
			return 0, fmt.Errorf("candle at %d has no timeframe", b.Timestamp)
		}
		if _, err := stmt.ExecContext(ctx, string(b.Timeframe), b.Timestamp,
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return 0, fmt.Errorf("upsert candle %s@%d: %w", b.Timeframe, b.Timestamp, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(bars), nil
}

// Count returns the number of stored candles for tf.
func (c *Cache) Count(ctx context.Context, tf model.Timeframe) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM candles WHERE timeframe = ?`, string(tf)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count candles: %w", err)
	}
	return n, nil
}

// LatestTimestamp returns the newest stored timestamp for tf, if any.
func (c *Cache) LatestTimestamp(ctx context.Context, tf model.Timeframe) (int64, bool, error) {
	var ts sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM candles WHERE timeframe = ?`, string(tf)).Scan(&ts)
	if err != nil {
		return 0, false, fmt.Errorf("latest timestamp: %w", err)
	}
	return ts.Int64, ts.Valid, nil
}

// Series returns the most recent limit candles for tf in ascending order.
// A limit <= 0 returns everything.
func (c *Cache) Series(ctx context.Context, tf model.Timeframe, limit int) (model.CandleSeries, error) {
	query := `SELECT timestamp, open, high, low, close, volume FROM candles
		WHERE timeframe = ? ORDER BY timestamp DESC`
	args := []any{string(tf)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var desc []model.Candle
	for rows.Next() {
		b := model.Candle{Timeframe: tf}
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		desc = append(desc, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	series := make(model.CandleSeries, len(desc))
	for i, b := range desc {
		series[len(desc)-1-i] = b
	}
	return series, nil
}

// Plan computes the catch-up plan for tf against the current clock.
func (c *Cache) Plan(ctx context.Context, tf model.Timeframe, required int) (CatchUp, error) {
	existing, err := c.Count(ctx, tf)
	if err != nil {
		return CatchUp{}, err
	}
	latest, ok, err := c.LatestTimestamp(ctx, tf)
	if err != nil {
		return CatchUp{}, err
	}
	return PlanCatchUp(tf, required, existing, latest, ok, c.now()), nil
}

func (c *Cache) Close() error {
	logger.Info("closing candle cache")
	return c.db.Close()
}
