package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"mtf-tracker/internal/markethours"
	"mtf-tracker/internal/model"
)

// Reader provides read-only access to the exit history for reporting.
type Reader struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

func newReader(db *sql.DB) *Reader {
	return &Reader{db: db, sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)}
}

// OpenReader opens an existing database without write access.
func OpenReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	return newReader(db), nil
}

// Filter narrows a history query. Zero fields match everything.
type Filter struct {
	Symbol string
	Since  time.Time // inclusive
	Until  time.Time // exclusive
	Limit  int
}

// List returns the most recent exits first.
func (r *Reader) List(ctx context.Context, limit int) ([]model.ExitRecord, error) {
	return r.Query(ctx, Filter{Limit: limit})
}

// Query returns exits matching f, newest first.
func (r *Reader) Query(ctx context.Context, f Filter) ([]model.ExitRecord, error) {
	q := f.where(r.sq.
		Select("id", "symbol", "qty", "avg_price", "exit_price", "price_resolved",
			"pnl", "pct_return", "trade_ts", "created_at").
		From("positions_history")).
		OrderBy("trade_ts DESC", "symbol ASC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query positions_history: %w", err)
	}
	defer rows.Close()

	out := []model.ExitRecord{}
	for rows.Next() {
		var (
			rec                      model.ExitRecord
			avg, exit, pnl, pct      string
			tradeNanos, createdNanos int64
		)
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Quantity, &avg, &exit, &rec.PriceResolved,
			&pnl, &pct, &tradeNanos, &createdNanos); err != nil {
			return nil, fmt.Errorf("sqlite scan positions_history: %w", err)
		}
		if rec.AveragePrice, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("sqlite avg_price %q: %w", avg, err)
		}
		if rec.ExitPrice, err = decimal.NewFromString(exit); err != nil {
			return nil, fmt.Errorf("sqlite exit_price %q: %w", exit, err)
		}
		if rec.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("sqlite pnl %q: %w", pnl, err)
		}
		if rec.RealizedPercent, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("sqlite pct_return %q: %w", pct, err)
		}
		rec.TradeTime = time.Unix(0, tradeNanos).In(markethours.IST)
		rec.CreatedAt = time.Unix(0, createdNanos).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TotalRealized sums realized P&L over the exits matching f. Limit is ignored.
func (r *Reader) TotalRealized(ctx context.Context, f Filter) (decimal.Decimal, int, error) {
	query, args, err := f.where(r.sq.Select("pnl").From("positions_history")).ToSql()
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("sqlite build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("sqlite sum pnl: %w", err)
	}
	defer rows.Close()

	// summed in decimal, SQLite would go through REAL
	total, n := decimal.Zero, 0
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, 0, fmt.Errorf("sqlite scan pnl: %w", err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("sqlite pnl %q: %w", s, err)
		}
		total = total.Add(d)
		n++
	}
	return total, n, rows.Err()
}

func (f Filter) where(q squirrel.SelectBuilder) squirrel.SelectBuilder {
	if f.Symbol != "" {
		q = q.Where(squirrel.Eq{"symbol": f.Symbol})
	}
	if !f.Since.IsZero() {
		q = q.Where(squirrel.GtOrEq{"trade_ts": f.Since.UnixNano()})
	}
	if !f.Until.IsZero() {
		q = q.Where(squirrel.Lt{"trade_ts": f.Until.UnixNano()})
	}
	return q
}

// Ping checks the connection for health endpoints.
func (r *Reader) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// DB exposes the handle for liveness checks.
func (r *Reader) DB() *sql.DB {
	return r.db
}
