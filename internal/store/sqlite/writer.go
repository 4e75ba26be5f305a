package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"mtf-tracker/internal/model"
)

// Config configures the exit store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/exits.db"
	Log    *zap.Logger
}

// ExitStore is the append-only sink for realized exits. Re-delivering a
// record with the same symbol, trade time and quantity is a no-op.
type ExitStore struct {
	*Reader
	mu  sync.Mutex
	log *zap.Logger
}

// Open creates the database file if needed, in WAL mode, and applies the
// schema.
func Open(cfg Config) (*ExitStore, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("sqlite")
	log.Info("opened exit store", zap.String("path", cfg.DBPath))
	return &ExitStore{Reader: newReader(db), log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS positions_history (
			id               TEXT    NOT NULL PRIMARY KEY,
			symbol           TEXT    NOT NULL,
			qty              INTEGER NOT NULL CHECK (qty > 0),
			avg_price        TEXT    NOT NULL,
			exit_price       TEXT    NOT NULL,
			price_resolved   INTEGER NOT NULL,
			pnl              TEXT    NOT NULL,
			pct_return       TEXT    NOT NULL,
			trade_date       TEXT    NOT NULL,
			trade_ts         INTEGER NOT NULL,
			created_at       INTEGER NOT NULL,
			UNIQUE (symbol, trade_ts, qty)
		);

		CREATE INDEX IF NOT EXISTS idx_positions_history_trade_ts ON positions_history(trade_ts);
		CREATE INDEX IF NOT EXISTS idx_positions_history_symbol ON positions_history(symbol);
	`)
	return err
}

// Append inserts records in one transaction. Records already present under
// the same natural key, or the same id, are skipped.
func (s *ExitStore) Append(ctx context.Context, records []model.ExitRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO positions_history
			(id, symbol, qty, avg_price, exit_price, price_resolved, pnl, pct_return, trade_date, trade_ts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		if r.Quantity <= 0 {
			tx.Rollback()
			return fmt.Errorf("sqlite append %s: non-positive quantity %d", r.Symbol, r.Quantity)
		}
		res, err := stmt.ExecContext(ctx,
			r.ID,
			r.Symbol,
			r.Quantity,
			r.AveragePrice.StringFixed(2),
			r.ExitPrice.StringFixed(2),
			r.PriceResolved,
			r.RealizedPnL.StringFixed(2),
			r.RealizedPercent.StringFixed(2),
			r.TradeTime.Format(time.DateOnly),
			r.TradeTime.UnixNano(),
			r.CreatedAt.UnixNano(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert %s: %w", r.Symbol, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	s.log.Info("appended exits",
		zap.Int("records", len(records)),
		zap.Int("inserted", inserted),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
