package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"PriceCast/internal/model"
)

// SQLite reads prices from and writes forecasts to a single SQLite file.
type SQLite struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(dbPath string, log zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the web front-end keep reading while a run commits.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		// Owned by the ingestion job; created here so a fresh file can be read.
		`CREATE TABLE IF NOT EXISTS prices (
			symbol TEXT    NOT NULL,
			name   TEXT,
			price  REAL    NOT NULL,
			dt     INTEGER NOT NULL,
			PRIMARY KEY (symbol, dt)
		)`,

		`CREATE TABLE IF NOT EXISTS predict (
			symbol TEXT    NOT NULL,
			t      INTEGER NOT NULL,
			p      REAL    NOT NULL,
			PRIMARY KEY (symbol, t)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Symbols returns every distinct symbol in the price table, sorted.
func (s *SQLite) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// Points returns all observations for symbol ordered by time ascending.
func (s *SQLite) Points(ctx context.Context, symbol string) ([]model.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dt, price FROM prices WHERE symbol = ? ORDER BY dt`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []model.PricePoint
	for rows.Next() {
		p := model.PricePoint{Symbol: symbol}
		if err := rows.Scan(&p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AppendPrices inserts observations, ignoring ones already stored for the same
// symbol and time. Ingestion proper is done elsewhere; this seeds fixtures.
func (s *SQLite) AppendPrices(ctx context.Context, points []model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO prices (symbol, name, price, dt) VALUES (?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.Symbol, p.Symbol, p.Price, p.Timestamp); err != nil {
			return fmt.Errorf("insert %s@%d: %w", p.Symbol, p.Timestamp, err)
		}
	}
	return tx.Commit()
}

// ReplaceForecasts deletes the previous generation and writes batches in a single
// transaction. A batch that fails to insert is rolled back on its own and reported
// in WriteResult.Failed; the rest of the generation still commits.
func (s *SQLite) ReplaceForecasts(ctx context.Context, batches []model.Batch) (*WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM predict`); err != nil {
		return nil, fmt.Errorf("clear predict: %w", err)
	}

	res := &WriteResult{Failed: map[string]error{}}
	for _, b := range batches {
		if err := writeBatch(ctx, tx, b); err != nil {
			s.log.Error().Str("symbol", b.Symbol).Err(err).Msg("forecast write failed, symbol skipped")
			res.Failed[b.Symbol] = err
			continue
		}
		res.Written = append(res.Written, b.Symbol)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

func writeBatch(ctx context.Context, tx *sql.Tx, b model.Batch) (err error) {
	if _, err := tx.ExecContext(ctx, `SAVEPOINT batch`); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	defer func() {
		if err != nil {
			// Drop only this symbol's rows.
			tx.ExecContext(ctx, `ROLLBACK TO batch`)
		}
		if _, relErr := tx.ExecContext(ctx, `RELEASE batch`); relErr != nil && err == nil {
			err = fmt.Errorf("release savepoint: %w", relErr)
		}
	}()

	for _, p := range b.Points {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO predict (symbol, t, p) VALUES (?,?,?)`,
			b.Symbol, p.T, p.P); err != nil {
			return fmt.Errorf("insert %s@%d: %w", b.Symbol, p.T, err)
		}
	}
	return nil
}

// Forecasts returns the current generation grouped by symbol, each ordered by time.
func (s *SQLite) Forecasts(ctx context.Context) (map[string][]model.ForecastPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, t, p FROM predict ORDER BY symbol, t`)
	if err != nil {
		return nil, fmt.Errorf("query predict: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.ForecastPoint)
	for rows.Next() {
		var fp model.ForecastPoint
		if err := rows.Scan(&fp.Symbol, &fp.T, &fp.P); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		out[fp.Symbol] = append(out[fp.Symbol], fp)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}
