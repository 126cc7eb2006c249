package smacache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ibkr-sma-scanner/internal/types"
)

const DefaultTable = "sma_cache"

// dialect holds the SQL that differs between backends.
type dialect struct {
	name        string
	floatType   string
	placeholder func(n int) string
	// tableExists must return a single boolean-ish row for the table name
	tableExists string
	quote       func(ident string) string
}

// sqlStore keeps the cache in one table, one row per ticker.
type sqlStore struct {
	db    *sql.DB
	table string
	d     dialect
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// Replace drops and recreates the table inside one transaction so readers
// never see a half-written cache.
func (s *sqlStore) Replace(ctx context.Context, records []types.SmaRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", s.d.name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	table := s.d.quote(s.table)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("drop %s: %w", s.table, err)
	}
	create := fmt.Sprintf(`CREATE TABLE %s (
		ticker TEXT PRIMARY KEY,
		SMA50 %[2]s,
		SMA100 %[2]s,
		SMA200 %[2]s,
		cache_date TEXT
	)`, table, s.d.floatType)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (ticker, SMA50, SMA100, SMA200, cache_date) VALUES (%s, %s, %s, %s, %s) "+
			"ON CONFLICT (ticker) DO UPDATE SET SMA50 = excluded.SMA50, SMA100 = excluded.SMA100, "+
			"SMA200 = excluded.SMA200, cache_date = excluded.cache_date",
		table, s.d.placeholder(1), s.d.placeholder(2), s.d.placeholder(3), s.d.placeholder(4), s.d.placeholder(5),
	)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Ticker, nullFloat(r.SMA50), nullFloat(r.SMA100), nullFloat(r.SMA200), r.CacheDate); err != nil {
			return fmt.Errorf("insert %s: %w", r.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s tx: %w", s.d.name, err)
	}
	committed = true
	return nil
}

// LoadAll reads every row. Tables written before cache_date existed load
// with an empty date.
func (s *sqlStore) LoadAll(ctx context.Context) ([]types.SmaRecord, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, s.d.tableExists, s.table).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check %s table: %w", s.table, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s table %q: %w", s.d.name, s.table, ErrCacheNotFound)
	}

	cols, err := s.columns(ctx)
	if err != nil {
		return nil, err
	}
	dateCol := "''"
	if cols["cache_date"] {
		dateCol = "cache_date"
	}

	q := fmt.Sprintf("SELECT ticker, SMA50, SMA100, SMA200, %s FROM %s ORDER BY ticker", dateCol, s.d.quote(s.table))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []types.SmaRecord
	for rows.Next() {
		var (
			rec                  types.SmaRecord
			sma50, sma100, sma200 sql.NullFloat64
			date                 sql.NullString
		)
		if err := rows.Scan(&rec.Ticker, &sma50, &sma100, &sma200, &date); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", s.table, err)
		}
		rec.SMA50 = fromNull(sma50)
		rec.SMA100 = fromNull(sma100)
		rec.SMA200 = fromNull(sma200)
		rec.CacheDate = date.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqlStore) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+s.d.quote(s.table)+" WHERE 1=0")
	if err != nil {
		return nil, fmt.Errorf("inspect %s columns: %w", s.table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("inspect %s columns: %w", s.table, err)
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[strings.ToLower(n)] = true
	}
	return out, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return float64Ptr(v.Float64)
}
