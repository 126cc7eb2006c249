package smacache

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name:        "sqlite",
	floatType:   "REAL",
	placeholder: func(int) string { return "?" },
	tableExists: "SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = ?",
	quote: func(ident string) string {
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	},
}

// SQLiteStore is the default file-backed cache.
type SQLiteStore struct {
	sqlStore
	path string
}

// OpenSQLite opens (creating if needed) the cache database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	// single writer, concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}

	return &SQLiteStore{
		sqlStore: sqlStore{db: db, table: DefaultTable, d: sqliteDialect},
		path:     path,
	}, nil
}

func (s *SQLiteStore) Path() string { return s.path }
