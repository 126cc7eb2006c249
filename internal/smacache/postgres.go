package smacache

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/lib/pq"
)

var postgresDialect = dialect{
	name:        "postgres",
	floatType:   "DOUBLE PRECISION",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	tableExists: "SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)",
	quote:       pq.QuoteIdentifier,
}

// PostgresStore shares the cache between hosts.
type PostgresStore struct {
	sqlStore
}

func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{sqlStore{db: db, table: DefaultTable, d: postgresDialect}}, nil
}
