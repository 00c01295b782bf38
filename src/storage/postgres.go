package storage

import (
	"fmt"
	"strings"

	"stock-cache/src/logger"

	_ "github.com/lib/pq"
)

// Postgres allows 65535 bind parameters per statement.
const postgresMaxVars = 65535

var postgresDialect = dialect{
	name:       "postgres",
	driver:     "postgres",
	like:       "ILIKE",
	primaryKey: "SERIAL PRIMARY KEY",
	maxVars:    postgresMaxVars,
	rebind:     rebindDollar,
}

// -----------------------------------------------------------------------------

// NewPostgresDB returns a store for a lib/pq connection string or URL.
func NewPostgresDB(dsn string, log *logger.Logger) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: empty connection string")
	}
	return newSQLStore(postgresDialect, dsn, log), nil
}

// -----------------------------------------------------------------------------

// rebindDollar rewrites '?' placeholders into $1, $2, ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)

	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
