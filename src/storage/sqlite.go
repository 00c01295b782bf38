package storage

import (
	"strings"

	"stock-cache/src/logger"

	_ "modernc.org/sqlite"
)

// SQLite batch constants
const (
	sqliteMaxVars = 32000
	memoryDSN     = ":memory:"
)

var sqliteDialect = dialect{
	name:       "sqlite",
	driver:     "sqlite",
	like:       "LIKE",
	primaryKey: "INTEGER PRIMARY KEY AUTOINCREMENT",
	maxVars:    sqliteMaxVars,
	rebind:     func(q string) string { return q },
	pragmas: []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
	},
}

// -----------------------------------------------------------------------------

// NewSQLiteDB returns a store for a database file. Every connection gets a
// busy timeout and foreign keys; ":memory:" is pinned to one connection.
func NewSQLiteDB(path string, log *logger.Logger) (*SQLStore, error) {
	if path == "" {
		path = memoryDSN
	}

	dsn := path
	if path != memoryDSN {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	store := newSQLStore(sqliteDialect, dsn, log)
	store.singleConn = path == memoryDSN
	return store, nil
}
