package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"stock-cache/src/helpers"
	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"
)

// DefaultBatchSize is the number of rows written per INSERT statement.
const DefaultBatchSize = 5000

const (
	instrumentColumns = 2
	priceColumns      = 3
)

// dialect captures the differences between the supported SQL engines.
type dialect struct {
	name       string
	driver     string
	like       string
	primaryKey string
	maxVars    int
	rebind     func(string) string
	pragmas    []string
}

// -----------------------------------------------------------------------------

// SQLStore persists instruments and price observations through database/sql.
type SQLStore struct {
	DB        *sql.DB
	BatchSize int
	Logger    *logger.Logger

	dsn        string
	dialect    dialect
	singleConn bool
}

var _ interfaces.IDatabase = (*SQLStore)(nil)

func newSQLStore(d dialect, dsn string, log *logger.Logger) *SQLStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &SQLStore{
		BatchSize: DefaultBatchSize,
		Logger:    log,
		dsn:       dsn,
		dialect:   d,
	}
}

// -----------------------------------------------------------------------------

func (s *SQLStore) Initialize(ctx context.Context) error {
	db, err := sql.Open(s.dialect.driver, s.dsn)
	if err != nil {
		return helpers.NewDatabaseError("open "+s.dialect.name, err)
	}
	if s.singleConn {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return helpers.NewDatabaseError("ping "+s.dialect.name, err)
	}
	s.DB = db

	for _, pragma := range s.dialect.pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			s.Logger.Warning("Failed to apply %q: %v", pragma, err)
		}
	}

	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	s.Logger.Info("%s store initialized", s.dialect.name)
	return nil
}

// -----------------------------------------------------------------------------

// EnsureSchema creates the stock tables and their indexes when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS stock (
			id %s,
			name TEXT NOT NULL,
			symbol TEXT UNIQUE NOT NULL
		)`, s.dialect.primaryKey),
	}

	for _, table := range []models.MPriceTable{models.TableToday, models.TableHistorical} {
		statements = append(statements,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				stock_id INTEGER REFERENCES stock(id),
				time BIGINT NOT NULL,
				price BIGINT NOT NULL
			)`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_time_stock_id_idx ON %s (time, stock_id)`, table, table),
		)
	}

	for _, stmt := range statements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return helpers.NewDatabaseError("ensure schema", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Instruments
// -----------------------------------------------------------------------------

func (s *SQLStore) LoadInstruments(ctx context.Context) ([]models.MInstrument, error) {
	return s.ListInstruments(ctx, nil)
}

// -----------------------------------------------------------------------------

func (s *SQLStore) InsertInstruments(ctx context.Context, instruments []models.MInstrument) ([]models.MInstrument, error) {
	if len(instruments) == 0 {
		return nil, nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, helpers.NewDatabaseError("begin instruments", err)
	}
	defer tx.Rollback()

	wanted := make(map[string]struct{}, len(instruments))
	batch := s.rowsPerStatement(instrumentColumns)
	for start := 0; start < len(instruments); start += batch {
		end := min(start+batch, len(instruments))
		chunk := instruments[start:end]

		args := make([]interface{}, 0, len(chunk)*instrumentColumns)
		for _, inst := range chunk {
			args = append(args, inst.Name, inst.Symbol)
			wanted[inst.Symbol] = struct{}{}
		}

		query := "INSERT INTO stock (name, symbol) VALUES " +
			valuesList(len(chunk), instrumentColumns) +
			" ON CONFLICT (symbol) DO NOTHING"
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(query), args...); err != nil {
			return nil, helpers.NewDatabaseError("insert instruments", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, helpers.NewDatabaseError("commit instruments", err)
	}

	all, err := s.LoadInstruments(ctx)
	if err != nil {
		return nil, err
	}

	stored := make([]models.MInstrument, 0, len(wanted))
	for _, inst := range all {
		if _, ok := wanted[inst.Symbol]; ok {
			stored = append(stored, inst)
		}
	}
	return stored, nil
}

// -----------------------------------------------------------------------------

// ListInstruments returns instruments whose name or symbol matches any of the
// wildcard names, or every instrument when names is empty.
func (s *SQLStore) ListInstruments(ctx context.Context, names []string) ([]models.MInstrument, error) {
	query := "SELECT id, name, symbol FROM stock"
	where, args := s.nameClause("name", "symbol", names)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY id"

	rows, err := s.DB.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, helpers.NewDatabaseError("list instruments", err)
	}
	defer rows.Close()

	var instruments []models.MInstrument
	for rows.Next() {
		var inst models.MInstrument
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.Symbol); err != nil {
			return nil, helpers.NewDatabaseError("scan instrument", err)
		}
		instruments = append(instruments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("list instruments", err)
	}
	return instruments, nil
}

// -----------------------------------------------------------------------------
// Prices
// -----------------------------------------------------------------------------

func (s *SQLStore) ReplaceTodayPrices(ctx context.Context, dayStartMs int64, prices []models.MStockPrice) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.NewDatabaseError("begin today", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("DELETE FROM %s WHERE time < ?", models.TableToday)
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(query), dayStartMs); err != nil {
		return helpers.NewDatabaseError("expire today", err)
	}

	ids := distinctStockIDs(prices)
	batch := s.rowsPerStatement(1)
	for start := 0; start < len(ids); start += batch {
		chunk := ids[start:min(start+batch, len(ids))]
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE stock_id IN (%s)", models.TableToday, placeholders(len(chunk)))
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(query), args...); err != nil {
			return helpers.NewDatabaseError("replace today", err)
		}
	}

	if err := s.insertPrices(ctx, tx, models.TableToday, prices); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewDatabaseError("commit today", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *SQLStore) HistoricalDayExists(ctx context.Context, startMs, endMs int64) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE time >= ? AND time < ? LIMIT 1", models.TableHistorical)

	var one int
	err := s.DB.QueryRowContext(ctx, s.dialect.rebind(query), startMs, endMs).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, helpers.NewDatabaseError("historical day lookup", err)
	}
	return true, nil
}

// -----------------------------------------------------------------------------

func (s *SQLStore) BeginDay(ctx context.Context) (interfaces.IDayTx, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, helpers.NewDatabaseError("begin day", err)
	}
	return &dayTx{store: s, tx: tx}, nil
}

// -----------------------------------------------------------------------------

// QueryPrices reads rows of one price table joined with their instrument,
// ordered by time and bounded by q.Limit.
func (s *SQLStore) QueryPrices(ctx context.Context, table models.MPriceTable, q models.MPriceQuery) ([]models.MPriceRow, error) {
	if table != models.TableToday && table != models.TableHistorical {
		return nil, helpers.NewValidationError(fmt.Sprintf("unknown price table %q", table), nil)
	}

	var (
		conds []string
		args  []interface{}
	)
	if q.StartMs != nil && q.EndMs != nil {
		conds = append(conds, "p.time BETWEEN ? AND ?")
		args = append(args, *q.StartMs, *q.EndMs)
	}
	switch {
	case q.Low != nil && q.High != nil:
		conds = append(conds, "p.price BETWEEN ? AND ?")
		args = append(args, *q.Low, *q.High)
	case q.Low != nil:
		conds = append(conds, "p.price >= ?")
		args = append(args, *q.Low)
	case q.High != nil:
		conds = append(conds, "p.price <= ?")
		args = append(args, *q.High)
	}
	if where, nameArgs := s.nameClause("s.name", "s.symbol", q.Names); where != "" {
		conds = append(conds, where)
		args = append(args, nameArgs...)
	}

	query := fmt.Sprintf(
		"SELECT DISTINCT s.id, s.name, s.symbol, p.price, p.time FROM stock s JOIN %s p ON s.id = p.stock_id", table)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.time"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, helpers.NewDatabaseError("query "+string(table), err)
	}
	defer rows.Close()

	var result []models.MPriceRow
	for rows.Next() {
		var r models.MPriceRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Symbol, &r.Price, &r.Time); err != nil {
			return nil, helpers.NewDatabaseError("scan price", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("query "+string(table), err)
	}
	return result, nil
}

// -----------------------------------------------------------------------------

func (s *SQLStore) Stats(ctx context.Context) (models.MStoreStats, error) {
	var stats models.MStoreStats
	counts := []struct {
		table string
		dst   *int64
	}{
		{"stock", &stats.Instruments},
		{string(models.TableToday), &stats.TodayRows},
		{string(models.TableHistorical), &stats.HistoricalRows},
	}

	for _, c := range counts {
		if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return stats, helpers.NewDatabaseError("count "+c.table, err)
		}
	}
	return stats, nil
}

// -----------------------------------------------------------------------------

func (s *SQLStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *SQLStore) insertPrices(ctx context.Context, tx *sql.Tx, table models.MPriceTable, prices []models.MStockPrice) error {
	batch := s.rowsPerStatement(priceColumns)
	for start := 0; start < len(prices); start += batch {
		chunk := prices[start:min(start+batch, len(prices))]

		args := make([]interface{}, 0, len(chunk)*priceColumns)
		for _, p := range chunk {
			args = append(args, p.StockID, p.Time, p.Price)
		}

		query := fmt.Sprintf("INSERT INTO %s (stock_id, time, price) VALUES %s",
			table, valuesList(len(chunk), priceColumns))
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(query), args...); err != nil {
			return helpers.NewDatabaseError("insert "+string(table), err)
		}
	}
	return nil
}

// rowsPerStatement caps BatchSize so one statement stays under the engine's
// bind parameter limit.
func (s *SQLStore) rowsPerStatement(columns int) int {
	batch := s.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if limit := s.dialect.maxVars / columns; batch > limit {
		batch = limit
	}
	return batch
}

// nameClause matches either column against every wildcard name.
func (s *SQLStore) nameClause(nameCol, symbolCol string, names []string) (string, []interface{}) {
	if len(names) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(names)*2)
	args := make([]interface{}, 0, len(names)*2)
	for _, name := range names {
		pattern := LikePattern(name)
		parts = append(parts,
			fmt.Sprintf(`%s %s ? ESCAPE '\'`, nameCol, s.dialect.like),
			fmt.Sprintf(`%s %s ? ESCAPE '\'`, symbolCol, s.dialect.like))
		args = append(args, pattern, pattern)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// LikePattern turns a user wildcard into a LIKE pattern: '*' matches any run
// of characters and every other character is literal.
func LikePattern(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '\\', '%', '_':
			b.WriteRune('\\')
			b.WriteRune(r)
		case '*':
			b.WriteRune('%')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func valuesList(rows, columns int) string {
	row := "(" + placeholders(columns) + ")"
	return strings.TrimSuffix(strings.Repeat(row+", ", rows), ", ")
}

func distinctStockIDs(prices []models.MStockPrice) []int64 {
	seen := make(map[int64]struct{}, len(prices))
	ids := make([]int64, 0, len(prices))
	for _, p := range prices {
		if _, ok := seen[p.StockID]; ok {
			continue
		}
		seen[p.StockID] = struct{}{}
		ids = append(ids, p.StockID)
	}
	return ids
}

// -----------------------------------------------------------------------------
// Day transaction
// -----------------------------------------------------------------------------

type dayTx struct {
	store *SQLStore
	tx    *sql.Tx
}

func (d *dayTx) InsertHistorical(ctx context.Context, prices []models.MStockPrice) error {
	return d.store.insertPrices(ctx, d.tx, models.TableHistorical, prices)
}

func (d *dayTx) Commit() error {
	if err := d.tx.Commit(); err != nil {
		return helpers.NewDatabaseError("commit day", err)
	}
	return nil
}

func (d *dayTx) Rollback() error {
	err := d.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}
