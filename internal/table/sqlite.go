package table

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	perrors "github.com/dehpipe/dehpipe/internal/errors"
	"github.com/dehpipe/dehpipe/pkg/types"
	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on a local SQLite database. It serves local
// development and tests; production deployments use the MySQL store.
type SQLiteStore struct {
	db *sql.DB
}

// dateLayout is how day-precision dates are stored in table columns.
const dateLayout = "2006-01-02"

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// three tables exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("table: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + RawTable + ` (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL,
			country TEXT NOT NULL,
			item_type TEXT NOT NULL,
			sales_channel TEXT NOT NULL,
			order_priority TEXT NOT NULL,
			order_date TEXT NOT NULL,
			order_id INTEGER NOT NULL,
			ship_date TEXT NOT NULL,
			units_sold INTEGER NOT NULL,
			unit_price TEXT NOT NULL,
			unit_cost TEXT NOT NULL,
			total_revenue TEXT NOT NULL,
			total_cost TEXT NOT NULL,
			total_profit TEXT NOT NULL,
			source_file TEXT NOT NULL,
			ingested_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_uuid ON ` + RawTable + `(uuid)`,
		`CREATE TABLE IF NOT EXISTS ` + CleanTable + ` (
			uuid TEXT PRIMARY KEY,
			country TEXT NOT NULL,
			item_type TEXT NOT NULL,
			sales_channel TEXT NOT NULL,
			order_priority TEXT NOT NULL,
			order_date TEXT NOT NULL,
			order_id INTEGER NOT NULL,
			ship_date TEXT NOT NULL,
			units_sold INTEGER NOT NULL,
			unit_price TEXT NOT NULL,
			unit_cost TEXT NOT NULL,
			total_revenue TEXT NOT NULL,
			total_cost TEXT NOT NULL,
			total_profit TEXT NOT NULL,
			source_file TEXT NOT NULL,
			ingested_at TEXT NOT NULL
		) WITHOUT ROWID`,
		`CREATE TABLE IF NOT EXISTS ` + SummaryTable + ` (
			country TEXT PRIMARY KEY,
			total_units_sold INTEGER NOT NULL,
			total_revenue TEXT NOT NULL,
			total_profit TEXT NOT NULL,
			summarized_at TEXT NOT NULL
		) WITHOUT ROWID`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("table: failed to create schema: %w", err)
		}
	}
	return nil
}

const recordColumns = `uuid, country, item_type, sales_channel, order_priority,
	order_date, order_id, ship_date, units_sold, unit_price, unit_cost,
	total_revenue, total_cost, total_profit, source_file, ingested_at`

func recordArgs(rec types.Record) []any {
	return []any{
		rec.ID, rec.Country, rec.ItemType, rec.SalesChannel, rec.OrderPriority,
		rec.OrderDate.Format(dateLayout), rec.OrderID, rec.ShipDate.Format(dateLayout),
		rec.UnitsSold, rec.UnitPrice.String(), rec.UnitCost.String(),
		rec.TotalRevenue.String(), rec.TotalCost.String(), rec.TotalProfit.String(),
		rec.SourceFile, rec.IngestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// AppendRaw appends every record to the raw table inside one transaction.
func (s *SQLiteStore) AppendRaw(ctx context.Context, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return perrors.NewTableError(perrors.CodeTableWriteFailed, "begin raw append", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+RawTable+` (`+recordColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return perrors.NewTableError(perrors.CodeTableWriteFailed, "prepare raw append", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, recordArgs(rec)...); err != nil {
			return perrors.NewTableError(perrors.CodeTableWriteFailed,
				fmt.Sprintf("append raw row %s", rec.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return perrors.NewTableError(perrors.CodeTableWriteFailed, "commit raw append", err)
	}
	return nil
}

// InsertCleanIfAbsent inserts records with INSERT OR IGNORE so the clean
// table stays a monotonically-growing set keyed by identifier.
func (s *SQLiteStore) InsertCleanIfAbsent(ctx context.Context, records []types.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, perrors.NewTableError(perrors.CodeTableWriteFailed, "begin clean insert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO `+CleanTable+` (`+recordColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, perrors.NewTableError(perrors.CodeTableWriteFailed, "prepare clean insert", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		res, err := stmt.ExecContext(ctx, recordArgs(rec)...)
		if err != nil {
			return 0, perrors.NewTableError(perrors.CodeTableWriteFailed,
				fmt.Sprintf("insert clean row %s", rec.ID), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, perrors.NewTableError(perrors.CodeTableWriteFailed, "rows affected", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, perrors.NewTableError(perrors.CodeTableWriteFailed, "commit clean insert", err)
	}
	return inserted, nil
}

// FilterExistingIDs queries the clean table for the given ids in chunks.
func (s *SQLiteStore) FilterExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	const chunkSize = 500

	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT uuid FROM `+CleanTable+` WHERE uuid IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "filter existing ids", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "scan id", err)
			}
			existing[id] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "iterate ids", err)
		}
		rows.Close()
	}

	return existing, nil
}

// AllCleanIDs returns every identifier in the clean table.
func (s *SQLiteStore) AllCleanIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid FROM `+CleanTable)
	if err != nil {
		return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "list clean ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "scan id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllCleanRecords returns the full clean table contents.
func (s *SQLiteStore) AllCleanRecords(ctx context.Context) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM `+CleanTable+` ORDER BY uuid`)
	if err != nil {
		return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "read clean table", err)
	}
	defer rows.Close()

	var records []types.Record
	for rows.Next() {
		var rec types.Record
		var orderDate, shipDate, unitPrice, unitCost, revenue, cost, profit, ingestedAt string
		if err := rows.Scan(
			&rec.ID, &rec.Country, &rec.ItemType, &rec.SalesChannel, &rec.OrderPriority,
			&orderDate, &rec.OrderID, &shipDate, &rec.UnitsSold, &unitPrice, &unitCost,
			&revenue, &cost, &profit, &rec.SourceFile, &ingestedAt,
		); err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "scan clean row", err)
		}

		if rec.OrderDate, err = time.ParseInLocation(dateLayout, orderDate, time.UTC); err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "parse order date", err)
		}
		if rec.ShipDate, err = time.ParseInLocation(dateLayout, shipDate, time.UTC); err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "parse ship date", err)
		}
		if rec.IngestedAt, err = time.Parse(time.RFC3339Nano, ingestedAt); err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "parse ingested_at", err)
		}
		if rec.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "parse unit price", err)
		}
		if rec.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "parse unit cost", err)
		}
		if rec.TotalRevenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "parse revenue", err)
		}
		if rec.TotalCost, err = decimal.NewFromString(cost); err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "parse cost", err)
		}
		if rec.TotalProfit, err = decimal.NewFromString(profit); err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "parse profit", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ReplaceSummaries swaps the summary table contents in one transaction.
func (s *SQLiteStore) ReplaceSummaries(ctx context.Context, summaries []types.CountrySummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return perrors.NewTableError(perrors.CodeTableWriteFailed, "begin summary replace", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+SummaryTable); err != nil {
		return perrors.NewTableError(perrors.CodeTableWriteFailed, "clear summary table", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+SummaryTable+` (country, total_units_sold, total_revenue, total_profit, summarized_at)
		 VALUES (?,?,?,?,?)`)
	if err != nil {
		return perrors.NewTableError(perrors.CodeTableWriteFailed, "prepare summary insert", err)
	}
	defer stmt.Close()

	for _, sum := range summaries {
		if _, err := stmt.ExecContext(ctx,
			sum.Country, sum.TotalUnitsSold, sum.TotalRevenue.String(),
			sum.TotalProfit.String(), sum.SummarizedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return perrors.NewTableError(perrors.CodeTableWriteFailed,
				fmt.Sprintf("insert summary for %s", sum.Country), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return perrors.NewTableError(perrors.CodeTableWriteFailed, "commit summary replace", err)
	}
	return nil
}

// Counts returns the current row counts of all three tables.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{RawTable, &c.Raw},
		{CleanTable, &c.Clean},
		{SummaryTable, &c.Summary},
	} {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+q.table).Scan(q.dst); err != nil {
			return Counts{}, perrors.NewTableError(perrors.CodeTableReadFailed, "count "+q.table, err)
		}
	}
	return c, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
