package table

import (
	"context"
	"time"

	perrors "github.com/dehpipe/dehpipe/internal/errors"
	"github.com/dehpipe/dehpipe/pkg/types"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// rawRow is the gorm model backing the raw append-only table.
type rawRow struct {
	Seq           int64           `gorm:"primaryKey;autoIncrement"`
	UUID          string          `gorm:"index;size:64;not null"`
	Country       string          `gorm:"size:128;not null"`
	ItemType      string          `gorm:"size:128;not null"`
	SalesChannel  string          `gorm:"size:64;not null"`
	OrderPriority string          `gorm:"size:16;not null"`
	OrderDate     time.Time       `gorm:"type:date;not null"`
	OrderID       int64           `gorm:"not null"`
	ShipDate      time.Time       `gorm:"type:date;not null"`
	UnitsSold     int64           `gorm:"not null"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TotalRevenue  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TotalCost     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TotalProfit   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	SourceFile    string          `gorm:"size:512;not null"`
	IngestedAt    time.Time       `gorm:"not null"`
}

func (rawRow) TableName() string { return RawTable }

// cleanRow is the gorm model backing the deduplicated table, keyed by
// record identifier.
type cleanRow struct {
	UUID          string          `gorm:"primaryKey;size:64"`
	Country       string          `gorm:"size:128;not null"`
	ItemType      string          `gorm:"size:128;not null"`
	SalesChannel  string          `gorm:"size:64;not null"`
	OrderPriority string          `gorm:"size:16;not null"`
	OrderDate     time.Time       `gorm:"type:date;not null"`
	OrderID       int64           `gorm:"not null"`
	ShipDate      time.Time       `gorm:"type:date;not null"`
	UnitsSold     int64           `gorm:"not null"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TotalRevenue  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TotalCost     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TotalProfit   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	SourceFile    string          `gorm:"size:512;not null"`
	IngestedAt    time.Time       `gorm:"not null"`
}

func (cleanRow) TableName() string { return CleanTable }

// summaryRow is the gorm model backing the per-country rollup table.
type summaryRow struct {
	Country        string          `gorm:"primaryKey;size:128"`
	TotalUnitsSold int64           `gorm:"not null"`
	TotalRevenue   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TotalProfit    decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	SummarizedAt   time.Time       `gorm:"not null"`
}

func (summaryRow) TableName() string { return SummaryTable }

// MySQLStore implements Store against a MySQL warehouse via gorm.
type MySQLStore struct {
	db *gorm.DB
}

// NewMySQLStore connects with the given DSN and migrates the three tables.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, perrors.NewTableError(perrors.CodeTableWriteFailed, "open mysql connection", err)
	}
	if err := db.AutoMigrate(&rawRow{}, &cleanRow{}, &summaryRow{}); err != nil {
		return nil, perrors.NewTableError(perrors.CodeTableWriteFailed, "migrate tables", err)
	}
	return &MySQLStore{db: db}, nil
}

func toRawRow(rec types.Record) rawRow {
	return rawRow{
		UUID:          rec.ID,
		Country:       rec.Country,
		ItemType:      rec.ItemType,
		SalesChannel:  rec.SalesChannel,
		OrderPriority: rec.OrderPriority,
		OrderDate:     rec.OrderDate,
		OrderID:       rec.OrderID,
		ShipDate:      rec.ShipDate,
		UnitsSold:     rec.UnitsSold,
		UnitPrice:     rec.UnitPrice,
		UnitCost:      rec.UnitCost,
		TotalRevenue:  rec.TotalRevenue,
		TotalCost:     rec.TotalCost,
		TotalProfit:   rec.TotalProfit,
		SourceFile:    rec.SourceFile,
		IngestedAt:    rec.IngestedAt,
	}
}

func toCleanRow(rec types.Record) cleanRow {
	r := toRawRow(rec)
	return cleanRow{
		UUID:          r.UUID,
		Country:       r.Country,
		ItemType:      r.ItemType,
		SalesChannel:  r.SalesChannel,
		OrderPriority: r.OrderPriority,
		OrderDate:     r.OrderDate,
		OrderID:       r.OrderID,
		ShipDate:      r.ShipDate,
		UnitsSold:     r.UnitsSold,
		UnitPrice:     r.UnitPrice,
		UnitCost:      r.UnitCost,
		TotalRevenue:  r.TotalRevenue,
		TotalCost:     r.TotalCost,
		TotalProfit:   r.TotalProfit,
		SourceFile:    r.SourceFile,
		IngestedAt:    r.IngestedAt,
	}
}

func fromCleanRow(row cleanRow) types.Record {
	return types.Record{
		ID:            row.UUID,
		Country:       row.Country,
		ItemType:      row.ItemType,
		SalesChannel:  row.SalesChannel,
		OrderPriority: row.OrderPriority,
		OrderDate:     row.OrderDate,
		OrderID:       row.OrderID,
		ShipDate:      row.ShipDate,
		UnitsSold:     row.UnitsSold,
		UnitPrice:     row.UnitPrice,
		UnitCost:      row.UnitCost,
		TotalRevenue:  row.TotalRevenue,
		TotalCost:     row.TotalCost,
		TotalProfit:   row.TotalProfit,
		SourceFile:    row.SourceFile,
		IngestedAt:    row.IngestedAt,
	}
}

// AppendRaw batch-inserts every record into the raw table.
func (s *MySQLStore) AppendRaw(ctx context.Context, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]rawRow, len(records))
	for i, rec := range records {
		rows[i] = toRawRow(rec)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return perrors.NewTableError(perrors.CodeTableWriteFailed, "append raw rows", err)
	}
	return nil
}

// InsertCleanIfAbsent inserts with ON DUPLICATE KEY ignore semantics and
// reports how many rows were actually added.
func (s *MySQLStore) InsertCleanIfAbsent(ctx context.Context, records []types.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([]cleanRow, len(records))
	for i, rec := range records {
		rows[i] = toCleanRow(rec)
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 500)
	if res.Error != nil {
		return 0, perrors.NewTableError(perrors.CodeTableWriteFailed, "insert clean rows", res.Error)
	}
	return int(res.RowsAffected), nil
}

// FilterExistingIDs returns the subset of ids already present in the clean
// table.
func (s *MySQLStore) FilterExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	const chunkSize = 500

	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		var found []string
		err := s.db.WithContext(ctx).
			Model(&cleanRow{}).
			Where("uuid IN ?", ids[start:end]).
			Pluck("uuid", &found).Error
		if err != nil {
			return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "filter existing ids", err)
		}
		for _, id := range found {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

// AllCleanIDs returns every identifier in the clean table.
func (s *MySQLStore) AllCleanIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&cleanRow{}).Pluck("uuid", &ids).Error
	if err != nil {
		return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "list clean ids", err)
	}
	return ids, nil
}

// AllCleanRecords returns the full clean table contents.
func (s *MySQLStore) AllCleanRecords(ctx context.Context) ([]types.Record, error) {
	var rows []cleanRow
	err := s.db.WithContext(ctx).Order("uuid").Find(&rows).Error
	if err != nil {
		return nil, perrors.NewTableError(perrors.CodeTableReadFailed, "read clean table", err)
	}
	records := make([]types.Record, len(rows))
	for i, row := range rows {
		records[i] = fromCleanRow(row)
	}
	return records, nil
}

// ReplaceSummaries swaps the summary table contents inside one transaction.
func (s *MySQLStore) ReplaceSummaries(ctx context.Context, summaries []types.CountrySummary) error {
	rows := make([]summaryRow, len(summaries))
	for i, sum := range summaries {
		rows[i] = summaryRow{
			Country:        sum.Country,
			TotalUnitsSold: sum.TotalUnitsSold,
			TotalRevenue:   sum.TotalRevenue,
			TotalProfit:    sum.TotalProfit,
			SummarizedAt:   sum.SummarizedAt,
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&summaryRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return perrors.NewTableError(perrors.CodeTableWriteFailed, "replace summaries", err)
	}
	return nil
}

// Counts returns the current row counts of all three tables.
func (s *MySQLStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		model any
		dst   *int64
	}{
		{&rawRow{}, &c.Raw},
		{&cleanRow{}, &c.Clean},
		{&summaryRow{}, &c.Summary},
	} {
		if err := s.db.WithContext(ctx).Model(q.model).Count(q.dst).Error; err != nil {
			return Counts{}, perrors.NewTableError(perrors.CodeTableReadFailed, "count rows", err)
		}
	}
	return c, nil
}

// Close releases the underlying connection pool.
func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
