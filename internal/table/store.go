// Package table provides the table-oriented persistence service behind the
// raw, clean, and summary tables. Implementations auto-create their tables
// with the fixed sales schema on open.
package table

import (
	"context"

	"github.com/dehpipe/dehpipe/pkg/types"
)

// Table names shared by all implementations.
const (
	RawTable     = "sales_raw"
	CleanTable   = "sales_clean"
	SummaryTable = "sales_summary"
)

// Counts holds row counts per table, used by tests and notifications.
type Counts struct {
	Raw     int64
	Clean   int64
	Summary int64
}

// Store is the table persistence contract the orchestrator depends on.
type Store interface {
	// AppendRaw appends every record to the raw table. Raw is an
	// append-only log: duplicate identifiers are expected and kept.
	AppendRaw(ctx context.Context, records []types.Record) error

	// InsertCleanIfAbsent inserts records whose identifier is not already
	// present in the clean table and returns how many were inserted.
	// Re-inserting the same records is a no-op, never an error.
	InsertCleanIfAbsent(ctx context.Context, records []types.Record) (int, error)

	// FilterExistingIDs returns the subset of ids already present in the
	// clean table.
	FilterExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)

	// AllCleanIDs returns every identifier in the clean table.
	AllCleanIDs(ctx context.Context) ([]string, error)

	// AllCleanRecords returns the full clean table contents.
	AllCleanRecords(ctx context.Context) ([]types.Record, error)

	// ReplaceSummaries swaps the summary table contents in one
	// transaction, so readers never observe a partially-rebuilt summary.
	ReplaceSummaries(ctx context.Context, summaries []types.CountrySummary) error

	// Counts returns the current row counts of all three tables.
	Counts(ctx context.Context) (Counts, error)

	// Close releases the underlying connections.
	Close() error
}
