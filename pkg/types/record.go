// Package types provides core data types for the sales ingestion pipeline.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderDateFormat is the accepted date layout for order_date and ship_date
// columns (M/D/YYYY, no zero padding required).
const OrderDateFormat = "1/2/2006"

// Canonical column names for the fixed sales schema.
const (
	ColumnID            = "uuid"
	ColumnCountry       = "country"
	ColumnItemType      = "item_type"
	ColumnSalesChannel  = "sales_channel"
	ColumnOrderPriority = "order_priority"
	ColumnOrderDate     = "order_date"
	ColumnOrderID       = "order_id"
	ColumnShipDate      = "ship_date"
	ColumnUnitsSold     = "units_sold"
	ColumnUnitPrice     = "unit_price"
	ColumnUnitCost      = "unit_cost"
	ColumnTotalRevenue  = "total_revenue"
	ColumnTotalCost     = "total_cost"
	ColumnTotalProfit   = "total_profit"
)

// RequiredColumns is the exact set of columns a file must carry to be loadable.
// Total columns are derivable and therefore optional.
var RequiredColumns = []string{
	ColumnID,
	ColumnCountry,
	ColumnItemType,
	ColumnSalesChannel,
	ColumnOrderPriority,
	ColumnOrderDate,
	ColumnOrderID,
	ColumnShipDate,
	ColumnUnitsSold,
	ColumnUnitPrice,
	ColumnUnitCost,
}

// Record is one sales transaction.
type Record struct {
	// ID is the globally unique transaction identifier.
	ID string

	Country       string
	ItemType      string
	SalesChannel  string
	OrderPriority string

	// OrderDate and ShipDate carry day precision, midnight UTC.
	OrderDate time.Time
	OrderID   int64
	ShipDate  time.Time

	UnitsSold int64
	UnitPrice decimal.Decimal
	UnitCost  decimal.Decimal

	// Totals are derivable: units*price, units*cost, revenue-cost.
	TotalRevenue decimal.Decimal
	TotalCost    decimal.Decimal
	TotalProfit  decimal.Decimal

	// SourceFile is the landing-zone object name the record came from.
	SourceFile string
	IngestedAt time.Time
}

// Batch is the set of records parsed from one uploaded file.
// It exists only for the duration of one pipeline invocation.
type Batch struct {
	SourceFile string
	Records    []Record
}

// IDs returns the identifiers of all records in batch order.
func (b *Batch) IDs() []string {
	ids := make([]string, len(b.Records))
	for i, r := range b.Records {
		ids[i] = r.ID
	}
	return ids
}

// RawRow is a single unvalidated row keyed by canonical column name.
type RawRow map[string]string

// RawBatch is what the file parser produces: column names and row values as
// found in the file, before any type checking. Column names are already
// normalized to their canonical form.
type RawBatch struct {
	SourceFile string
	Columns    []string
	Rows       []RawRow
}

// HasColumn reports whether the batch carries the given canonical column.
func (b *RawBatch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// CountrySummary is one row of the fully-replaced per-country aggregate.
type CountrySummary struct {
	Country        string
	TotalUnitsSold int64
	TotalRevenue   decimal.Decimal
	TotalProfit    decimal.Decimal
	SummarizedAt   time.Time
}

// FileLocation is an opaque handle for a file in object storage.
type FileLocation struct {
	Bucket string
	Key    string
}

func (l FileLocation) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}
