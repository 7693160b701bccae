// Package columnar converts validated batches to and from the Parquet
// archival format. Conversion is pure and lossless: dates survive to the
// day and money amounts to the cent.
package columnar

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dehpipe/dehpipe/pkg/types"
	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

// archiveRow is the Parquet row shape. Dates and timestamps are stored as
// Unix milliseconds and money amounts as integer cents, so the round trip
// is exact regardless of reader float handling.
type archiveRow struct {
	UUID          string `parquet:"uuid"`
	Country       string `parquet:"country"`
	ItemType      string `parquet:"item_type"`
	SalesChannel  string `parquet:"sales_channel"`
	OrderPriority string `parquet:"order_priority"`
	OrderDateMs   int64  `parquet:"order_date_ms"`
	OrderID       int64  `parquet:"order_id"`
	ShipDateMs    int64  `parquet:"ship_date_ms"`
	UnitsSold     int64  `parquet:"units_sold"`
	UnitPriceCt   int64  `parquet:"unit_price_cents"`
	UnitCostCt    int64  `parquet:"unit_cost_cents"`
	RevenueCt     int64  `parquet:"total_revenue_cents"`
	CostCt        int64  `parquet:"total_cost_cents"`
	ProfitCt      int64  `parquet:"total_profit_cents"`
	SourceFile    string `parquet:"source_file"`
	IngestedAtMs  int64  `parquet:"ingested_at_ms"`
}

// Convert serializes a batch into a Parquet blob. Writing the blob to the
// archive zone is the orchestrator's job.
func Convert(batch *types.Batch) ([]byte, error) {
	rows := make([]archiveRow, len(batch.Records))
	for i, rec := range batch.Records {
		rows[i] = archiveRow{
			UUID:          rec.ID,
			Country:       rec.Country,
			ItemType:      rec.ItemType,
			SalesChannel:  rec.SalesChannel,
			OrderPriority: rec.OrderPriority,
			OrderDateMs:   rec.OrderDate.UnixMilli(),
			OrderID:       rec.OrderID,
			ShipDateMs:    rec.ShipDate.UnixMilli(),
			UnitsSold:     rec.UnitsSold,
			UnitPriceCt:   toCents(rec.UnitPrice),
			UnitCostCt:    toCents(rec.UnitCost),
			RevenueCt:     toCents(rec.TotalRevenue),
			CostCt:        toCents(rec.TotalCost),
			ProfitCt:      toCents(rec.TotalProfit),
			SourceFile:    rec.SourceFile,
			IngestedAtMs:  rec.IngestedAt.UnixMilli(),
		}
	}

	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		return nil, fmt.Errorf("columnar: parquet write failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore reads a Parquet blob back into records. It is the inverse of
// Convert and exists for verification and replay tooling.
func Restore(blob []byte) ([]types.Record, error) {
	rows, err := parquet.Read[archiveRow](bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("columnar: parquet read failed: %w", err)
	}

	records := make([]types.Record, len(rows))
	for i, row := range rows {
		records[i] = types.Record{
			ID:            row.UUID,
			Country:       row.Country,
			ItemType:      row.ItemType,
			SalesChannel:  row.SalesChannel,
			OrderPriority: row.OrderPriority,
			OrderDate:     time.UnixMilli(row.OrderDateMs).UTC(),
			OrderID:       row.OrderID,
			ShipDate:      time.UnixMilli(row.ShipDateMs).UTC(),
			UnitsSold:     row.UnitsSold,
			UnitPrice:     fromCents(row.UnitPriceCt),
			UnitCost:      fromCents(row.UnitCostCt),
			TotalRevenue:  fromCents(row.RevenueCt),
			TotalCost:     fromCents(row.CostCt),
			TotalProfit:   fromCents(row.ProfitCt),
			SourceFile:    row.SourceFile,
			IngestedAt:    time.UnixMilli(row.IngestedAtMs).UTC(),
		}
	}
	return records, nil
}

func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.New(1, 2)).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
