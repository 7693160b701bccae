package columnar

import (
	"testing"
	"time"

	"github.com/dehpipe/dehpipe/pkg/types"
	"github.com/shopspring/decimal"
)

func sampleBatch() *types.Batch {
	money := func(s string) decimal.Decimal {
		d, _ := decimal.NewFromString(s)
		return d
	}
	return &types.Batch{
		SourceFile: "sales.csv",
		Records: []types.Record{
			{
				ID:            "a-1",
				Country:       "Canada",
				ItemType:      "Fruit",
				SalesChannel:  "Online",
				OrderPriority: "H",
				OrderDate:     time.Date(2026, 5, 28, 0, 0, 0, 0, time.UTC),
				OrderID:       669165933,
				ShipDate:      time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
				UnitsSold:     10,
				UnitPrice:     money("9.33"),
				UnitCost:      money("6.92"),
				TotalRevenue:  money("93.30"),
				TotalCost:     money("69.20"),
				TotalProfit:   money("24.10"),
				SourceFile:    "sales.csv",
				IngestedAt:    time.Date(2026, 8, 31, 12, 0, 0, 123000000, time.UTC),
			},
			{
				ID:            "a-2",
				Country:       "Japan",
				ItemType:      "Cereal",
				SalesChannel:  "Offline",
				OrderPriority: "C",
				OrderDate:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
				OrderID:       1,
				ShipDate:      time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
				UnitsSold:     0,
				UnitPrice:     money("0.01"),
				UnitCost:      money("0"),
				TotalRevenue:  money("0"),
				TotalCost:     money("0"),
				TotalProfit:   money("0"),
				SourceFile:    "sales.csv",
				IngestedAt:    time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
			},
		},
	}
}

func TestConvertRestore_RoundTrip(t *testing.T) {
	batch := sampleBatch()

	blob, err := Convert(batch)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(blob) == 0 {
		t.Fatal("Convert produced an empty blob")
	}

	restored, err := Restore(blob)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(restored) != len(batch.Records) {
		t.Fatalf("restored %d records, want %d", len(restored), len(batch.Records))
	}

	for i, want := range batch.Records {
		got := restored[i]
		if got.ID != want.ID || got.Country != want.Country || got.ItemType != want.ItemType ||
			got.SalesChannel != want.SalesChannel || got.OrderPriority != want.OrderPriority {
			t.Errorf("record %d strings differ: got %+v", i, got)
		}
		if !got.OrderDate.Equal(want.OrderDate) {
			t.Errorf("record %d order date = %v, want %v", i, got.OrderDate, want.OrderDate)
		}
		if !got.ShipDate.Equal(want.ShipDate) {
			t.Errorf("record %d ship date = %v, want %v", i, got.ShipDate, want.ShipDate)
		}
		if got.OrderID != want.OrderID || got.UnitsSold != want.UnitsSold {
			t.Errorf("record %d integers differ: got %+v", i, got)
		}
		for _, pair := range []struct {
			name      string
			got, want decimal.Decimal
		}{
			{"unit_price", got.UnitPrice, want.UnitPrice},
			{"unit_cost", got.UnitCost, want.UnitCost},
			{"total_revenue", got.TotalRevenue, want.TotalRevenue},
			{"total_cost", got.TotalCost, want.TotalCost},
			{"total_profit", got.TotalProfit, want.TotalProfit},
		} {
			if !pair.got.Equal(pair.want) {
				t.Errorf("record %d %s = %s, want %s (must be exact to the cent)", i, pair.name, pair.got, pair.want)
			}
		}
		if got.SourceFile != want.SourceFile {
			t.Errorf("record %d source file = %q", i, got.SourceFile)
		}
	}
}

func TestConvert_Deterministic(t *testing.T) {
	batch := sampleBatch()

	a, err := Convert(batch)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	b, err := Convert(batch)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if string(a) != string(b) {
		t.Error("Convert is not deterministic for identical input")
	}
}

func TestRestore_Garbage(t *testing.T) {
	if _, err := Restore([]byte("not parquet at all")); err == nil {
		t.Error("Restore should reject non-parquet bytes")
	}
}
