package aggregate

import (
	"reflect"
	"testing"
	"time"

	"github.com/dehpipe/dehpipe/pkg/types"
	"github.com/shopspring/decimal"
)

func money(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func record(country string, units int64, revenue, profit string) types.Record {
	return types.Record{
		ID:           country + "-" + revenue,
		Country:      country,
		UnitsSold:    units,
		TotalRevenue: money(revenue),
		TotalProfit:  money(profit),
	}
}

func TestByCountry_Sums(t *testing.T) {
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	records := []types.Record{
		record("Canada", 10, "93.30", "24.10"),
		record("Canada", 5, "10.00", "2.50"),
		record("Japan", 7, "70.07", "7.77"),
	}

	summaries := ByCountry(records, at)
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}

	canada, japan := summaries[0], summaries[1]
	if canada.Country != "Canada" || japan.Country != "Japan" {
		t.Fatalf("summaries not sorted by country: %v", summaries)
	}

	if canada.TotalUnitsSold != 15 {
		t.Errorf("Canada units = %d, want 15", canada.TotalUnitsSold)
	}
	if !canada.TotalRevenue.Equal(money("103.30")) {
		t.Errorf("Canada revenue = %s, want 103.30", canada.TotalRevenue)
	}
	if !canada.TotalProfit.Equal(money("26.60")) {
		t.Errorf("Canada profit = %s, want 26.60", canada.TotalProfit)
	}
	if japan.TotalUnitsSold != 7 || !japan.TotalRevenue.Equal(money("70.07")) {
		t.Errorf("Japan summary = %+v", japan)
	}
	if !canada.SummarizedAt.Equal(at) {
		t.Errorf("summarized at = %v, want %v", canada.SummarizedAt, at)
	}
}

func TestByCountry_DeterministicReruns(t *testing.T) {
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	records := []types.Record{
		record("Peru", 1, "1.00", "0.10"),
		record("Oman", 2, "2.00", "0.20"),
		record("Peru", 3, "3.00", "0.30"),
	}

	first := ByCountry(records, at)
	second := ByCountry(records, at)
	if !reflect.DeepEqual(first, second) {
		t.Error("aggregating the same data twice must produce identical rows")
	}
}

func TestByCountry_Empty(t *testing.T) {
	if got := ByCountry(nil, time.Now()); len(got) != 0 {
		t.Errorf("empty input produced %v", got)
	}
}
