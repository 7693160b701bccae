// Package aggregate computes the per-country summary over the full clean
// table. The summary is recomputed from scratch on every successful run and
// fully replaces the previous one, so reprocessing never double-counts.
package aggregate

import (
	"sort"
	"time"

	"github.com/dehpipe/dehpipe/pkg/types"
	"github.com/shopspring/decimal"
)

// ByCountry groups records by country and sums units sold, revenue, and
// profit. Output is sorted by country so two runs over the same data
// produce identical rows.
func ByCountry(records []types.Record, at time.Time) []types.CountrySummary {
	totals := make(map[string]*types.CountrySummary)
	for _, rec := range records {
		s, ok := totals[rec.Country]
		if !ok {
			s = &types.CountrySummary{
				Country:      rec.Country,
				TotalRevenue: decimal.Zero,
				TotalProfit:  decimal.Zero,
				SummarizedAt: at,
			}
			totals[rec.Country] = s
		}
		s.TotalUnitsSold += rec.UnitsSold
		s.TotalRevenue = s.TotalRevenue.Add(rec.TotalRevenue)
		s.TotalProfit = s.TotalProfit.Add(rec.TotalProfit)
	}

	summaries := make([]types.CountrySummary, 0, len(totals))
	for _, s := range totals {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Country < summaries[j].Country
	})
	return summaries
}
