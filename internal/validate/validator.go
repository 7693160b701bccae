// Package validate implements the schema validator: it checks a raw batch
// against the fixed sales schema and, when the batch is clean, materializes
// the typed records.
package validate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dehpipe/dehpipe/pkg/types"
	"github.com/shopspring/decimal"
)

// stringColumns must be non-empty after trimming.
var stringColumns = []string{
	types.ColumnID,
	types.ColumnCountry,
	types.ColumnItemType,
	types.ColumnSalesChannel,
	types.ColumnOrderPriority,
}

// Validator checks raw batches against the fixed sales schema.
// Validation is pure: an invalid batch is reported as a data value, never
// as an error.
type Validator struct {
	now func() time.Time
}

// New creates a Validator.
func New() *Validator {
	return &Validator{now: time.Now}
}

// NewWithClock creates a Validator with a fixed clock, for tests.
func NewWithClock(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// Validate checks the batch in three ordered categories, short-circuiting
// between categories but accumulating every violation within one:
//
//  1. required columns present
//  2. per-cell type, date, and emptiness conformance
//  3. intra-file duplicate identifiers
//
// Categories 1 and 2 decide the verdict. Duplicate identifiers are reported
// in the violation list but do not invalidate the batch: dropping them is
// the deduplicator's job, and the raw table logs them regardless.
// The typed batch is returned only when the verdict is valid.
func (v *Validator) Validate(raw *types.RawBatch) (*types.Batch, *types.ValidationResult) {
	if violations := missingColumns(raw); len(violations) > 0 {
		return nil, &types.ValidationResult{Violations: violations}
	}

	ingestedAt := v.now().UTC()
	records := make([]types.Record, 0, len(raw.Rows))
	var violations []types.Violation
	for i, row := range raw.Rows {
		rec, rowViolations := materializeRow(row, i)
		if len(rowViolations) > 0 {
			violations = append(violations, rowViolations...)
			continue
		}
		rec.SourceFile = raw.SourceFile
		rec.IngestedAt = ingestedAt
		records = append(records, rec)
	}
	if len(violations) > 0 {
		return nil, &types.ValidationResult{Violations: violations}
	}

	return &types.Batch{SourceFile: raw.SourceFile, Records: records},
		&types.ValidationResult{Valid: true, Violations: duplicateIDs(records)}
}

func missingColumns(raw *types.RawBatch) []types.Violation {
	var violations []types.Violation
	for _, col := range types.RequiredColumns {
		if !raw.HasColumn(col) {
			violations = append(violations, types.Violation{
				Kind:    types.ViolationMissingColumn,
				Column:  col,
				Row:     -1,
				Message: "required column is missing",
			})
		}
	}
	return violations
}

func materializeRow(row types.RawRow, idx int) (types.Record, []types.Violation) {
	var rec types.Record
	var violations []types.Violation

	badType := func(col, msg string) {
		violations = append(violations, types.Violation{
			Kind: types.ViolationBadType, Column: col, Row: idx, Message: msg,
		})
	}
	badDate := func(col, msg string) {
		violations = append(violations, types.Violation{
			Kind: types.ViolationBadDate, Column: col, Row: idx, Message: msg,
		})
	}

	for _, col := range stringColumns {
		if strings.TrimSpace(row[col]) == "" {
			badType(col, "value is empty")
		}
	}
	rec.ID = strings.TrimSpace(row[types.ColumnID])
	rec.Country = strings.TrimSpace(row[types.ColumnCountry])
	rec.ItemType = strings.TrimSpace(row[types.ColumnItemType])
	rec.SalesChannel = strings.TrimSpace(row[types.ColumnSalesChannel])
	rec.OrderPriority = strings.TrimSpace(row[types.ColumnOrderPriority])

	if d, err := parseDate(row[types.ColumnOrderDate]); err != nil {
		badDate(types.ColumnOrderDate, fmt.Sprintf("%q does not match M/D/YYYY", row[types.ColumnOrderDate]))
	} else {
		rec.OrderDate = d
	}
	if d, err := parseDate(row[types.ColumnShipDate]); err != nil {
		badDate(types.ColumnShipDate, fmt.Sprintf("%q does not match M/D/YYYY", row[types.ColumnShipDate]))
	} else {
		rec.ShipDate = d
	}

	if n, err := strconv.ParseInt(strings.TrimSpace(row[types.ColumnOrderID]), 10, 64); err != nil {
		badType(types.ColumnOrderID, fmt.Sprintf("%q is not an integer", row[types.ColumnOrderID]))
	} else {
		rec.OrderID = n
	}

	if n, err := strconv.ParseInt(strings.TrimSpace(row[types.ColumnUnitsSold]), 10, 64); err != nil {
		badType(types.ColumnUnitsSold, fmt.Sprintf("%q is not an integer", row[types.ColumnUnitsSold]))
	} else if n < 0 {
		badType(types.ColumnUnitsSold, "units sold cannot be negative")
	} else {
		rec.UnitsSold = n
	}

	rec.UnitPrice = parseMoney(row[types.ColumnUnitPrice], types.ColumnUnitPrice, badType)
	rec.UnitCost = parseMoney(row[types.ColumnUnitCost], types.ColumnUnitCost, badType)

	if len(violations) > 0 {
		return rec, violations
	}

	// Totals are derivable. When the file carries them they must agree with
	// the derived values to the cent; when absent they are computed.
	units := decimal.NewFromInt(rec.UnitsSold)
	rec.TotalRevenue = checkedTotal(row, types.ColumnTotalRevenue, units.Mul(rec.UnitPrice), badType)
	rec.TotalCost = checkedTotal(row, types.ColumnTotalCost, units.Mul(rec.UnitCost), badType)
	rec.TotalProfit = checkedTotal(row, types.ColumnTotalProfit, rec.TotalRevenue.Sub(rec.TotalCost), badType)

	return rec, violations
}

func parseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(types.OrderDateFormat, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return d, nil
}

func parseMoney(value, col string, badType func(col, msg string)) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		badType(col, fmt.Sprintf("%q is not a decimal", value))
		return decimal.Zero
	}
	if d.IsNegative() {
		badType(col, "amount cannot be negative")
		return decimal.Zero
	}
	return d.Round(2)
}

func checkedTotal(row types.RawRow, col string, derived decimal.Decimal, badType func(col, msg string)) decimal.Decimal {
	derived = derived.Round(2)
	value, ok := row[col]
	if !ok || strings.TrimSpace(value) == "" {
		return derived
	}

	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		badType(col, fmt.Sprintf("%q is not a decimal", value))
		return derived
	}
	if d.Round(2).Sub(derived).Abs().GreaterThan(decimal.New(1, -2)) {
		badType(col, fmt.Sprintf("%s disagrees with derived value %s", d, derived))
		return derived
	}
	return derived
}

func duplicateIDs(records []types.Record) []types.Violation {
	seen := make(map[string]int, len(records))
	var violations []types.Violation
	for i, rec := range records {
		if first, ok := seen[rec.ID]; ok {
			violations = append(violations, types.Violation{
				Kind:    types.ViolationDuplicateID,
				Column:  types.ColumnID,
				Row:     i,
				Message: fmt.Sprintf("identifier %q already used at row %d", rec.ID, first),
			})
			continue
		}
		seen[rec.ID] = i
	}
	return violations
}
