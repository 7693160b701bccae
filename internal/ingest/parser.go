// Package ingest parses landed CSV and JSON files into raw batches for
// validation. Parsing is structural only: it resolves column names and
// collects cell values, leaving type checks to the validator.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	perrors "github.com/dehpipe/dehpipe/internal/errors"
	"github.com/dehpipe/dehpipe/pkg/types"
)

// columnAliases maps normalized header names to canonical column names.
// Normalization lower-cases and strips separators, so "ItemType",
// "item_type" and "Item Type" all resolve to the same column.
var columnAliases = map[string]string{
	"uuid":          types.ColumnID,
	"id":            types.ColumnID,
	"country":       types.ColumnCountry,
	"itemtype":      types.ColumnItemType,
	"itemcategory":  types.ColumnItemType,
	"saleschannel":  types.ColumnSalesChannel,
	"channel":       types.ColumnSalesChannel,
	"orderpriority": types.ColumnOrderPriority,
	"priority":      types.ColumnOrderPriority,
	"orderdate":     types.ColumnOrderDate,
	"orderid":       types.ColumnOrderID,
	"shipdate":      types.ColumnShipDate,
	"unitssold":     types.ColumnUnitsSold,
	"unitprice":     types.ColumnUnitPrice,
	"unitcost":      types.ColumnUnitCost,
	"totalrevenue":  types.ColumnTotalRevenue,
	"totalcost":     types.ColumnTotalCost,
	"totalprofit":   types.ColumnTotalProfit,
}

// ParseFile parses file bytes into a raw batch, choosing the format by file
// extension. Failures are PARSE-category errors: a file that cannot be
// parsed is malformed input, not a schema violation.
func ParseFile(name string, data []byte) (*types.RawBatch, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return parseCSV(name, data)
	case ".json":
		return parseJSON(name, data)
	default:
		return nil, perrors.New(perrors.ErrCategoryParse, perrors.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported file format %q", path.Ext(name)))
	}
}

func parseCSV(name string, data []byte) (*types.RawBatch, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, perrors.NewParseError(perrors.CodeMalformedInput,
			fmt.Sprintf("%s: missing or unreadable CSV header", name), err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = CanonicalColumn(h)
	}

	var rows []types.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, perrors.NewParseError(perrors.CodeMalformedInput,
				fmt.Sprintf("%s: malformed CSV row %d", name, len(rows)+1), err)
		}

		row := make(types.RawRow, len(columns))
		for i, col := range columns {
			row[col] = record[i]
		}
		rows = append(rows, row)
	}

	return &types.RawBatch{SourceFile: name, Columns: columns, Rows: rows}, nil
}

func parseJSON(name string, data []byte) (*types.RawBatch, error) {
	objects, err := decodeJSONArray(data)
	if err != nil {
		// Fall back to newline-delimited JSON, one object per line.
		objects, err = decodeJSONLines(data)
	}
	if err != nil {
		return nil, perrors.NewParseError(perrors.CodeMalformedInput,
			fmt.Sprintf("%s: not a JSON array of row objects", name), err)
	}

	batch := &types.RawBatch{SourceFile: name}
	seen := make(map[string]bool)
	for _, obj := range objects {
		row := make(types.RawRow, len(obj))
		for key, val := range obj {
			col := CanonicalColumn(key)
			row[col] = val
			if !seen[col] {
				seen[col] = true
				batch.Columns = append(batch.Columns, col)
			}
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

func decodeJSONArray(data []byte) ([]map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return stringifyObjects(raw)
}

func decodeJSONLines(data []byte) ([]map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []map[string]any
	for dec.More() {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, err
		}
		raw = append(raw, obj)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no JSON objects found")
	}
	return stringifyObjects(raw)
}

// stringifyObjects flattens decoded JSON values to their textual form so
// validation treats CSV and JSON rows identically. json.Number keeps the
// original digits, so decimals are not rounded through float64.
func stringifyObjects(raw []map[string]any) ([]map[string]string, error) {
	out := make([]map[string]string, len(raw))
	for i, obj := range raw {
		row := make(map[string]string, len(obj))
		for key, val := range obj {
			switch v := val.(type) {
			case nil:
				row[key] = ""
			case string:
				row[key] = v
			case json.Number:
				row[key] = v.String()
			case bool:
				row[key] = fmt.Sprintf("%t", v)
			default:
				return nil, fmt.Errorf("row %d: field %q has non-scalar value", i, key)
			}
		}
		out[i] = row
	}
	return out, nil
}

// CanonicalColumn normalizes a header name to its canonical column name.
// Unknown columns keep their normalized form so extra columns pass through.
func CanonicalColumn(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(header))
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	if canonical, ok := columnAliases[normalized]; ok {
		return canonical
	}
	return normalized
}
