package types

import (
	"fmt"
	"strings"
)

// ViolationKind classifies a schema violation.
type ViolationKind string

const (
	ViolationMissingColumn ViolationKind = "missing_column"
	ViolationBadType       ViolationKind = "bad_type"
	ViolationBadDate       ViolationKind = "bad_date"
	ViolationDuplicateID   ViolationKind = "duplicate_id"
)

// Violation is a single constraint failure found during validation.
type Violation struct {
	Kind    ViolationKind
	Column  string
	Row     int // zero-based row index within the file, -1 for file-level violations
	Message string
}

func (v Violation) String() string {
	if v.Row >= 0 {
		return fmt.Sprintf("row %d, column %q: %s", v.Row, v.Column, v.Message)
	}
	return fmt.Sprintf("column %q: %s", v.Column, v.Message)
}

// ValidationResult is the validator's verdict on a parsed batch. It is a
// plain data value: an invalid batch is not an error condition, the
// orchestrator branches on it. A valid result may still carry duplicate-id
// violations, which are informational — the deduplicator resolves them.
type ValidationResult struct {
	Valid      bool
	Violations []Violation
}

// Summary renders all violations as a single human-readable string for
// notification bodies.
func (r *ValidationResult) Summary() string {
	if len(r.Violations) == 0 {
		return "no violations"
	}
	parts := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}

// MissingColumns returns the canonical names of columns reported missing.
func (r *ValidationResult) MissingColumns() []string {
	var cols []string
	for _, v := range r.Violations {
		if v.Kind == ViolationMissingColumn {
			cols = append(cols, v.Column)
		}
	}
	return cols
}
