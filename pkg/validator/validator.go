// Package validator inspects the cells a write action actually produced and
// classifies the outcome. Execution success only means the backend accepted
// the write; validation decides whether the result is usable.
package validator

import (
	"context"
	"fmt"

	"github.com/gridpilot/gridpilot/pkg/document"
	"github.com/gridpilot/gridpilot/pkg/schema"
)

// Validation statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Formula error sentinels, as rendered by the calculation engine.
var errorSentinels = map[string]bool{
	"#REF!":   true,
	"#VALUE!": true,
	"#DIV/0!": true,
	"#NAME?":  true,
	"#N/A":    true,
	"#NULL!":  true,
	"#NUM!":   true,
	"#SPILL!": true,
	"#CALC!":  true,
}

// IsErrorSentinel reports whether a cell value is a formula error marker.
func IsErrorSentinel(v string) bool {
	return errorSentinels[v]
}

// Thresholds for the partial-emptiness rule. A multi-row write fails when
// both are exceeded.
const (
	EmptyRatioThreshold = 0.30
	EmptyCountThreshold = 3
)

// Outcome is the verdict for one validated write.
type Outcome struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	Cells      int     `json:"cells"`
	Empty      int     `json:"empty"`
	EmptyRatio float64 `json:"emptyRatio"`
	// Values is the read-back matrix, retained for suspicion analysis and
	// the turn trace.
	Values [][]string `json:"-"`
}

// Check reads back the effective target region of a write action and applies
// the validation rules in order: fully empty, partial emptiness, and (for
// formula-driven kinds) all-errors. Non-write kinds are skipped.
func Check(ctx context.Context, doc document.Document, a schema.Action, target schema.Region) (Outcome, error) {
	if !schema.IsWriteKind(a.Type) {
		return Outcome{Status: StatusSkipped}, nil
	}

	values, err := doc.ReadRegion(ctx, target)
	if err != nil {
		return Outcome{}, fmt.Errorf("read back %s: %w", target.Ref(), err)
	}
	return Classify(a, target, values), nil
}

// Classify applies the rules to an already-read matrix.
func Classify(a schema.Action, target schema.Region, values [][]string) Outcome {
	out := Outcome{Values: values}
	errors := 0
	for _, row := range values {
		for _, cell := range row {
			out.Cells++
			switch {
			case cell == "":
				out.Empty++
			case IsErrorSentinel(cell):
				errors++
			}
		}
	}
	if out.Cells > 0 {
		out.EmptyRatio = float64(out.Empty) / float64(out.Cells)
	}

	switch {
	case out.Cells == 0 || out.Empty == out.Cells:
		out.Status = StatusFailed
		out.Message = fmt.Sprintf("%s wrote no data to %s: all %d cells are empty", a.Type, target.Ref(), out.Cells)
	case len(values) > 1 && out.EmptyRatio > EmptyRatioThreshold && out.Empty > EmptyCountThreshold:
		out.Status = StatusFailed
		out.Message = fmt.Sprintf("%s left %d of %d cells empty in %s (%.0f%%)",
			a.Type, out.Empty, out.Cells, target.Ref(), out.EmptyRatio*100)
	case schema.IsFormulaKind(a.Type) && errors > 0 && errors == out.Cells-out.Empty:
		out.Status = StatusFailed
		out.Message = fmt.Sprintf("%s produced only formula errors in %s (e.g. %s)",
			a.Type, target.Ref(), firstSentinel(values))
	default:
		out.Status = StatusPassed
		out.Message = fmt.Sprintf("%d cells written to %s", out.Cells-out.Empty, target.Ref())
	}
	return out
}

func firstSentinel(values [][]string) string {
	for _, row := range values {
		for _, cell := range row {
			if IsErrorSentinel(cell) {
				return cell
			}
		}
	}
	return ""
}
