package validator

import (
	"context"
	"testing"

	"github.com/gridpilot/gridpilot/pkg/document"
	"github.com/gridpilot/gridpilot/pkg/schema"
)

func region(t *testing.T, ref string) schema.Region {
	t.Helper()
	r, err := schema.ParseRegion(ref, "Sheet1")
	if err != nil {
		t.Fatalf("ParseRegion(%q): %v", ref, err)
	}
	return r
}

func TestClassifyAllEmptyFails(t *testing.T) {
	a := schema.Action{Type: schema.KindWriteValues}
	out := Classify(a, region(t, "A1:B2"), [][]string{{"", ""}, {"", ""}})
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.Empty != 4 || out.Cells != 4 {
		t.Fatalf("empty/cells = %d/%d, want 4/4", out.Empty, out.Cells)
	}
}

func TestClassifyPartialEmptinessFails(t *testing.T) {
	// 10 cells, 4 empty: ratio 40% > 30% and count 4 > 3.
	values := [][]string{
		{"a", "b"}, {"c", ""}, {"", "d"}, {"", "e"}, {"f", ""},
	}
	a := schema.Action{Type: schema.KindWriteValues}
	out := Classify(a, region(t, "A1:B5"), values)
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
}

func TestClassifyFewEmptiesPass(t *testing.T) {
	// 40% empty but only 2 empty cells: under the absolute threshold.
	values := [][]string{{"a", ""}, {"", "b"}, {"c"}}
	a := schema.Action{Type: schema.KindWriteValues}
	out := Classify(a, region(t, "A1:B3"), values)
	if out.Status != StatusPassed {
		t.Fatalf("status = %s, want passed", out.Status)
	}
}

func TestClassifySingleRowToleratesGaps(t *testing.T) {
	// The partial-emptiness rule applies only to multi-row writes.
	values := [][]string{{"a", "", "", "", "", "b", "", "", "", "c"}}
	a := schema.Action{Type: schema.KindWriteValues}
	out := Classify(a, region(t, "A1:J1"), values)
	if out.Status != StatusPassed {
		t.Fatalf("status = %s, want passed", out.Status)
	}
}

func TestClassifyAllFormulaErrorsFails(t *testing.T) {
	values := [][]string{{"#REF!"}, {"#DIV/0!"}}
	a := schema.Action{Type: schema.KindWriteFormula}
	out := Classify(a, region(t, "A1:A2"), values)
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
}

func TestClassifyMixedErrorsPass(t *testing.T) {
	// One good result among errors means the formula partially worked;
	// the emptiness rules did not trip either.
	values := [][]string{{"#REF!"}, {"42"}}
	a := schema.Action{Type: schema.KindWriteFormula}
	out := Classify(a, region(t, "A1:A2"), values)
	if out.Status != StatusPassed {
		t.Fatalf("status = %s, want passed", out.Status)
	}
}

func TestClassifyErrorsIgnoredForValueKinds(t *testing.T) {
	// A literal "#REF!" string written as a value is not a formula failure.
	values := [][]string{{"#REF!"}}
	a := schema.Action{Type: schema.KindWriteValues}
	out := Classify(a, region(t, "A1"), values)
	if out.Status != StatusPassed {
		t.Fatalf("status = %s, want passed", out.Status)
	}
}

func TestCheckSkipsNonWriteKinds(t *testing.T) {
	doc := document.NewMemory("Sheet1")
	a := schema.Action{Type: schema.KindFormatCells, Range: "A1"}
	out, err := Check(context.Background(), doc, a, region(t, "A1"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if out.Status != StatusSkipped {
		t.Fatalf("status = %s, want skipped", out.Status)
	}
}

func TestCheckReadsBackWrittenRegion(t *testing.T) {
	doc := document.NewMemory("Sheet1")
	target := region(t, "A1:B2")
	if err := doc.WriteValues(context.Background(), target, [][]any{{"a", "b"}, {"c", "d"}}); err != nil {
		t.Fatalf("WriteValues: %v", err)
	}

	a := schema.Action{Type: schema.KindWriteValues, Range: "A1:B2"}
	out, err := Check(context.Background(), doc, a, target)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if out.Status != StatusPassed {
		t.Fatalf("status = %s: %s", out.Status, out.Message)
	}
	if out.Cells != 4 || out.Empty != 0 {
		t.Fatalf("cells/empty = %d/%d, want 4/0", out.Cells, out.Empty)
	}
}
