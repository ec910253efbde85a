package document

import (
	"context"
	"errors"
	"testing"

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

func TestMemoryWriteRead(t *testing.T) {
	m := NewMemory("Sheet1")
	ctx := context.Background()

	if err := m.WriteValues(ctx, region(t, "B2:C3"), [][]any{{"a", 1}, {"b", 2.5}}); err != nil {
		t.Fatalf("WriteValues: %v", err)
	}
	got, err := m.ReadRegion(ctx, region(t, "B2:C3"))
	if err != nil {
		t.Fatalf("ReadRegion: %v", err)
	}
	if got[0][0] != "a" || got[0][1] != "1" || got[1][1] != "2.5" {
		t.Fatalf("read back = %v", got)
	}
}

func TestMemoryFormulasEchoWithoutEval(t *testing.T) {
	m := NewMemory("Sheet1")
	ctx := context.Background()

	if err := m.WriteFormulas(ctx, region(t, "A1"), [][]string{{"=SUM(B:B)"}}); err != nil {
		t.Fatalf("WriteFormulas: %v", err)
	}
	values, _ := m.ReadRegion(ctx, region(t, "A1"))
	// Without an Eval hook the formula text is the displayed value, so
	// formula writes read back non-empty.
	if values[0][0] != "SUM(B:B)" {
		t.Fatalf("value = %q", values[0][0])
	}
	formulas, _ := m.ReadFormulas(ctx, region(t, "A1"))
	if formulas[0][0] != "SUM(B:B)" {
		t.Fatalf("formula = %q", formulas[0][0])
	}
}

func TestMemoryEvalHook(t *testing.T) {
	m := NewMemory("Sheet1")
	m.Eval = func(sheet, cell, formula string) string { return "#DIV/0!" }
	ctx := context.Background()

	_ = m.WriteFormulas(ctx, region(t, "A1"), [][]string{{"=1/0"}})
	values, _ := m.ReadRegion(ctx, region(t, "A1"))
	if values[0][0] != "#DIV/0!" {
		t.Fatalf("value = %q", values[0][0])
	}
}

func TestMemoryUsedRange(t *testing.T) {
	m := NewMemory("Sheet1")
	ctx := context.Background()

	if _, ok, err := m.UsedRange(ctx, "Sheet1"); err != nil || ok {
		t.Fatalf("empty sheet: ok=%v err=%v", ok, err)
	}

	m.Seed("Sheet1", 2, 3, [][]string{{"x", "y"}, {"z", "w"}})
	used, ok, err := m.UsedRange(ctx, "Sheet1")
	if err != nil || !ok {
		t.Fatalf("used range: ok=%v err=%v", ok, err)
	}
	if used.Ref() != "Sheet1!B3:C4" {
		t.Fatalf("used = %s, want Sheet1!B3:C4", used.Ref())
	}
}

func TestMemorySheetLifecycle(t *testing.T) {
	m := NewMemory("Sheet1")
	ctx := context.Background()

	if err := m.AddSheet(ctx, "Report"); err != nil {
		t.Fatalf("AddSheet: %v", err)
	}
	if err := m.AddSheet(ctx, "Report"); !errors.Is(err, ErrSheetExists) {
		t.Fatalf("duplicate AddSheet err = %v", err)
	}
	if err := m.RenameSheet(ctx, "Report", "Summary"); err != nil {
		t.Fatalf("RenameSheet: %v", err)
	}
	if err := m.ActivateSheet(ctx, "Summary"); err != nil {
		t.Fatalf("ActivateSheet: %v", err)
	}
	active, _ := m.ActiveSheet(ctx)
	if active != "Summary" {
		t.Fatalf("active = %q", active)
	}
	if err := m.DeleteSheet(ctx, "Summary"); err != nil {
		t.Fatalf("DeleteSheet: %v", err)
	}
	active, _ = m.ActiveSheet(ctx)
	if active != "Sheet1" {
		t.Fatalf("active after delete = %q", active)
	}
	if err := m.DeleteSheet(ctx, "Ghost"); !errors.Is(err, ErrUnknownSheet) {
		t.Fatalf("unknown delete err = %v", err)
	}
}

func TestMemoryInsertDeleteRows(t *testing.T) {
	m := NewMemory("Sheet1")
	ctx := context.Background()
	m.Seed("Sheet1", 1, 1, [][]string{{"r1"}, {"r2"}, {"r3"}})

	if err := m.InsertRows(ctx, "Sheet1", 2, 1); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	got, _ := m.ReadRegion(ctx, region(t, "A1:A4"))
	if got[0][0] != "r1" || got[1][0] != "" || got[2][0] != "r2" {
		t.Fatalf("after insert = %v", got)
	}

	if err := m.DeleteRows(ctx, "Sheet1", 2, 1); err != nil {
		t.Fatalf("DeleteRows: %v", err)
	}
	got, _ = m.ReadRegion(ctx, region(t, "A1:A3"))
	if got[0][0] != "r1" || got[1][0] != "r2" || got[2][0] != "r3" {
		t.Fatalf("after delete = %v", got)
	}
}

func TestMemoryClearRegion(t *testing.T) {
	m := NewMemory("Sheet1")
	ctx := context.Background()
	m.Seed("Sheet1", 1, 1, [][]string{{"a", "b"}})

	if err := m.ClearRegion(ctx, region(t, "A1")); err != nil {
		t.Fatalf("ClearRegion: %v", err)
	}
	got, _ := m.ReadRegion(ctx, region(t, "A1:B1"))
	if got[0][0] != "" || got[0][1] != "b" {
		t.Fatalf("after clear = %v", got)
	}
}

func TestMemoryPresentationOpsAreLogged(t *testing.T) {
	m := NewMemory("Sheet1")
	ctx := context.Background()

	_ = m.MergeCells(ctx, region(t, "A1:B2"))
	_ = m.FreezePanes(ctx, region(t, "B2"))
	if len(m.Ops) != 2 {
		t.Fatalf("ops = %v", m.Ops)
	}
	if m.Ops[0] != "merge_cells Sheet1!A1:B2" {
		t.Fatalf("ops[0] = %q", m.Ops[0])
	}
	// SortedOps orders lexically regardless of call order.
	sorted := m.SortedOps()
	if sorted[0] != "freeze_panes Sheet1!B2" || sorted[1] != "merge_cells Sheet1!A1:B2" {
		t.Fatalf("sorted ops = %v", sorted)
	}
}

func TestMemoryUnknownSheetErrors(t *testing.T) {
	m := NewMemory("Sheet1")
	ctx := context.Background()

	r := region(t, "A1")
	r.Sheet = "Nope"
	if _, err := m.ReadRegion(ctx, r); !errors.Is(err, ErrUnknownSheet) {
		t.Fatalf("err = %v", err)
	}
	if err := m.WriteValues(ctx, r, [][]any{{1}}); !errors.Is(err, ErrUnknownSheet) {
		t.Fatalf("err = %v", err)
	}
}

func TestRegionEmptyHelper(t *testing.T) {
	m := NewMemory("Sheet1")
	ctx := context.Background()
	m.Seed("Sheet1", 1, 1, [][]string{{"x"}})

	empty, err := RegionEmpty(ctx, m, region(t, "B1:C2"))
	if err != nil || !empty {
		t.Fatalf("empty=%v err=%v", empty, err)
	}
	empty, err = RegionEmpty(ctx, m, region(t, "A1:B1"))
	if err != nil || empty {
		t.Fatalf("occupied region reported empty")
	}
}
