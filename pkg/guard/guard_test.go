package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/gridpilot/gridpilot/pkg/document"
	"github.com/gridpilot/gridpilot/pkg/schema"
)

func writeAction(rng string, values [][]any) schema.Action {
	return schema.Action{Type: schema.KindWriteValues, Range: rng, Values: values}
}

func TestPlanEmptyTargetKeepsDeclaredRegion(t *testing.T) {
	doc := document.NewMemory("Sheet1")
	doc.Seed("Sheet1", 1, 1, [][]string{{"a", "b"}, {"c", "d"}})

	p, err := Plan(context.Background(), doc, writeAction("E1", [][]any{{1, 2}}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.Relocated {
		t.Fatal("empty target should not relocate")
	}
	if got := p.Target.Ref(); got != "Sheet1!E1:F1" {
		t.Fatalf("target = %s, want Sheet1!E1:F1", got)
	}
}

func TestPlanRelocatesPastUsedRange(t *testing.T) {
	doc := document.NewMemory("Sheet1")
	// Used range A1:C3; a write into B2 collides.
	doc.Seed("Sheet1", 1, 1, [][]string{
		{"h1", "h2", "h3"},
		{"1", "2", "3"},
		{"4", "5", "6"},
	})

	p, err := Plan(context.Background(), doc, writeAction("B2", [][]any{{"x"}, {"y"}}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !p.Relocated {
		t.Fatal("colliding write should relocate")
	}
	// First candidate anchors at used-range end column + 2 (C -> E).
	if p.Target.StartCol != 5 || p.Target.StartRow != 2 {
		t.Fatalf("candidate anchored at (%d,%d), want (5,2)", p.Target.StartCol, p.Target.StartRow)
	}
	if p.Original.Ref() != "Sheet1!B2:B3" {
		t.Fatalf("original = %s, want Sheet1!B2:B3", p.Original.Ref())
	}
}

func TestPlanAnchorsPastExtendedUsedRange(t *testing.T) {
	doc := document.NewMemory("Sheet1")
	doc.Seed("Sheet1", 1, 1, [][]string{{"a", "b", "c"}})
	// Stray data at E1 widens the used range, pushing the anchor to G.
	doc.Seed("Sheet1", 5, 1, [][]string{{"taken"}})

	p, err := Plan(context.Background(), doc, writeAction("A1", [][]any{{"x"}}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !p.Relocated {
		t.Fatal("expected relocation")
	}
	if p.Target.StartCol != 7 {
		t.Fatalf("candidate column = %d, want 7", p.Target.StartCol)
	}
}

// stubbornDoc reports one extra cell as occupied without widening the used
// range, so the guard's first candidate collides.
type stubbornDoc struct {
	*document.Memory
	col, row int
}

func (d stubbornDoc) ReadRegion(ctx context.Context, r schema.Region) ([][]string, error) {
	out, err := d.Memory.ReadRegion(ctx, r)
	if err != nil {
		return nil, err
	}
	if d.row >= r.StartRow && d.row <= r.EndRow && d.col >= r.StartCol && d.col <= r.EndCol {
		out[d.row-r.StartRow][d.col-r.StartCol] = "x"
	}
	return out, nil
}

func TestPlanStepsOverOccupiedCandidate(t *testing.T) {
	mem := document.NewMemory("Sheet1")
	mem.Seed("Sheet1", 1, 1, [][]string{{"a", "b", "c"}})
	// Used range A1:C1, so the first candidate anchors at E1; occupy it.
	doc := stubbornDoc{Memory: mem, col: 5, row: 1}

	p, err := Plan(context.Background(), doc, writeAction("A1", [][]any{{"x"}}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !p.Relocated {
		t.Fatal("expected relocation")
	}
	// Width 1 gives step 3: E1 is taken, the next candidate is H1.
	if p.Target.StartCol != 8 {
		t.Fatalf("second candidate column = %d, want 8", p.Target.StartCol)
	}
}

func TestPlanAllowOverwriteBypassesGuard(t *testing.T) {
	doc := document.NewMemory("Sheet1")
	doc.Seed("Sheet1", 1, 1, [][]string{{"a"}})

	a := writeAction("A1", [][]any{{"x"}})
	a.AllowOverwrite = true
	p, err := Plan(context.Background(), doc, a)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.Relocated {
		t.Fatal("allowOverwrite must keep the declared target")
	}
	if p.Target.Ref() != "Sheet1!A1" {
		t.Fatalf("target = %s, want Sheet1!A1", p.Target.Ref())
	}
}

func TestPlanNonWriteKindSkipsGuard(t *testing.T) {
	doc := document.NewMemory("Sheet1")
	doc.Seed("Sheet1", 1, 1, [][]string{{"a"}})

	a := schema.Action{Type: schema.KindFormatCells, Range: "A1", Format: &schema.FormatConfig{Bold: true}}
	p, err := Plan(context.Background(), doc, a)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.Relocated {
		t.Fatal("format actions never relocate")
	}
}

// fullDoc reports every cell as occupied, so no candidate can succeed.
type fullDoc struct {
	*document.Memory
}

func (d fullDoc) ReadRegion(ctx context.Context, r schema.Region) ([][]string, error) {
	out := make([][]string, r.Rows())
	for i := range out {
		row := make([]string, r.Cols())
		for j := range row {
			row[j] = "x"
		}
		out[i] = row
	}
	return out, nil
}

func TestPlanExhaustsAttempts(t *testing.T) {
	mem := document.NewMemory("Sheet1")
	mem.Seed("Sheet1", 1, 1, [][]string{{"x"}})

	_, err := Plan(context.Background(), fullDoc{mem}, writeAction("A1", [][]any{{"y"}}))
	if !errors.Is(err, ErrNoSafeRegion) {
		t.Fatalf("err = %v, want ErrNoSafeRegion", err)
	}
}

func TestPlanRegionRelocatesExpandedTarget(t *testing.T) {
	doc := document.NewMemory("Sheet1")
	// D2 holds data, so a 2x2 block anchored at D1 collides even though the
	// declared anchor cell itself is free.
	doc.Seed("Sheet1", 4, 2, [][]string{{"keep"}})

	a := schema.Action{
		Type:      schema.KindAggregateByCategory,
		Range:     "D1",
		Aggregate: &schema.AggregateConfig{CategoryColumn: "A", Op: "count"},
	}
	anchor, err := schema.ParseRegion("D1", "Sheet1")
	if err != nil {
		t.Fatalf("ParseRegion: %v", err)
	}
	p, err := PlanRegion(context.Background(), doc, a, anchor.ExpandTo(2, 2))
	if err != nil {
		t.Fatalf("PlanRegion: %v", err)
	}
	if !p.Relocated {
		t.Fatal("expanded region overlapping data must relocate")
	}
	if p.Original.Ref() != "Sheet1!D1:E2" {
		t.Fatalf("original = %s, want Sheet1!D1:E2", p.Original.Ref())
	}
	if p.Target.Ref() != "Sheet1!F1:G2" {
		t.Fatalf("target = %s, want Sheet1!F1:G2", p.Target.Ref())
	}
}

func TestPlanExpandsSingleCellAddressToPayload(t *testing.T) {
	doc := document.NewMemory("Sheet1")
	// A1 itself is free but the payload spills into occupied A2.
	doc.Seed("Sheet1", 1, 2, [][]string{{"occupied"}})

	p, err := Plan(context.Background(), doc, writeAction("A1", [][]any{{"r1"}, {"r2"}}))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !p.Relocated {
		t.Fatal("payload overlap must trigger relocation")
	}
}
