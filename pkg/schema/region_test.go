package schema

import "testing"

func TestParseRegion(t *testing.T) {
	cases := []struct {
		address string
		sheet   string
		want    Region
	}{
		{"B2", "", Region{StartCol: 2, StartRow: 2, EndCol: 2, EndRow: 2}},
		{"A1:C10", "Data", Region{Sheet: "Data", StartCol: 1, StartRow: 1, EndCol: 3, EndRow: 10}},
		{"Sheet2!A1:B3", "Data", Region{Sheet: "Sheet2", StartCol: 1, StartRow: 1, EndCol: 2, EndRow: 3}},
		{"'My Sheet'!D4", "", Region{Sheet: "My Sheet", StartCol: 4, StartRow: 4, EndCol: 4, EndRow: 4}},
		// Reversed corners normalize.
		{"C10:A1", "", Region{StartCol: 1, StartRow: 1, EndCol: 3, EndRow: 10}},
	}
	for _, c := range cases {
		got, err := ParseRegion(c.address, c.sheet)
		if err != nil {
			t.Errorf("ParseRegion(%q): %v", c.address, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseRegion(%q) = %+v, want %+v", c.address, got, c.want)
		}
	}
}

func TestParseRegionErrors(t *testing.T) {
	for _, bad := range []string{"", "1A", "A1:ZZZZZZ99999999999", "::"} {
		if _, err := ParseRegion(bad, ""); err == nil {
			t.Errorf("ParseRegion(%q) should fail", bad)
		}
	}
}

func TestRegionRoundTrip(t *testing.T) {
	r, err := ParseRegion("B2:D5", "Data")
	if err != nil {
		t.Fatal(err)
	}
	if r.String() != "B2:D5" {
		t.Fatalf("String = %q", r.String())
	}
	if r.Ref() != "Data!B2:D5" {
		t.Fatalf("Ref = %q", r.Ref())
	}
	single, _ := ParseRegion("C3", "")
	if single.String() != "C3" {
		t.Fatalf("single cell String = %q", single.String())
	}
}

func TestRegionDims(t *testing.T) {
	r, _ := ParseRegion("B2:D5", "")
	if r.Rows() != 4 || r.Cols() != 3 || r.Cells() != 12 {
		t.Fatalf("dims = %d x %d (%d cells)", r.Rows(), r.Cols(), r.Cells())
	}
}

func TestExpandTo(t *testing.T) {
	r, _ := ParseRegion("B2", "")
	got := r.ExpandTo(3, 2)
	if got.String() != "B2:C4" {
		t.Fatalf("expanded = %s, want B2:C4", got.String())
	}
	// Expanding to fewer cells than declared never shrinks.
	wide, _ := ParseRegion("A1:E1", "")
	if got := wide.ExpandTo(1, 2); got.String() != "A1:E1" {
		t.Fatalf("shrank to %s", got.String())
	}
}

func TestShiftAndAnchor(t *testing.T) {
	r, _ := ParseRegion("A1:B3", "S")
	if got := r.ShiftCols(3); got.String() != "D1:E3" {
		t.Fatalf("shifted = %s", got.String())
	}
	if got := r.AnchorAt(5, 10); got.String() != "E10:F12" {
		t.Fatalf("anchored = %s", got.String())
	}
}

func TestOverlaps(t *testing.T) {
	a, _ := ParseRegion("A1:C3", "S1")
	b, _ := ParseRegion("C3:E5", "S1")
	c, _ := ParseRegion("D4:E5", "S1")
	other, _ := ParseRegion("A1:C3", "S2")

	if !a.Overlaps(b) {
		t.Error("corner-touching regions overlap")
	}
	if a.Overlaps(c) {
		t.Error("disjoint regions must not overlap")
	}
	if a.Overlaps(other) {
		t.Error("regions on different sheets never overlap")
	}
}

func TestPayloadDims(t *testing.T) {
	cases := []struct {
		name       string
		a          Action
		rows, cols int
	}{
		{"values", Action{Values: [][]any{{1, 2, 3}, {4}}}, 2, 3},
		{"formulas", Action{Formulas: [][]string{{"=A1", "=B1"}}}, 1, 2},
		{"single formula", Action{Formula: "=SUM(A:A)"}, 1, 1},
		{"none", Action{}, 0, 0},
	}
	for _, c := range cases {
		rows, cols := PayloadDims(c.a)
		if rows != c.rows || cols != c.cols {
			t.Errorf("%s: dims = %d x %d, want %d x %d", c.name, rows, cols, c.rows, c.cols)
		}
	}
}

func TestTargetRegionExpandsToPayload(t *testing.T) {
	a := Action{Type: KindWriteValues, Range: "B2", Values: [][]any{{1, 2}, {3, 4}, {5, 6}}}
	r, err := TargetRegion(a)
	if err != nil {
		t.Fatal(err)
	}
	if r.String() != "B2:C4" {
		t.Fatalf("target = %s, want B2:C4", r.String())
	}
}
