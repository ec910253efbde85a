package schema

import (
	"strings"
	"testing"
)

func errorPaths(errs []*ValidationError) []string {
	var out []string
	for _, e := range errs {
		if e.Severity == "error" {
			out = append(out, e.Path)
		}
	}
	return out
}

func TestValidateDomainUnknownKind(t *testing.T) {
	errs := ValidateDomain([]Action{{Type: "teleport", Range: "A1"}})
	if !HasErrors(errs) {
		t.Fatal("unknown kind must error")
	}
	if errs[0].Path != "actions[0].type" {
		t.Fatalf("path = %q", errs[0].Path)
	}
}

func TestValidateDomainMissingRange(t *testing.T) {
	errs := ValidateDomain([]Action{{Type: KindWriteValues, Values: [][]any{{1}}}})
	if !HasErrors(errs) {
		t.Fatal("write without range must error")
	}
}

func TestValidateDomainBadRange(t *testing.T) {
	errs := ValidateDomain([]Action{{Type: KindClearRange, Range: "!!bogus"}})
	if !HasErrors(errs) {
		t.Fatal("unparseable range must error")
	}
}

func TestValidateDomainSheetKindsNeedNoRange(t *testing.T) {
	errs := ValidateDomain([]Action{{Type: KindAddSheet, SheetName: "Report"}})
	if HasErrors(errs) {
		t.Fatalf("add_sheet with sheetName should pass: %+v", errs)
	}
}

func TestValidateDomainSheetKindMissingName(t *testing.T) {
	errs := ValidateDomain([]Action{{Type: KindDeleteSheet}})
	if !HasErrors(errs) {
		t.Fatal("delete_sheet without sheetName must error")
	}
}

func TestValidateDomainAggregateRules(t *testing.T) {
	cases := []struct {
		name string
		cfg  *AggregateConfig
		ok   bool
	}{
		{"count without valueColumn", &AggregateConfig{CategoryColumn: "A", Op: "count"}, true},
		{"sum without valueColumn", &AggregateConfig{CategoryColumn: "A", Op: "sum"}, false},
		{"sum with valueColumn", &AggregateConfig{CategoryColumn: "A", ValueColumn: "C", Op: "sum"}, true},
		{"bad op", &AggregateConfig{CategoryColumn: "A", Op: "median"}, false},
		{"missing category", &AggregateConfig{Op: "count"}, false},
		{"nil config", nil, false},
	}
	for _, c := range cases {
		errs := ValidateDomain([]Action{{Type: KindAggregateByCategory, Range: "E1", Aggregate: c.cfg}})
		if got := !HasErrors(errs); got != c.ok {
			t.Errorf("%s: valid = %v, want %v (%v)", c.name, got, c.ok, errorPaths(errs))
		}
	}
}

func TestValidateDomainFilterPairWarning(t *testing.T) {
	errs := ValidateDomain([]Action{{
		Type:  KindAggregateByCategory,
		Range: "E1",
		Aggregate: &AggregateConfig{
			CategoryColumn: "A", Op: "count", FilterColumn: "B",
		},
	}})
	if HasErrors(errs) {
		t.Fatalf("half-set filter is a warning, not an error: %+v", errs)
	}
	found := false
	for _, e := range errs {
		if e.Severity == "warning" && strings.Contains(e.Message, "filterColumn") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a filter pairing warning")
	}
}

func TestValidateDomainPayloadRequirements(t *testing.T) {
	cases := []struct {
		name string
		a    Action
		ok   bool
	}{
		{"values missing", Action{Type: KindWriteValues, Range: "A1"}, false},
		{"values empty row", Action{Type: KindWriteValues, Range: "A1", Values: [][]any{{}}}, false},
		{"formula missing", Action{Type: KindWriteFormula, Range: "A1"}, false},
		{"formula ok", Action{Type: KindWriteFormula, Range: "A1", Formula: "=SUM(B:B)"}, true},
		{"chart missing config", Action{Type: KindCreateChart, Range: "E1"}, false},
		{"chart ok", Action{Type: KindCreateChart, Range: "E1", Chart: &ChartConfig{ChartType: "bar", DataRange: "A1:B5"}}, true},
		{"pivot missing source", Action{Type: KindCreatePivotSummary, Range: "E1", Pivot: &PivotConfig{}}, false},
		{"sort missing column", Action{Type: KindSortRange, Range: "A1:B5", Sort: &SortConfig{}}, false},
		{"copy missing destination", Action{Type: KindCopyRange, Range: "A1:B2", Copy: &CopyConfig{}}, false},
		{"find missing needle", Action{Type: KindFindReplace, Find: &FindReplaceConfig{}}, false},
		{"link missing url", Action{Type: KindAddHyperlink, Range: "A1", Link: &HyperlinkConfig{}}, false},
		{"comment missing text", Action{Type: KindAddComment, Range: "A1"}, false},
		{"rename missing newName", Action{Type: KindRenameSheet, SheetName: "S"}, false},
		{"negative count", Action{Type: KindInsertRows, Range: "A2", Count: -1}, false},
		{"format_number missing format", Action{Type: KindFormatNumber, Range: "A1", Format: &FormatConfig{}}, false},
		{"conditional missing rule", Action{Type: KindConditionalFormat, Range: "A1", Format: &FormatConfig{FillColor: "FF0000"}}, false},
		{"conditional ok", Action{Type: KindConditionalFormat, Range: "A1", Format: &FormatConfig{Rule: ">", RuleValue: "100"}}, true},
	}
	for _, c := range cases {
		errs := ValidateDomain([]Action{c.a})
		if got := !HasErrors(errs); got != c.ok {
			t.Errorf("%s: valid = %v, want %v (%v)", c.name, got, c.ok, errorPaths(errs))
		}
	}
}

func TestValidateResponseSemanticRequiresMessage(t *testing.T) {
	errs := ValidateResponse(&StructuredResponse{Message: "ok"})
	if HasErrors(errs) {
		t.Fatalf("minimal envelope should pass: %+v", errs)
	}
}

func TestValidateFileStructuralFailure(t *testing.T) {
	_, errs := ValidateFile("testdata/does-not-exist.json")
	if !HasErrors(errs) {
		t.Fatal("missing file must yield a structural error")
	}
	if errs[0].Phase != "structural" {
		t.Fatalf("phase = %q", errs[0].Phase)
	}
}
