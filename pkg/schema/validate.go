package schema

import (
	"encoding/json"
	"fmt"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "actions[2].range")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any entry has error severity (warnings alone
// do not fail validation).
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile performs the full validation pipeline on a response file.
// Phase 1: Structural (strict JSON decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*StructuredResponse, []*ValidationError) {
	sr, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return sr, ValidateResponse(sr)
}

// ValidateResponse runs semantic and domain validation on an already-parsed
// envelope. The parser guarantees Message is present; everything else is
// checked here.
func ValidateResponse(sr *StructuredResponse) []*ValidationError {
	var all []*ValidationError
	all = append(all, validateSemantic(sr)...)
	all = append(all, ValidateDomain(sr.Actions)...)
	return all
}

// validateSemantic validates the envelope against the generated JSON Schema.
func validateSemantic(sr *StructuredResponse) []*ValidationError {
	data, err := json.Marshal(sr)
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("marshal for schema validation: %v", err),
			Severity: "error",
		}}
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("generate schema: %v", err),
			Severity: "error",
		}}
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("unmarshal schema: %v", err),
			Severity: "error",
		}}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("actions-v1.json", schemaDoc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("add schema resource: %v", err),
			Severity: "error",
		}}
	}
	sch, err := c.Compile("actions-v1.json")
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("compile schema: %v", err),
			Severity: "error",
		}}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("unmarshal document: %v", err),
			Severity: "error",
		}}
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     joinLocation(cause.InstanceLocation),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

func joinLocation(loc []string) string {
	out := ""
	for _, seg := range loc {
		out += "/" + seg
	}
	return out
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// sheetKinds operate on a whole sheet and need no range.
var sheetKinds = map[string]bool{
	KindAddSheet:       true,
	KindDeleteSheet:    true,
	KindRenameSheet:    true,
	KindActivateSheet:  true,
	KindProtectSheet:   true,
	KindUnprotectSheet: true,
	KindFindReplace:    true,
}

// ValidateDomain performs Phase 3 domain-level validation over an action
// list. Returns a slice of errors; empty means valid.
func ValidateDomain(actions []Action) []*ValidationError {
	var errs []*ValidationError

	for i, a := range actions {
		path := fmt.Sprintf("actions[%d]", i)

		if !KnownKind(a.Type) {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path + ".type",
				Message:  fmt.Sprintf("unknown action type %q", a.Type),
				Severity: "error",
			})
			continue
		}

		// Region requirement and parseability.
		if sheetKinds[a.Type] {
			if a.SheetName == "" && a.Sheet == "" && a.Type != KindFindReplace {
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     path + ".sheetName",
					Message:  fmt.Sprintf("%s requires 'sheetName'", a.Type),
					Severity: "error",
				})
			}
		} else if a.Range == "" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path + ".range",
				Message:  fmt.Sprintf("%s requires 'range'", a.Type),
				Severity: "error",
			})
		} else if _, err := ParseRegion(a.Range, a.Sheet); err != nil {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     path + ".range",
				Message:  err.Error(),
				Severity: "error",
			})
		}

		errs = append(errs, validateKindPayload(path, a)...)
	}

	return errs
}

// validateKindPayload checks kind-specific payload requirements.
func validateKindPayload(path string, a Action) []*ValidationError {
	var errs []*ValidationError
	requireErr := func(field, msg string) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path + "." + field,
			Message:  msg,
			Severity: "error",
		})
	}

	switch a.Type {
	case KindWriteValues, KindAppendRows:
		if len(a.Values) == 0 {
			requireErr("values", fmt.Sprintf("%s requires a non-empty 'values' matrix", a.Type))
		} else if err := checkRectangular(a.Values); err != nil {
			requireErr("values", err.Error())
		}
	case KindWriteFormula:
		if a.Formula == "" && len(a.Formulas) == 0 {
			requireErr("formula", "write_formula requires 'formula' or a 'formulas' matrix")
		}
	case KindAggregateByCategory:
		if a.Aggregate == nil {
			requireErr("aggregate", "aggregate_by_category requires 'aggregate' configuration")
		} else {
			switch a.Aggregate.Op {
			case "count":
			case "sum", "average":
				if a.Aggregate.ValueColumn == "" {
					requireErr("aggregate.valueColumn", fmt.Sprintf("op %q requires 'valueColumn'", a.Aggregate.Op))
				}
			default:
				requireErr("aggregate.op", fmt.Sprintf("invalid op %q: must be count, sum, or average", a.Aggregate.Op))
			}
			if a.Aggregate.CategoryColumn == "" {
				requireErr("aggregate.categoryColumn", "aggregate requires 'categoryColumn'")
			}
			if (a.Aggregate.FilterColumn == "") != (a.Aggregate.FilterValue == "") {
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     path + ".aggregate.filterColumn",
					Message:  "filterColumn and filterValue must be set together",
					Severity: "warning",
				})
			}
		}
	case KindCreatePivotSummary:
		if a.Pivot == nil {
			requireErr("pivot", "create_pivot_summary requires 'pivot' configuration")
		} else if a.Pivot.SourceRange == "" {
			requireErr("pivot.sourceRange", "pivot requires 'sourceRange'")
		}
	case KindCreateChart:
		if a.Chart == nil {
			requireErr("chart", "create_chart requires 'chart' configuration")
		} else {
			if a.Chart.ChartType == "" {
				requireErr("chart.chartType", "chart requires 'chartType'")
			}
			if a.Chart.DataRange == "" {
				requireErr("chart.dataRange", "chart requires 'dataRange'")
			}
		}
	case KindSortRange:
		if a.Sort == nil || a.Sort.Column == "" {
			requireErr("sort", "sort_range requires 'sort.column'")
		}
	case KindCopyRange:
		if a.Copy == nil || a.Copy.Destination == "" {
			requireErr("copy", "copy_range requires 'copy.destination'")
		}
	case KindFindReplace:
		if a.Find == nil || a.Find.Find == "" {
			requireErr("find", "find_replace requires 'find.find'")
		}
	case KindAddHyperlink:
		if a.Link == nil || a.Link.URL == "" {
			requireErr("link", "add_hyperlink requires 'link.url'")
		}
	case KindAddComment:
		if a.Comment == "" {
			requireErr("comment", "add_comment requires 'comment' text")
		}
	case KindRenameSheet:
		if a.NewName == "" {
			requireErr("newName", "rename_sheet requires 'newName'")
		}
	case KindInsertRows, KindInsertColumns, KindDeleteRows, KindDeleteColumns:
		if a.Count < 0 {
			requireErr("count", "count must not be negative")
		}
	case KindFormatCells, KindFormatNumber, KindConditionalFormat:
		if a.Format == nil {
			requireErr("format", fmt.Sprintf("%s requires 'format' configuration", a.Type))
		} else if a.Type == KindFormatNumber && a.Format.NumberFormat == "" {
			requireErr("format.numberFormat", "format_number requires 'format.numberFormat'")
		} else if a.Type == KindConditionalFormat && a.Format.Rule == "" {
			requireErr("format.rule", "conditional_format requires 'format.rule'")
		}
	}

	return errs
}

// checkRectangular verifies a values matrix has consistent row widths.
// Ragged rows are allowed only when shorter than the widest row (they are
// padded at write time); zero-width rows are rejected.
func checkRectangular(m [][]any) error {
	for i, row := range m {
		if len(row) == 0 {
			return fmt.Errorf("values row %d is empty", i)
		}
	}
	return nil
}
