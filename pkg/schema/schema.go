// Package schema defines the Go struct types for the structured action
// protocol and provides strict JSON parsing.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Action kinds. Dispatch is a closed switch over these values; anything
// else is reported as an unknown action at execution time.
const (
	KindWriteValues         = "write_values"
	KindWriteFormula        = "write_formula"
	KindAppendRows          = "append_rows"
	KindClearRange          = "clear_range"
	KindCopyRange           = "copy_range"
	KindSortRange           = "sort_range"
	KindFilterRange         = "filter_range"
	KindAggregateByCategory = "aggregate_by_category"
	KindCreateTable         = "create_table"
	KindCreatePivotSummary  = "create_pivot_summary"
	KindCreateChart         = "create_chart"
	KindAddSheet            = "add_sheet"
	KindDeleteSheet         = "delete_sheet"
	KindRenameSheet         = "rename_sheet"
	KindActivateSheet       = "activate_sheet"
	KindInsertRows          = "insert_rows"
	KindInsertColumns       = "insert_columns"
	KindDeleteRows          = "delete_rows"
	KindDeleteColumns       = "delete_columns"
	KindResizeColumns       = "resize_columns"
	KindResizeRows          = "resize_rows"
	KindMergeCells          = "merge_cells"
	KindUnmergeCells        = "unmerge_cells"
	KindFormatCells         = "format_cells"
	KindFormatNumber        = "format_number"
	KindConditionalFormat   = "conditional_format"
	KindFreezePanes         = "freeze_panes"
	KindGroupRows           = "group_rows"
	KindGroupColumns        = "group_columns"
	KindAddHyperlink        = "add_hyperlink"
	KindAddComment          = "add_comment"
	KindProtectSheet        = "protect_sheet"
	KindUnprotectSheet      = "unprotect_sheet"
	KindFindReplace         = "find_replace"
)

// Kinds lists every known action kind, in schema order.
var Kinds = []string{
	KindWriteValues, KindWriteFormula, KindAppendRows, KindClearRange,
	KindCopyRange, KindSortRange, KindFilterRange, KindAggregateByCategory,
	KindCreateTable, KindCreatePivotSummary, KindCreateChart, KindAddSheet,
	KindDeleteSheet, KindRenameSheet, KindActivateSheet, KindInsertRows,
	KindInsertColumns, KindDeleteRows, KindDeleteColumns, KindResizeColumns,
	KindResizeRows, KindMergeCells, KindUnmergeCells, KindFormatCells,
	KindFormatNumber, KindConditionalFormat, KindFreezePanes, KindGroupRows,
	KindGroupColumns, KindAddHyperlink, KindAddComment, KindProtectSheet,
	KindUnprotectSheet, KindFindReplace,
}

// KnownKind reports whether kind is a member of the closed action set.
func KnownKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// StructuredResponse is the envelope extracted from a raw agent response.
// Message is always present; Actions may be nil for a pure conversational
// reply. Thinking carries optional chain-of-thought text and is never
// executed.
type StructuredResponse struct {
	Message  string   `json:"message" jsonschema:"required"`
	Actions  []Action `json:"actions,omitempty"`
	Thinking string   `json:"thinking,omitempty"`
}

// Action is a single typed mutation request against the document.
// Every action carries exactly one target region (Range, optionally
// qualified by Sheet); kind-specific payloads live in pointer configs that
// are only valid for their declared Type.
type Action struct {
	Type           string `json:"type"                     jsonschema:"required"`
	Range          string `json:"range,omitempty"`
	Sheet          string `json:"sheet,omitempty"`
	Description    string `json:"description,omitempty"`
	AllowOverwrite bool   `json:"allowOverwrite,omitempty"`

	Values   [][]any    `json:"values,omitempty"`
	Formulas [][]string `json:"formulas,omitempty"`
	Formula  string     `json:"formula,omitempty"`

	Aggregate *AggregateConfig   `json:"aggregate,omitempty"`
	Table     *TableConfig       `json:"table,omitempty"`
	Pivot     *PivotConfig       `json:"pivot,omitempty"`
	Chart     *ChartConfig       `json:"chart,omitempty"`
	Format    *FormatConfig      `json:"format,omitempty"`
	Sort      *SortConfig        `json:"sort,omitempty"`
	Find      *FindReplaceConfig `json:"find,omitempty"`
	Copy      *CopyConfig        `json:"copy,omitempty"`
	Link      *HyperlinkConfig   `json:"link,omitempty"`
	Comment   string             `json:"comment,omitempty"`

	// Sheet lifecycle / structural parameters.
	SheetName string  `json:"sheetName,omitempty"`
	NewName   string  `json:"newName,omitempty"`
	Count     int     `json:"count,omitempty"`
	Size      float64 `json:"size,omitempty"`
	Password  string  `json:"password,omitempty"`
}

// AggregateConfig drives aggregate_by_category: enumerate the distinct
// values of CategoryColumn, aggregate ValueColumn per category with Op,
// optionally restricted to rows where FilterColumn == FilterValue.
// Results are written sorted by the aggregate value descending.
type AggregateConfig struct {
	CategoryColumn string `json:"categoryColumn" jsonschema:"required"`
	ValueColumn    string `json:"valueColumn,omitempty"`
	Op             string `json:"op"             jsonschema:"required,enum=count,enum=sum,enum=average"`
	FilterColumn   string `json:"filterColumn,omitempty"`
	FilterValue    string `json:"filterValue,omitempty"`
	HasHeader      bool   `json:"hasHeader,omitempty"`
}

// TableConfig configures create_table.
type TableConfig struct {
	Name      string `json:"name,omitempty"`
	StyleName string `json:"styleName,omitempty"`
}

// PivotConfig configures create_pivot_summary. SourceRange names the data
// region the summary is built from; the action's own range is the anchor
// where the summary lands.
type PivotConfig struct {
	SourceRange string   `json:"sourceRange" jsonschema:"required"`
	Rows        []string `json:"rows,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Values      []string `json:"values,omitempty"`
	Filter      []string `json:"filter,omitempty"`
}

// ChartConfig configures create_chart.
type ChartConfig struct {
	ChartType  string   `json:"chartType"  jsonschema:"required"`
	DataRange  string   `json:"dataRange"  jsonschema:"required"`
	Title      string   `json:"title,omitempty"`
	Series     []string `json:"series,omitempty"`
	XAxisTitle string   `json:"xAxisTitle,omitempty"`
	YAxisTitle string   `json:"yAxisTitle,omitempty"`
}

// FormatConfig configures format_cells / format_number / conditional_format.
type FormatConfig struct {
	Bold         bool   `json:"bold,omitempty"`
	Italic       bool   `json:"italic,omitempty"`
	FontSize     int    `json:"fontSize,omitempty"`
	FontColor    string `json:"fontColor,omitempty"`
	FillColor    string `json:"fillColor,omitempty"`
	NumberFormat string `json:"numberFormat,omitempty"`
	Align        string `json:"align,omitempty"`
	Border       bool   `json:"border,omitempty"`
	Rule         string `json:"rule,omitempty"`
	RuleValue    string `json:"ruleValue,omitempty"`
}

// SortConfig configures sort_range.
type SortConfig struct {
	Column     string `json:"column" jsonschema:"required"`
	Descending bool   `json:"descending,omitempty"`
	HasHeader  bool   `json:"hasHeader,omitempty"`
}

// FindReplaceConfig configures find_replace.
type FindReplaceConfig struct {
	Find      string `json:"find"    jsonschema:"required"`
	Replace   string `json:"replace"`
	MatchCase bool   `json:"matchCase,omitempty"`
}

// CopyConfig configures copy_range; the action range is the source and
// Destination the target anchor cell.
type CopyConfig struct {
	Destination string `json:"destination" jsonschema:"required"`
}

// HyperlinkConfig configures add_hyperlink.
type HyperlinkConfig struct {
	URL     string `json:"url" jsonschema:"required"`
	Display string `json:"display,omitempty"`
}

// writeKinds are the kinds whose output lands cell content and therefore
// pass through the collision guard and post-write validation.
var writeKinds = map[string]bool{
	KindWriteValues:         true,
	KindWriteFormula:        true,
	KindAppendRows:          true,
	KindAggregateByCategory: true,
}

// IsWriteKind reports whether the action writes values or formulas into
// its target region.
func IsWriteKind(kind string) bool {
	return writeKinds[kind]
}

// IsFormulaKind reports whether the action's output is formula-driven,
// which enables the error-sentinel validation rules.
func IsFormulaKind(kind string) bool {
	return kind == KindWriteFormula || kind == KindAggregateByCategory
}

// Load parses a StructuredResponse from an io.Reader with strict
// unknown-field rejection.
func Load(r io.Reader) (*StructuredResponse, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var sr StructuredResponse
	if err := dec.Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &sr, nil
}

// LoadFile reads and strictly parses a StructuredResponse JSON file.
func LoadFile(path string) (*StructuredResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open response: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// LoadActionsFile reads either a StructuredResponse envelope or a bare
// JSON array of actions. The CLI exec command accepts both.
func LoadActionsFile(path string) ([]Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open actions: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var actions []Action
		if err := json.Unmarshal(trimmed, &actions); err != nil {
			return nil, fmt.Errorf("decode actions: %w", err)
		}
		return actions, nil
	}
	sr, err := Load(bytes.NewReader(trimmed))
	if err != nil {
		return nil, err
	}
	return sr.Actions, nil
}
