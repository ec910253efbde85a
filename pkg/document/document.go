// Package document defines the document-model collaborator interface and
// its implementations: an excelize-backed workbook (the live document) and
// an in-memory document used by dry-run mode and tests.
package document

import (
	"context"
	"errors"

	"github.com/gridpilot/gridpilot/pkg/schema"
)

var (
	// ErrUnknownSheet is returned when an operation names a sheet that
	// does not exist in the document.
	ErrUnknownSheet = errors.New("unknown sheet")
	// ErrSheetExists is returned when creating a sheet whose name is
	// already taken.
	ErrSheetExists = errors.New("sheet already exists")
)

// Document abstracts the host spreadsheet. All operations are
// request/response and may fail with a descriptive error; none panic.
// Implementations: Workbook (excelize), Memory (dry-run and tests).
type Document interface {
	// Region reads. ReadRegion returns computed cell values; ReadFormulas
	// returns the formula text per cell ("" for plain values).
	ReadRegion(ctx context.Context, r schema.Region) ([][]string, error)
	ReadFormulas(ctx context.Context, r schema.Region) ([][]string, error)

	// Region writes. WriteFormulas accepts formulas with or without the
	// leading "=" marker.
	WriteValues(ctx context.Context, r schema.Region, values [][]any) error
	WriteFormulas(ctx context.Context, r schema.Region, formulas [][]string) error
	ClearRegion(ctx context.Context, r schema.Region) error

	// UsedRange returns the bounding region of non-empty cells on a sheet.
	// An empty sheet yields a zero-cell region anchored at A1 with ok=false.
	UsedRange(ctx context.Context, sheet string) (schema.Region, bool, error)

	// Sheet lifecycle.
	Sheets(ctx context.Context) ([]string, error)
	ActiveSheet(ctx context.Context) (string, error)
	AddSheet(ctx context.Context, name string) error
	DeleteSheet(ctx context.Context, name string) error
	RenameSheet(ctx context.Context, oldName, newName string) error
	ActivateSheet(ctx context.Context, name string) error

	// Row/column structure.
	InsertRows(ctx context.Context, sheet string, row, count int) error
	InsertColumns(ctx context.Context, sheet string, col, count int) error
	DeleteRows(ctx context.Context, sheet string, row, count int) error
	DeleteColumns(ctx context.Context, sheet string, col, count int) error
	SetColumnWidth(ctx context.Context, r schema.Region, width float64) error
	SetRowHeight(ctx context.Context, r schema.Region, height float64) error

	// Presentation.
	MergeCells(ctx context.Context, r schema.Region) error
	UnmergeCells(ctx context.Context, r schema.Region) error
	SetFormat(ctx context.Context, r schema.Region, format schema.FormatConfig) error
	SetConditionalFormat(ctx context.Context, r schema.Region, format schema.FormatConfig) error
	FreezePanes(ctx context.Context, r schema.Region) error
	GroupRows(ctx context.Context, r schema.Region) error
	GroupColumns(ctx context.Context, r schema.Region) error
	AddHyperlink(ctx context.Context, r schema.Region, url, display string) error
	AddComment(ctx context.Context, r schema.Region, text string) error
	ProtectSheet(ctx context.Context, sheet, password string) error
	UnprotectSheet(ctx context.Context, sheet string) error

	// Structured constructs.
	AutoFilter(ctx context.Context, r schema.Region) error
	AddTable(ctx context.Context, r schema.Region, cfg schema.TableConfig) error
	AddChart(ctx context.Context, r schema.Region, cfg schema.ChartConfig) error
	AddPivotSummary(ctx context.Context, r schema.Region, cfg schema.PivotConfig) error
}

// ResolveSheet fills an empty region sheet with the document's active
// sheet so downstream reads and overlap checks compare like with like.
func ResolveSheet(ctx context.Context, doc Document, r schema.Region) (schema.Region, error) {
	if r.Sheet != "" {
		return r, nil
	}
	active, err := doc.ActiveSheet(ctx)
	if err != nil {
		return r, err
	}
	r.Sheet = active
	return r, nil
}

// RegionEmpty reports whether every cell of the region is empty.
func RegionEmpty(ctx context.Context, doc Document, r schema.Region) (bool, error) {
	values, err := doc.ReadRegion(ctx, r)
	if err != nil {
		return false, err
	}
	for _, row := range values {
		for _, cell := range row {
			if cell != "" {
				return false, nil
			}
		}
	}
	return true, nil
}
