package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gridpilot/gridpilot/pkg/schema"
)

// Workbook is the excelize-backed live document.
type Workbook struct {
	file *excelize.File
	path string
}

// OpenWorkbook opens an existing .xlsx file.
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return &Workbook{file: f, path: path}, nil
}

// NewWorkbook creates an empty workbook that will be saved to path.
func NewWorkbook(path string) *Workbook {
	return &Workbook{file: excelize.NewFile(), path: path}
}

// Save writes the workbook back to its path.
func (w *Workbook) Save() error {
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// File exposes the underlying excelize file for callers that need direct
// access (e.g. the CLI index command).
func (w *Workbook) File() *excelize.File {
	return w.file
}

func (w *Workbook) sheetOf(r schema.Region) string {
	if r.Sheet != "" {
		return r.Sheet
	}
	return w.file.GetSheetName(w.file.GetActiveSheetIndex())
}

func (w *Workbook) checkSheet(name string) error {
	idx, err := w.file.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("sheet %q: %w", name, err)
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownSheet, name)
	}
	return nil
}

// ReadRegion returns the computed values of every cell in the region.
func (w *Workbook) ReadRegion(ctx context.Context, r schema.Region) ([][]string, error) {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return nil, err
	}
	out := make([][]string, r.Rows())
	for row := r.StartRow; row <= r.EndRow; row++ {
		line := make([]string, r.Cols())
		for col := r.StartCol; col <= r.EndCol; col++ {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			v, err := w.file.GetCellValue(sheet, cell)
			if err != nil {
				return nil, fmt.Errorf("read %s!%s: %w", sheet, cell, err)
			}
			line[col-r.StartCol] = v
		}
		out[row-r.StartRow] = line
	}
	return out, nil
}

// ReadFormulas returns the formula text of every cell in the region; plain
// value cells yield "".
func (w *Workbook) ReadFormulas(ctx context.Context, r schema.Region) ([][]string, error) {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return nil, err
	}
	out := make([][]string, r.Rows())
	for row := r.StartRow; row <= r.EndRow; row++ {
		line := make([]string, r.Cols())
		for col := r.StartCol; col <= r.EndCol; col++ {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			v, err := w.file.GetCellFormula(sheet, cell)
			if err != nil {
				return nil, fmt.Errorf("read formula %s!%s: %w", sheet, cell, err)
			}
			line[col-r.StartCol] = v
		}
		out[row-r.StartRow] = line
	}
	return out, nil
}

// WriteValues assigns a values matrix row by row from the region's anchor.
func (w *Workbook) WriteValues(ctx context.Context, r schema.Region, values [][]any) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	for i, row := range values {
		cell, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow+i)
		rowCopy := row
		if err := w.file.SetSheetRow(sheet, cell, &rowCopy); err != nil {
			return fmt.Errorf("write row %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

// WriteFormulas sets one formula per cell. The leading "=" marker is
// stripped before handing the formula to excelize.
func (w *Workbook) WriteFormulas(ctx context.Context, r schema.Region, formulas [][]string) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	for i, row := range formulas {
		for j, formula := range row {
			if formula == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(r.StartCol+j, r.StartRow+i)
			if err := w.file.SetCellFormula(sheet, cell, strings.TrimPrefix(formula, "=")); err != nil {
				return fmt.Errorf("write formula %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

// ClearRegion blanks every cell in the region.
func (w *Workbook) ClearRegion(ctx context.Context, r schema.Region) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	for row := r.StartRow; row <= r.EndRow; row++ {
		for col := r.StartCol; col <= r.EndCol; col++ {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			if err := w.file.SetCellValue(sheet, cell, nil); err != nil {
				return fmt.Errorf("clear %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

// UsedRange computes the bounding box of non-empty cells from the sheet's
// row data.
func (w *Workbook) UsedRange(ctx context.Context, sheet string) (schema.Region, bool, error) {
	if sheet == "" {
		sheet = w.sheetOf(schema.Region{})
	}
	if err := w.checkSheet(sheet); err != nil {
		return schema.Region{}, false, err
	}
	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return schema.Region{}, false, fmt.Errorf("scan sheet %q: %w", sheet, err)
	}
	minRow, maxRow, minCol, maxCol := -1, -1, -1, -1
	for ri, row := range rows {
		for ci, cell := range row {
			if cell == "" {
				continue
			}
			if minRow < 0 || ri < minRow {
				minRow = ri
			}
			if ri > maxRow {
				maxRow = ri
			}
			if minCol < 0 || ci < minCol {
				minCol = ci
			}
			if ci > maxCol {
				maxCol = ci
			}
		}
	}
	if minRow < 0 {
		return schema.Region{Sheet: sheet, StartCol: 1, StartRow: 1, EndCol: 1, EndRow: 1}, false, nil
	}
	return schema.Region{
		Sheet:    sheet,
		StartCol: minCol + 1,
		StartRow: minRow + 1,
		EndCol:   maxCol + 1,
		EndRow:   maxRow + 1,
	}, true, nil
}

// Sheets lists the workbook's sheet names in order.
func (w *Workbook) Sheets(ctx context.Context) ([]string, error) {
	return w.file.GetSheetList(), nil
}

// ActiveSheet returns the active sheet's name.
func (w *Workbook) ActiveSheet(ctx context.Context) (string, error) {
	return w.file.GetSheetName(w.file.GetActiveSheetIndex()), nil
}

// AddSheet creates a new sheet; duplicate names are rejected.
func (w *Workbook) AddSheet(ctx context.Context, name string) error {
	if idx, _ := w.file.GetSheetIndex(name); idx >= 0 {
		return fmt.Errorf("%w: %q", ErrSheetExists, name)
	}
	if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("add sheet %q: %w", name, err)
	}
	return nil
}

func (w *Workbook) DeleteSheet(ctx context.Context, name string) error {
	if err := w.checkSheet(name); err != nil {
		return err
	}
	if err := w.file.DeleteSheet(name); err != nil {
		return fmt.Errorf("delete sheet %q: %w", name, err)
	}
	return nil
}

func (w *Workbook) RenameSheet(ctx context.Context, oldName, newName string) error {
	if err := w.checkSheet(oldName); err != nil {
		return err
	}
	if idx, _ := w.file.GetSheetIndex(newName); idx >= 0 {
		return fmt.Errorf("%w: %q", ErrSheetExists, newName)
	}
	if err := w.file.SetSheetName(oldName, newName); err != nil {
		return fmt.Errorf("rename sheet %q: %w", oldName, err)
	}
	return nil
}

func (w *Workbook) ActivateSheet(ctx context.Context, name string) error {
	idx, err := w.file.GetSheetIndex(name)
	if err != nil || idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownSheet, name)
	}
	w.file.SetActiveSheet(idx)
	return nil
}

func (w *Workbook) InsertRows(ctx context.Context, sheet string, row, count int) error {
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	if err := w.file.InsertRows(sheet, row, count); err != nil {
		return fmt.Errorf("insert rows: %w", err)
	}
	return nil
}

func (w *Workbook) InsertColumns(ctx context.Context, sheet string, col, count int) error {
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return fmt.Errorf("insert columns: %w", err)
	}
	if err := w.file.InsertCols(sheet, name, count); err != nil {
		return fmt.Errorf("insert columns: %w", err)
	}
	return nil
}

func (w *Workbook) DeleteRows(ctx context.Context, sheet string, row, count int) error {
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := w.file.RemoveRow(sheet, row); err != nil {
			return fmt.Errorf("delete row %d: %w", row, err)
		}
	}
	return nil
}

func (w *Workbook) DeleteColumns(ctx context.Context, sheet string, col, count int) error {
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return fmt.Errorf("delete columns: %w", err)
	}
	for i := 0; i < count; i++ {
		if err := w.file.RemoveCol(sheet, name); err != nil {
			return fmt.Errorf("delete column %s: %w", name, err)
		}
	}
	return nil
}

func (w *Workbook) SetColumnWidth(ctx context.Context, r schema.Region, width float64) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	start, _ := excelize.ColumnNumberToName(r.StartCol)
	end, _ := excelize.ColumnNumberToName(r.EndCol)
	if err := w.file.SetColWidth(sheet, start, end, width); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return nil
}

func (w *Workbook) SetRowHeight(ctx context.Context, r schema.Region, height float64) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	for row := r.StartRow; row <= r.EndRow; row++ {
		if err := w.file.SetRowHeight(sheet, row, height); err != nil {
			return fmt.Errorf("set row height: %w", err)
		}
	}
	return nil
}

func (w *Workbook) MergeCells(ctx context.Context, r schema.Region) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	end, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow)
	if err := w.file.MergeCell(sheet, start, end); err != nil {
		return fmt.Errorf("merge cells: %w", err)
	}
	return nil
}

func (w *Workbook) UnmergeCells(ctx context.Context, r schema.Region) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	end, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow)
	if err := w.file.UnmergeCell(sheet, start, end); err != nil {
		return fmt.Errorf("unmerge cells: %w", err)
	}
	return nil
}

// buildStyle maps a FormatConfig to an excelize style ID.
func (w *Workbook) buildStyle(format schema.FormatConfig) (int, error) {
	style := &excelize.Style{}
	if format.Bold || format.Italic || format.FontSize > 0 || format.FontColor != "" {
		style.Font = &excelize.Font{
			Bold:   format.Bold,
			Italic: format.Italic,
			Size:   float64(format.FontSize),
			Color:  format.FontColor,
		}
	}
	if format.FillColor != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{format.FillColor}}
	}
	if format.Align != "" {
		style.Alignment = &excelize.Alignment{Horizontal: format.Align}
	}
	if format.Border {
		border := []excelize.Border{
			{Type: "left", Style: 1, Color: "000000"},
			{Type: "right", Style: 1, Color: "000000"},
			{Type: "top", Style: 1, Color: "000000"},
			{Type: "bottom", Style: 1, Color: "000000"},
		}
		style.Border = border
	}
	if format.NumberFormat != "" {
		numFmt := format.NumberFormat
		style.CustomNumFmt = &numFmt
	}
	return w.file.NewStyle(style)
}

func (w *Workbook) SetFormat(ctx context.Context, r schema.Region, format schema.FormatConfig) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	styleID, err := w.buildStyle(format)
	if err != nil {
		return fmt.Errorf("build style: %w", err)
	}
	start, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	end, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow)
	if err := w.file.SetCellStyle(sheet, start, end, styleID); err != nil {
		return fmt.Errorf("set style: %w", err)
	}
	return nil
}

func (w *Workbook) SetConditionalFormat(ctx context.Context, r schema.Region, format schema.FormatConfig) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	styleID, err := w.buildStyle(format)
	if err != nil {
		return fmt.Errorf("build style: %w", err)
	}
	opts := []excelize.ConditionalFormatOptions{{
		Type:     "cell",
		Criteria: format.Rule,
		Value:    format.RuleValue,
		Format:   &styleID,
	}}
	start, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	end, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow)
	if err := w.file.SetConditionalFormat(sheet, start+":"+end, opts); err != nil {
		return fmt.Errorf("set conditional format: %w", err)
	}
	return nil
}

// FreezePanes freezes rows above and columns left of the region's anchor.
func (w *Workbook) FreezePanes(ctx context.Context, r schema.Region) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	topLeft, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	err := w.file.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      r.StartCol - 1,
		YSplit:      r.StartRow - 1,
		TopLeftCell: topLeft,
		ActivePane:  "bottomRight",
	})
	if err != nil {
		return fmt.Errorf("freeze panes: %w", err)
	}
	return nil
}

func (w *Workbook) GroupRows(ctx context.Context, r schema.Region) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	for row := r.StartRow; row <= r.EndRow; row++ {
		if err := w.file.SetRowOutlineLevel(sheet, row, 1); err != nil {
			return fmt.Errorf("group row %d: %w", row, err)
		}
	}
	return nil
}

func (w *Workbook) GroupColumns(ctx context.Context, r schema.Region) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	for col := r.StartCol; col <= r.EndCol; col++ {
		name, _ := excelize.ColumnNumberToName(col)
		if err := w.file.SetColOutlineLevel(sheet, name, 1); err != nil {
			return fmt.Errorf("group column %s: %w", name, err)
		}
	}
	return nil
}

func (w *Workbook) AddHyperlink(ctx context.Context, r schema.Region, url, display string) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	cell, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	if err := w.file.SetCellHyperLink(sheet, cell, url, "External"); err != nil {
		return fmt.Errorf("add hyperlink: %w", err)
	}
	if display != "" {
		if err := w.file.SetCellValue(sheet, cell, display); err != nil {
			return fmt.Errorf("set hyperlink display: %w", err)
		}
	}
	return nil
}

func (w *Workbook) AddComment(ctx context.Context, r schema.Region, text string) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	cell, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	err := w.file.AddComment(sheet, excelize.Comment{
		Cell:      cell,
		Author:    "gridpilot",
		Paragraph: []excelize.RichTextRun{{Text: text}},
	})
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

func (w *Workbook) ProtectSheet(ctx context.Context, sheet, password string) error {
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	err := w.file.ProtectSheet(sheet, &excelize.SheetProtectionOptions{
		Password:            password,
		SelectLockedCells:   true,
		SelectUnlockedCells: true,
	})
	if err != nil {
		return fmt.Errorf("protect sheet: %w", err)
	}
	return nil
}

func (w *Workbook) UnprotectSheet(ctx context.Context, sheet string) error {
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	if err := w.file.UnprotectSheet(sheet); err != nil {
		return fmt.Errorf("unprotect sheet: %w", err)
	}
	return nil
}

func (w *Workbook) AutoFilter(ctx context.Context, r schema.Region) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	end, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow)
	if err := w.file.AutoFilter(sheet, start+":"+end, nil); err != nil {
		return fmt.Errorf("auto filter: %w", err)
	}
	return nil
}

func (w *Workbook) AddTable(ctx context.Context, r schema.Region, cfg schema.TableConfig) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	end, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow)
	style := cfg.StyleName
	if style == "" {
		style = "TableStyleMedium9"
	}
	err := w.file.AddTable(sheet, &excelize.Table{
		Range:     start + ":" + end,
		Name:      cfg.Name,
		StyleName: style,
	})
	if err != nil {
		return fmt.Errorf("add table: %w", err)
	}
	return nil
}

var chartTypes = map[string]excelize.ChartType{
	"line":     excelize.Line,
	"bar":      excelize.Bar,
	"column":   excelize.Col,
	"pie":      excelize.Pie,
	"doughnut": excelize.Doughnut,
	"scatter":  excelize.Scatter,
	"area":     excelize.Area,
	"radar":    excelize.Radar,
}

// AddChart builds a chart anchored at the region's start cell. The first
// column of the data range supplies categories; each remaining column is a
// series.
func (w *Workbook) AddChart(ctx context.Context, r schema.Region, cfg schema.ChartConfig) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	chartType, ok := chartTypes[strings.ToLower(cfg.ChartType)]
	if !ok {
		return fmt.Errorf("unsupported chart type %q", cfg.ChartType)
	}
	data, err := schema.ParseRegion(cfg.DataRange, sheet)
	if err != nil {
		return fmt.Errorf("chart data range: %w", err)
	}
	if data.Sheet == "" {
		data.Sheet = sheet
	}

	catStart, _ := excelize.CoordinatesToCellName(data.StartCol, data.StartRow)
	catEnd, _ := excelize.CoordinatesToCellName(data.StartCol, data.EndRow)
	categories := fmt.Sprintf("%s!%s:%s", data.Sheet, catStart, catEnd)

	var series []excelize.ChartSeries
	for col := data.StartCol + 1; col <= data.EndCol; col++ {
		valStart, _ := excelize.CoordinatesToCellName(col, data.StartRow)
		valEnd, _ := excelize.CoordinatesToCellName(col, data.EndRow)
		series = append(series, excelize.ChartSeries{
			Categories: categories,
			Values:     fmt.Sprintf("%s!%s:%s", data.Sheet, valStart, valEnd),
		})
	}
	if len(series) == 0 {
		series = []excelize.ChartSeries{{Values: categories}}
	}

	chart := &excelize.Chart{Type: chartType, Series: series}
	if cfg.Title != "" {
		chart.Title = []excelize.RichTextRun{{Text: cfg.Title}}
	}
	if cfg.XAxisTitle != "" {
		chart.XAxis = excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: cfg.XAxisTitle}}}
	}
	if cfg.YAxisTitle != "" {
		chart.YAxis = excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: cfg.YAxisTitle}}}
	}

	anchor, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	if err := w.file.AddChart(sheet, anchor, chart); err != nil {
		return fmt.Errorf("add chart: %w", err)
	}
	return nil
}

// AddPivotSummary creates a native pivot table over the source range,
// anchored at the action's region.
func (w *Workbook) AddPivotSummary(ctx context.Context, r schema.Region, cfg schema.PivotConfig) error {
	sheet := w.sheetOf(r)
	if err := w.checkSheet(sheet); err != nil {
		return err
	}
	source, err := schema.ParseRegion(cfg.SourceRange, sheet)
	if err != nil {
		return fmt.Errorf("pivot source range: %w", err)
	}
	if source.Sheet == "" {
		source.Sheet = sheet
	}

	toFields := func(names []string) []excelize.PivotTableField {
		fields := make([]excelize.PivotTableField, 0, len(names))
		for _, n := range names {
			fields = append(fields, excelize.PivotTableField{Data: n})
		}
		return fields
	}
	dataFields := make([]excelize.PivotTableField, 0, len(cfg.Values))
	for _, n := range cfg.Values {
		dataFields = append(dataFields, excelize.PivotTableField{Data: n, Subtotal: "Sum"})
	}

	// Reserve enough room below the anchor for the summary body.
	target := r.ExpandTo(len(cfg.Rows)+18, len(cfg.Columns)+len(cfg.Values)+2)
	err = w.file.AddPivotTable(&excelize.PivotTableOptions{
		DataRange:       source.Ref(),
		PivotTableRange: target.Ref(),
		Rows:            toFields(cfg.Rows),
		Columns:         toFields(cfg.Columns),
		Data:            dataFields,
		Filter:          toFields(cfg.Filter),
		RowGrandTotals:  true,
		ColGrandTotals:  true,
	})
	if err != nil {
		return fmt.Errorf("add pivot summary: %w", err)
	}
	return nil
}
