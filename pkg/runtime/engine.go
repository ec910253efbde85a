package runtime

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gridpilot/gridpilot/pkg/document"
	"github.com/gridpilot/gridpilot/pkg/guard"
	"github.com/gridpilot/gridpilot/pkg/index"
	"github.com/gridpilot/gridpilot/pkg/schema"
	"github.com/gridpilot/gridpilot/pkg/validator"
)

// DefaultActionTimeout bounds formula-driven actions, whose read-back can
// trigger recalculation over large regions.
const DefaultActionTimeout = 30 * time.Second

// Engine executes action batches sequentially against a document.
// A failed action does not halt the batch; its result records the error and
// execution continues, so one bad action cannot strand the rest of a turn.
// Not safe for concurrent use.
type Engine struct {
	Doc     document.Document
	Indexer *index.Indexer
	Trace   *TraceWriter
	Timeout time.Duration

	// lastPlan holds the guard decision of the action being dispatched.
	lastPlan *guard.Placement
}

// NewEngine creates an engine with the default action timeout.
func NewEngine(doc document.Document) *Engine {
	return &Engine{Doc: doc, Indexer: index.New(), Timeout: DefaultActionTimeout}
}

// ExecuteBatch runs every action in order and returns the per-action results
// with a summary. Batch-level errors are reserved for infrastructure
// failures (e.g. the trace file); action failures land in the results.
func (e *Engine) ExecuteBatch(ctx context.Context, turnID string, actions []schema.Action) (*BatchResult, error) {
	batch := &BatchResult{TurnID: turnID}
	for i, a := range actions {
		result := e.executeOne(ctx, turnID, i, a)
		batch.Results = append(batch.Results, result)
		batch.Summary.Total++
		switch {
		case !result.Success:
			batch.Summary.Failed++
		case result.ValidationStatus == validator.StatusFailed:
			batch.Summary.Succeeded++
			batch.Summary.ValidationFailed++
		default:
			batch.Summary.Succeeded++
		}
		if result.Declared != "" {
			batch.Summary.Relocated++
		}
		if e.Trace != nil {
			if err := e.Trace.Write(result); err != nil {
				return batch, err
			}
		}
	}
	return batch, nil
}

func (e *Engine) executeOne(ctx context.Context, turnID string, i int, a schema.Action) *ActionResult {
	result := &ActionResult{
		TurnID:    turnID,
		Index:     i,
		Type:      a.Type,
		StartedAt: time.Now(),
	}
	defer func() {
		result.DurationMs = time.Since(result.StartedAt).Milliseconds()
	}()

	if schema.IsFormulaKind(a.Type) {
		timeout := e.Timeout
		if timeout <= 0 {
			timeout = DefaultActionTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if !schema.KnownKind(a.Type) {
		result.Error = fmt.Sprintf("unknown action type %q", a.Type)
		return result
	}

	e.lastPlan = nil
	target, message, err := e.dispatch(ctx, a)
	if e.lastPlan != nil && e.lastPlan.Relocated {
		result.Declared = e.lastPlan.Original.Ref()
	}
	if err != nil {
		result.Error = err.Error()
		if target.StartCol > 0 {
			result.Target = target.Ref()
		}
		return result
	}
	result.Success = true
	result.Message = message
	if target.StartCol > 0 {
		result.Target = target.Ref()
	}

	if schema.IsWriteKind(a.Type) {
		outcome, verr := validator.Check(ctx, e.Doc, a, target)
		if verr != nil {
			result.ValidationStatus = validator.StatusFailed
			result.ValidationNote = verr.Error()
			return result
		}
		result.Validated = true
		result.ValidationStatus = outcome.Status
		result.ValidationNote = outcome.Message
		result.outcome = outcome
	}
	return result
}

// plan resolves the effective target region through the collision guard and
// remembers the decision so executeOne can record a relocation.
func (e *Engine) plan(ctx context.Context, a schema.Action) (guard.Placement, error) {
	p, err := guard.Plan(ctx, e.Doc, a)
	if err == nil {
		e.lastPlan = &p
	}
	return p, err
}

// resolveRegion parses and sheet-qualifies an action's range without guard
// involvement, for kinds that never relocate.
func (e *Engine) resolveRegion(ctx context.Context, a schema.Action) (schema.Region, error) {
	r, err := schema.TargetRegion(a)
	if err != nil {
		return schema.Region{}, err
	}
	return document.ResolveSheet(ctx, e.Doc, r)
}

// dispatch is the closed switch over action kinds. It returns the effective
// target region (zero for sheet-level kinds) and a human-readable summary.
func (e *Engine) dispatch(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	switch a.Type {
	case schema.KindWriteValues:
		return e.execWriteValues(ctx, a)
	case schema.KindWriteFormula:
		return e.execWriteFormula(ctx, a)
	case schema.KindAppendRows:
		return e.execAppendRows(ctx, a)
	case schema.KindAggregateByCategory:
		return e.execAggregate(ctx, a)
	case schema.KindClearRange:
		return e.execSimpleRegion(ctx, a, e.Doc.ClearRegion, "cleared")
	case schema.KindCopyRange:
		return e.execCopyRange(ctx, a)
	case schema.KindSortRange:
		return e.execSortRange(ctx, a)
	case schema.KindFilterRange:
		return e.execSimpleRegion(ctx, a, e.Doc.AutoFilter, "filter applied to")
	case schema.KindCreateTable:
		return e.execCreateTable(ctx, a)
	case schema.KindCreatePivotSummary:
		return e.execPivot(ctx, a)
	case schema.KindCreateChart:
		return e.execChart(ctx, a)
	case schema.KindAddSheet:
		return e.execSheet(a, func() error { return e.Doc.AddSheet(ctx, sheetArg(a)) }, "added sheet")
	case schema.KindDeleteSheet:
		return e.execSheet(a, func() error { return e.Doc.DeleteSheet(ctx, sheetArg(a)) }, "deleted sheet")
	case schema.KindRenameSheet:
		return e.execSheet(a, func() error { return e.Doc.RenameSheet(ctx, sheetArg(a), a.NewName) }, "renamed sheet")
	case schema.KindActivateSheet:
		return e.execSheet(a, func() error { return e.Doc.ActivateSheet(ctx, sheetArg(a)) }, "activated sheet")
	case schema.KindProtectSheet:
		return e.execSheet(a, func() error { return e.Doc.ProtectSheet(ctx, sheetArg(a), a.Password) }, "protected sheet")
	case schema.KindUnprotectSheet:
		return e.execSheet(a, func() error { return e.Doc.UnprotectSheet(ctx, sheetArg(a)) }, "unprotected sheet")
	case schema.KindInsertRows:
		return e.execStructural(ctx, a, e.Doc.InsertRows, rowAxis, "inserted", "rows")
	case schema.KindInsertColumns:
		return e.execStructural(ctx, a, e.Doc.InsertColumns, colAxis, "inserted", "columns")
	case schema.KindDeleteRows:
		return e.execStructural(ctx, a, e.Doc.DeleteRows, rowAxis, "deleted", "rows")
	case schema.KindDeleteColumns:
		return e.execStructural(ctx, a, e.Doc.DeleteColumns, colAxis, "deleted", "columns")
	case schema.KindResizeColumns:
		return e.execResize(ctx, a, e.Doc.SetColumnWidth, "columns resized in")
	case schema.KindResizeRows:
		return e.execResize(ctx, a, e.Doc.SetRowHeight, "rows resized in")
	case schema.KindMergeCells:
		return e.execSimpleRegion(ctx, a, e.Doc.MergeCells, "merged")
	case schema.KindUnmergeCells:
		return e.execSimpleRegion(ctx, a, e.Doc.UnmergeCells, "unmerged")
	case schema.KindFormatCells, schema.KindFormatNumber:
		return e.execFormat(ctx, a, e.Doc.SetFormat, "formatted")
	case schema.KindConditionalFormat:
		return e.execFormat(ctx, a, e.Doc.SetConditionalFormat, "conditional format on")
	case schema.KindFreezePanes:
		return e.execSimpleRegion(ctx, a, e.Doc.FreezePanes, "froze panes at")
	case schema.KindGroupRows:
		return e.execSimpleRegion(ctx, a, e.Doc.GroupRows, "grouped rows in")
	case schema.KindGroupColumns:
		return e.execSimpleRegion(ctx, a, e.Doc.GroupColumns, "grouped columns in")
	case schema.KindAddHyperlink:
		return e.execHyperlink(ctx, a)
	case schema.KindAddComment:
		return e.execComment(ctx, a)
	case schema.KindFindReplace:
		return e.execFindReplace(ctx, a)
	default:
		return schema.Region{}, "", fmt.Errorf("unknown action type %q", a.Type)
	}
}

func sheetArg(a schema.Action) string {
	if a.SheetName != "" {
		return a.SheetName
	}
	return a.Sheet
}

func (e *Engine) execWriteValues(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	p, err := e.plan(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	if err := e.Doc.WriteValues(ctx, p.Target, a.Values); err != nil {
		return p.Target, "", err
	}
	return p.Target, writeMessage(p, "wrote values to"), nil
}

func (e *Engine) execWriteFormula(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	p, err := e.plan(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	formulas := a.Formulas
	if len(formulas) == 0 {
		// A single formula fills the whole declared region.
		formulas = make([][]string, p.Target.Rows())
		for i := range formulas {
			row := make([]string, p.Target.Cols())
			for j := range row {
				row[j] = a.Formula
			}
			formulas[i] = row
		}
	}
	if err := e.Doc.WriteFormulas(ctx, p.Target, formulas); err != nil {
		return p.Target, "", err
	}
	return p.Target, writeMessage(p, "wrote formulas to"), nil
}

// execAppendRows anchors the payload one row below the sheet's used range,
// in the declared range's columns.
func (e *Engine) execAppendRows(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	declared, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	used, ok, err := e.Doc.UsedRange(ctx, declared.Sheet)
	if err != nil {
		return schema.Region{}, "", err
	}
	anchorRow := 1
	if ok {
		anchorRow = used.EndRow + 1
	}
	rows, cols := schema.PayloadDims(a)
	target := schema.Region{
		Sheet:    declared.Sheet,
		StartCol: declared.StartCol,
		StartRow: anchorRow,
		EndCol:   declared.StartCol + cols - 1,
		EndRow:   anchorRow + rows - 1,
	}
	if err := e.Doc.WriteValues(ctx, target, a.Values); err != nil {
		return target, "", err
	}
	return target, fmt.Sprintf("appended %d rows at %s", rows, target.Ref()), nil
}

func (e *Engine) execSimpleRegion(ctx context.Context, a schema.Action, op func(context.Context, schema.Region) error, verb string) (schema.Region, string, error) {
	r, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	if err := op(ctx, r); err != nil {
		return r, "", err
	}
	return r, fmt.Sprintf("%s %s", verb, r.Ref()), nil
}

func (e *Engine) execCopyRange(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	src, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	dst, err := schema.ParseRegion(a.Copy.Destination, src.Sheet)
	if err != nil {
		return src, "", fmt.Errorf("copy destination: %w", err)
	}
	dst = dst.AnchorAt(dst.StartCol, dst.StartRow)
	dst.EndCol = dst.StartCol + src.Cols() - 1
	dst.EndRow = dst.StartRow + src.Rows() - 1

	values, err := e.Doc.ReadRegion(ctx, src)
	if err != nil {
		return src, "", err
	}
	formulas, err := e.Doc.ReadFormulas(ctx, src)
	if err != nil {
		return src, "", err
	}
	out := make([][]any, len(values))
	fout := make([][]string, len(values))
	for i := range values {
		out[i] = make([]any, len(values[i]))
		fout[i] = make([]string, len(values[i]))
		for j := range values[i] {
			if formulas[i][j] != "" {
				fout[i][j] = formulas[i][j]
			} else if values[i][j] != "" {
				out[i][j] = values[i][j]
			}
		}
	}
	if err := e.Doc.WriteValues(ctx, dst, out); err != nil {
		return dst, "", err
	}
	if err := e.Doc.WriteFormulas(ctx, dst, fout); err != nil {
		return dst, "", err
	}
	return dst, fmt.Sprintf("copied %s to %s", src.Ref(), dst.Ref()), nil
}

func (e *Engine) execSortRange(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	r, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	col, err := excelize.ColumnNameToNumber(a.Sort.Column)
	if err != nil {
		return r, "", fmt.Errorf("sort column: %w", err)
	}
	keyIdx := col - r.StartCol
	if keyIdx < 0 || keyIdx >= r.Cols() {
		return r, "", fmt.Errorf("sort column %s outside range %s", a.Sort.Column, r.Ref())
	}

	values, err := e.Doc.ReadRegion(ctx, r)
	if err != nil {
		return r, "", err
	}
	body := values
	var header []string
	if a.Sort.HasHeader && len(body) > 0 {
		header, body = body[0], body[1:]
	}
	sort.SliceStable(body, func(i, j int) bool {
		c := compareCells(body[i][keyIdx], body[j][keyIdx])
		if a.Sort.Descending {
			return c > 0
		}
		return c < 0
	})

	out := make([][]any, 0, len(values))
	if header != nil {
		out = append(out, toAnyRow(header))
	}
	for _, row := range body {
		out = append(out, toAnyRow(row))
	}
	if err := e.Doc.WriteValues(ctx, r, out); err != nil {
		return r, "", err
	}
	return r, fmt.Sprintf("sorted %s by column %s", r.Ref(), a.Sort.Column), nil
}

// compareCells three-way compares two cells, numerically when both sides
// parse as numbers and lexically otherwise. Numerically equal but textually
// distinct keys ("1" vs "1.0") compare equal.
func compareCells(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func toAnyRow(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

func (e *Engine) execAggregate(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	declared, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	rows, err := e.aggregateRows(ctx, declared.Sheet, a.Aggregate)
	if err != nil {
		return declared, "", err
	}
	// The output block's size is known only now; the guard must probe the
	// expanded region, not the bare anchor.
	p, err := guard.PlanRegion(ctx, e.Doc, a, declared.ExpandTo(len(rows), 2))
	if err != nil {
		return schema.Region{}, "", err
	}
	e.lastPlan = &p
	if err := e.Doc.WriteValues(ctx, p.Target, rows); err != nil {
		return p.Target, "", err
	}
	return p.Target, writeMessage(p, fmt.Sprintf("aggregated %d categories into", len(rows))), nil
}

// aggregateRows enumerates the distinct values of the category column over
// the sheet's used range and computes the configured aggregate per category.
// Results are sorted by aggregate value descending.
func (e *Engine) aggregateRows(ctx context.Context, sheet string, cfg *schema.AggregateConfig) ([][]any, error) {
	used, ok, err := e.Doc.UsedRange(ctx, sheet)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sheet %q has no data to aggregate", sheet)
	}

	catCol, err := excelize.ColumnNameToNumber(cfg.CategoryColumn)
	if err != nil {
		return nil, fmt.Errorf("categoryColumn: %w", err)
	}
	valCol := 0
	if cfg.ValueColumn != "" {
		if valCol, err = excelize.ColumnNameToNumber(cfg.ValueColumn); err != nil {
			return nil, fmt.Errorf("valueColumn: %w", err)
		}
	}
	filterCol := 0
	if cfg.FilterColumn != "" {
		if filterCol, err = excelize.ColumnNameToNumber(cfg.FilterColumn); err != nil {
			return nil, fmt.Errorf("filterColumn: %w", err)
		}
	}

	startRow := used.StartRow
	if cfg.HasHeader {
		startRow++
	}
	scan := used
	scan.StartRow = startRow
	if scan.StartRow > scan.EndRow {
		return nil, fmt.Errorf("sheet %q has no data rows under the header", sheet)
	}
	values, err := e.Doc.ReadRegion(ctx, scan)
	if err != nil {
		return nil, err
	}

	cellAt := func(row []string, col int) string {
		idx := col - scan.StartCol
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	type bucket struct {
		count int
		sum   float64
	}
	buckets := map[string]*bucket{}
	var order []string
	for _, row := range values {
		cat := cellAt(row, catCol)
		if cat == "" {
			continue
		}
		if filterCol > 0 && cellAt(row, filterCol) != cfg.FilterValue {
			continue
		}
		b, seen := buckets[cat]
		if !seen {
			b = &bucket{}
			buckets[cat] = b
			order = append(order, cat)
		}
		b.count++
		if valCol > 0 {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimLeft(cellAt(row, valCol), "$€£¥"), ",", ""), 64); err == nil {
				b.sum += v
			}
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("no rows matched in column %s", cfg.CategoryColumn)
	}

	value := func(b *bucket) float64 {
		switch cfg.Op {
		case "sum":
			return b.sum
		case "average":
			if b.count == 0 {
				return 0
			}
			return b.sum / float64(b.count)
		default:
			return float64(b.count)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return value(buckets[order[i]]) > value(buckets[order[j]])
	})

	out := make([][]any, 0, len(order))
	for _, cat := range order {
		out = append(out, []any{cat, value(buckets[cat])})
	}
	return out, nil
}

func (e *Engine) execCreateTable(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	r, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	cfg := schema.TableConfig{}
	if a.Table != nil {
		cfg = *a.Table
	}
	if err := e.Doc.AddTable(ctx, r, cfg); err != nil {
		return r, "", err
	}
	return r, fmt.Sprintf("created table over %s", r.Ref()), nil
}

func (e *Engine) execPivot(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	r, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	if err := e.Doc.AddPivotSummary(ctx, r, *a.Pivot); err != nil {
		return r, "", err
	}
	return r, fmt.Sprintf("created pivot summary at %s from %s", r.Ref(), a.Pivot.SourceRange), nil
}

func (e *Engine) execChart(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	r, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	if err := e.Doc.AddChart(ctx, r, *a.Chart); err != nil {
		return r, "", err
	}
	return r, fmt.Sprintf("created %s chart at %s", a.Chart.ChartType, r.Ref()), nil
}

func (e *Engine) execSheet(a schema.Action, op func() error, verb string) (schema.Region, string, error) {
	if err := op(); err != nil {
		return schema.Region{}, "", err
	}
	if e.Indexer != nil {
		e.Indexer.Invalidate(sheetArg(a))
	}
	return schema.Region{}, fmt.Sprintf("%s %q", verb, sheetArg(a)), nil
}

type structuralAxis int

const (
	rowAxis structuralAxis = iota
	colAxis
)

func (e *Engine) execStructural(ctx context.Context, a schema.Action, op func(context.Context, string, int, int) error, axis structuralAxis, verb, noun string) (schema.Region, string, error) {
	r, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	at, count := r.StartRow, r.Rows()
	if axis == colAxis {
		at, count = r.StartCol, r.Cols()
	}
	if a.Count > 0 {
		count = a.Count
	}
	if err := op(ctx, r.Sheet, at, count); err != nil {
		return r, "", err
	}
	if e.Indexer != nil {
		e.Indexer.Invalidate(r.Sheet)
	}
	return r, fmt.Sprintf("%s %d %s at %s", verb, count, noun, r.Ref()), nil
}

func (e *Engine) execResize(ctx context.Context, a schema.Action, op func(context.Context, schema.Region, float64) error, verb string) (schema.Region, string, error) {
	r, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	size := a.Size
	if size <= 0 {
		size = 15
	}
	if err := op(ctx, r, size); err != nil {
		return r, "", err
	}
	return r, fmt.Sprintf("%s %s", verb, r.Ref()), nil
}

func (e *Engine) execFormat(ctx context.Context, a schema.Action, op func(context.Context, schema.Region, schema.FormatConfig) error, verb string) (schema.Region, string, error) {
	r, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	if err := op(ctx, r, *a.Format); err != nil {
		return r, "", err
	}
	return r, fmt.Sprintf("%s %s", verb, r.Ref()), nil
}

func (e *Engine) execHyperlink(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	r, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	if err := e.Doc.AddHyperlink(ctx, r, a.Link.URL, a.Link.Display); err != nil {
		return r, "", err
	}
	return r, fmt.Sprintf("added hyperlink at %s", r.Ref()), nil
}

func (e *Engine) execComment(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	r, err := e.resolveRegion(ctx, a)
	if err != nil {
		return schema.Region{}, "", err
	}
	if err := e.Doc.AddComment(ctx, r, a.Comment); err != nil {
		return r, "", err
	}
	return r, fmt.Sprintf("added comment at %s", r.Ref()), nil
}

// execFindReplace scans the declared range, or the active sheet's used range
// when no range is given, and rewrites matching cell values.
func (e *Engine) execFindReplace(ctx context.Context, a schema.Action) (schema.Region, string, error) {
	var r schema.Region
	var err error
	if a.Range != "" {
		r, err = e.resolveRegion(ctx, a)
		if err != nil {
			return schema.Region{}, "", err
		}
	} else {
		sheet := sheetArg(a)
		if sheet == "" {
			if sheet, err = e.Doc.ActiveSheet(ctx); err != nil {
				return schema.Region{}, "", err
			}
		}
		var ok bool
		r, ok, err = e.Doc.UsedRange(ctx, sheet)
		if err != nil {
			return schema.Region{}, "", err
		}
		if !ok {
			return r, "no cells matched", nil
		}
	}

	values, err := e.Doc.ReadRegion(ctx, r)
	if err != nil {
		return r, "", err
	}
	match := func(cell string) bool {
		if a.Find.MatchCase {
			return strings.Contains(cell, a.Find.Find)
		}
		return strings.Contains(strings.ToLower(cell), strings.ToLower(a.Find.Find))
	}
	replaced := 0
	out := make([][]any, len(values))
	for i, row := range values {
		out[i] = make([]any, len(row))
		for j, cell := range row {
			if cell != "" && match(cell) {
				out[i][j] = replaceAll(cell, a.Find)
				replaced++
			} else if cell != "" {
				out[i][j] = cell
			}
		}
	}
	if replaced > 0 {
		if err := e.Doc.WriteValues(ctx, r, out); err != nil {
			return r, "", err
		}
	}
	return r, fmt.Sprintf("replaced %d cells in %s", replaced, r.Ref()), nil
}

func replaceAll(cell string, cfg *schema.FindReplaceConfig) string {
	if cfg.MatchCase {
		return strings.ReplaceAll(cell, cfg.Find, cfg.Replace)
	}
	// Case-insensitive replace preserving unmatched text.
	lower := strings.ToLower(cell)
	needle := strings.ToLower(cfg.Find)
	var b strings.Builder
	for {
		i := strings.Index(lower, needle)
		if i == -1 {
			b.WriteString(cell)
			return b.String()
		}
		b.WriteString(cell[:i])
		b.WriteString(cfg.Replace)
		cell = cell[i+len(needle):]
		lower = lower[i+len(needle):]
	}
}

func writeMessage(p guard.Placement, verb string) string {
	if p.Relocated {
		return fmt.Sprintf("%s %s (relocated from %s to avoid overwriting data)", verb, p.Target.Ref(), p.Original.Ref())
	}
	return fmt.Sprintf("%s %s", verb, p.Target.Ref())
}
