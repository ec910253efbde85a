package document

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/gridpilot/gridpilot/pkg/schema"
)

type cell struct {
	value   string
	formula string
}

type memorySheet struct {
	cells map[[2]int]cell // keyed (col, row), 1-based
}

// Memory is the in-memory Document used by dry-run mode and tests. Formula
// cells evaluate through the Eval hook; the default echoes the formula text,
// which keeps formula results non-empty without a calculation engine. Tests
// override Eval to simulate error sentinels.
type Memory struct {
	mu     sync.Mutex
	sheets map[string]*memorySheet
	order  []string
	active string

	// Eval computes the displayed value of a formula cell. The formula is
	// passed without its leading "=".
	Eval func(sheet, cellRef, formula string) string

	// Ops records presentation and structural calls that have no cell-level
	// effect in memory, e.g. "merge_cells Sheet1!A1:B2". Tests assert on it.
	Ops []string
}

// NewMemory creates an in-memory document with a single active sheet.
func NewMemory(sheet string) *Memory {
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &Memory{
		sheets: map[string]*memorySheet{sheet: {cells: map[[2]int]cell{}}},
		order:  []string{sheet},
		active: sheet,
	}
}

// Seed writes a values matrix without going through the Document interface.
// Test setup helper.
func (m *Memory) Seed(sheet string, startCol, startRow int, values [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms := m.sheet(sheet)
	for i, row := range values {
		for j, v := range row {
			if v == "" {
				continue
			}
			ms.cells[[2]int{startCol + j, startRow + i}] = cell{value: v}
		}
	}
}

// sheet returns the named sheet, creating it if absent. Callers hold mu.
func (m *Memory) sheet(name string) *memorySheet {
	if name == "" {
		name = m.active
	}
	ms, ok := m.sheets[name]
	if !ok {
		ms = &memorySheet{cells: map[[2]int]cell{}}
		m.sheets[name] = ms
		m.order = append(m.order, name)
	}
	return ms
}

func (m *Memory) lookup(name string) (*memorySheet, string, error) {
	if name == "" {
		name = m.active
	}
	ms, ok := m.sheets[name]
	if !ok {
		return nil, name, fmt.Errorf("%w: %q", ErrUnknownSheet, name)
	}
	return ms, name, nil
}

func (m *Memory) record(format string, args ...any) {
	m.Ops = append(m.Ops, fmt.Sprintf(format, args...))
}

func (m *Memory) ReadRegion(ctx context.Context, r schema.Region) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, name, err := m.lookup(r.Sheet)
	if err != nil {
		return nil, err
	}
	out := make([][]string, r.Rows())
	for row := r.StartRow; row <= r.EndRow; row++ {
		line := make([]string, r.Cols())
		for col := r.StartCol; col <= r.EndCol; col++ {
			c := ms.cells[[2]int{col, row}]
			v := c.value
			if c.formula != "" {
				cellRef, _ := excelize.CoordinatesToCellName(col, row)
				if m.Eval != nil {
					v = m.Eval(name, cellRef, c.formula)
				} else {
					v = c.formula
				}
			}
			line[col-r.StartCol] = v
		}
		out[row-r.StartRow] = line
	}
	return out, nil
}

func (m *Memory) ReadFormulas(ctx context.Context, r schema.Region) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _, err := m.lookup(r.Sheet)
	if err != nil {
		return nil, err
	}
	out := make([][]string, r.Rows())
	for row := r.StartRow; row <= r.EndRow; row++ {
		line := make([]string, r.Cols())
		for col := r.StartCol; col <= r.EndCol; col++ {
			line[col-r.StartCol] = ms.cells[[2]int{col, row}].formula
		}
		out[row-r.StartRow] = line
	}
	return out, nil
}

func (m *Memory) WriteValues(ctx context.Context, r schema.Region, values [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _, err := m.lookup(r.Sheet)
	if err != nil {
		return err
	}
	for i, row := range values {
		for j, v := range row {
			key := [2]int{r.StartCol + j, r.StartRow + i}
			if v == nil {
				delete(ms.cells, key)
				continue
			}
			ms.cells[key] = cell{value: fmt.Sprintf("%v", v)}
		}
	}
	return nil
}

func (m *Memory) WriteFormulas(ctx context.Context, r schema.Region, formulas [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _, err := m.lookup(r.Sheet)
	if err != nil {
		return err
	}
	for i, row := range formulas {
		for j, f := range row {
			if f == "" {
				continue
			}
			key := [2]int{r.StartCol + j, r.StartRow + i}
			ms.cells[key] = cell{formula: strings.TrimPrefix(f, "=")}
		}
	}
	return nil
}

func (m *Memory) ClearRegion(ctx context.Context, r schema.Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _, err := m.lookup(r.Sheet)
	if err != nil {
		return err
	}
	for row := r.StartRow; row <= r.EndRow; row++ {
		for col := r.StartCol; col <= r.EndCol; col++ {
			delete(ms.cells, [2]int{col, row})
		}
	}
	return nil
}

func (m *Memory) UsedRange(ctx context.Context, sheet string) (schema.Region, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, name, err := m.lookup(sheet)
	if err != nil {
		return schema.Region{}, false, err
	}
	minCol, minRow, maxCol, maxRow := 0, 0, 0, 0
	for key := range ms.cells {
		col, row := key[0], key[1]
		if minCol == 0 || col < minCol {
			minCol = col
		}
		if minRow == 0 || row < minRow {
			minRow = row
		}
		if col > maxCol {
			maxCol = col
		}
		if row > maxRow {
			maxRow = row
		}
	}
	if minCol == 0 {
		return schema.Region{Sheet: name, StartCol: 1, StartRow: 1, EndCol: 1, EndRow: 1}, false, nil
	}
	return schema.Region{Sheet: name, StartCol: minCol, StartRow: minRow, EndCol: maxCol, EndRow: maxRow}, true, nil
}

func (m *Memory) Sheets(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

func (m *Memory) ActiveSheet(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, nil
}

func (m *Memory) AddSheet(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[name]; ok {
		return fmt.Errorf("%w: %q", ErrSheetExists, name)
	}
	m.sheets[name] = &memorySheet{cells: map[[2]int]cell{}}
	m.order = append(m.order, name)
	return nil
}

func (m *Memory) DeleteSheet(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSheet, name)
	}
	delete(m.sheets, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == name && len(m.order) > 0 {
		m.active = m.order[0]
	}
	return nil
}

func (m *Memory) RenameSheet(ctx context.Context, oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sheets[oldName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSheet, oldName)
	}
	if _, ok := m.sheets[newName]; ok {
		return fmt.Errorf("%w: %q", ErrSheetExists, newName)
	}
	delete(m.sheets, oldName)
	m.sheets[newName] = ms
	for i, n := range m.order {
		if n == oldName {
			m.order[i] = newName
		}
	}
	if m.active == oldName {
		m.active = newName
	}
	return nil
}

func (m *Memory) ActivateSheet(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSheet, name)
	}
	m.active = name
	return nil
}

// shiftCells rewrites cell keys along one axis. axis 0 shifts columns, axis
// 1 shifts rows. For delta < 0 the span [from, from-delta) is dropped first
// (deletion), then higher keys slide down; for delta > 0 keys at or beyond
// from slide up (insertion).
func (ms *memorySheet) shiftCells(axis, from, delta int) {
	moved := map[[2]int]cell{}
	for key, c := range ms.cells {
		k := key
		if delta < 0 && k[axis] >= from && k[axis] < from-delta {
			continue
		}
		if k[axis] >= from {
			k[axis] += delta
		}
		moved[k] = c
	}
	ms.cells = moved
}

func (m *Memory) InsertRows(ctx context.Context, sheet string, row, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _, err := m.lookup(sheet)
	if err != nil {
		return err
	}
	ms.shiftCells(1, row, count)
	return nil
}

func (m *Memory) InsertColumns(ctx context.Context, sheet string, col, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _, err := m.lookup(sheet)
	if err != nil {
		return err
	}
	ms.shiftCells(0, col, count)
	return nil
}

func (m *Memory) DeleteRows(ctx context.Context, sheet string, row, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _, err := m.lookup(sheet)
	if err != nil {
		return err
	}
	ms.shiftCells(1, row, -count)
	return nil
}

func (m *Memory) DeleteColumns(ctx context.Context, sheet string, col, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _, err := m.lookup(sheet)
	if err != nil {
		return err
	}
	ms.shiftCells(0, col, -count)
	return nil
}

func (m *Memory) SetColumnWidth(ctx context.Context, r schema.Region, width float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, _, err := m.lookup(r.Sheet); err != nil {
		return err
	}
	m.record("resize_columns %s width=%.1f", r.Ref(), width)
	return nil
}

func (m *Memory) SetRowHeight(ctx context.Context, r schema.Region, height float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, _, err := m.lookup(r.Sheet); err != nil {
		return err
	}
	m.record("resize_rows %s height=%.1f", r.Ref(), height)
	return nil
}

func (m *Memory) MergeCells(ctx context.Context, r schema.Region) error {
	return m.logOnly(r, "merge_cells %s", r.Ref())
}

func (m *Memory) UnmergeCells(ctx context.Context, r schema.Region) error {
	return m.logOnly(r, "unmerge_cells %s", r.Ref())
}

func (m *Memory) SetFormat(ctx context.Context, r schema.Region, format schema.FormatConfig) error {
	return m.logOnly(r, "format_cells %s", r.Ref())
}

func (m *Memory) SetConditionalFormat(ctx context.Context, r schema.Region, format schema.FormatConfig) error {
	return m.logOnly(r, "conditional_format %s rule=%s", r.Ref(), format.Rule)
}

func (m *Memory) FreezePanes(ctx context.Context, r schema.Region) error {
	return m.logOnly(r, "freeze_panes %s", r.Ref())
}

func (m *Memory) GroupRows(ctx context.Context, r schema.Region) error {
	return m.logOnly(r, "group_rows %s", r.Ref())
}

func (m *Memory) GroupColumns(ctx context.Context, r schema.Region) error {
	return m.logOnly(r, "group_columns %s", r.Ref())
}

func (m *Memory) AddHyperlink(ctx context.Context, r schema.Region, url, display string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _, err := m.lookup(r.Sheet)
	if err != nil {
		return err
	}
	if display != "" {
		ms.cells[[2]int{r.StartCol, r.StartRow}] = cell{value: display}
	}
	m.record("add_hyperlink %s url=%s", r.Ref(), url)
	return nil
}

func (m *Memory) AddComment(ctx context.Context, r schema.Region, text string) error {
	return m.logOnly(r, "add_comment %s", r.Ref())
}

func (m *Memory) ProtectSheet(ctx context.Context, sheet, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, _, err := m.lookup(sheet); err != nil {
		return err
	}
	m.record("protect_sheet %s", sheet)
	return nil
}

func (m *Memory) UnprotectSheet(ctx context.Context, sheet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, _, err := m.lookup(sheet); err != nil {
		return err
	}
	m.record("unprotect_sheet %s", sheet)
	return nil
}

func (m *Memory) AutoFilter(ctx context.Context, r schema.Region) error {
	return m.logOnly(r, "filter_range %s", r.Ref())
}

func (m *Memory) AddTable(ctx context.Context, r schema.Region, cfg schema.TableConfig) error {
	return m.logOnly(r, "create_table %s name=%s", r.Ref(), cfg.Name)
}

func (m *Memory) AddChart(ctx context.Context, r schema.Region, cfg schema.ChartConfig) error {
	return m.logOnly(r, "create_chart %s type=%s data=%s", r.Ref(), cfg.ChartType, cfg.DataRange)
}

func (m *Memory) AddPivotSummary(ctx context.Context, r schema.Region, cfg schema.PivotConfig) error {
	return m.logOnly(r, "create_pivot_summary %s source=%s", r.Ref(), cfg.SourceRange)
}

func (m *Memory) logOnly(r schema.Region, format string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, _, err := m.lookup(r.Sheet); err != nil {
		return err
	}
	m.record(format, args...)
	return nil
}

// SortedOps returns a copy of the ops log sorted lexically, for stable test
// assertions independent of map iteration order.
func (m *Memory) SortedOps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Ops))
	copy(out, m.Ops)
	sort.Strings(out)
	return out
}
