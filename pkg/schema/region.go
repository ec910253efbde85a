package schema

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Region is a rectangular, optionally sheet-qualified cell address.
// Coordinates are 1-based and inclusive; a single cell has equal start and
// end coordinates.
type Region struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseRegion parses an A1-style address ("B2", "A1:C10", "Sheet2!A1:B3")
// into a Region. An explicit sheet prefix in the address wins over the
// sheet argument.
func ParseRegion(address, sheet string) (Region, error) {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return Region{}, fmt.Errorf("empty range address")
	}
	if i := strings.LastIndex(addr, "!"); i >= 0 {
		sheet = strings.Trim(addr[:i], "'")
		addr = addr[i+1:]
	}

	start, end := addr, addr
	if i := strings.Index(addr, ":"); i >= 0 {
		start, end = addr[:i], addr[i+1:]
	}

	sc, sr, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return Region{}, fmt.Errorf("parse range %q: %w", address, err)
	}
	ec, er, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return Region{}, fmt.Errorf("parse range %q: %w", address, err)
	}
	if ec < sc {
		sc, ec = ec, sc
	}
	if er < sr {
		sr, er = er, sr
	}
	return Region{Sheet: sheet, StartCol: sc, StartRow: sr, EndCol: ec, EndRow: er}, nil
}

// String renders the region in A1 notation without the sheet qualifier.
func (r Region) String() string {
	start, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	if r.StartCol == r.EndCol && r.StartRow == r.EndRow {
		return start
	}
	end, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow)
	return start + ":" + end
}

// Ref renders the region with its sheet qualifier when present.
func (r Region) Ref() string {
	if r.Sheet == "" {
		return r.String()
	}
	return r.Sheet + "!" + r.String()
}

// Rows returns the row count of the region.
func (r Region) Rows() int { return r.EndRow - r.StartRow + 1 }

// Cols returns the column count of the region.
func (r Region) Cols() int { return r.EndCol - r.StartCol + 1 }

// Cells returns the total cell count of the region.
func (r Region) Cells() int { return r.Rows() * r.Cols() }

// ExpandTo grows the region so it spans at least rows×cols from its start
// cell. A single-cell address with a multi-row payload must be expanded
// this way before collision checking.
func (r Region) ExpandTo(rows, cols int) Region {
	out := r
	if rows > 0 && r.StartRow+rows-1 > r.EndRow {
		out.EndRow = r.StartRow + rows - 1
	}
	if cols > 0 && r.StartCol+cols-1 > r.EndCol {
		out.EndCol = r.StartCol + cols - 1
	}
	return out
}

// ShiftCols returns the region translated n columns to the right, keeping
// its dimensions.
func (r Region) ShiftCols(n int) Region {
	return Region{
		Sheet:    r.Sheet,
		StartCol: r.StartCol + n,
		StartRow: r.StartRow,
		EndCol:   r.EndCol + n,
		EndRow:   r.EndRow,
	}
}

// AnchorAt returns a region with this region's dimensions anchored at the
// given start coordinates.
func (r Region) AnchorAt(col, row int) Region {
	return Region{
		Sheet:    r.Sheet,
		StartCol: col,
		StartRow: row,
		EndCol:   col + r.Cols() - 1,
		EndRow:   row + r.Rows() - 1,
	}
}

// Overlaps reports whether two regions on the same sheet intersect.
// Regions on different sheets never overlap.
func (r Region) Overlaps(other Region) bool {
	if r.Sheet != other.Sheet {
		return false
	}
	return r.StartCol <= other.EndCol && other.StartCol <= r.EndCol &&
		r.StartRow <= other.EndRow && other.StartRow <= r.EndRow
}

// PayloadDims returns the row/column counts implied by an action's payload.
// The region's effective dimensions are derived from the payload, not from
// the literal address string. Returns (0, 0) when the action carries no
// matrix payload.
func PayloadDims(a Action) (rows, cols int) {
	switch {
	case len(a.Values) > 0:
		rows = len(a.Values)
		for _, r := range a.Values {
			if len(r) > cols {
				cols = len(r)
			}
		}
	case len(a.Formulas) > 0:
		rows = len(a.Formulas)
		for _, r := range a.Formulas {
			if len(r) > cols {
				cols = len(r)
			}
		}
	case a.Formula != "":
		rows, cols = 1, 1
	}
	return rows, cols
}

// TargetRegion resolves an action's declared range, expanded to its payload
// dimensions.
func TargetRegion(a Action) (Region, error) {
	r, err := ParseRegion(a.Range, a.Sheet)
	if err != nil {
		return Region{}, err
	}
	if rows, cols := PayloadDims(a); rows > 0 {
		r = r.ExpandTo(rows, cols)
	}
	return r, nil
}
