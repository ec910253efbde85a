// Package index builds a per-sheet column catalogue: header, letter, and an
// inferred semantic type per column. The catalogue is embedded in the agent
// system prompt so action targets can be grounded in real columns, and it is
// cached per sheet shape so unchanged sheets are not rescanned every turn.
package index

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gridpilot/gridpilot/pkg/document"
	"github.com/gridpilot/gridpilot/pkg/schema"
)

// Semantic column types.
const (
	TypeID       = "id"
	TypeAmount   = "amount"
	TypeQuantity = "quantity"
	TypeCategory = "category"
	TypeDate     = "date"
	TypeUnknown  = "unknown"
)

// maxSampleRows bounds how many data rows are sampled per column.
const maxSampleRows = 50

// ColumnIndexEntry describes one column of a sheet's used range.
type ColumnIndexEntry struct {
	Letter       string `json:"letter"`
	Header       string `json:"header"`
	SemanticType string `json:"semanticType"`
	// NonEmpty counts sampled data cells that carry a value.
	NonEmpty int `json:"nonEmpty"`
	// Sample holds up to three distinct example values.
	Sample []string `json:"sample,omitempty"`
}

type cacheKey struct {
	sheet string
	rows  int
	cols  int
}

// Indexer builds and caches column catalogues. Safe for concurrent use.
type Indexer struct {
	mu    sync.Mutex
	cache map[cacheKey][]ColumnIndexEntry
}

// New creates an Indexer with an empty cache.
func New() *Indexer {
	return &Indexer{cache: map[cacheKey][]ColumnIndexEntry{}}
}

// Build returns the column catalogue for a sheet, reusing the cached entry
// when the sheet's used-range shape is unchanged. force bypasses the cache.
func (ix *Indexer) Build(ctx context.Context, doc document.Document, sheet string, force bool) ([]ColumnIndexEntry, error) {
	used, ok, err := doc.UsedRange(ctx, sheet)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	key := cacheKey{sheet: used.Sheet, rows: used.Rows(), cols: used.Cols()}
	if !force {
		ix.mu.Lock()
		cached, hit := ix.cache[key]
		ix.mu.Unlock()
		if hit {
			return cached, nil
		}
	}

	entries, err := scan(ctx, doc, used)
	if err != nil {
		return nil, err
	}

	ix.mu.Lock()
	ix.cache[key] = entries
	ix.mu.Unlock()
	return entries, nil
}

// Invalidate drops every cached catalogue for a sheet. Called after
// structural edits (insert/delete rows or columns, renames).
func (ix *Indexer) Invalidate(sheet string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for key := range ix.cache {
		if key.sheet == sheet {
			delete(ix.cache, key)
		}
	}
}

func scan(ctx context.Context, doc document.Document, used schema.Region) ([]ColumnIndexEntry, error) {
	sample := used
	if rows := used.Rows(); rows > maxSampleRows+1 {
		sample.EndRow = sample.StartRow + maxSampleRows
	}
	values, err := doc.ReadRegion(ctx, sample)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	headers := values[0]
	data := values[1:]

	entries := make([]ColumnIndexEntry, 0, used.Cols())
	for col := 0; col < used.Cols(); col++ {
		letter, _ := excelize.ColumnNumberToName(used.StartCol + col)
		header := ""
		if col < len(headers) {
			header = strings.TrimSpace(headers[col])
		}

		var cells []string
		seen := map[string]bool{}
		var examples []string
		for _, row := range data {
			if col >= len(row) || row[col] == "" {
				continue
			}
			cells = append(cells, row[col])
			if !seen[row[col]] && len(examples) < 3 {
				seen[row[col]] = true
				examples = append(examples, row[col])
			}
		}

		entries = append(entries, ColumnIndexEntry{
			Letter:       letter,
			Header:       header,
			SemanticType: InferSemanticType(header, cells),
			NonEmpty:     len(cells),
			Sample:       examples,
		})
	}
	return entries, nil
}

// Header keyword tables checked in priority order. A header match wins over
// value-shape inference.
var headerTypes = []struct {
	typ      string
	keywords []string
}{
	{TypeID, []string{"id", "code", "sku", "ref", "number", "no."}},
	{TypeAmount, []string{"amount", "price", "cost", "total", "revenue", "salary", "fee", "balance", "value"}},
	{TypeQuantity, []string{"qty", "quantity", "count", "units", "stock"}},
	{TypeDate, []string{"date", "day", "month", "year", "time", "created", "updated"}},
	{TypeCategory, []string{"category", "type", "status", "region", "group", "department", "name", "product"}},
}

// InferSemanticType classifies a column from its header text and sampled
// values.
func InferSemanticType(header string, cells []string) string {
	h := strings.ToLower(header)
	if h != "" {
		for _, ht := range headerTypes {
			for _, kw := range ht.keywords {
				if strings.Contains(h, kw) {
					return ht.typ
				}
			}
		}
	}
	if len(cells) == 0 {
		return TypeUnknown
	}

	numeric, dates := 0, 0
	for _, c := range cells {
		if LooksNumeric(c) {
			numeric++
		}
		if LooksDate(c) {
			dates++
		}
	}
	switch {
	case dates*2 > len(cells):
		return TypeDate
	case numeric == len(cells):
		return TypeAmount
	case distinctRatio(cells) < 0.5:
		return TypeCategory
	default:
		return TypeUnknown
	}
}

// LooksNumeric reports whether a cell value parses as a number after
// stripping common currency and separator characters.
func LooksNumeric(s string) bool {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimLeft(cleaned, "$€£¥")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSuffix(cleaned, "%")
	if cleaned == "" {
		return false
	}
	_, err := strconv.ParseFloat(cleaned, 64)
	return err == nil
}

// dateLayouts cover the formats the document backends emit.
var dateLayouts = []string{
	"2006-01-02", "01/02/2006", "1/2/2006", "02/01/2006",
	"2006/01/02", "Jan 2, 2006", "2 Jan 2006", "01-02-06",
}

// LooksDate reports whether a cell value parses in a known date layout.
func LooksDate(s string) bool {
	v := strings.TrimSpace(s)
	if v == "" {
		return false
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func distinctRatio(cells []string) float64 {
	seen := map[string]bool{}
	for _, c := range cells {
		seen[c] = true
	}
	return float64(len(seen)) / float64(len(cells))
}

// Render formats the catalogue as prompt-ready text, one line per column.
func Render(sheet string, entries []ColumnIndexEntry) string {
	if len(entries) == 0 {
		return "Sheet " + sheet + " is empty."
	}
	var b strings.Builder
	b.WriteString("Columns on sheet " + sheet + ":\n")
	for _, e := range entries {
		b.WriteString("  " + e.Letter + ": ")
		if e.Header != "" {
			b.WriteString(e.Header)
		} else {
			b.WriteString("(no header)")
		}
		b.WriteString(" [" + e.SemanticType + "]")
		if len(e.Sample) > 0 {
			b.WriteString(" e.g. " + strings.Join(e.Sample, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
