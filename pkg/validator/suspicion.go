package validator

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/gridpilot/gridpilot/pkg/index"
)

// Suspicion thresholds referenced by the default rules.
const (
	DefaultMinNumericResults  = 10
	DefaultZeroRatioThreshold = 0.9
)

// DefaultSuspicionRules flag result batches that validated clean but look
// wrong: a large all-zero numeric result usually means a formula referenced
// the wrong column, and stray spill/ref errors mean a collision survived.
var DefaultSuspicionRules = []string{
	fmt.Sprintf("numeric_count >= %d && zero_ratio > %v", DefaultMinNumericResults, DefaultZeroRatioThreshold),
	"has_spill_error",
	"has_ref_error",
}

// BatchStats aggregates the read-back values of every validated write in a
// turn. It is the environment suspicion rules evaluate against.
type BatchStats struct {
	CellCount    int     `expr:"cell_count"`
	NumericCount int     `expr:"numeric_count"`
	ZeroCount    int     `expr:"zero_count"`
	ZeroRatio    float64 `expr:"zero_ratio"`
	EmptyCount   int     `expr:"empty_count"`
	ErrorCount   int     `expr:"error_count"`
	HasSpill     bool    `expr:"has_spill_error"`
	HasRef       bool    `expr:"has_ref_error"`
	HasDivZero   bool    `expr:"has_div_error"`
}

// CollectStats folds the outcomes of one execution batch into stats.
func CollectStats(outcomes []Outcome) BatchStats {
	var s BatchStats
	for _, o := range outcomes {
		for _, row := range o.Values {
			for _, cell := range row {
				s.CellCount++
				switch {
				case cell == "":
					s.EmptyCount++
				case IsErrorSentinel(cell):
					s.ErrorCount++
					switch cell {
					case "#SPILL!":
						s.HasSpill = true
					case "#REF!":
						s.HasRef = true
					case "#DIV/0!":
						s.HasDivZero = true
					}
				case index.LooksNumeric(cell):
					s.NumericCount++
					if isZero(cell) {
						s.ZeroCount++
					}
				}
			}
		}
	}
	if s.NumericCount > 0 {
		s.ZeroRatio = float64(s.ZeroCount) / float64(s.NumericCount)
	}
	return s
}

func isZero(cell string) bool {
	c := strings.TrimLeft(strings.TrimSpace(cell), "$€£¥")
	c = strings.ReplaceAll(c, ",", "")
	switch c {
	case "0", "0.0", "0.00", "-0", "0%":
		return true
	}
	return false
}

// Suspector evaluates compiled suspicion rules over batch stats.
type Suspector struct {
	rules []compiledRule
}

type compiledRule struct {
	source  string
	program *vm.Program
}

// NewSuspector compiles rule expressions. Each rule must evaluate to bool
// over the BatchStats environment; a rule that fails to compile is a
// configuration error.
func NewSuspector(rules []string) (*Suspector, error) {
	if len(rules) == 0 {
		rules = DefaultSuspicionRules
	}
	s := &Suspector{}
	for _, src := range rules {
		prog, err := expr.Compile(src, expr.Env(BatchStats{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile suspicion rule %q: %w", src, err)
		}
		s.rules = append(s.rules, compiledRule{source: src, program: prog})
	}
	return s, nil
}

// Evaluate returns the source of the first matching rule, or "" when the
// batch is clean. A rule that errors at runtime is treated as non-matching.
func (s *Suspector) Evaluate(stats BatchStats) string {
	for _, rule := range s.rules {
		out, err := expr.Run(rule.program, stats)
		if err != nil {
			continue
		}
		if matched, ok := out.(bool); ok && matched {
			return rule.source
		}
	}
	return ""
}
