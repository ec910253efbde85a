package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/gridpilot/gridpilot/pkg/schema"
	"github.com/gridpilot/gridpilot/pkg/validator"
)

// Turn states.
const (
	StateIdle       = "idle"
	StateExecuting  = "executing"
	StateValidating = "validating"
	StateCorrecting = "correcting"
	StateDone       = "done"
	StateFailed     = "failed"
)

// Correction budgets. One round per trigger keeps the loop bounded: a
// correction that fails again is reported, not retried forever.
const (
	MaxFailureRounds   = 1
	MaxSuspicionRounds = 1
)

// Corrector produces a corrective action batch from a diagnostic message.
// The agent package implements it; tests use scripted responses.
type Corrector interface {
	Correct(ctx context.Context, diagnostic string) (*schema.StructuredResponse, error)
}

// TurnResult is the settled outcome of one orchestrated turn.
type TurnResult struct {
	TurnID      string         `json:"turn_id"`
	State       string         `json:"state"`
	Batches     []*BatchResult `json:"batches"`
	Corrections []string       `json:"corrections,omitempty"`
	// Message summarizes the turn for the conversation transcript.
	Message string `json:"message"`
}

// Rounds returns the number of execution passes the turn took.
func (t *TurnResult) Rounds() int { return len(t.Batches) }

// Summary folds every batch into one count set.
func (t *TurnResult) Summary() BatchSummary {
	var s BatchSummary
	for _, b := range t.Batches {
		s.Total += b.Summary.Total
		s.Succeeded += b.Summary.Succeeded
		s.Failed += b.Summary.Failed
		s.ValidationFailed += b.Summary.ValidationFailed
		s.Relocated += b.Summary.Relocated
	}
	return s
}

// Orchestrator drives the execute/validate/correct loop for a turn.
// Zero round budgets fall back to the package defaults.
type Orchestrator struct {
	Engine    *Engine
	Suspector *validator.Suspector
	Corrector Corrector

	FailureRounds   int
	SuspicionRounds int

	state string
}

// NewOrchestrator wires an orchestrator with default suspicion rules.
func NewOrchestrator(engine *Engine, corrector Corrector) (*Orchestrator, error) {
	susp, err := validator.NewSuspector(nil)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{Engine: engine, Suspector: susp, Corrector: corrector, state: StateIdle}, nil
}

func (o *Orchestrator) failureBudget() int {
	if o.FailureRounds > 0 {
		return o.FailureRounds
	}
	return MaxFailureRounds
}

func (o *Orchestrator) suspicionBudget() int {
	if o.SuspicionRounds > 0 {
		return o.SuspicionRounds
	}
	return MaxSuspicionRounds
}

// State reports the orchestrator's current phase.
func (o *Orchestrator) State() string {
	if o.state == "" {
		return StateIdle
	}
	return o.state
}

// RunTurn executes an action batch and, when execution or validation fails
// or the results look suspicious, runs bounded correction rounds. The turn
// always settles: after the budgets are spent remaining problems are
// reported in the result message.
func (o *Orchestrator) RunTurn(ctx context.Context, turnID string, actions []schema.Action) (*TurnResult, error) {
	if turnID == "" {
		turnID = GenerateTurnID()
	}
	result := &TurnResult{TurnID: turnID, State: StateIdle}

	o.state = StateExecuting
	batch, err := o.Engine.ExecuteBatch(ctx, turnID, actions)
	if err != nil {
		o.state = StateFailed
		result.State = StateFailed
		return result, err
	}
	result.Batches = append(result.Batches, batch)

	o.state = StateValidating
	if failed := batch.FailedResults(); len(failed) > 0 && o.Corrector != nil {
		for round := 0; round < o.failureBudget(); round++ {
			diagnostic := buildFailureDiagnostic(failed)
			result.Corrections = append(result.Corrections, diagnostic)
			o.note(turnID, "correction round: "+diagnostic)

			o.state = StateCorrecting
			corrected, rerun, err := o.runCorrection(ctx, turnID, diagnostic)
			if err != nil {
				o.state = StateFailed
				result.State = StateFailed
				result.Message = fmt.Sprintf("correction failed: %v", err)
				return result, nil
			}
			if rerun == nil {
				// The agent declined to correct; its message stands.
				result.Message = corrected
				break
			}
			result.Batches = append(result.Batches, rerun)
			failed = rerun.FailedResults()
			if len(failed) == 0 {
				break
			}
		}
	}

	if o.Suspector != nil && o.Corrector != nil {
		for round := 0; round < o.suspicionBudget(); round++ {
			stats := validator.CollectStats(lastBatch(result).Outcomes())
			rule := o.Suspector.Evaluate(stats)
			if rule == "" {
				break
			}
			diagnostic := buildSuspicionDiagnostic(rule, stats)
			result.Corrections = append(result.Corrections, diagnostic)
			o.note(turnID, "suspicion round: "+diagnostic)

			o.state = StateCorrecting
			corrected, rerun, err := o.runCorrection(ctx, turnID, diagnostic)
			if err != nil {
				o.state = StateFailed
				result.State = StateFailed
				result.Message = fmt.Sprintf("suspicion correction failed: %v", err)
				return result, nil
			}
			if rerun == nil {
				result.Message = corrected
				break
			}
			result.Batches = append(result.Batches, rerun)
		}
	}

	final := lastBatch(result)
	if len(final.FailedResults()) > 0 {
		o.state = StateFailed
		result.State = StateFailed
	} else {
		o.state = StateDone
		result.State = StateDone
	}
	if result.Message == "" {
		result.Message = summarize(result)
	}
	return result, nil
}

// runCorrection asks the corrector for a new batch and executes it. A reply
// without actions returns (message, nil, nil): the agent chose to explain
// instead of retry.
func (o *Orchestrator) runCorrection(ctx context.Context, turnID, diagnostic string) (string, *BatchResult, error) {
	sr, err := o.Corrector.Correct(ctx, diagnostic)
	if err != nil {
		return "", nil, err
	}
	if len(sr.Actions) == 0 {
		return sr.Message, nil, nil
	}
	batch, err := o.Engine.ExecuteBatch(ctx, turnID, sr.Actions)
	if err != nil {
		return "", nil, err
	}
	return sr.Message, batch, nil
}

func (o *Orchestrator) note(turnID, note string) {
	if o.Engine.Trace != nil {
		_ = o.Engine.Trace.Note(turnID, note)
	}
}

func lastBatch(t *TurnResult) *BatchResult {
	return t.Batches[len(t.Batches)-1]
}

// remediationHints map common failure symptoms to concrete fixes the agent
// can act on.
var remediationHints = []struct {
	symptom string
	hint    string
}{
	{"produced only formula errors", "array-returning formulas must target a single cell, not a range"},
	{"#REF!", "a formula references deleted or out-of-bounds cells; re-derive the reference from the current column index"},
	{"#DIV/0!", "a divisor evaluates to zero; guard the division or aggregate over non-empty rows only"},
	{"#NAME?", "a formula uses an unrecognized function or range name; use plain A1 references"},
	{"#SPILL!", "the output region is blocked by existing data; target an empty region or set allowOverwrite"},
	{"wrote no data", "the write produced no data; check that the source range actually contains values"},
	{"cells empty", "the write left gaps; the source rows may be shorter than the declared range"},
	{"unknown sheet", "the named sheet does not exist; add it first or use an existing sheet"},
	{"no collision-free region", "the sheet is too crowded for automatic relocation; clear space or set allowOverwrite"},
}

func hintFor(text string) string {
	for _, h := range remediationHints {
		if strings.Contains(text, h.symptom) {
			return h.hint
		}
	}
	return ""
}

// buildFailureDiagnostic renders failed results into the corrective prompt.
func buildFailureDiagnostic(failed []*ActionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d action(s) did not complete correctly:\n", len(failed))
	for _, r := range failed {
		problem := r.Error
		if problem == "" {
			problem = r.ValidationNote
		}
		fmt.Fprintf(&b, "- action %d (%s", r.Index, r.Type)
		if r.Target != "" {
			fmt.Fprintf(&b, " at %s", r.Target)
		}
		fmt.Fprintf(&b, "): %s\n", problem)
		if hint := hintFor(problem); hint != "" {
			fmt.Fprintf(&b, "  hint: %s\n", hint)
		}
	}
	b.WriteString("Reply with corrected actions for the failed steps only, or explain why no correction is possible.")
	return b.String()
}

// buildSuspicionDiagnostic renders a matched suspicion rule into the
// corrective prompt.
func buildSuspicionDiagnostic(rule string, stats validator.BatchStats) string {
	var b strings.Builder
	b.WriteString("The results passed validation but look wrong (rule: " + rule + ").\n")
	fmt.Fprintf(&b, "Batch stats: %d cells, %d numeric, %d zero (ratio %.2f), %d errors.\n",
		stats.CellCount, stats.NumericCount, stats.ZeroCount, stats.ZeroRatio, stats.ErrorCount)
	switch {
	case stats.HasSpill:
		b.WriteString("A #SPILL! error indicates the output region is blocked.\n")
	case stats.HasRef:
		b.WriteString("A #REF! error indicates a broken cell reference.\n")
	case stats.ZeroRatio > 0.5:
		b.WriteString("Nearly every numeric result is zero; the formula or aggregate likely reads the wrong column.\n")
	}
	b.WriteString("Double-check the column references and reply with corrected actions, or confirm the results are expected.")
	return b.String()
}

func summarize(t *TurnResult) string {
	s := t.Summary()
	var parts []string
	parts = append(parts, fmt.Sprintf("%d action(s) executed", s.Total))
	if s.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	}
	if s.ValidationFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed validation", s.ValidationFailed))
	}
	if s.Relocated > 0 {
		parts = append(parts, fmt.Sprintf("%d relocated to avoid overwriting data", s.Relocated))
	}
	if len(t.Corrections) > 0 {
		parts = append(parts, fmt.Sprintf("%d correction round(s)", len(t.Corrections)))
	}
	return strings.Join(parts, ", ")
}
