package runtime

import (
	"context"
	"strings"
	"testing"

	"github.com/gridpilot/gridpilot/pkg/document"
	"github.com/gridpilot/gridpilot/pkg/schema"
)

// scriptedCorrector replays canned correction responses and records the
// diagnostics it was shown.
type scriptedCorrector struct {
	responses   []*schema.StructuredResponse
	diagnostics []string
}

func (c *scriptedCorrector) Correct(ctx context.Context, diagnostic string) (*schema.StructuredResponse, error) {
	c.diagnostics = append(c.diagnostics, diagnostic)
	if len(c.responses) == 0 {
		return &schema.StructuredResponse{Message: "no correction available"}, nil
	}
	sr := c.responses[0]
	c.responses = c.responses[1:]
	return sr, nil
}

func TestTurnCleanBatchNoCorrection(t *testing.T) {
	e, _ := seededEngine(t)
	corrector := &scriptedCorrector{}
	o, err := NewOrchestrator(e, corrector)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result, err := o.RunTurn(context.Background(), "", []schema.Action{{
		Type: schema.KindWriteValues, Range: "E1", Values: [][]any{{"ok"}},
	}})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.State != StateDone {
		t.Fatalf("state = %s, want done", result.State)
	}
	if result.Rounds() != 1 {
		t.Fatalf("rounds = %d, want 1", result.Rounds())
	}
	if len(corrector.diagnostics) != 0 {
		t.Fatalf("clean batch should not consult the corrector: %v", corrector.diagnostics)
	}
}

func TestTurnValidationFailureTriggersCorrection(t *testing.T) {
	e, _ := seededEngine(t)
	corrector := &scriptedCorrector{responses: []*schema.StructuredResponse{{
		Message: "retrying with real values",
		Actions: []schema.Action{{
			Type: schema.KindWriteValues, Range: "E1", Values: [][]any{{"fixed"}},
		}},
	}}}
	o, err := NewOrchestrator(e, corrector)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	// An all-empty write passes execution but fails validation.
	result, err := o.RunTurn(context.Background(), "", []schema.Action{{
		Type: schema.KindWriteValues, Range: "G1", Values: [][]any{{""}},
	}})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.State != StateDone {
		t.Fatalf("state = %s, want done after correction", result.State)
	}
	if result.Rounds() != 2 {
		t.Fatalf("rounds = %d, want 2", result.Rounds())
	}
	if len(corrector.diagnostics) != 1 {
		t.Fatalf("corrections = %d, want 1", len(corrector.diagnostics))
	}
	if !strings.Contains(corrector.diagnostics[0], "did not complete correctly") {
		t.Fatalf("diagnostic = %q", corrector.diagnostics[0])
	}
}

func TestTurnCorrectionBudgetIsBounded(t *testing.T) {
	e, _ := seededEngine(t)
	// Every correction fails again the same way.
	bad := schema.Action{Type: schema.KindWriteValues, Range: "G1", Values: [][]any{{""}}}
	corrector := &scriptedCorrector{responses: []*schema.StructuredResponse{
		{Message: "retry 1", Actions: []schema.Action{bad}},
		{Message: "retry 2", Actions: []schema.Action{bad}},
		{Message: "retry 3", Actions: []schema.Action{bad}},
	}}
	o, err := NewOrchestrator(e, corrector)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result, err := o.RunTurn(context.Background(), "", []schema.Action{bad})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.State != StateFailed {
		t.Fatalf("state = %s, want failed", result.State)
	}
	if got := len(corrector.diagnostics); got > MaxFailureRounds+MaxSuspicionRounds {
		t.Fatalf("corrector consulted %d times, budget is %d", got, MaxFailureRounds+MaxSuspicionRounds)
	}
}

func TestTurnCorrectorMayDecline(t *testing.T) {
	e, _ := seededEngine(t)
	corrector := &scriptedCorrector{responses: []*schema.StructuredResponse{{
		Message: "the source range has no data; nothing to write",
	}}}
	o, err := NewOrchestrator(e, corrector)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result, err := o.RunTurn(context.Background(), "", []schema.Action{{
		Type: schema.KindWriteValues, Range: "G1", Values: [][]any{{""}},
	}})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.State != StateFailed {
		t.Fatalf("state = %s, want failed", result.State)
	}
	if result.Message != "the source range has no data; nothing to write" {
		t.Fatalf("message = %q", result.Message)
	}
	if result.Rounds() != 1 {
		t.Fatalf("rounds = %d, want 1 when the corrector declines", result.Rounds())
	}
}

func TestTurnSuspicionRound(t *testing.T) {
	doc := document.NewMemory("Sheet1")
	doc.Seed("Sheet1", 1, 1, [][]string{{"h"}})
	e := NewEngine(doc)
	corrector := &scriptedCorrector{responses: []*schema.StructuredResponse{{
		Message: "the zeros are expected: the filter matched no rows",
	}}}
	o, err := NewOrchestrator(e, corrector)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	// Twelve zero results validate clean but trip the zero-ratio rule.
	values := make([][]any, 12)
	for i := range values {
		values[i] = []any{0}
	}
	result, err := o.RunTurn(context.Background(), "", []schema.Action{{
		Type: schema.KindWriteValues, Range: "C1", Values: values,
	}})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(corrector.diagnostics) != 1 {
		t.Fatalf("corrections = %d, want 1 suspicion round", len(corrector.diagnostics))
	}
	if !strings.Contains(corrector.diagnostics[0], "passed validation but look wrong") {
		t.Fatalf("diagnostic = %q", corrector.diagnostics[0])
	}
	if result.State != StateDone {
		t.Fatalf("state = %s, want done", result.State)
	}
	if result.Message != "the zeros are expected: the filter matched no rows" {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestHintForAnchorsToValidatorMessages(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"all empty", "write_values wrote no data to Sheet1!E1: all 1 cells are empty", "produced no data"},
		{"partial", "write_values left 5 of 10 cells empty in Sheet1!A1:B5 (50%)", "left gaps"},
		{"formula errors", "write_formula produced only formula errors in Sheet1!E1 (e.g. #VALUE!)", "single cell"},
		{"unrelated text with all", "install the add-in and call again", ""},
	}
	for _, c := range cases {
		got := hintFor(c.text)
		if c.want == "" {
			if got != "" {
				t.Errorf("%s: unexpected hint %q", c.name, got)
			}
			continue
		}
		if !strings.Contains(got, c.want) {
			t.Errorf("%s: hint = %q, want it to mention %q", c.name, got, c.want)
		}
	}
}

func TestTurnDiagnosticIncludesHints(t *testing.T) {
	e, doc := seededEngine(t)
	doc.Eval = func(sheet, cell, formula string) string { return "#REF!" }
	corrector := &scriptedCorrector{}
	o, err := NewOrchestrator(e, corrector)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	if _, err := o.RunTurn(context.Background(), "", []schema.Action{{
		Type: schema.KindWriteFormula, Range: "E1", Formula: "=SUM(Z:Z)",
	}}); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(corrector.diagnostics) == 0 {
		t.Fatal("expected a correction round")
	}
	if !strings.Contains(corrector.diagnostics[0], "hint:") {
		t.Fatalf("diagnostic should carry a remediation hint: %q", corrector.diagnostics[0])
	}
}
