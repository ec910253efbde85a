// Package runtime executes action batches against a document and drives the
// self-correcting turn loop.
package runtime

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/gridpilot/gridpilot/pkg/validator"
)

// ActionResult is the full record of one executed action.
type ActionResult struct {
	TurnID string `json:"turn_id,omitempty"`
	Index  int    `json:"index"`
	Type   string `json:"type"`
	// Target is the effective region after collision planning; Declared is
	// the region the action asked for when they differ.
	Target   string `json:"target,omitempty"`
	Declared string `json:"declared,omitempty"`

	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	Validated        bool   `json:"validated"`
	ValidationStatus string `json:"validation_status,omitempty"`
	ValidationNote   string `json:"validation_note,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`

	outcome validator.Outcome
}

// Outcome exposes the read-back validation outcome for suspicion analysis.
func (r *ActionResult) Outcome() validator.Outcome {
	return r.outcome
}

// BatchResult aggregates one execution pass over an action list.
type BatchResult struct {
	TurnID  string          `json:"turn_id"`
	Results []*ActionResult `json:"results"`
	Summary BatchSummary    `json:"summary"`
}

// BatchSummary counts results by outcome.
type BatchSummary struct {
	Total            int `json:"total"`
	Succeeded        int `json:"succeeded"`
	Failed           int `json:"failed"`
	ValidationFailed int `json:"validation_failed"`
	Relocated        int `json:"relocated"`
}

// FailedResults returns every result that failed execution or validation.
func (b *BatchResult) FailedResults() []*ActionResult {
	var out []*ActionResult
	for _, r := range b.Results {
		if !r.Success || r.ValidationStatus == validator.StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// Outcomes collects the validation outcomes of successfully validated writes.
func (b *BatchResult) Outcomes() []validator.Outcome {
	var out []validator.Outcome
	for _, r := range b.Results {
		if r.Validated {
			out = append(out, r.outcome)
		}
	}
	return out
}

// TraceEvent wraps an ActionResult for JSONL trace output.
type TraceEvent struct {
	Type      string        `json:"type"` // action_result, turn_note
	Timestamp time.Time     `json:"timestamp"`
	TurnID    string        `json:"turn_id"`
	Result    *ActionResult `json:"result,omitempty"`
	Note      string        `json:"note,omitempty"`
}

// TurnManifest records the complete metadata for one turn. Written as
// turn.yaml after the turn settles.
type TurnManifest struct {
	TurnID      string       `yaml:"turn_id"                json:"turn_id"`
	Document    string       `yaml:"document"               json:"document"`
	Mode        string       `yaml:"mode"                   json:"mode"` // real, dry-run
	Request     string       `yaml:"request,omitempty"      json:"request,omitempty"`
	StartedAt   string       `yaml:"started_at"             json:"started_at"`
	EndedAt     string       `yaml:"ended_at"               json:"ended_at"`
	FinalState  string       `yaml:"final_state"            json:"final_state"`
	Rounds      int          `yaml:"rounds"                 json:"rounds"`
	Corrections []string     `yaml:"corrections,omitempty"  json:"corrections,omitempty"`
	Summary     BatchSummary `yaml:"summary"                json:"summary"`
}

// GenerateTurnID creates a unique turn identifier: timestamp plus random
// suffix, sortable by start time.
func GenerateTurnID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return time.Now().UTC().Format("20060102T150405")
	}
	return fmt.Sprintf("%s-%x", time.Now().UTC().Format("20060102T150405"), b)
}
