// Package agent talks to the conversational model that plans actions. It
// maintains the turn transcript and converts raw model output into parsed
// structured responses.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gridpilot/gridpilot/pkg/parser"
	"github.com/gridpilot/gridpilot/pkg/schema"
)

// Completer is the raw model call. Client implements it over an
// OpenAI-compatible HTTP API; Scripted replays canned output in tests.
type Completer interface {
	Complete(ctx context.Context, system string, transcript []Message) (string, error)
}

// Message is one transcript entry.
type Message struct {
	ID      string    `json:"id"`
	Role    string    `json:"role"` // system, user, assistant
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Agent wraps a Completer with the system prompt and conversation state.
type Agent struct {
	completer Completer
	system    string
	history   []Message
}

// New creates an agent with a fixed system prompt.
func New(completer Completer, system string) *Agent {
	return &Agent{completer: completer, system: system}
}

// History returns a copy of the transcript.
func (a *Agent) History() []Message {
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Agent) append(role, content string) {
	a.history = append(a.history, Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		At:      time.Now(),
	})
}

// Ask sends a user request and parses the reply into a structured response.
// Parsing never fails; malformed model output degrades to a plain message.
func (a *Agent) Ask(ctx context.Context, request string) (*schema.StructuredResponse, error) {
	a.append("user", request)
	raw, err := a.completer.Complete(ctx, a.system, a.history)
	if err != nil {
		return nil, err
	}
	a.append("assistant", raw)
	return parser.Parse(raw), nil
}

// Correct feeds an execution diagnostic back into the conversation, framed
// as a correction request, and parses the corrective reply. Implements
// runtime.Corrector.
func (a *Agent) Correct(ctx context.Context, diagnostic string) (*schema.StructuredResponse, error) {
	return a.Ask(ctx, CorrectionPreamble(diagnostic))
}
