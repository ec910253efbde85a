package agent

import (
	"context"
	"fmt"
)

// Scripted replays canned raw responses in order. Test double for Completer.
type Scripted struct {
	Responses []string
	// Calls records the transcripts each call received.
	Calls [][]Message

	next int
}

// Complete returns the next canned response.
func (s *Scripted) Complete(ctx context.Context, system string, transcript []Message) (string, error) {
	copied := make([]Message, len(transcript))
	copy(copied, transcript)
	s.Calls = append(s.Calls, copied)

	if s.next >= len(s.Responses) {
		return "", fmt.Errorf("scripted: no response for call %d", s.next+1)
	}
	out := s.Responses[s.next]
	s.next++
	return out, nil
}
