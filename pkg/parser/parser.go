// Package parser extracts a structured {message, actions[]} envelope from a
// raw agent response. Agent output is not guaranteed to be well-formed
// JSON-only, so extraction runs an ordered cascade of strategies and
// degrades to a plain-text message rather than losing the reply.
package parser

import (
	"encoding/json"
	"strings"

	"github.com/gridpilot/gridpilot/pkg/schema"
)

// Parse extracts a StructuredResponse from raw agent text. It never fails:
// when no strategy yields a valid envelope the whole text becomes the
// message and Actions stays nil.
func Parse(raw string) *schema.StructuredResponse {
	text := stripThinkBlocks(raw)

	strategies := []func(string) *schema.StructuredResponse{
		parseTaggedFence,
		parseAnyFence,
		parseCountTagged,
		parseInlineEnvelope,
		parseBareAction,
		parseWholeObject,
	}
	for _, try := range strategies {
		if sr := try(text); sr != nil {
			return sr
		}
	}
	return &schema.StructuredResponse{Message: strings.TrimSpace(text)}
}

// parseTaggedFence handles a fenced block explicitly tagged as JSON.
func parseTaggedFence(text string) *schema.StructuredResponse {
	for _, tag := range []string{"```json", "```JSON"} {
		start := strings.Index(text, tag)
		if start == -1 {
			continue
		}
		body := text[start+len(tag):]
		end := strings.Index(body, "```")
		if end == -1 {
			continue
		}
		if sr := decodeEnvelope(body[:end]); sr != nil {
			return sr
		}
	}
	return nil
}

// parseAnyFence handles any fenced block whose contents begin with '{'.
func parseAnyFence(text string) *schema.StructuredResponse {
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start == -1 {
			return nil
		}
		body := rest[start+3:]
		// Skip the info string line (e.g. "json", "javascript").
		if nl := strings.Index(body, "\n"); nl != -1 && !strings.HasPrefix(strings.TrimSpace(body), "{") {
			body = body[nl+1:]
		}
		end := strings.Index(body, "```")
		if end == -1 {
			return nil
		}
		candidate := strings.TrimSpace(body[:end])
		if strings.HasPrefix(candidate, "{") {
			if sr := decodeEnvelope(candidate); sr != nil {
				return sr
			}
		}
		rest = body[end+3:]
	}
}

// countEnvelope is the {"actionCount": N, "actions": [...]} variant some
// responses use instead of the canonical envelope.
type countEnvelope struct {
	Message     string          `json:"message"`
	ActionCount int             `json:"actionCount"`
	Actions     []schema.Action `json:"actions"`
}

// parseCountTagged handles an inline object carrying the actionCount tag;
// the prose before the object becomes the message.
func parseCountTagged(text string) *schema.StructuredResponse {
	for _, obj := range scanObjects(text) {
		if !strings.Contains(obj.body, `"actionCount"`) {
			continue
		}
		var ce countEnvelope
		if err := json.Unmarshal([]byte(obj.body), &ce); err != nil {
			continue
		}
		if len(ce.Actions) == 0 {
			continue
		}
		msg := ce.Message
		if msg == "" {
			msg = strings.TrimSpace(text[:obj.start])
		}
		return &schema.StructuredResponse{Message: msg, Actions: ce.Actions}
	}
	return nil
}

// parseInlineEnvelope handles a full envelope object embedded anywhere in
// free text.
func parseInlineEnvelope(text string) *schema.StructuredResponse {
	for _, obj := range scanObjects(text) {
		if !strings.Contains(obj.body, `"message"`) || !strings.Contains(obj.body, `"actions"`) {
			continue
		}
		if sr := decodeEnvelope(obj.body); sr != nil {
			return sr
		}
	}
	return nil
}

// parseBareAction handles a single action object starting with a "type"
// key. Brace matching (not a regex) finds the balanced closing brace, since
// payloads may contain nested braces.
func parseBareAction(text string) *schema.StructuredResponse {
	for _, obj := range scanObjects(text) {
		if !startsWithKey(obj.body, "type") {
			continue
		}
		var a schema.Action
		if err := json.Unmarshal([]byte(obj.body), &a); err != nil {
			continue
		}
		if !schema.KnownKind(a.Type) {
			continue
		}
		return &schema.StructuredResponse{
			Message: strings.TrimSpace(text[:obj.start]),
			Actions: []schema.Action{a},
		}
	}
	return nil
}

// parseWholeObject handles a response that is, after trimming, a single
// JSON object.
func parseWholeObject(text string) *schema.StructuredResponse {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil
	}
	return decodeEnvelope(trimmed)
}

// decodeEnvelope parses candidate JSON as a StructuredResponse, accepting
// it only when it carries a string "message" field.
func decodeEnvelope(candidate string) *schema.StructuredResponse {
	candidate = strings.TrimSpace(candidate)
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return nil
	}
	rawMsg, ok := probe["message"]
	if !ok {
		return nil
	}
	var msg string
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		return nil
	}
	var sr schema.StructuredResponse
	if err := json.Unmarshal([]byte(candidate), &sr); err != nil {
		return nil
	}
	return &sr
}

// jsonObject is one balanced brace-delimited span found in free text.
type jsonObject struct {
	start int
	body  string
}

// scanObjects returns every top-level balanced {...} span in text, in
// order of appearance.
func scanObjects(text string) []jsonObject {
	var out []jsonObject
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchBrace(text, i)
		if end == -1 {
			continue
		}
		out = append(out, jsonObject{start: i, body: text[i : end+1]})
		i = end
	}
	return out
}

// matchBrace scans forward from the '{' at start and returns the index of
// its balanced closing brace, tracking string and escape state so braces
// inside JSON strings do not count. Returns -1 when unbalanced.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// startsWithKey reports whether the object body's first key is the given
// name.
func startsWithKey(body, key string) bool {
	inner := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), "{"))
	return strings.HasPrefix(inner, `"`+key+`"`)
}

// stripThinkBlocks removes <think>...</think> reasoning blocks before
// extraction; reasoning models emit them ahead of structured output.
func stripThinkBlocks(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "</think>")
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
	return s
}
