package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// Go StructuredResponse struct using invopop/jsonschema. The schema is
// embedded in the agent system prompt and used for semantic validation of
// parsed envelopes.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&StructuredResponse{})
	s.ID = "https://github.com/gridpilot/gridpilot/schemas/actions-v1.json"
	s.Title = "Structured Action Response v1"
	s.Description = "Schema for the {message, actions[], thinking} envelope emitted by the agent (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
