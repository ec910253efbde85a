package agent

import (
	"fmt"
	"strings"

	"github.com/gridpilot/gridpilot/pkg/index"
	"github.com/gridpilot/gridpilot/pkg/schema"
)

const promptHeader = `You are a spreadsheet assistant. You manipulate the user's workbook by
emitting structured actions; you never describe an edit without emitting the
action that performs it.

Reply with a single JSON object:

  {"message": "<what you did, for the user>", "actions": [ ... ]}

Rules:
- "message" is always required, even for pure conversation.
- Omit "actions" when the user only asked a question.
- Target ranges in A1 notation; qualify with a sheet name ("Sheet2!A1")
  when not writing to the active sheet.
- Never overwrite existing data unless the user explicitly asked;
  writes into occupied cells are relocated automatically.
- Use the column catalogue below for column references; do not guess
  column letters.`

// SystemPrompt assembles the full system prompt: instructions, the action
// schema, the supported action kinds, and the per-sheet column catalogue.
func SystemPrompt(schemaJSON []byte, sheet string, catalogue []index.ColumnIndexEntry) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n\nSupported action types: ")
	b.WriteString(strings.Join(schema.Kinds, ", "))
	b.WriteString("\n\nAction schema (JSON Schema):\n")
	b.Write(schemaJSON)
	b.WriteString("\n\n")
	b.WriteString(index.Render(sheet, catalogue))
	return b.String()
}

// CorrectionPreamble frames an execution diagnostic as a correction request
// before it re-enters the conversation.
func CorrectionPreamble(diagnostic string) string {
	return fmt.Sprintf("Your previous actions were executed with problems:\n\n%s", diagnostic)
}
