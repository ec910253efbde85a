package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadStrictRejectsUnknownFields(t *testing.T) {
	if _, err := Load(strings.NewReader(`{"message": "hi", "acitons": []}`)); err == nil {
		t.Fatal("misspelled field must fail strict decode")
	}
}

func TestLoadEnvelope(t *testing.T) {
	sr, err := Load(strings.NewReader(`{
		"message": "writing",
		"actions": [{"type": "write_values", "range": "A1", "values": [["x", 1]]}]
	}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sr.Message != "writing" || len(sr.Actions) != 1 {
		t.Fatalf("parsed = %+v", sr)
	}
	if sr.Actions[0].Values[0][1] != float64(1) {
		t.Fatalf("values = %+v", sr.Actions[0].Values)
	}
}

func TestLoadActionsFileBareArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.json")
	body := `[{"type": "clear_range", "range": "A1:B2"}]`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	actions, err := LoadActionsFile(path)
	if err != nil {
		t.Fatalf("LoadActionsFile: %v", err)
	}
	if len(actions) != 1 || actions[0].Type != KindClearRange {
		t.Fatalf("actions = %+v", actions)
	}
}

func TestLoadActionsFileEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.json")
	body := `{"message": "m", "actions": [{"type": "add_sheet", "sheetName": "Report"}]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	actions, err := LoadActionsFile(path)
	if err != nil {
		t.Fatalf("LoadActionsFile: %v", err)
	}
	if len(actions) != 1 || actions[0].SheetName != "Report" {
		t.Fatalf("actions = %+v", actions)
	}
}

func TestKnownKindCoversAllConstants(t *testing.T) {
	if len(Kinds) != 34 {
		t.Fatalf("kinds = %d, want 34", len(Kinds))
	}
	for _, k := range Kinds {
		if !KnownKind(k) {
			t.Errorf("KnownKind(%q) = false", k)
		}
	}
	if KnownKind("write_valuez") {
		t.Error("near-miss kind must be unknown")
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatalf("GenerateJSONSchema: %v", err)
	}
	s := string(data)
	for _, want := range []string{"Structured Action Response v1", "message", "actions"} {
		if !strings.Contains(s, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
