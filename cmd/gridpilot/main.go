package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gridpilot/gridpilot/pkg/agent"
	"github.com/gridpilot/gridpilot/pkg/config"
	"github.com/gridpilot/gridpilot/pkg/document"
	"github.com/gridpilot/gridpilot/pkg/index"
	"github.com/gridpilot/gridpilot/pkg/parser"
	"github.com/gridpilot/gridpilot/pkg/runtime"
	"github.com/gridpilot/gridpilot/pkg/schema"
	"github.com/gridpilot/gridpilot/pkg/validator"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagConfig   string
	flagDocument string
	flagSheet    string
	flagMode     string
	flagForce    bool
	flagRequest  string
)

func main() {
	_ = godotenv.Load() // .env is optional and gitignored
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gridpilot",
	Short: "Structured spreadsheet actions with self-correcting execution",
	Long:  "gridpilot — a structured action protocol and execution engine that lets a conversational agent edit spreadsheets safely: parsed envelopes, collision-guarded writes, validated results, bounded correction.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "gridpilot.yaml", "config file path")

	execCmd.Flags().StringVar(&flagDocument, "document", "", "workbook path (.xlsx)")
	execCmd.Flags().StringVar(&flagMode, "mode", "real", "execution mode: real or dry-run")
	turnCmd.Flags().StringVar(&flagDocument, "document", "", "workbook path (.xlsx)")
	turnCmd.Flags().StringVar(&flagRequest, "request", "", "user request for the agent")
	turnCmd.Flags().StringVar(&flagMode, "mode", "real", "execution mode: real or dry-run")
	indexCmd.Flags().StringVar(&flagDocument, "document", "", "workbook path (.xlsx)")
	indexCmd.Flags().StringVar(&flagSheet, "sheet", "", "sheet name (defaults to active sheet)")
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "rebuild even when the cached catalogue matches")

	rootCmd.AddCommand(parseCmd, validateCmd, execCmd, turnCmd, indexCmd, schemaCmd, versionCmd)
}

// --- parse ---

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract a structured envelope from raw agent text (stdin when no file)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runParse,
}

func runParse(cmd *cobra.Command, args []string) error {
	var raw []byte
	var err error
	if len(args) == 1 && args[0] != "-" {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	sr := parser.Parse(string(raw))
	out, err := json.MarshalIndent(sr, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <response.json>",
	Short: "Validate a structured action response file",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	sr, errs := schema.ValidateFile(args[0])

	var errors, warnings []*schema.ValidationError
	for _, e := range errs {
		if e.Severity == "warning" {
			warnings = append(warnings, e)
		} else {
			errors = append(errors, e)
		}
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", w.Phase, w.Message)
		if w.Path != "" {
			fmt.Fprintf(os.Stderr, "    at: %s\n", w.Path)
		}
	}
	if len(errors) > 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errors))
		for i, e := range errors {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed")
	}

	fmt.Printf("✓ %s is valid (%d actions)\n", args[0], len(sr.Actions))
	return nil
}

// --- exec ---

var execCmd = &cobra.Command{
	Use:   "exec <actions.json>",
	Short: "Execute an action batch against a workbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	docPath := flagDocument
	if docPath == "" {
		docPath = cfg.Document
	}
	if docPath == "" {
		return fmt.Errorf("no workbook: pass --document or set 'document' in %s", flagConfig)
	}

	actions, err := schema.LoadActionsFile(args[0])
	if err != nil {
		return err
	}
	if errs := schema.ValidateDomain(actions); schema.HasErrors(errs) {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  [%s] %s: %s\n", e.Phase, e.Path, e.Message)
		}
		return fmt.Errorf("invalid actions")
	}

	wb, err := document.OpenWorkbook(docPath)
	if err != nil {
		return err
	}
	defer wb.Close()

	turnID := runtime.GenerateTurnID()
	engine, cleanup, err := buildEngine(wb, cfg, turnID)
	if err != nil {
		return err
	}
	defer cleanup()

	batch, err := engine.ExecuteBatch(context.Background(), turnID, actions)
	if err != nil {
		return err
	}
	printBatch(batch)

	if flagMode == "real" {
		if err := wb.Save(); err != nil {
			return err
		}
	} else {
		fmt.Println("dry-run: workbook not saved")
	}
	if batch.Summary.Failed > 0 || batch.Summary.ValidationFailed > 0 {
		return fmt.Errorf("%d action(s) failed", batch.Summary.Failed+batch.Summary.ValidationFailed)
	}
	return nil
}

// --- turn ---

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Run one full agent turn: plan, execute, validate, self-correct",
	RunE:  runTurn,
}

func runTurn(cmd *cobra.Command, args []string) error {
	if flagRequest == "" {
		return fmt.Errorf("--request is required")
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	docPath := flagDocument
	if docPath == "" {
		docPath = cfg.Document
	}
	if docPath == "" {
		return fmt.Errorf("no workbook: pass --document or set 'document' in %s", flagConfig)
	}

	wb, err := document.OpenWorkbook(docPath)
	if err != nil {
		return err
	}
	defer wb.Close()

	ctx := context.Background()
	turnID := runtime.GenerateTurnID()
	engine, cleanup, err := buildEngine(wb, cfg, turnID)
	if err != nil {
		return err
	}
	defer cleanup()
	engine.Timeout = cfg.ActionTimeout()

	// Column catalogue for the system prompt.
	sheet, err := wb.ActiveSheet(ctx)
	if err != nil {
		return err
	}
	catalogue, err := engine.Indexer.Build(ctx, wb, sheet, false)
	if err != nil {
		return err
	}
	schemaJSON, err := schema.GenerateJSONSchema()
	if err != nil {
		return err
	}

	client := agent.NewClient(cfg.Agent.BaseURL, "", cfg.Agent.Model)
	ag := agent.New(client, agent.SystemPrompt(schemaJSON, sheet, catalogue))

	sr, err := ag.Ask(ctx, flagRequest)
	if err != nil {
		return err
	}
	fmt.Println(sr.Message)
	if len(sr.Actions) == 0 {
		return nil
	}
	if errs := schema.ValidateResponse(sr); schema.HasErrors(errs) {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  [%s] %s: %s\n", e.Phase, e.Path, e.Message)
		}
		return fmt.Errorf("the agent produced invalid actions")
	}

	susp, err := validator.NewSuspector(cfg.SuspicionRules)
	if err != nil {
		return err
	}
	orch := &runtime.Orchestrator{
		Engine:          engine,
		Suspector:       susp,
		Corrector:       ag,
		FailureRounds:   cfg.Correction.MaxFailureRounds,
		SuspicionRounds: cfg.Correction.MaxSuspicionRounds,
	}

	started := time.Now()
	result, err := orch.RunTurn(ctx, turnID, sr.Actions)
	if err != nil {
		return err
	}
	for _, batch := range result.Batches {
		printBatch(batch)
	}
	fmt.Println(result.Message)

	if flagMode == "real" {
		if err := wb.Save(); err != nil {
			return err
		}
	} else {
		fmt.Println("dry-run: workbook not saved")
	}
	if err := writeManifest(cfg, result, docPath, started); err != nil {
		fmt.Fprintf(os.Stderr, "warning: write turn manifest: %v\n", err)
	}
	if result.State == runtime.StateFailed {
		return fmt.Errorf("turn did not settle cleanly")
	}
	return nil
}

// buildEngine wires an engine with a per-turn JSONL trace under the
// artifacts directory.
func buildEngine(doc document.Document, cfg *config.Config, turnID string) (*runtime.Engine, func(), error) {
	engine := runtime.NewEngine(doc)
	engine.Timeout = cfg.ActionTimeout()

	dir := filepath.Join(cfg.ArtifactsDir, turnID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	trace, err := runtime.NewTraceWriter(filepath.Join(dir, "trace.jsonl"))
	if err != nil {
		return nil, nil, err
	}
	engine.Trace = trace
	return engine, func() { _ = trace.Close() }, nil
}

func writeManifest(cfg *config.Config, result *runtime.TurnResult, docPath string, started time.Time) error {
	manifest := runtime.TurnManifest{
		TurnID:      result.TurnID,
		Document:    docPath,
		Mode:        flagMode,
		Request:     flagRequest,
		StartedAt:   started.UTC().Format(time.RFC3339),
		EndedAt:     time.Now().UTC().Format(time.RFC3339),
		FinalState:  result.State,
		Rounds:      result.Rounds(),
		Corrections: result.Corrections,
		Summary:     result.Summary(),
	}
	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.ArtifactsDir, result.TurnID, "turn.yaml")
	return os.WriteFile(path, data, 0644)
}

func printBatch(batch *runtime.BatchResult) {
	for _, r := range batch.Results {
		status := "✓"
		detail := r.Message
		if !r.Success {
			status = "✗"
			detail = r.Error
		} else if r.ValidationStatus == validator.StatusFailed {
			status = "⚠"
			detail = r.ValidationNote
		}
		fmt.Printf("  %s %d. %s: %s\n", status, r.Index+1, r.Type, detail)
	}
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Print the column catalogue for a workbook sheet",
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	docPath := flagDocument
	if docPath == "" {
		docPath = cfg.Document
	}
	if docPath == "" {
		return fmt.Errorf("no workbook: pass --document or set 'document' in %s", flagConfig)
	}

	wb, err := document.OpenWorkbook(docPath)
	if err != nil {
		return err
	}
	defer wb.Close()

	ctx := context.Background()
	sheet := flagSheet
	if sheet == "" {
		if sheet, err = wb.ActiveSheet(ctx); err != nil {
			return err
		}
	}
	entries, err := index.New().Build(ctx, wb, sheet, flagForce)
	if err != nil {
		return err
	}
	fmt.Print(index.Render(sheet, entries))
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export the structured action response JSON Schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gridpilot %s (%s)\n", version, commit)
	},
}
