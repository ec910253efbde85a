package runtime

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TraceWriter writes ActionResult events to a JSONL trace file.
type TraceWriter struct {
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
}

// NewTraceWriter creates a trace writer that appends to the given file.
func NewTraceWriter(path string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &TraceWriter{
		file:   f,
		writer: w,
		enc:    json.NewEncoder(w),
	}, nil
}

// Write appends an ActionResult as a JSONL event and flushes to disk.
func (tw *TraceWriter) Write(result *ActionResult) error {
	event := TraceEvent{
		Type:      "action_result",
		Timestamp: time.Now(),
		TurnID:    result.TurnID,
		Result:    result,
	}
	return tw.emit(event)
}

// Note appends a free-form turn event, e.g. a correction round boundary.
func (tw *TraceWriter) Note(turnID, note string) error {
	return tw.emit(TraceEvent{
		Type:      "turn_note",
		Timestamp: time.Now(),
		TurnID:    turnID,
		Note:      note,
	})
}

func (tw *TraceWriter) emit(event TraceEvent) error {
	if err := tw.enc.Encode(event); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	// Flush and sync at action boundaries
	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	if err := tw.writer.Flush(); err != nil {
		return err
	}
	return tw.file.Close()
}
