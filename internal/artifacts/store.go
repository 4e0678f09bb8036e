// Package artifacts persists per-run stage outputs and the append-only event log.
//
// Every run owns one partition, runs/<run_id>/, holding one JSON object per
// stage (request, enhancer_output, gemini_output) and events.jsonl. Objects
// are overwritten on rewrite; the event log only grows.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Stage names.
const (
	StageRequest        = "request"
	StageEnhancerOutput = "enhancer_output"
	StageGeminiOutput   = "gemini_output"
)

// Stages lists the stage objects of a run in write order.
var Stages = []string{StageRequest, StageEnhancerOutput, StageGeminiOutput}

// EventsName is the base name of the per-run event log.
const EventsName = "events.jsonl"

// ErrNotFound is returned when a run, object or event log does not exist.
var ErrNotFound = errors.New("artifact not found")

// Event is one entry of a run's lifecycle log.
type Event struct {
	Name      string         `json:"name"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Store persists run artifacts. Implementations must be safe for concurrent
// use across distinct run ids.
type Store interface {
	// WriteObject replaces the run's stage object with v encoded as indented
	// JSON and returns the location written.
	WriteObject(ctx context.Context, runID, stage string, v any) (string, error)

	// AppendEvent appends ev to the run's event log and returns its location.
	AppendEvent(ctx context.Context, runID string, ev Event) (string, error)

	// ReadObject returns the raw bytes of a stage object, or ErrNotFound.
	ReadObject(ctx context.Context, runID, stage string) ([]byte, error)

	// Exists reports whether a stage object has been written.
	Exists(ctx context.Context, runID, stage string) (bool, error)

	// ReadEvents returns the run's events in append order, or ErrNotFound.
	ReadEvents(ctx context.Context, runID string) ([]Event, error)

	// EventsLocation returns where the run's event log lives.
	EventsLocation(runID string) string
}

// ValidateKey rejects run ids and stage names that could escape the run partition.
func ValidateKey(kind, v string) error {
	if v == "" {
		return fmt.Errorf("%s must not be empty", kind)
	}
	if strings.ContainsAny(v, `/\`) || strings.Contains(v, "..") || v == "." {
		return fmt.Errorf("invalid %s %q", kind, v)
	}
	return nil
}

func validate(runID, stage string) error {
	if err := ValidateKey("run id", runID); err != nil {
		return err
	}
	if stage != "" {
		return ValidateKey("stage", stage)
	}
	return nil
}

// encodeObject renders v the way every backend stores it: two-space indented
// JSON with a trailing newline, so equal values yield equal bytes.
func encodeObject(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}
	return append(data, '\n'), nil
}

func encodeEvent(ev Event) ([]byte, error) {
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	ev.Timestamp = ev.Timestamp.UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.Name, err)
	}
	return append(data, '\n'), nil
}

func decodeEvents(data []byte) ([]Event, error) {
	var events []Event
	for i, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode event line %d: %w", i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
