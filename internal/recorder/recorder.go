// Package recorder persists the three stage outputs of a run and its ordered
// lifecycle events, then builds the response payload.
package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/tal-prompt-studio/internal/artifacts"
	"github.com/fpang/tal-prompt-studio/internal/enhancer"
	"github.com/fpang/tal-prompt-studio/internal/prompt"
)

// Lifecycle event names, in emission order.
const (
	EventRunStarted          = "run_started"
	EventRequestSaved        = "request_saved"
	EventEnhancerOutputSaved = "enhancer_output_saved"
	EventGeminiOutputSaved   = "gemini_output_saved"
	EventRunCompleted        = "run_completed"
)

// StatusOK is the status of every successful payload.
const StatusOK = "ok"

// ArtifactPaths locates the artifacts of one run.
type ArtifactPaths struct {
	Request        string `json:"request"`
	EnhancerOutput string `json:"enhancer_output"`
	GeminiOutput   string `json:"gemini_output"`
	Events         string `json:"events"`
}

// Payload is the response returned for a completed run.
type Payload struct {
	Status        string         `json:"status"`
	RunID         string         `json:"run_id"`
	PromptPackage prompt.Package `json:"prompt_package"`
	ArtifactPaths ArtifactPaths  `json:"artifact_paths"`
}

// Recorder writes run artifacts to a Store.
type Recorder struct {
	store artifacts.Store
	now   func() time.Time
}

// New returns a Recorder over store.
func New(store artifacts.Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Store returns the underlying artifact store.
func (r *Recorder) Store() artifacts.Store {
	return r.store
}

// Record persists one run. Calling it again with the same run id overwrites
// the stage objects and appends a second set of events.
func (r *Recorder) Record(ctx context.Context, runID string, req prompt.RunRequest, summary enhancer.Summary, pkg prompt.Package) (*Payload, error) {
	if err := artifacts.ValidateKey("run id", runID); err != nil {
		return nil, err
	}
	if summary.Notes == nil {
		summary.Notes = []string{}
	}

	if err := r.emit(ctx, runID, EventRunStarted, map[string]any{"run_id": runID}); err != nil {
		return nil, err
	}

	paths := ArtifactPaths{Events: r.store.EventsLocation(runID)}
	var err error

	if paths.Request, err = r.store.WriteObject(ctx, runID, artifacts.StageRequest, req); err != nil {
		return nil, fmt.Errorf("save request: %w", err)
	}
	if err := r.emit(ctx, runID, EventRequestSaved, map[string]any{"path": paths.Request}); err != nil {
		return nil, err
	}

	if paths.EnhancerOutput, err = r.store.WriteObject(ctx, runID, artifacts.StageEnhancerOutput, summary); err != nil {
		return nil, fmt.Errorf("save enhancer output: %w", err)
	}
	if err := r.emit(ctx, runID, EventEnhancerOutputSaved, map[string]any{"path": paths.EnhancerOutput}); err != nil {
		return nil, err
	}

	if paths.GeminiOutput, err = r.store.WriteObject(ctx, runID, artifacts.StageGeminiOutput, pkg); err != nil {
		return nil, fmt.Errorf("save prompt package: %w", err)
	}
	if err := r.emit(ctx, runID, EventGeminiOutputSaved, map[string]any{
		"path":                paths.GeminiOutput,
		"final_prompt_length": len(pkg.FinalPrompt),
	}); err != nil {
		return nil, err
	}

	if err := r.emit(ctx, runID, EventRunCompleted, map[string]any{
		"run_id":            runID,
		"policy_note_count": len(pkg.PolicyNotes),
	}); err != nil {
		return nil, err
	}

	log.Info().
		Str("run_id", runID).
		Str("events", paths.Events).
		Int("policy_notes", len(pkg.PolicyNotes)).
		Msg("Run recorded")

	return &Payload{
		Status:        StatusOK,
		RunID:         runID,
		PromptPackage: pkg,
		ArtifactPaths: paths,
	}, nil
}

func (r *Recorder) emit(ctx context.Context, runID, name string, data map[string]any) error {
	_, err := r.store.AppendEvent(ctx, runID, artifacts.Event{
		Name:      name,
		Data:      data,
		Timestamp: r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	return nil
}
