package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/tal-prompt-studio/internal/artifacts"
	"github.com/fpang/tal-prompt-studio/internal/enhancer"
	"github.com/fpang/tal-prompt-studio/internal/prompt"
)

func fixture() (prompt.RunRequest, enhancer.Summary, prompt.Package) {
	req := prompt.RunRequest{UserRequest: "TAL at a cafe", Size: "1024x1024"}
	summary := enhancer.Summary{UserMessage: "User Request: \"TAL at a cafe\"", Notes: []string{"note"}}
	pkg := prompt.Package{
		FinalPrompt:       "Photorealistic TAL at a cafe",
		NegativePrompt:    prompt.DefaultNegativePrompt,
		ReferenceImageIDs: []string{prompt.AnchorImageID},
		ReferenceStrength: 0.92,
		Size:              "1024x1024",
		Count:             1,
		Assumptions:       []string{},
		PolicyNotes:       []string{"a", "b"},
	}
	return req, summary, pkg
}

func newRecorder(t *testing.T) (*Recorder, *artifacts.FileStore) {
	t.Helper()
	store := artifacts.NewFileStore(t.TempDir())
	r := New(store)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r, store
}

func TestRecord_WritesArtifactsAndEvents(t *testing.T) {
	ctx := context.Background()
	r, store := newRecorder(t)
	req, summary, pkg := fixture()

	payload, err := r.Record(ctx, "run-1", req, summary, pkg)
	require.NoError(t, err)

	assert.Equal(t, StatusOK, payload.Status)
	assert.Equal(t, "run-1", payload.RunID)
	assert.Equal(t, pkg, payload.PromptPackage)
	assert.Equal(t, store.EventsLocation("run-1"), payload.ArtifactPaths.Events)

	for _, stage := range artifacts.Stages {
		ok, err := store.Exists(ctx, "run-1", stage)
		require.NoError(t, err)
		assert.True(t, ok, stage)
	}

	raw, err := store.ReadObject(ctx, "run-1", artifacts.StageEnhancerOutput)
	require.NoError(t, err)
	var persisted map[string]any
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Len(t, persisted, 2, "only the user message and notes are persisted")
	assert.Contains(t, persisted, "user_message")
	assert.Contains(t, persisted, "notes")

	events, err := store.ReadEvents(ctx, "run-1")
	require.NoError(t, err)
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{
		EventRunStarted, EventRequestSaved, EventEnhancerOutputSaved, EventGeminiOutputSaved, EventRunCompleted,
	}, names)

	assert.Equal(t, "run-1", events[0].Data["run_id"])
	assert.Equal(t, payload.ArtifactPaths.Request, events[1].Data["path"])
	assert.Equal(t, payload.ArtifactPaths.EnhancerOutput, events[2].Data["path"])
	assert.Equal(t, payload.ArtifactPaths.GeminiOutput, events[3].Data["path"])
	assert.Equal(t, float64(len(pkg.FinalPrompt)), events[3].Data["final_prompt_length"])
	assert.Equal(t, float64(2), events[4].Data["policy_note_count"])
}

func TestRecord_Idempotent(t *testing.T) {
	ctx := context.Background()
	r, store := newRecorder(t)
	req, summary, pkg := fixture()

	_, err := r.Record(ctx, "run", req, summary, pkg)
	require.NoError(t, err)
	before := map[string][]byte{}
	for _, stage := range artifacts.Stages {
		before[stage], err = store.ReadObject(ctx, "run", stage)
		require.NoError(t, err)
	}

	_, err = r.Record(ctx, "run", req, summary, pkg)
	require.NoError(t, err)
	for _, stage := range artifacts.Stages {
		after, err := store.ReadObject(ctx, "run", stage)
		require.NoError(t, err)
		assert.Equal(t, before[stage], after, stage)
	}

	events, err := store.ReadEvents(ctx, "run")
	require.NoError(t, err)
	assert.Len(t, events, 10, "event log grows on every call")
}

func TestRecord_NilNotesPersistAsEmptyList(t *testing.T) {
	ctx := context.Background()
	r, store := newRecorder(t)
	req, _, pkg := fixture()

	_, err := r.Record(ctx, "run", req, enhancer.Summary{UserMessage: "m"}, pkg)
	require.NoError(t, err)

	raw, err := store.ReadObject(ctx, "run", artifacts.StageEnhancerOutput)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"notes": []`)
}

// failingStore fails every write after the first n appends.
type failingStore struct {
	*artifacts.FileStore
	appends int
	limit   int
}

func (f *failingStore) AppendEvent(ctx context.Context, runID string, ev artifacts.Event) (string, error) {
	f.appends++
	if f.appends > f.limit {
		return "", errors.New("disk full")
	}
	return f.FileStore.AppendEvent(ctx, runID, ev)
}

func TestRecord_PropagatesStoreErrors(t *testing.T) {
	store := &failingStore{FileStore: artifacts.NewFileStore(t.TempDir()), limit: 2}
	req, summary, pkg := fixture()

	_, err := New(store).Record(context.Background(), "run", req, summary, pkg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record "+EventEnhancerOutputSaved)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRecord_RejectsBadRunID(t *testing.T) {
	r, _ := newRecorder(t)
	req, summary, pkg := fixture()
	_, err := r.Record(context.Background(), "../escape", req, summary, pkg)
	assert.Error(t, err)
}
