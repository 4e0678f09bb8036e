package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fpang/tal-prompt-studio/internal/artifacts"
	"github.com/fpang/tal-prompt-studio/internal/assets"
	"github.com/fpang/tal-prompt-studio/internal/enhancer"
	"github.com/fpang/tal-prompt-studio/internal/gateway"
	"github.com/fpang/tal-prompt-studio/internal/prompt"
	"github.com/fpang/tal-prompt-studio/internal/recorder"
)

func strPtr(s string) *string { return &s }

type failingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (f *failingGenerator) Generate(context.Context, gateway.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "", errors.New("upstream unavailable")
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, req gateway.GenerateRequest) (string, error) {
	return `{"final_prompt":"Photorealistic photo of TAL, model output","negative_prompt":"cartoon",` +
		`"reference_image_ids":["TAL_ANCHOR_IMAGE"],"reference_strength":0.9,"size":"1024x1024",` +
		`"count":1,"seed":null,"assumptions":[],"policy_notes":[]}`, nil
}

func newRunner(t *testing.T, gen gateway.Generator, opts ...Option) (*Runner, *artifacts.FileStore) {
	t.Helper()
	store := artifacts.NewFileStore(t.TempDir())
	r := NewRunner(
		enhancer.New(assets.Embedded(), nil),
		gateway.New(gen),
		recorder.New(store),
		opts...,
	)
	return r, store
}

func TestExecute_RedactsPublicFigureInMockMode(t *testing.T) {
	r, store := newRunner(t, nil)

	payload, err := r.Execute(context.Background(), Input{
		UserRequest: strPtr("TAL drinking coffee with Elon Musk at a cafe"),
		Size:        strPtr("1024x1024"),
	})
	require.NoError(t, err)

	assert.Equal(t, recorder.StatusOK, payload.Status)
	pkg := payload.PromptPackage
	assert.Equal(t, []string{prompt.AnchorImageID}, pkg.ReferenceImageIDs)
	assert.Equal(t, "1024x1024", pkg.Size)

	var mentionsRemoval bool
	for _, n := range pkg.PolicyNotes {
		if strings.Contains(n, "elon musk") {
			mentionsRemoval = true
		}
	}
	assert.True(t, mentionsRemoval, "policy notes: %v", pkg.PolicyNotes)
	assert.Contains(t, pkg.PolicyNotes, gateway.MockNote)
	assert.NotContains(t, strings.ToLower(pkg.FinalPrompt), "elon")

	for _, stage := range artifacts.Stages {
		ok, err := store.Exists(context.Background(), payload.RunID, stage)
		require.NoError(t, err)
		assert.True(t, ok, stage)
	}
	persisted, err := store.ReadObject(context.Background(), payload.RunID, artifacts.StageEnhancerOutput)
	require.NoError(t, err)
	assert.NotContains(t, string(persisted), "TAL Image Prompt Builder", "system prompt is never persisted")
}

func TestExecute_ValidationHasNoSideEffects(t *testing.T) {
	gen := &failingGenerator{}
	r, store := newRunner(t, gen, WithRunIDs(func() string { return "fixed" }))

	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"missing request", Input{}, "user_request"},
		{"blank request", Input{UserRequest: strPtr("  \n ")}, "user_request"},
		{"bad size", Input{UserRequest: strPtr("TAL"), Size: strPtr("big")}, "size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Execute(context.Background(), tt.in)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	assert.Zero(t, gen.calls, "no model call on invalid input")
	_, err := store.ReadEvents(context.Background(), "fixed")
	assert.True(t, errors.Is(err, artifacts.ErrNotFound), "no artifacts on invalid input")
}

func TestExecute_FallbackAfterRepeatedModelFailure(t *testing.T) {
	gen := &failingGenerator{}
	r, _ := newRunner(t, gen)

	payload, err := r.Execute(context.Background(), Input{UserRequest: strPtr("TAL walking a dog in the park at sunset")})
	require.NoError(t, err)

	assert.Equal(t, recorder.StatusOK, payload.Status)
	assert.Equal(t, 2, gen.calls)
	assert.NotEmpty(t, payload.PromptPackage.FinalPrompt)

	var fallback string
	for _, n := range payload.PromptPackage.PolicyNotes {
		if strings.HasPrefix(n, "Model output unavailable after retry") {
			fallback = n
		}
	}
	require.NotEmpty(t, fallback)
	assert.Contains(t, fallback, "upstream unavailable")
}

func TestExecute_ModelOutputAndSeed(t *testing.T) {
	r, _ := newRunner(t, echoGenerator{})
	seed := int64(1234)

	payload, err := r.Execute(context.Background(), Input{UserRequest: strPtr("TAL on a rooftop"), Seed: &seed})
	require.NoError(t, err)

	pkg := payload.PromptPackage
	assert.Equal(t, "Photorealistic photo of TAL, model output", pkg.FinalPrompt)
	require.NotNil(t, pkg.Seed)
	assert.Equal(t, seed, *pkg.Seed)
	assert.Equal(t, []string{}, pkg.PolicyNotes)
}

func TestExecute_ConcurrentRunsAreIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, store := newRunner(t, nil)
	in := Input{UserRequest: strPtr("TAL reading a book on a train")}

	const runs = 2
	payloads := make([]string, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.Execute(context.Background(), in)
			if assert.NoError(t, err) {
				payloads[i] = p.RunID
			}
		}(i)
	}
	wg.Wait()

	require.NotEqual(t, payloads[0], payloads[1])
	for _, id := range payloads {
		events, err := store.ReadEvents(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, events, 5)
		assert.Equal(t, id, events[0].Data["run_id"])
		assert.Equal(t, id, events[4].Data["run_id"])
		for _, ev := range events[1:4] {
			assert.Contains(t, fmt.Sprint(ev.Data["path"]), id)
		}
	}
}

func TestExecute_StoreFailurePropagates(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(
		enhancer.New(assets.Embedded(), nil),
		gateway.New(nil),
		recorder.New(artifacts.NewFileStore(dir)),
		WithRunIDs(func() string { return "../escape" }),
	)

	_, err := r.Execute(context.Background(), Input{UserRequest: strPtr("TAL")})
	require.Error(t, err)
	var vErr *ValidationError
	assert.False(t, errors.As(err, &vErr))
}

func TestInfo(t *testing.T) {
	r, _ := newRunner(t, nil, WithModelName("gemini-2.5-flash"))
	info := r.Info()
	assert.Equal(t, FlowName, info.Name)
	assert.Equal(t, []string{"enhance", "generate", "persist"}, info.Stages)
	assert.False(t, info.ModelAvailable)
	assert.Empty(t, info.Model)

	r, _ = newRunner(t, echoGenerator{}, WithModelName("gemini-2.5-flash"))
	info = r.Info()
	assert.True(t, info.ModelAvailable)
	assert.Equal(t, "gemini-2.5-flash", info.Model)
}

func TestMergeNotes(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, mergeNotes([]string{"a", "b"}, []string{"b", "", "c"}))
	assert.Equal(t, []string{}, mergeNotes(nil, nil))
}
