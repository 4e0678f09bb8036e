package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/tal-prompt-studio/internal/artifacts"
	"github.com/fpang/tal-prompt-studio/internal/auth"
	"github.com/fpang/tal-prompt-studio/internal/chat"
	"github.com/fpang/tal-prompt-studio/internal/config"
	"github.com/fpang/tal-prompt-studio/internal/gateway"
	"github.com/fpang/tal-prompt-studio/internal/pipeline"
	"github.com/fpang/tal-prompt-studio/internal/recorder"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Log:       config.LogConfig{Level: "info", Format: "console"},
		Model:     config.ModelConfig{Temperature: 0.7, MaxOutputTokens: 1000},
		Storage:   config.StorageConfig{Backend: config.BackendFile, OutputDir: t.TempDir()},
		Metrics:   config.MetricsConfig{Namespace: "Test"},
		Telemetry: config.TelemetryConfig{ServiceName: "tal-test"},
	}
}

// noCredentials hides every credential source from auth.ResolveAPIKey.
func noCredentials(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("HOME", t.TempDir())
}

func TestNew_MockWhenNoCredential(t *testing.T) {
	noCredentials(t)
	cfg := testConfig(t)

	app, err := New(context.Background(), cfg, Overrides{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	info := app.Runner.Info()
	assert.False(t, info.ModelAvailable)
	assert.Empty(t, app.Model)
	assert.Equal(t, auth.SourceNone, app.KeySource)
	assert.Equal(t, "embedded", app.Prompts)

	fs, ok := app.Store.(*artifacts.FileStore)
	require.True(t, ok)
	assert.Equal(t, cfg.Storage.OutputDir, fs.Root())
}

func TestNew_MockForced(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.Mock = true

	app, err := New(context.Background(), cfg, Overrides{APIKey: "ignored"})
	require.NoError(t, err)
	assert.False(t, app.Runner.Info().ModelAvailable)
}

type fixedGenerator struct{ out string }

func (g fixedGenerator) Generate(context.Context, gateway.GenerateRequest) (string, error) {
	return g.out, nil
}

func TestNew_GeneratorOverrideWithMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	var emf bytes.Buffer

	gen := fixedGenerator{out: `{"final_prompt":"Photorealistic photograph of TAL on a hill","negative_prompt":"cartoon",` +
		`"reference_image_ids":["TAL_ANCHOR_IMAGE"],"reference_strength":0.9,"size":"1024x1024",` +
		`"count":1,"seed":null,"assumptions":[],"policy_notes":[]}`}
	app, err := New(context.Background(), cfg, Overrides{Generator: gen, MetricsWriter: &emf})
	require.NoError(t, err)

	info := app.Runner.Info()
	assert.True(t, info.ModelAvailable)
	assert.Equal(t, chat.DefaultModelName, info.Model)

	req := "TAL on a hill"
	payload, err := app.Runner.Execute(context.Background(), pipeline.Input{UserRequest: &req})
	require.NoError(t, err)
	assert.Equal(t, recorder.StatusOK, payload.Status)
	assert.Equal(t, "Photorealistic photograph of TAL on a hill", payload.PromptPackage.FinalPrompt)

	line := strings.TrimSpace(emf.String())
	require.NotEmpty(t, line)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.Split(line, "\n")[0]), &doc))
	assert.Equal(t, string(gateway.SourceModel), doc["Source"])
}

func TestNew_CustomDenylistAndPromptsDir(t *testing.T) {
	noCredentials(t)
	cfg := testConfig(t)
	cfg.Policy.Denylist = []string{"Jane Roe"}
	cfg.Prompts.Dir = t.TempDir()

	app, err := New(context.Background(), cfg, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, cfg.Prompts.Dir, app.Prompts)

	req := "TAL with Jane Roe"
	_, err = app.Runner.Execute(context.Background(), pipeline.Input{UserRequest: &req})
	require.Error(t, err, "an empty prompts directory has no system prompt")
}

func TestStartupLog(t *testing.T) {
	noCredentials(t)
	app, err := New(context.Background(), testConfig(t), Overrides{})
	require.NoError(t, err)
	assert.NotNil(t, app.StartupLog("tal-test", time.Now()))
}
