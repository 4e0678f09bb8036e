package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so no tal.yaml or .env leaks in.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, v := range []string{"GEMINI_LOG_LEVEL", "GEMINI_MODEL", "OUTPUT_DIR"} {
		t.Setenv(v, "")
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 0.7, cfg.Model.Temperature)
	assert.Equal(t, 1000, cfg.Model.MaxOutputTokens)
	assert.False(t, cfg.Model.Mock)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "./outputs", cfg.Storage.OutputDir)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Empty(t, cfg.Policy.Denylist)
	assert.Equal(t, "TalPromptStudio", cfg.Metrics.Namespace)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
model:
  name: gemini-2.5-pro
  temperature: 0.3
policy:
  denylist:
    - Famous Person
    - another name
storage:
  output_dir: /tmp/from-file
`), 0o600))

	t.Setenv("TAL_STORAGE__OUTPUT_DIR", "/tmp/from-env")
	t.Setenv("TAL_MODEL__MOCK", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model.Name)
	assert.Equal(t, 0.3, cfg.Model.Temperature)
	assert.True(t, cfg.Model.Mock)
	assert.Equal(t, []string{"Famous Person", "another name"}, cfg.Policy.Denylist)
	assert.Equal(t, "/tmp/from-env", cfg.Storage.OutputDir, "environment overrides the file")
}

func TestLoad_EnvLists(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TAL_POLICY__DENYLIST", "alpha beta, gamma")
	t.Setenv("TAL_SERVER__ALLOWED_ORIGINS", "https://a.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha beta", "gamma"}, cfg.Policy.Denylist)
	assert.Equal(t, []string{"https://a.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_LegacyEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GEMINI_LOG_LEVEL", "warn")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-flash-lite")
	t.Setenv("OUTPUT_DIR", "/tmp/legacy")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.Model.Name)
	assert.Equal(t, "/tmp/legacy", cfg.Storage.OutputDir)

	t.Setenv("TAL_MODEL__NAME", "gemini-2.5-pro")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model.Name, "TAL_ variables win over legacy names")
}

func TestLoad_DotEnvAndDefaultFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TAL_STORAGE__PREFIX=from-dotenv\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("server:\n  addr: \":9090\"\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TAL_STORAGE__PREFIX") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Storage.Prefix)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Log:     LogConfig{Level: "info", Format: "console"},
			Model:   ModelConfig{Temperature: 0.7, MaxOutputTokens: 1000},
			Storage: StorageConfig{Backend: BackendFile, OutputDir: "./outputs"},
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"temperature", func(c *Config) { c.Model.Temperature = 3 }},
		{"max tokens", func(c *Config) { c.Model.MaxOutputTokens = 0 }},
		{"backend", func(c *Config) { c.Storage.Backend = "dynamo" }},
		{"s3 bucket", func(c *Config) { c.Storage.Backend = BackendS3 }},
		{"output dir", func(c *Config) { c.Storage.OutputDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
