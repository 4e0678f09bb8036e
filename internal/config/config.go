// Package config loads the service configuration once at startup.
//
// Sources, lowest precedence first: built-in defaults, a YAML file, then
// environment variables named TAL_<SECTION>__<KEY> (for example
// TAL_MODEL__NAME or TAL_STORAGE__OUTPUT_DIR). A .env file in the working
// directory is loaded into the environment first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "TAL_"

// DefaultFile is read when no explicit file is given and it exists.
const DefaultFile = "tal.yaml"

// Storage backends.
const (
	BackendFile = "file"
	BackendS3   = "s3"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Model     ModelConfig     `koanf:"model"`
	Prompts   PromptsConfig   `koanf:"prompts"`
	Policy    PolicyConfig    `koanf:"policy"`
	Storage   StorageConfig   `koanf:"storage"`
	Server    ServerConfig    `koanf:"server"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	AWS       AWSConfig       `koanf:"aws"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // console or json
}

type ModelConfig struct {
	Name            string  `koanf:"name"`
	APIKey          string  `koanf:"api_key"`
	Temperature     float64 `koanf:"temperature"`
	MaxOutputTokens int     `koanf:"max_output_tokens"`
	// Mock forces mock mode even when a credential is available.
	Mock bool `koanf:"mock"`
}

type PromptsConfig struct {
	// Dir overrides the embedded prompt documents when set.
	Dir string `koanf:"dir"`
}

type PolicyConfig struct {
	// Denylist replaces the built-in public-figure list when non-empty.
	Denylist []string `koanf:"denylist"`
}

type StorageConfig struct {
	Backend   string `koanf:"backend"`
	OutputDir string `koanf:"output_dir"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type AWSConfig struct {
	// GeminiKeyParam is the SSM SecureString holding the model credential.
	GeminiKeyParam string `koanf:"gemini_key_param"`
}

var defaults = map[string]any{
	"log.level":               "info",
	"log.format":              "console",
	"model.temperature":       0.7,
	"model.max_output_tokens": 1000,
	"model.mock":              false,
	"storage.backend":         BackendFile,
	"storage.output_dir":      "./outputs",
	"storage.prefix":          "",
	"server.addr":             ":8080",
	"server.allowed_origins":  []string{"http://localhost:3000", "http://localhost:5173"},
	"server.shutdown_timeout": "10s",
	"metrics.enabled":         false,
	"metrics.namespace":       "TalPromptStudio",
	"telemetry.enabled":       false,
	"telemetry.service_name":  "tal-prompt-studio",
	"aws.gemini_key_param":    "/tal-prompt-studio/gemini-api-key",
}

// legacyEnv maps environment variables used by earlier tooling onto keys.
// They apply only when the key is not set by the file or a TAL_ variable.
var legacyEnv = map[string]string{
	"GEMINI_LOG_LEVEL": "log.level",
	"GEMINI_MODEL":     "model.name",
	"OUTPUT_DIR":       "storage.output_dir",
}

// Load builds the Config. path names a YAML file that must exist; an empty
// path reads DefaultFile if present.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	filePath, required := path, true
	if filePath == "" {
		filePath, required = DefaultFile, false
	}
	if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
		if required || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", filePath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for envVar, key := range legacyEnv {
		if v := os.Getenv(envVar); v != "" && !k.Exists(key) {
			k.Set(key, v)
		}
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Policy.Denylist = splitList(cfg.Policy.Denylist)
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be within [0, 2], got %v", c.Model.Temperature)
	}
	if c.Model.MaxOutputTokens <= 0 {
		return fmt.Errorf("model.max_output_tokens must be positive, got %d", c.Model.MaxOutputTokens)
	}
	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.OutputDir == "" {
			return errors.New("storage.output_dir is required for the file backend")
		}
	case BackendS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %s or %s, got %q", BackendFile, BackendS3, c.Storage.Backend)
	}
	return nil
}

// splitList trims entries and splits any that carry comma-separated values,
// which is how list settings arrive from environment variables.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
