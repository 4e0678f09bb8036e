// Package bootstrap assembles the pipeline from configuration. Every binary
// builds its App here so the CLI, web server and Lambda run identical graphs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/tal-prompt-studio/internal/artifacts"
	"github.com/fpang/tal-prompt-studio/internal/assets"
	"github.com/fpang/tal-prompt-studio/internal/auth"
	"github.com/fpang/tal-prompt-studio/internal/chat"
	"github.com/fpang/tal-prompt-studio/internal/config"
	"github.com/fpang/tal-prompt-studio/internal/enhancer"
	"github.com/fpang/tal-prompt-studio/internal/gateway"
	"github.com/fpang/tal-prompt-studio/internal/logging"
	"github.com/fpang/tal-prompt-studio/internal/metrics"
	"github.com/fpang/tal-prompt-studio/internal/pipeline"
	"github.com/fpang/tal-prompt-studio/internal/policy"
	"github.com/fpang/tal-prompt-studio/internal/recorder"
	"github.com/fpang/tal-prompt-studio/internal/telemetry"
)

// Overrides replaces parts of the graph that would otherwise be built from
// configuration. Zero values mean "build from config".
type Overrides struct {
	// APIKey is a credential resolved by the caller (for example from SSM).
	APIKey string
	// Generator replaces the Gemini generator.
	Generator gateway.Generator
	// Store replaces the artifact store.
	Store artifacts.Store
	// MetricsWriter receives EMF lines; stdout when nil.
	MetricsWriter io.Writer
	// TraceWriter receives exported spans; stderr when nil.
	TraceWriter io.Writer
}

// App is the assembled service.
type App struct {
	Config    *config.Config
	Runner    *pipeline.Runner
	Store     artifacts.Store
	Metrics   *metrics.Emitter
	Model     string
	KeySource auth.Source
	Prompts   string

	shutdown telemetry.ShutdownFunc
}

// New builds an App from cfg. It does not configure logging; call
// logging.Init first.
func New(ctx context.Context, cfg *config.Config, o Overrides) (*App, error) {
	shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled, o.TraceWriter)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	var emitter *metrics.Emitter
	if cfg.Metrics.Enabled {
		emitter = metrics.NewEmitter(cfg.Metrics.Namespace, o.MetricsWriter)
	}

	docs := assets.Embedded()
	if cfg.Prompts.Dir != "" {
		docs = assets.Dir(cfg.Prompts.Dir)
	}

	filter := policy.Default()
	if len(cfg.Policy.Denylist) > 0 {
		filter = policy.NewFilter(cfg.Policy.Denylist)
	}

	app := &App{Config: cfg, Metrics: emitter, KeySource: auth.SourceNone, Prompts: docs.Source(), shutdown: shutdown}

	gen, err := app.generator(ctx, o, emitter)
	if err != nil {
		return nil, err
	}

	store := o.Store
	if store == nil {
		if store, err = newStore(ctx, cfg.Storage); err != nil {
			return nil, err
		}
	}
	app.Store = store

	gw := gateway.New(gen,
		gateway.WithMetrics(emitter),
		gateway.WithRetryInstructions(docs),
		gateway.WithTemperature(float32(cfg.Model.Temperature)),
		gateway.WithMaxOutputTokens(int32(cfg.Model.MaxOutputTokens)),
	)
	app.Runner = pipeline.NewRunner(
		enhancer.New(docs, filter),
		gw,
		recorder.New(store),
		pipeline.WithModelName(app.Model),
	)

	log.Debug().
		Str("prompts", app.Prompts).
		Str("storage", cfg.Storage.Backend).
		Bool("model_available", gw.Available()).
		Msg("Pipeline assembled")
	return app, nil
}

// generator returns nil, and so mock mode, when mock is forced or no
// credential is found.
func (a *App) generator(ctx context.Context, o Overrides, emitter *metrics.Emitter) (gateway.Generator, error) {
	if o.Generator != nil {
		a.Model = chat.ResolveModelName(a.Config.Model.Name)
		return o.Generator, nil
	}
	if a.Config.Model.Mock {
		log.Info().Msg("Mock mode forced by configuration")
		return nil, nil
	}

	key, source := o.APIKey, auth.SourceConfig
	if key == "" {
		var err error
		key, source, err = auth.ResolveAPIKey(a.Config.Model.APIKey)
		if errors.Is(err, auth.ErrNoCredential) {
			log.Warn().Msg("No Gemini credential found, running in mock mode")
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolve API key: %w", err)
		}
	}

	client, err := chat.NewGeminiClient(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	g := chat.NewGeminiGenerator(client, a.Config.Model.Name, emitter)
	a.Model = g.Model()
	a.KeySource = source
	return g, nil
}

func newStore(ctx context.Context, cfg config.StorageConfig) (artifacts.Store, error) {
	switch cfg.Backend {
	case config.BackendS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return artifacts.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
	default:
		return artifacts.NewFileStore(cfg.OutputDir), nil
	}
}

// StartupLog returns a startup logger pre-filled with the app's
// non-sensitive settings.
func (a *App) StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	s := logging.NewStartupLogger(name).
		Feature("model", a.Model != "").
		Feature("metrics", a.Metrics != nil).
		Feature("tracing", a.Config.Telemetry.Enabled).
		Config("storage", a.Config.Storage.Backend).
		Config("prompts", a.Prompts).
		Config("keySource", string(a.KeySource)).
		InitDuration(time.Since(initStart))
	if a.Model != "" {
		s.Config("model", a.Model)
	}
	switch a.Config.Storage.Backend {
	case config.BackendS3:
		s.S3Bucket("artifacts", a.Config.Storage.Bucket)
	default:
		s.Config("outputDir", a.Config.Storage.OutputDir)
	}
	return s
}

// Shutdown flushes telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown(ctx)
}
