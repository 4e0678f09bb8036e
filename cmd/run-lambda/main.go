// Package main provides the Lambda entry point for the prompt-package API.
//
// It serves the same router as tal-web behind API Gateway (HTTP API, payload
// v2). Artifacts go to S3; the Gemini key is read from SSM at cold start when
// it is not already in the environment. Without a key the Lambda runs in mock
// mode.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/tal-prompt-studio/internal/bootstrap"
	"github.com/fpang/tal-prompt-studio/internal/config"
	"github.com/fpang/tal-prompt-studio/internal/httpapi"
	"github.com/fpang/tal-prompt-studio/internal/lambdaboot"
	"github.com/fpang/tal-prompt-studio/internal/logging"
)

// Set at build time with -ldflags "-X main.commitHash=... -X main.buildTime=...".
var (
	commitHash string
	buildTime  string
)

func main() {
	initStart := time.Now()
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("TAL_CONFIG_FILE"))
	if err != nil {
		logging.Init("info", "json")
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	// CloudWatch wants one JSON object per line.
	logging.Init(cfg.Log.Level, "json")

	clients := lambdaboot.InitAWS(ctx)
	store := lambdaboot.InitS3Store(clients.Config, cfg.Storage.Bucket, cfg.Storage.Prefix)

	var apiKey string
	if !cfg.Model.Mock {
		current := cfg.Model.APIKey
		if current == "" {
			current = os.Getenv("GEMINI_API_KEY")
		}
		apiKey, err = lambdaboot.LoadGeminiKey(ctx, clients.SSM, current, cfg.AWS.GeminiKeyParam)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini API key unavailable, running in mock mode")
			cfg.Model.Mock = true
		}
	}

	app, err := bootstrap.New(ctx, cfg, bootstrap.Overrides{APIKey: apiKey, Store: store})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pipeline")
	}

	opName := ""
	if cfg.Telemetry.Enabled {
		opName = cfg.Telemetry.ServiceName
	}
	handler := httpapi.NewRouter(app.Runner, app.Store, httpapi.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OperationName:  opName,
	})

	app.StartupLog("run-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		SSMParam("geminiKey", cfg.AWS.GeminiKeyParam).
		Log()

	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
