package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/tal-prompt-studio/internal/cli"
	"github.com/fpang/tal-prompt-studio/internal/httpapi"
)

// Set at build time with -ldflags "-X main.commitHash=... -X main.buildTime=...".
var (
	commitHash string
	buildTime  string
)

// CLI flags
var (
	configFlag string
	addrFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "tal-web",
	Short: "HTTP server for TAL prompt packages",
	Long: `TAL Web serves the prompt-package pipeline over HTTP for local
front ends.

Endpoints:
  POST /run                              build a package
  GET  /health                           flow metadata and model availability
  GET  /runs/{runID}/artifacts/{stage}   stored stage output
  GET  /runs/{runID}/events              run event log

Examples:
  tal-web
  tal-web --addr :9090
  tal-web --config ./tal.yaml`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "YAML config file (default: tal.yaml when present)")
	rootCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides server.addr)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, _ []string) {
	initStart := time.Now()
	app, err := cli.InitApp(cmd.Context(), configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.Describe(err))
		os.Exit(cli.ExitFailure)
	}
	cfg := app.Config

	addr := cfg.Server.Addr
	if addrFlag != "" {
		addr = addrFlag
	}

	opName := ""
	if cfg.Telemetry.Enabled {
		opName = cfg.Telemetry.ServiceName
	}
	handler := httpapi.NewRouter(app.Runner, app.Store, httpapi.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OperationName:  opName,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}
		if err := app.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	app.StartupLog("tal-web", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Config("addr", addr).
		Log()
	fmt.Printf("\n  TAL Prompt Studio listening on %s\n\n", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	<-done
}
