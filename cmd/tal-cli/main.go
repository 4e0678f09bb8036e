package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/tal-prompt-studio/internal/artifacts"
	"github.com/fpang/tal-prompt-studio/internal/cli"
	"github.com/fpang/tal-prompt-studio/internal/pipeline"
)

// CLI flags
var (
	configFlag  string
	requestFlag string
	seedFlag    int64
	sizeFlag    string
	styleFlag   string
	jsonFlag    bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "tal-cli",
	Short: "Build identity-locked TAL prompt packages",
	Long: `TAL CLI turns a short scene request into a prompt package for image
generation. Public-figure references are removed, missing details are
filled with defaults, and Gemini writes the final prompt. Without a
credential the CLI runs in mock mode and builds the package locally.

Every run is recorded under the configured output directory.

Examples:
  tal-cli run --request "TAL reading at a cafe"
  tal-cli run -r "TAL hiking at sunrise" --seed 42 --size 1024x1536 --style cinematic
  tal-cli info
  tal-cli show 3f0c9a52-... gemini_output`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a prompt package for one request",
	Args:  cobra.NoArgs,
	RunE:  runPackage,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show flow metadata and model availability",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

var showCmd = &cobra.Command{
	Use:   "show <run-id> [stage]",
	Short: "Print a stored stage artifact, or the event log when no stage is given",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runShow,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "YAML config file (default: tal.yaml when present)")

	runCmd.Flags().StringVarP(&requestFlag, "request", "r", "", "Scene request (prompts interactively when empty)")
	runCmd.Flags().Int64Var(&seedFlag, "seed", 0, "Seed for reproducible generation (omit for random)")
	runCmd.Flags().StringVar(&sizeFlag, "size", "", "Output size as WIDTHxHEIGHT (default 1024x1024)")
	runCmd.Flags().StringVar(&styleFlag, "style", "", "Style preset (cinematic, bright_cheerful, moody_artistic, minimalist, vintage)")
	runCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the response payload as JSON")

	rootCmd.AddCommand(runCmd, infoCmd, showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.Describe(err))
		os.Exit(cli.ExitCode(err))
	}
}

func runPackage(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.InitApp(ctx, configFlag)
	if err != nil {
		return err
	}
	defer shutdown(app.Shutdown)

	request := requestFlag
	if request == "" {
		if request, err = cli.PromptForRequest(os.Stdin, os.Stdout); err != nil {
			return err
		}
	}

	in := pipeline.Input{UserRequest: &request}
	if cmd.Flags().Changed("seed") {
		in.Seed = &seedFlag
	}
	if sizeFlag != "" {
		in.Size = &sizeFlag
	}
	if styleFlag != "" {
		in.StylePreset = &styleFlag
	}

	start := time.Now()
	payload, err := app.Runner.Execute(ctx, in)
	if err != nil {
		return err
	}
	log.Debug().Str("run_id", payload.RunID).Dur("duration", time.Since(start)).Msg("Run complete")

	if jsonFlag {
		return printJSON(payload)
	}
	cli.PrintPayload(os.Stdout, payload, time.Since(start))
	return nil
}

func runInfo(cmd *cobra.Command, _ []string) error {
	app, err := cli.InitApp(cmd.Context(), configFlag)
	if err != nil {
		return err
	}
	defer shutdown(app.Shutdown)
	return printJSON(app.Runner.Info())
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := cli.InitApp(ctx, configFlag)
	if err != nil {
		return err
	}
	defer shutdown(app.Shutdown)

	runID := args[0]
	if len(args) == 1 {
		events, err := app.Store.ReadEvents(ctx, runID)
		if err != nil {
			return err
		}
		return printJSON(events)
	}

	stage := args[1]
	if !slices.Contains(artifacts.Stages, stage) {
		return fmt.Errorf("unknown stage %q (want one of %s)", stage, strings.Join(artifacts.Stages, ", "))
	}
	data, err := app.Store.ReadObject(ctx, runID, stage)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shutdown(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}
