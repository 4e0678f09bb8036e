// Package pipeline runs one request through enhance, generate and persist.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fpang/tal-prompt-studio/internal/enhancer"
	"github.com/fpang/tal-prompt-studio/internal/gateway"
	"github.com/fpang/tal-prompt-studio/internal/recorder"
)

// FlowName identifies the pipeline in flow info.
const FlowName = "tal-prompt-package"

// Stage names reported by Info.
var Stages = []string{"enhance", "generate", "persist"}

const tracerName = "github.com/fpang/tal-prompt-studio/internal/pipeline"

// FlowInfo is static flow metadata plus live model availability.
type FlowInfo struct {
	Name           string   `json:"name"`
	Stages         []string `json:"stages"`
	ModelAvailable bool     `json:"model_available"`
	Model          string   `json:"model,omitempty"`
}

// Runner wires the three stages together. It holds no per-run state and is
// safe for concurrent use.
type Runner struct {
	enhancer *enhancer.Enhancer
	gateway  *gateway.Gateway
	recorder *recorder.Recorder
	newRunID func() string
	model    string
	tracer   trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithRunIDs overrides run-id generation. The default is a random UUID.
func WithRunIDs(next func() string) Option {
	return func(r *Runner) { r.newRunID = next }
}

// WithModelName sets the model name reported by Info.
func WithModelName(name string) Option {
	return func(r *Runner) { r.model = name }
}

// NewRunner creates a Runner.
func NewRunner(e *enhancer.Enhancer, g *gateway.Gateway, rec *recorder.Recorder, opts ...Option) *Runner {
	r := &Runner{
		enhancer: e,
		gateway:  g,
		recorder: rec,
		newRunID: func() string { return uuid.NewString() },
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Info returns flow metadata.
func (r *Runner) Info() FlowInfo {
	info := FlowInfo{
		Name:           FlowName,
		Stages:         append([]string(nil), Stages...),
		ModelAvailable: r.gateway.Available(),
	}
	if info.ModelAvailable {
		info.Model = r.model
	}
	return info
}

// Execute validates in, then enhances, generates and records one run.
// Validation failures are *ValidationError and happen before any side effect.
// Model failures never surface here; store and template failures do.
func (r *Runner) Execute(ctx context.Context, in Input) (*recorder.Payload, error) {
	req, err := in.Validate()
	if err != nil {
		return nil, err
	}

	runID := r.newRunID()
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	logger := log.With().Str("run_id", runID).Logger()
	logger.Info().
		Int("request_length", len(req.UserRequest)).
		Str("size", req.Size).
		Bool("has_seed", req.Seed != nil).
		Msg("Run started")

	_, enhanceSpan := r.tracer.Start(ctx, "pipeline.enhance")
	out, err := r.enhancer.Enhance(enhancer.Input{
		UserRequest: req.UserRequest,
		Seed:        req.Seed,
		Size:        req.Size,
		StylePreset: req.StylePreset,
	})
	endSpan(enhanceSpan, err)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("enhance request: %w", err)
	}

	genCtx, genSpan := r.tracer.Start(ctx, "pipeline.generate")
	res := r.gateway.Generate(genCtx, gateway.Request{
		SystemPrompt: out.SystemPrompt,
		UserMessage:  out.UserMessage,
		Schema:       out.ResponseSchema,
		Seed:         req.Seed,
	})
	genSpan.SetAttributes(
		attribute.String("source", string(res.Source)),
		attribute.Int("attempts", res.Attempts),
	)
	genSpan.End()

	pkg := res.Package
	pkg.PolicyNotes = mergeNotes(out.PolicyNotes, pkg.PolicyNotes)

	recCtx, recSpan := r.tracer.Start(ctx, "pipeline.persist")
	payload, err := r.recorder.Record(recCtx, runID, req, out.Summary(), pkg)
	endSpan(recSpan, err)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("record run %s: %w", runID, err)
	}

	logger.Info().
		Str("source", string(res.Source)).
		Int("attempts", res.Attempts).
		Int("policy_notes", len(pkg.PolicyNotes)).
		Dur("duration", time.Since(start)).
		Msg("Run completed")
	return payload, nil
}

// mergeNotes returns first followed by the entries of second not already
// present, preserving order. The result is never nil.
func mergeNotes(first, second []string) []string {
	out := make([]string, 0, len(first)+len(second))
	seen := make(map[string]bool, len(first)+len(second))
	for _, list := range [][]string{first, second} {
		for _, n := range list {
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		fail(span, err)
	}
	span.End()
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
