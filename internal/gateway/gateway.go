// Package gateway submits an enhanced request to the language model and turns
// the answer into a validated prompt package.
//
// Generate never fails. It walks an explicit state machine:
//
//	NoKey        -> Synthesize
//	FirstAttempt -> Done | Retry
//	Retry        -> Done | Fallback
//	Fallback     -> Done
//	Synthesize   -> Done
//
// Any model error or schema violation consumes the single retry. When both
// attempts fail, or no model is configured, a package is synthesized locally
// from the user message and the reason is recorded as a policy note.
package gateway

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog/log"

	"github.com/fpang/tal-prompt-studio/internal/assets"
	"github.com/fpang/tal-prompt-studio/internal/jsonutil"
	"github.com/fpang/tal-prompt-studio/internal/metrics"
	"github.com/fpang/tal-prompt-studio/internal/prompt"
)

// Generation defaults.
const (
	DefaultTemperature     float32 = 0.7
	DefaultMaxOutputTokens int32   = 1000
)

// Policy notes recorded on synthesized packages.
const (
	MockNote          = "Mock mode active: no model credential configured"
	fallbackNoteFmt   = "Model output unavailable after retry; using safe fallback package (reason: %s)"
	maxReasonLength   = 200
	defaultRetryNotes = "\n\nIMPORTANT: Your previous answer could not be used (%s).\n" +
		"Fix the previous errors and return ONLY one JSON object that strictly matches the response schema."
)

// FallbackNote renders the policy note recorded when both attempts failed.
func FallbackNote(reason string) string {
	return fmt.Sprintf(fallbackNoteFmt, reason)
}

// State is a step of the generation state machine.
type State int

const (
	NoKey State = iota
	FirstAttempt
	Retry
	Fallback
	Synthesize
	Done
)

func (s State) String() string {
	switch s {
	case NoKey:
		return "no_key"
	case FirstAttempt:
		return "first_attempt"
	case Retry:
		return "retry"
	case Fallback:
		return "fallback"
	case Synthesize:
		return "synthesize"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets trails serialize as state names.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Source says where the final package came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
	SourceMock     Source = "mock"
)

// GenerateRequest is one call to the model capability.
type GenerateRequest struct {
	SystemPrompt     string
	UserMessage      string
	Temperature      float32
	MaxOutputTokens  int32
	Seed             *int32
	ResponseMIMEType string
}

// Generator is the model capability: it returns the raw text of one answer.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// RetryInstructions renders the instruction appended on the retry attempt.
// *assets.Store implements it.
type RetryInstructions interface {
	RenderRetryInstruction(reason string) (string, error)
}

// Request is the enhancer's output as the gateway consumes it.
type Request struct {
	SystemPrompt string
	UserMessage  string
	Schema       *jsonschema.Schema
	Seed         *int64
}

// Result is the outcome of Generate. Package is always schema-valid.
type Result struct {
	Package  prompt.Package `json:"package"`
	Source   Source         `json:"source"`
	Attempts int            `json:"attempts"`
	Trail    []State        `json:"trail"`
	Reason   string         `json:"reason,omitempty"` // last attempt failure, if any
}

// Gateway drives the generation state machine.
type Gateway struct {
	gen             Generator
	retry           RetryInstructions
	metrics         *metrics.Emitter
	temperature     float32
	maxOutputTokens int32
	now             func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMetrics emits one EMF document per Generate call.
func WithMetrics(e *metrics.Emitter) Option {
	return func(g *Gateway) { g.metrics = e }
}

// WithRetryInstructions overrides the source of the retry instruction.
func WithRetryInstructions(r RetryInstructions) Option {
	return func(g *Gateway) { g.retry = r }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float32) Option {
	return func(g *Gateway) { g.temperature = t }
}

// WithMaxOutputTokens overrides the output token cap. Non-positive values are ignored.
func WithMaxOutputTokens(n int32) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxOutputTokens = n
		}
	}
}

// New creates a Gateway. A nil gen puts the gateway in mock mode.
func New(gen Generator, opts ...Option) *Gateway {
	g := &Gateway{
		gen:             gen,
		retry:           assets.Embedded(),
		temperature:     DefaultTemperature,
		maxOutputTokens: DefaultMaxOutputTokens,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Available reports whether a model is configured.
func (g *Gateway) Available() bool {
	return g.gen != nil
}

// Generate produces a validated package for req.
func (g *Gateway) Generate(ctx context.Context, req Request) *Result {
	start := g.now()
	res := &Result{}

	state := FirstAttempt
	if g.gen == nil {
		state = NoKey
	}

	for state != Done {
		res.Trail = append(res.Trail, state)

		switch state {
		case NoKey:
			state = Synthesize

		case FirstAttempt, Retry:
			res.Attempts++
			pkg, err := g.attempt(ctx, req, state, res.Reason)
			if err == nil {
				res.Package = pkg
				res.Source = SourceModel
				state = Done
				break
			}
			res.Reason = reason(err)
			log.Warn().
				Err(err).
				Str("state", state.String()).
				Int("attempt", res.Attempts).
				Msg("Model attempt failed")
			if state == FirstAttempt {
				state = Retry
			} else {
				state = Fallback
			}

		case Fallback:
			pkg := MockPackage(req.UserMessage)
			pkg.AddPolicyNotes(FallbackNote(res.Reason))
			res.Package = pkg
			res.Source = SourceFallback
			state = Done

		case Synthesize:
			pkg := MockPackage(req.UserMessage)
			pkg.AddPolicyNotes(MockNote)
			res.Package = pkg
			res.Source = SourceMock
			state = Done
		}
	}
	res.Trail = append(res.Trail, Done)

	elapsed := g.now().Sub(start)
	log.Info().
		Str("source", string(res.Source)).
		Int("attempts", res.Attempts).
		Dur("duration", elapsed).
		Msg("Prompt package generated")
	g.observe(res, elapsed)

	return res
}

// attempt performs one model call and validates the answer. A panicking
// Generator is reported as a ModelError.
func (g *Gateway) attempt(ctx context.Context, req Request, state State, prevReason string) (pkg prompt.Package, err error) {
	defer func() {
		if p := recover(); p != nil {
			pkg = prompt.Package{}
			err = &ModelError{Kind: KindUnknown, Message: "Model call panicked", Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	msg := req.UserMessage
	if state == Retry {
		msg += g.retryInstruction(prevReason)
	}

	log.Debug().
		Str("state", state.String()).
		Int("user_message_length", len(msg)).
		Msg("Submitting request to model")

	raw, err := g.gen.Generate(ctx, GenerateRequest{
		SystemPrompt:     req.SystemPrompt,
		UserMessage:      msg,
		Temperature:      g.temperature,
		MaxOutputTokens:  g.maxOutputTokens,
		Seed:             int32Seed(req.Seed),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return prompt.Package{}, Classify(err)
	}
	if strings.TrimSpace(raw) == "" {
		return prompt.Package{}, &ModelError{Kind: KindEmpty, Message: "Model returned no text", Err: errEmptyResponse}
	}

	log.Debug().
		Str("preview", jsonutil.Preview(raw, 200)).
		Msg("Model response received")

	pkg, err = prompt.Parse(raw, req.Schema)
	if err != nil {
		return prompt.Package{}, err
	}
	if req.Seed != nil {
		seed := *req.Seed
		pkg.Seed = &seed
	}
	return pkg, nil
}

func (g *Gateway) retryInstruction(prevReason string) string {
	if g.retry != nil {
		text, err := g.retry.RenderRetryInstruction(prevReason)
		if err == nil {
			return "\n" + text
		}
		log.Warn().Err(err).Msg("Retry instruction unavailable, using built-in wording")
	}
	return fmt.Sprintf(defaultRetryNotes, prevReason)
}

func (g *Gateway) observe(res *Result, elapsed time.Duration) {
	if g.metrics == nil {
		return
	}
	g.metrics.New().
		Dimension("Source", string(res.Source)).
		Metric("GenerateAttempts", float64(res.Attempts), metrics.UnitCount).
		Duration("GenerateLatencyMs", elapsed).
		Count("GenerateCalls").
		Flush()
}

// int32Seed narrows seed for the model API. Seeds outside int32 are not sent;
// the caller's seed is still written to the package.
func int32Seed(seed *int64) *int32 {
	if seed == nil || *seed < math.MinInt32 || *seed > math.MaxInt32 {
		return nil
	}
	v := int32(*seed)
	return &v
}

func reason(err error) string {
	return jsonutil.Preview(err.Error(), maxReasonLength)
}
