// Package chat implements the gateway's model capability on the Gemini API.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/tal-prompt-studio/internal/gateway"
	"github.com/fpang/tal-prompt-studio/internal/metrics"
)

// NewGeminiClient creates a Gemini API client for apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// contentGenerator is the part of *genai.Models the generator uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator sends one request per Generate call to a Gemini model.
// It implements gateway.Generator.
type GeminiGenerator struct {
	models  contentGenerator
	model   string
	metrics *metrics.Emitter
}

// NewGeminiGenerator wraps client for model. emitter may be nil.
func NewGeminiGenerator(client *genai.Client, model string, emitter *metrics.Emitter) *GeminiGenerator {
	return &GeminiGenerator{models: client.Models, model: ResolveModelName(model), metrics: emitter}
}

// Model returns the model ID requests are sent to.
func (g *GeminiGenerator) Model() string {
	return g.model
}

// Generate implements gateway.Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, req gateway.GenerateRequest) (string, error) {
	start := time.Now()
	log.Debug().
		Str("model", g.model).
		Int("user_message_length", len(req.UserMessage)).
		Msg("Starting Gemini API call for prompt package")

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(req.UserMessage), buildConfig(req))
	elapsed := time.Since(start)
	g.observe(resp, err, elapsed)

	if err != nil {
		log.Error().Err(err).Dur("duration", elapsed).Msg("Failed to generate content from Gemini")
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		log.Warn().Dur("duration", elapsed).Msg("Received empty response from Gemini")
		return "", nil
	}

	text := resp.Text()
	log.Debug().
		Int("response_length", len(text)).
		Dur("duration", elapsed).
		Msg("Gemini API response received")
	return text, nil
}

func buildConfig(req gateway.GenerateRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(req.Temperature),
		MaxOutputTokens:  req.MaxOutputTokens,
		ResponseMIMEType: req.ResponseMIMEType,
		Seed:             req.Seed,
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	return config
}

func (g *GeminiGenerator) observe(resp *genai.GenerateContentResponse, err error, elapsed time.Duration) {
	if g.metrics == nil {
		return
	}
	m := g.metrics.New().
		Dimension("Operation", "promptPackage").
		Duration("GeminiApiLatencyMs", elapsed).
		Count("GeminiApiCalls")
	if err != nil {
		m.Count("GeminiApiErrors")
	}
	if resp != nil && resp.UsageMetadata != nil {
		m.Metric("GeminiInputTokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount)
		m.Metric("GeminiOutputTokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
	}
	m.Flush()
}
