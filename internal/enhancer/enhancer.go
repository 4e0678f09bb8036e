// Package enhancer turns a raw image request into the instruction pair sent to
// the model: the fixed system prompt plus a deterministic user message that
// carries the cleaned request, output parameters and inferred assumptions.
//
// The enhancer performs no network I/O. Its only failure is an unreadable
// prompt document, which callers must treat as fatal.
package enhancer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog/log"

	"github.com/fpang/tal-prompt-studio/internal/assets"
	"github.com/fpang/tal-prompt-studio/internal/assumptions"
	"github.com/fpang/tal-prompt-studio/internal/policy"
	"github.com/fpang/tal-prompt-studio/internal/prompt"
)

// RemovedNotePrefix starts the note recorded when public figures are redacted.
const RemovedNotePrefix = "Removed public figure references: "

// Input is one request to enhance.
type Input struct {
	UserRequest string
	Seed        *int64
	Size        string
	StylePreset *string
	ReferenceID string
}

// Output is the instruction package handed to the model gateway.
type Output struct {
	SystemPrompt   string             `json:"-"`
	UserMessage    string             `json:"user_message"`
	ResponseSchema *jsonschema.Schema `json:"-"`
	Notes          []string           `json:"notes"`
	PolicyNotes    []string           `json:"policy_notes"`
	Assumptions    []string           `json:"assumptions"`
	CleanedRequest string             `json:"cleaned_request"`
}

// Summary is the reduced view persisted per run. It omits the system
// prompt, which is identical for every run.
type Summary struct {
	UserMessage string   `json:"user_message"`
	Notes       []string `json:"notes"`
}

// Summary returns the persisted view of o.
func (o Output) Summary() Summary {
	notes := o.Notes
	if notes == nil {
		notes = []string{}
	}
	return Summary{UserMessage: o.UserMessage, Notes: notes}
}

// Documents supplies the prompt documents. *assets.Store implements it.
type Documents interface {
	Document(key string) (string, error)
	RenderUserMessage(data assets.UserMessageData) (string, error)
}

// Enhancer composes the policy filter and assumption inferencer into an Output.
type Enhancer struct {
	docs   Documents
	filter *policy.Filter
}

// New creates an Enhancer. A nil filter means the default denylist.
func New(docs Documents, filter *policy.Filter) *Enhancer {
	if filter == nil {
		filter = policy.Default()
	}
	return &Enhancer{docs: docs, filter: filter}
}

// Enhance builds the instruction pair for in.
func (e *Enhancer) Enhance(in Input) (Output, error) {
	var out Output

	filtered := e.filter.Apply(collapseSpace(in.UserRequest))
	out.CleanedRequest = filtered.Text
	if len(filtered.Matches) > 0 {
		note := RemovedNotePrefix + strings.Join(filtered.Matches, ", ")
		out.Notes = append(out.Notes, note)
		out.PolicyNotes = append(out.PolicyNotes, note)
		log.Info().
			Strs("matches", filtered.Matches).
			Msg("Public figure references removed from request")
	}

	out.Assumptions = assumptions.Infer(filtered.Text)
	out.Notes = append(out.Notes, out.Assumptions...)

	systemPrompt, err := e.docs.Document(assets.SystemPromptKey)
	if err != nil {
		return Output{}, fmt.Errorf("load system prompt: %w", err)
	}
	out.SystemPrompt = systemPrompt

	size := in.Size
	if size == "" {
		size = prompt.DefaultSize
	}
	referenceID := in.ReferenceID
	if referenceID == "" {
		referenceID = prompt.AnchorImageID
	}

	msg, err := e.docs.RenderUserMessage(assets.UserMessageData{
		Request:     filtered.Text,
		ReferenceID: referenceID,
		Size:        size,
		Seed:        seedText(in.Seed),
		Style:       StyleNote(in.StylePreset),
		Assumptions: out.Assumptions,
		PolicyNotes: out.PolicyNotes,
		Schema:      prompt.SchemaJSON(),
	})
	if err != nil {
		return Output{}, fmt.Errorf("render user message: %w", err)
	}
	out.UserMessage = msg
	out.ResponseSchema = prompt.Schema()

	log.Debug().
		Int("user_message_length", len(out.UserMessage)).
		Int("assumptions", len(out.Assumptions)).
		Int("policy_notes", len(out.PolicyNotes)).
		Msg("Request enhanced")

	return out, nil
}

func seedText(seed *int64) string {
	if seed == nil {
		return "random"
	}
	return strconv.FormatInt(*seed, 10)
}

// collapseSpace folds newlines and runs of whitespace into single spaces so the
// request fits on the quoted User Request line.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
