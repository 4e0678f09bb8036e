package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fpang/tal-prompt-studio/internal/prompt"
)

var sizePattern = regexp.MustCompile(prompt.SizePattern)

// ValidationError reports caller input that was rejected before any work ran.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Input is the raw caller input. Absent fields stay nil.
type Input struct {
	UserRequest *string `json:"user_request"`
	Seed        *int64  `json:"seed"`
	Size        *string `json:"size"`
	StylePreset *string `json:"style_preset"`
}

// DecodeInput reads one JSON object from r. Malformed JSON and wrongly typed
// fields are reported as *ValidationError.
func DecodeInput(r io.Reader) (Input, error) {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Input{}, &ValidationError{
				Field:   typeErr.Field,
				Message: fmt.Sprintf("must be %s, got %s", expectedType(typeErr.Field), typeErr.Value),
			}
		}
		if errors.Is(err, io.EOF) {
			return Input{}, &ValidationError{Message: "request body is empty"}
		}
		return Input{}, &ValidationError{Message: "request body is not valid JSON: " + err.Error()}
	}
	return in, nil
}

func expectedType(field string) string {
	switch field {
	case "seed":
		return "an integer or null"
	default:
		return "a string or null"
	}
}

// Validate checks in and returns the RunRequest it describes.
func (in Input) Validate() (prompt.RunRequest, error) {
	if in.UserRequest == nil || strings.TrimSpace(*in.UserRequest) == "" {
		return prompt.RunRequest{}, &ValidationError{Field: "user_request", Message: "is required and must not be blank"}
	}

	size := prompt.DefaultSize
	if in.Size != nil && strings.TrimSpace(*in.Size) != "" {
		size = strings.TrimSpace(*in.Size)
		if !sizePattern.MatchString(size) {
			return prompt.RunRequest{}, &ValidationError{Field: "size", Message: fmt.Sprintf("must look like WIDTHxHEIGHT, got %q", size)}
		}
	}

	req := prompt.RunRequest{
		UserRequest: *in.UserRequest,
		Size:        size,
	}
	if in.Seed != nil {
		seed := *in.Seed
		req.Seed = &seed
	}
	if in.StylePreset != nil {
		preset := *in.StylePreset
		req.StylePreset = &preset
	}
	return req, nil
}
