package cli

import (
	"errors"

	"github.com/fpang/tal-prompt-studio/internal/artifacts"
	"github.com/fpang/tal-prompt-studio/internal/pipeline"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitBadInput = 2
)

// ExitCode maps a command error onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var verr *pipeline.ValidationError
	if errors.As(err, &verr) || errors.Is(err, ErrNoRequest) {
		return ExitBadInput
	}
	return ExitFailure
}

// Describe returns the message shown to the user for err.
func Describe(err error) string {
	var verr *pipeline.ValidationError
	switch {
	case errors.As(err, &verr):
		return "Invalid request: " + verr.Error()
	case errors.Is(err, ErrNoRequest):
		return "A request is required. Pass --request or type one when prompted"
	case errors.Is(err, artifacts.ErrNotFound):
		return "Not found: " + err.Error()
	default:
		return err.Error()
	}
}
