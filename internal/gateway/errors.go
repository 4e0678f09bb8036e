package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ErrorKind categorizes a failed model call.
type ErrorKind int

const (
	// KindUnknown is any failure not recognised below.
	KindUnknown ErrorKind = iota
	// KindTransient covers rate limits, server errors and network failures.
	KindTransient
	// KindRejected covers malformed requests, bad credentials and refusals.
	KindRejected
	// KindEmpty means the model answered with no text.
	KindEmpty
	// KindCanceled means the caller's context ended the call.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	case KindEmpty:
		return "empty"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ModelError is a classified failure of the model capability.
type ModelError struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// errEmptyResponse is wrapped by ModelErrors of KindEmpty.
var errEmptyResponse = errors.New("model returned an empty response")

// Classify maps a model-call error onto a *ModelError. Errors that already are
// ModelErrors are returned unchanged.
func Classify(err error) *ModelError {
	if err == nil {
		return nil
	}

	var modelErr *ModelError
	if errors.As(err, &modelErr) {
		return modelErr
	}

	// The SDK returns APIError by value; older call paths wrap a pointer.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(&apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyAPIError(apiErrPtr, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ModelError{Kind: KindCanceled, Message: "Model call ended by caller context", Err: err}
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid") ||
		strings.Contains(errLower, "invalid api key") ||
		strings.Contains(errLower, "api_key_invalid") ||
		strings.Contains(errLower, "permission denied") ||
		strings.Contains(errLower, "blocked") ||
		strings.Contains(errLower, "safety"):
		return &ModelError{Kind: KindRejected, Message: "Model rejected the request", Err: err}

	case strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "network") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "unreachable"):
		return &ModelError{Kind: KindTransient, Message: "Model temporarily unavailable", Err: err}

	default:
		return &ModelError{Kind: KindUnknown, Message: "Model call failed", Err: err}
	}
}

func classifyAPIError(apiErr *genai.APIError, err error) *ModelError {
	switch apiErr.Code {
	case 400:
		return &ModelError{Kind: KindRejected, Code: apiErr.Code, Message: "Bad request", Err: err}
	case 401, 403:
		return &ModelError{Kind: KindRejected, Code: apiErr.Code, Message: "Model credential is invalid, expired, or lacks permissions", Err: err}
	case 429:
		return &ModelError{Kind: KindTransient, Code: apiErr.Code, Message: "Model rate limit exceeded", Err: err}
	case 500, 502, 503, 504:
		return &ModelError{Kind: KindTransient, Code: apiErr.Code, Message: "Model server error", Err: err}
	default:
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("Model API error %d", apiErr.Code)
		}
		return &ModelError{Kind: KindUnknown, Code: apiErr.Code, Message: msg, Err: err}
	}
}
