// Package httpapi exposes the prompt-package pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fpang/tal-prompt-studio/internal/artifacts"
	"github.com/fpang/tal-prompt-studio/internal/pipeline"
	"github.com/fpang/tal-prompt-studio/internal/recorder"
)

// MaxRequestBytes caps the POST /run body.
const MaxRequestBytes = 1 << 20

// Flow is the pipeline surface the handlers call.
type Flow interface {
	Execute(ctx context.Context, in pipeline.Input) (*recorder.Payload, error)
	Info() pipeline.FlowInfo
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// OperationName labels otelhttp server spans; empty disables them.
	OperationName string
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status          string            `json:"status"`
	GeminiAvailable bool              `json:"gemini_available"`
	Flow            pipeline.FlowInfo `json:"flow"`
}

type handlers struct {
	flow  Flow
	store artifacts.Store
}

// NewRouter builds the HTTP handler for flow, reading artifacts from store.
func NewRouter(flow Flow, store artifacts.Store, opts Options) http.Handler {
	h := &handlers{flow: flow, store: store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withLogging)
	r.Use(middleware.Recoverer)
	r.Use(withCORS(opts.AllowedOrigins))
	if opts.OperationName != "" {
		name := opts.OperationName
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, name)
		})
	}

	r.Post("/run", h.run)
	r.Get("/health", h.health)
	r.Get("/runs/{runID}/artifacts/{stage}", h.artifact)
	r.Get("/runs/{runID}/events", h.events)
	return r
}

func (h *handlers) run(w http.ResponseWriter, r *http.Request) {
	in, err := pipeline.DecodeInput(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err == nil {
		var payload *recorder.Payload
		payload, err = h.flow.Execute(r.Context(), in)
		if err == nil {
			respondJSON(w, http.StatusOK, payload)
			return
		}
	}

	var verr *pipeline.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Field: verr.Field})
		return
	}
	httpError(w, http.StatusInternalServerError, "run failed", err.Error())
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	info := h.flow.Info()
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		GeminiAvailable: info.ModelAvailable,
		Flow:            info,
	})
}

func (h *handlers) artifact(w http.ResponseWriter, r *http.Request) {
	runID, stage := chi.URLParam(r, "runID"), chi.URLParam(r, "stage")
	if err := artifacts.ValidateKey("run id", runID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !slices.Contains(artifacts.Stages, stage) {
		httpError(w, http.StatusNotFound, "unknown stage "+stage)
		return
	}

	data, err := h.store.ReadObject(r.Context(), runID, stage)
	if err != nil {
		h.storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := artifacts.ValidateKey("run id", runID); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	evs, err := h.store.ReadEvents(r.Context(), runID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, evs)
}

func (h *handlers) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, artifacts.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	httpError(w, http.StatusInternalServerError, "artifact read failed", err.Error())
}
