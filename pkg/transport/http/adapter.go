package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
	"github.com/cloudcompchem/cloudcompchem/pkg/jobs"
	"github.com/cloudcompchem/cloudcompchem/pkg/storage"
	"github.com/cloudcompchem/cloudcompchem/pkg/transport"
)

// Adapter serves the calculation API over HTTP.
// It routes requests to the appropriate handler and serializes results.
type Adapter struct {
	calc   transport.Calculator
	queue  jobs.Queue // nil if asynchronous jobs are disabled
	mux    *http.ServeMux
	config Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64

	// ReadyCheck reports whether dependencies (engine, job store) are
	// usable. Nil means always ready.
	ReadyCheck func(ctx context.Context) error
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 1 << 20, // 1 MB
	}
}

// NewAdapter creates an HTTP adapter with the given Calculator and job
// queue. The queue is optional; when nil, the job endpoints answer 501.
// Middleware is applied to the Calculator in the given order.
func NewAdapter(calc transport.Calculator, queue jobs.Queue, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		calc = transport.Chain(middlewares...)(calc)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		calc:   calc,
		queue:  queue,
		mux:    http.NewServeMux(),
		config: cfg,
	}

	a.mux.HandleFunc("POST /v1/energy", a.handleCalculate(api.CalculationEnergy))
	a.mux.HandleFunc("POST /v1/optimize", a.handleCalculate(api.CalculationOptimization))
	a.mux.HandleFunc("POST /v1/jobs/energy", a.handleSubmit(api.CalculationEnergy))
	a.mux.HandleFunc("POST /v1/jobs/optimize", a.handleSubmit(api.CalculationOptimization))
	a.mux.HandleFunc("GET /v1/jobs/{id}", a.handleGetJob)
	a.mux.HandleFunc("DELETE /v1/jobs/{id}", a.handleCancelJob)

	// Routes of the first public release.
	a.mux.HandleFunc("POST /energy", a.handleCalculate(api.CalculationEnergy))
	a.mux.HandleFunc("POST /optimize", a.handleCalculate(api.CalculationOptimization))

	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("GET /health-check", a.handleHealth)
	a.mux.HandleFunc("GET /readyz", a.handleReady)

	return a
}

// Handle registers an extra handler on the adapter's mux, e.g. /metrics or
// the MCP endpoint.
func (a *Adapter) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware propagates the X-Request-ID header into the
// context, generating one when the client sent none, and echoes it on the
// response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = api.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// handleCalculate handles POST /v1/energy and POST /v1/optimize.
func (a *Adapter) handleCalculate(kind api.CalculationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := a.decodeCalculation(w, r, kind)
		if !ok {
			return
		}
		res, err := a.calc.Calculate(r.Context(), req)
		if err != nil {
			transport.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res.Payload())
	}
}

// handleSubmit handles POST /v1/jobs/energy and POST /v1/jobs/optimize.
func (a *Adapter) handleSubmit(kind api.CalculationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.queue == nil {
			writeJobsDisabled(w)
			return
		}
		req, ok := a.decodeCalculation(w, r, kind)
		if !ok {
			return
		}
		job, err := a.queue.Submit(r.Context(), req)
		if err != nil {
			transport.WriteError(w, err)
			return
		}
		w.Header().Set("Location", "/v1/jobs/"+job.ID)
		writeJob(w, http.StatusAccepted, job)
	}
}

// handleGetJob handles GET /v1/jobs/{id}.
func (a *Adapter) handleGetJob(w http.ResponseWriter, r *http.Request) {
	a.withJob(w, r, func(ctx context.Context, id string) (*jobs.Job, error) {
		return a.queue.Get(ctx, id)
	})
}

// handleCancelJob handles DELETE /v1/jobs/{id}. Finished jobs are returned
// unchanged.
func (a *Adapter) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	a.withJob(w, r, func(ctx context.Context, id string) (*jobs.Job, error) {
		return a.queue.Cancel(ctx, id)
	})
}

func (a *Adapter) withJob(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*jobs.Job, error)) {
	if a.queue == nil {
		writeJobsDisabled(w)
		return
	}
	id := r.PathValue("id")
	if !api.ValidateJobID(id) {
		transport.WriteAPIError(w, api.NewStructuralError("id", "malformed job ID"))
		return
	}
	job, err := op(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAPIError(w, api.NewNotFoundError("job "+id+" not found"))
			return
		}
		transport.WriteError(w, err)
		return
	}
	writeJob(w, http.StatusOK, job)
}

func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Adapter) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.config.ReadyCheck != nil {
		if err := a.config.ReadyCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeCalculation checks the content type, bounds the body and parses it
// as kind. On failure the error response has been written and ok is false.
func (a *Adapter) decodeCalculation(w http.ResponseWriter, r *http.Request, kind api.CalculationKind) (req *api.CalculationRequest, ok bool) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewStructuralError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return nil, false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	payload, err := api.DecodeObject(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewStructuralError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return nil, false
		}
		transport.WriteError(w, err)
		return nil, false
	}

	req, err = api.ParseCalculationRequest(kind, payload)
	if err != nil {
		transport.WriteError(w, err)
		return nil, false
	}
	return req, true
}

func writeJob(w http.ResponseWriter, status int, job *jobs.Job) {
	h, err := job.Handle()
	if err != nil {
		transport.WriteAPIError(w, api.NewInternalError(err))
		return
	}
	writeJSON(w, status, h)
}

func writeJobsDisabled(w http.ResponseWriter) {
	transport.WriteErrorResponse(w,
		api.NewServerError("asynchronous jobs are not enabled on this server"),
		http.StatusNotImplemented,
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
