package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"
	"ratelimiter/internal/storage"
	"ratelimiter/internal/version"
)

// Limiter is the part of ratelimit.Limiter the HTTP layer uses.
type Limiter interface {
	Check(ctx context.Context, identifier string, opts ratelimit.CheckOptions) ratelimit.Decision
	Reset(ctx context.Context, identifier string, scope ratelimit.ScopeType, tier ratelimit.Tier) (bool, error)
	Status(ctx context.Context, identifier string, opts ratelimit.CheckOptions) ratelimit.Status
	Stats(ctx context.Context) ratelimit.Stats
	StoreAvailable() bool
	Policies() ratelimit.PolicySet
	KeyFor(identifier string, scope ratelimit.ScopeType, tier ratelimit.Tier) string
}

// Handlers contains HTTP handlers for the ratelimiter API
type Handlers struct {
	limiter    Limiter
	violations storage.ViolationStore
	recorder   *storage.Recorder
	version    version.Info
	started    time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithViolations enables the violation log. store serves reads and recorder
// takes writes; either may be nil.
func WithViolations(store storage.ViolationStore, recorder *storage.Recorder) HandlerOption {
	return func(h *Handlers) {
		h.violations = store
		h.recorder = recorder
	}
}

// WithVersion sets the build info reported by the health endpoint.
func WithVersion(info version.Info) HandlerOption {
	return func(h *Handlers) { h.version = info }
}

// NewHandlers creates a new handlers instance
func NewHandlers(limiter Limiter, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		limiter: limiter,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Check consumes one request against the shared limiter on behalf of a caller.
// POST /api/v1/check
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	var req models.CheckRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	opts, err := parseCheckRequest(req)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	d := h.limiter.Check(r.Context(), req.Identifier, opts)
	ratelimit.SetHeaders(w.Header(), d)

	if !d.Allowed {
		h.RecordDenied(r, d)
		h.writeJSONResponse(w, http.StatusTooManyRequests, d)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, d)
}

// RecordDenied queues a violation for d. It matches the signature expected by
// ratelimit.WithDeniedHook.
func (h *Handlers) RecordDenied(r *http.Request, d ratelimit.Decision) {
	if h.recorder == nil {
		return
	}
	v := models.NewViolation(d.Identifier, string(d.Scope), d.Tier.String(), string(d.Algorithm), d.Limit, d.RetryAfter)
	if r.URL.Path != CheckPath {
		v.Method = r.Method
		v.Path = r.URL.Path
	}
	if !h.recorder.Record(v) {
		slog.Debug("Violation dropped, recorder buffer full", "identifier", d.Identifier)
	}
}

// HealthCheck reports service health. The service stays available while the
// shared store is down, so that case is reported as degraded rather than
// unhealthy.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := models.StatusHealthy
	if !h.limiter.StoreAvailable() {
		status = models.StatusDegraded
	}

	response := models.NewHealthCheckResponse(status)
	response.Version = h.version.Version
	response.Uptime = time.Since(h.started).Round(time.Second).String()

	stats := h.limiter.Stats(r.Context())
	if stats.StoreAvailable {
		response.AddComponent("store", models.StatusHealthy, "Shared store is reachable")
	} else {
		msg := "Shared store unreachable, serving from local fallback"
		response.AddComponent("store", models.StatusDegraded, msg)
		if stats.StoreError != "" {
			response.Components["store"].Details["error"] = stats.StoreError
		}
	}

	response.AddComponent("fallback", models.StatusHealthy, "Local fallback limiter ready")
	response.Components["fallback"].Details["keys"] = stats.Fallback.Keys

	switch {
	case h.violations == nil:
		response.AddComponent("violations", models.StatusUnknown, "Violation log disabled")
	default:
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.violations.Ping(ctx)
		cancel()
		if err != nil {
			response.AddComponent("violations", models.StatusUnhealthy, "Violation log unreachable")
		} else {
			response.AddComponent("violations", models.StatusHealthy, "Violation log is operational")
		}
	}

	response.AddMetric("checks", stats.Checks)
	response.AddMetric("allowed", stats.Allowed)
	response.AddMetric("denied", stats.Denied)
	response.AddMetric("fallback_decisions", stats.FallbackDecisions)

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, errorCode))
}
