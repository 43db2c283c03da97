package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"
	"ratelimiter/internal/storage"

	"github.com/gorilla/mux"
)

// parseCheckRequest validates the wire request. Unlike the limiter facade,
// the API rejects unknown scopes, tiers and algorithms instead of coercing
// them.
func parseCheckRequest(req models.CheckRequest) (ratelimit.CheckOptions, error) {
	if req.Identifier == "" {
		return ratelimit.CheckOptions{}, errors.New("identifier is required")
	}
	scope, tier, err := parseScopeTier(req.Scope, req.Tier)
	if err != nil {
		return ratelimit.CheckOptions{}, err
	}
	opts := ratelimit.CheckOptions{Scope: scope, Tier: tier}
	if req.Algorithm != "" {
		alg, err := ratelimit.ParseAlgorithm(req.Algorithm)
		if err != nil {
			return ratelimit.CheckOptions{}, err
		}
		opts.Algorithm = alg
	}
	return opts, nil
}

func parseScopeTier(scopeName, tierName string) (ratelimit.ScopeType, ratelimit.Tier, error) {
	scope := ratelimit.ScopeIP
	if scopeName != "" {
		s, err := ratelimit.ParseScope(scopeName)
		if err != nil {
			return "", 0, err
		}
		scope = s
	}
	tier := ratelimit.TierDefault
	if tierName != "" {
		t, ok := ratelimit.LookupTier(tierName)
		if !ok {
			return "", 0, fmt.Errorf("unknown tier %q", tierName)
		}
		tier = t
	}
	return scope, tier, nil
}

// limitTarget reads {scope}/{tier}/{identifier} from the route.
func limitTarget(r *http.Request) (string, ratelimit.ScopeType, ratelimit.Tier, error) {
	vars := mux.Vars(r)
	identifier := vars["identifier"]
	if identifier == "" {
		return "", "", 0, errors.New("identifier is required")
	}
	scope, tier, err := parseScopeTier(vars["scope"], vars["tier"])
	if err != nil {
		return "", "", 0, err
	}
	return identifier, scope, tier, nil
}

// GetLimitStatus reports a counter without consuming a request.
// GET /api/v1/admin/limits/{scope}/{tier}/{identifier}
func (h *Handlers) GetLimitStatus(w http.ResponseWriter, r *http.Request) {
	identifier, scope, tier, err := limitTarget(r)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	opts := ratelimit.CheckOptions{Scope: scope, Tier: tier}
	if a := r.URL.Query().Get("algorithm"); a != "" {
		alg, err := ratelimit.ParseAlgorithm(a)
		if err != nil {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
			return
		}
		opts.Algorithm = alg
	}

	h.writeJSONResponse(w, http.StatusOK, h.limiter.Status(r.Context(), identifier, opts))
}

// ResetLimit clears every counter for the target.
// DELETE /api/v1/admin/limits/{scope}/{tier}/{identifier}
func (h *Handlers) ResetLimit(w http.ResponseWriter, r *http.Request) {
	identifier, scope, tier, err := limitTarget(r)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	ok, err := h.limiter.Reset(r.Context(), identifier, scope, tier)
	if err != nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable,
			"Rate limit store is unavailable, counters were not reset")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, models.ResetResponse{
		Reset: ok,
		Key:   h.limiter.KeyFor(identifier, scope, tier),
	})
}

type adminStatsResponse struct {
	Limiter    ratelimit.Stats        `json:"limiter"`
	Violations *storage.RecorderStats `json:"violations,omitempty"`
}

// GetStats reports aggregate limiter counters.
// GET /api/v1/admin/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := adminStatsResponse{Limiter: h.limiter.Stats(r.Context())}
	if h.recorder != nil {
		rs := h.recorder.Stats()
		resp.Violations = &rs
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// GetStoreStatus reports whether checks are served by the shared store.
// GET /api/v1/admin/store
func (h *Handlers) GetStoreStatus(w http.ResponseWriter, r *http.Request) {
	resp := models.StoreStatusResponse{Available: h.limiter.StoreAvailable(), Mode: "redis"}
	if !resp.Available {
		resp.Mode = string(ratelimit.MemoryFallback)
		resp.Error = ratelimit.ErrStoreUnavailable.Error()
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// ListPolicies returns the effective policy for every tier.
// GET /api/v1/admin/policies
func (h *Handlers) ListPolicies(w http.ResponseWriter, r *http.Request) {
	ps := h.limiter.Policies()
	resp := models.ListPoliciesResponse{Policies: make([]models.PolicyInfo, 0, len(ratelimit.Tiers()))}
	for _, t := range ratelimit.Tiers() {
		p := ps.Resolve(t)
		info := models.PolicyInfo{
			Tier:        t.String(),
			Window:      p.Window.String(),
			WindowMs:    p.Window.Milliseconds(),
			MaxRequests: p.MaxRequests,
			Algorithm:   string(p.Algorithm),
		}
		if p.BlockDuration > 0 {
			info.BlockDuration = p.BlockDuration.String()
		}
		resp.Policies = append(resp.Policies, info)
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// ListViolations returns the most recent rejected requests.
// GET /api/v1/admin/violations?limit=N
func (h *Handlers) ListViolations(w http.ResponseWriter, r *http.Request) {
	if h.violations == nil {
		h.writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeNotFound, "Violation log is disabled")
		return
	}

	limit := storage.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	violations, err := h.violations.RecentViolations(r.Context(), limit)
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to list violations")
		return
	}
	if violations == nil {
		violations = []*models.Violation{}
	}
	h.writeJSONResponse(w, http.StatusOK, models.ListViolationsResponse{Violations: violations, Count: len(violations)})
}
