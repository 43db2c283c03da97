package api

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmin_GetLimitStatus(t *testing.T) {
	env := newTestEnv(t, testAdminToken)
	ctx := t.Context()
	opts := ratelimit.CheckOptions{Scope: ratelimit.ScopeIP, Tier: ratelimit.TierAuth}

	rec := env.do(t, http.MethodGet, "/api/v1/admin/limits/ip/auth/10.0.0.1", nil, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeJSON[ratelimit.Status](t, rec)
	assert.Equal(t, ratelimit.StatusEmpty, st.State)
	assert.Equal(t, int64(2), st.Remaining)

	env.limiter.Check(ctx, "10.0.0.1", opts)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/limits/ip/auth/10.0.0.1", nil, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	st = decodeJSON[ratelimit.Status](t, rec)
	assert.Equal(t, ratelimit.StatusActive, st.State)
	assert.Equal(t, int64(1), st.Count)
	assert.Equal(t, int64(1), st.Remaining)
	assert.Equal(t, "rl:ip:auth:10.0.0.1", st.Key)

	// Status must not consume a request.
	d := env.limiter.Check(ctx, "10.0.0.1", opts)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(0), d.Remaining)
}

func TestAdmin_GetLimitStatus_IPv6Identifier(t *testing.T) {
	env := newTestEnv(t, testAdminToken)
	env.limiter.Check(t.Context(), "2001:db8::1", ratelimit.CheckOptions{Scope: ratelimit.ScopeIP, Tier: ratelimit.TierAPI})

	rec := env.do(t, http.MethodGet, "/api/v1/admin/limits/ip/api/"+url.PathEscape("2001:db8::1"), nil, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decodeJSON[ratelimit.Status](t, rec).Count)
}

func TestAdmin_GetLimitStatus_BadParams(t *testing.T) {
	env := newTestEnv(t, testAdminToken)

	for _, path := range []string{
		"/api/v1/admin/limits/planet/auth/x",
		"/api/v1/admin/limits/ip/gold/x",
		"/api/v1/admin/limits/ip/auth/x?algorithm=leaky",
	} {
		rec := env.do(t, http.MethodGet, path, nil, testAdminToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestAdmin_GetLimitStatus_StoreDown(t *testing.T) {
	env := newTestEnv(t, testAdminToken)
	env.storeDown(t)

	rec := env.do(t, http.MethodGet, "/api/v1/admin/limits/user/user/u-9", nil, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeJSON[ratelimit.Status](t, rec)
	assert.Equal(t, ratelimit.StatusUnavailable, st.State)
	assert.NotEmpty(t, st.Error)
}

func TestAdmin_ResetLimit(t *testing.T) {
	env := newTestEnv(t, testAdminToken)
	ctx := t.Context()
	opts := ratelimit.CheckOptions{Scope: ratelimit.ScopeIP, Tier: ratelimit.TierAuth}

	env.limiter.Check(ctx, "10.0.0.2", opts)
	env.limiter.Check(ctx, "10.0.0.2", opts)
	require.False(t, env.limiter.Check(ctx, "10.0.0.2", opts).Allowed)

	rec := env.do(t, http.MethodDelete, "/api/v1/admin/limits/ip/auth/10.0.0.2", nil, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[models.ResetResponse](t, rec)
	assert.True(t, resp.Reset)
	assert.Equal(t, "rl:ip:auth:10.0.0.2", resp.Key)

	d := env.limiter.Check(ctx, "10.0.0.2", opts)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Remaining)
}

func TestAdmin_ResetLimit_StoreDown(t *testing.T) {
	env := newTestEnv(t, testAdminToken)
	env.storeDown(t)

	rec := env.do(t, http.MethodDelete, "/api/v1/admin/limits/ip/auth/10.0.0.3", nil, testAdminToken)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, models.ErrorCodeServiceUnavailable, decodeJSON[models.ErrorResponse](t, rec).Code)
}

func TestAdmin_GetStats(t *testing.T) {
	env := newTestEnv(t, testAdminToken)
	ctx := t.Context()
	opts := ratelimit.CheckOptions{Scope: ratelimit.ScopeIP, Tier: ratelimit.TierAuth}
	for range 3 {
		env.limiter.Check(ctx, "10.0.0.4", opts)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/admin/stats", nil, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[adminStatsResponse](t, rec)
	assert.True(t, resp.Limiter.StoreAvailable)
	assert.Equal(t, int64(3), resp.Limiter.Checks)
	assert.Equal(t, int64(2), resp.Limiter.Allowed)
	assert.Equal(t, int64(1), resp.Limiter.Denied)
	require.NotNil(t, resp.Limiter.Store)
	assert.Positive(t, resp.Limiter.Store.Keys)
	require.NotNil(t, resp.Violations)
}

func TestAdmin_GetStoreStatus(t *testing.T) {
	env := newTestEnv(t, testAdminToken)

	resp := decodeJSON[models.StoreStatusResponse](t, env.do(t, http.MethodGet, "/api/v1/admin/store", nil, testAdminToken))
	assert.True(t, resp.Available)
	assert.Equal(t, "redis", resp.Mode)

	env.storeDown(t)

	resp = decodeJSON[models.StoreStatusResponse](t, env.do(t, http.MethodGet, "/api/v1/admin/store", nil, testAdminToken))
	assert.False(t, resp.Available)
	assert.Equal(t, "memory_fallback", resp.Mode)
	assert.NotEmpty(t, resp.Error)
}

func TestAdmin_ListPolicies(t *testing.T) {
	env := newTestEnv(t, testAdminToken)

	rec := env.do(t, http.MethodGet, "/api/v1/admin/policies", nil, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[models.ListPoliciesResponse](t, rec)
	require.Len(t, resp.Policies, len(ratelimit.Tiers()))

	byTier := make(map[string]models.PolicyInfo)
	for _, p := range resp.Policies {
		byTier[p.Tier] = p
	}
	auth := byTier["auth"]
	assert.Equal(t, int64(2), auth.MaxRequests)
	assert.Equal(t, time.Minute.Milliseconds(), auth.WindowMs)
	assert.Equal(t, "sliding_window", auth.Algorithm)
	assert.Equal(t, "token_bucket", byTier["user"].Algorithm)
}

func TestAdmin_ListViolations(t *testing.T) {
	env := newTestEnv(t, testAdminToken)
	for i := range 3 {
		v := models.NewViolation("client", "ip", "auth", "sliding_window", 2, int64(i+1))
		require.NoError(t, env.violations.RecordViolation(t.Context(), v))
	}

	rec := env.do(t, http.MethodGet, "/api/v1/admin/violations?limit=2", nil, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[models.ListViolationsResponse](t, rec)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Violations, 2)
	assert.Equal(t, int64(3), resp.Violations[0].RetryAfter)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/violations?limit=zero", nil, testAdminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_ListViolations_Disabled(t *testing.T) {
	env := newTestEnv(t, testAdminToken)
	env.handlers.violations = nil

	rec := env.do(t, http.MethodGet, "/api/v1/admin/violations", nil, testAdminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
