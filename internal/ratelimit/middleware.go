package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"ratelimiter/internal/models"
)

// Response headers set on every limited response.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderScope      = "X-RateLimit-Scope"
	HeaderPolicy     = "X-RateLimit-Policy"
	HeaderRetryAfter = "Retry-After"
)

// Checker is the subset of Limiter used by the middleware.
type Checker interface {
	Check(ctx context.Context, identifier string, opts CheckOptions) Decision
}

// IdentifierFunc extracts the identifier and scope a request is counted under.
type IdentifierFunc func(r *http.Request) (string, ScopeType)

// Classifier maps a request to a tier.
type Classifier func(r *http.Request) Tier

type middlewareConfig struct {
	identify IdentifierFunc
	classify Classifier
	skip     func(r *http.Request) bool
	onDenied func(r *http.Request, d Decision)
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

func WithIdentifier(fn IdentifierFunc) MiddlewareOption {
	return func(c *middlewareConfig) { c.identify = fn }
}

func WithClassifier(fn Classifier) MiddlewareOption {
	return func(c *middlewareConfig) { c.classify = fn }
}

// WithSkipper exempts requests for which fn returns true.
func WithSkipper(fn func(r *http.Request) bool) MiddlewareOption {
	return func(c *middlewareConfig) { c.skip = fn }
}

// WithDeniedHook calls fn for every rejected request, after the response has
// been written.
func WithDeniedHook(fn func(r *http.Request, d Decision)) MiddlewareOption {
	return func(c *middlewareConfig) { c.onDenied = fn }
}

// Middleware returns HTTP middleware that enforces rate limits. By default
// requests are identified by the user ID in the request context when present
// and by client IP otherwise, and every request uses TierDefault.
func Middleware(limiter Checker, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		identify: DefaultIdentifier(false),
		classify: func(*http.Request) Tier { return TierDefault },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.skip != nil && cfg.skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			identifier, scope := cfg.identify(r)
			tier := cfg.classify(r)

			d := limiter.Check(r.Context(), identifier, CheckOptions{Scope: scope, Tier: tier})
			SetHeaders(w.Header(), d)

			if !d.Allowed {
				WriteLimited(w, d)
				slog.Warn("Rate limit exceeded",
					"identifier", d.Identifier,
					"scope", d.Scope,
					"tier", d.Tier,
					"limit", d.Limit,
					"retry_after", d.RetryAfter,
					"algorithm", d.Algorithm,
					"path", r.URL.Path,
				)
				if cfg.onDenied != nil {
					cfg.onDenied(r, d)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the rate limit headers for d. Retry-After is only set on
// denial.
func SetHeaders(h http.Header, d Decision) {
	h.Set(HeaderLimit, strconv.FormatInt(d.Limit, 10))
	h.Set(HeaderRemaining, strconv.FormatInt(d.Remaining, 10))
	h.Set(HeaderReset, strconv.FormatInt(d.ResetTime.Unix(), 10))
	h.Set(HeaderScope, d.ScopeLabel())
	h.Set(HeaderPolicy, string(d.Algorithm))
	if !d.Allowed {
		h.Set(HeaderRetryAfter, strconv.FormatInt(d.RetryAfter, 10))
	}
}

// WriteLimited writes the 429 JSON body for a denied decision.
func WriteLimited(w http.ResponseWriter, d Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	resp := models.NewRateLimitErrorResponse(d.RetryAfter, d.Remaining, d.ResetTime)
	resp.Limit = d.Limit
	resp.Scope = d.ScopeLabel()
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode rate limit response", "error", err)
	}
}

type contextKey string

const userIDKey contextKey = "ratelimit_user_id"

// WithUserID returns a context carrying the authenticated user's ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the user ID stored by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// DefaultIdentifier identifies authenticated requests by user ID and everything
// else by client IP. Proxy headers are honoured only when trustProxy is set.
func DefaultIdentifier(trustProxy bool) IdentifierFunc {
	return func(r *http.Request) (string, ScopeType) {
		if id, ok := UserIDFromContext(r.Context()); ok {
			return id, ScopeUser
		}
		return ClientIP(r, trustProxy), ScopeIP
	}
}

// ClientIP extracts the client IP from the request. With trustProxy it prefers
// the first X-Forwarded-For entry, then X-Real-IP.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
