package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func makeAdminReq(authHeader string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	return req
}

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer secret", wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic c2VjcmV0", wantStatus: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer wrong", wantStatus: http.StatusUnauthorized},
		{name: "token prefix", header: "Bearer secre", wantStatus: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized},
	}

	mw := adminAuthMiddleware("secret")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mw(http.HandlerFunc(okHandler)).ServeHTTP(rec, makeAdminReq(tt.header))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestIsValidAdminToken(t *testing.T) {
	assert.True(t, isValidAdminToken("abc", []byte("abc")))
	assert.False(t, isValidAdminToken("abd", []byte("abc")))
	assert.False(t, isValidAdminToken("", []byte("abc")))
	assert.False(t, isValidAdminToken("", nil))
	assert.False(t, isValidAdminToken("anything", nil))
}
