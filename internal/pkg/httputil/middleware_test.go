package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/amber-relay/internal/domain"
	"github.com/stretchr/testify/assert"
)

type tokenTable map[string]domain.Role

func (tt tokenTable) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	role, ok := tt[token]
	if !ok {
		return "", "", errors.New("unknown token")
	}
	return "user-" + token, role, nil
}

func TestAuthMiddleware(t *testing.T) {
	var gotUser string
	var gotRole domain.Role
	h := AuthMiddleware(tokenTable{"abc": domain.RoleViewer})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		gotRole = GetRole(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer abc", http.StatusNoContent},
		{"lowercase scheme", "bearer abc", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/a/distributions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	assert.Equal(t, "user-abc", gotUser)
	assert.Equal(t, domain.RoleViewer, gotRole)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := AuthMiddleware(tokenTable{
		"v": domain.RoleViewer,
		"o": domain.RoleOperator,
		"a": domain.RoleAdmin,
	})(RequireRole(domain.RoleOperator)(ok))

	for token, want := range map[string]int{
		"v": http.StatusForbidden,
		"o": http.StatusNoContent,
		"a": http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/distributions/sweep", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "token %s", token)
	}

	// Without AuthMiddleware there is no identity at all.
	rec := httptest.NewRecorder()
	RequireRole(domain.RoleViewer)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := CORSMiddleware([]string{"https://ops.amber.example"})(next)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/alerts/a/distributions", nil)
		req.Header.Set("Origin", "https://ops.amber.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://ops.amber.example", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("foreign origin gets no allow header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/a/distributions", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
