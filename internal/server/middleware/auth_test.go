package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTokenValidator accepts a fixed set of tokens.
type testTokenValidator map[string]Principal

func (v testTokenValidator) ValidateToken(token string) (Principal, error) {
	p, ok := v[token]
	if !ok {
		return Principal{}, fmt.Errorf("invalid token")
	}
	return p, nil
}

func echoPrincipal(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := GetPrincipal(r)
		require.NoError(t, err)
		_, _ = fmt.Fprintf(w, "%s admin=%t", p.UserID, p.IsAdmin)
	})
}

func TestAuthMiddleware(t *testing.T) {
	user := Principal{UserID: uuid.New()}
	validator := testTokenValidator{"good": user}
	handler := AuthMiddleware(validator)(echoPrincipal(t))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: "Bearer good", status: http.StatusOK},
		{name: "lowercase scheme", header: "bearer good", status: http.StatusOK},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", status: http.StatusUnauthorized},
		{name: "extra parts", header: "Bearer good extra", status: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer bad", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tracked-items", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, user.UserID.String()+" admin=false", rec.Body.String())
			} else {
				assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	validator := testTokenValidator{
		"user":  {UserID: uuid.New()},
		"admin": {UserID: uuid.New(), IsAdmin: true},
	}
	handler := AuthMiddleware(validator)(RequireAdmin(echoPrincipal(t)))

	for token, want := range map[string]int{"user": http.StatusForbidden, "admin": http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/api/scheduler/run", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, token)
	}
}

func TestRequireAdmin_WithoutPrincipal(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireAdmin(echoPrincipal(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUserID_Missing(t *testing.T) {
	_, err := GetUserID(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)
}
