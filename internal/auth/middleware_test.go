package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-clinic-queue/internal/auth"
	"ms-clinic-queue/internal/config"
	"ms-clinic-queue/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

type staffSet map[string]bool

func (s staffSet) IsStaff(_ context.Context, id string) (bool, error) {
	if id == "broken" {
		return false, errors.New("directory down")
	}
	return s[id], nil
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(auth.UserID(r.Context())))
	})
}

func TestExtractUserIDFromJWT(t *testing.T) {
	sub, err := auth.ExtractUserIDFromJWT(signedToken(t, "user-1"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = auth.ExtractUserIDFromJWT("")
	assert.Error(t, err)
	_, err = auth.ExtractUserIDFromJWT("not-a-jwt")
	assert.Error(t, err)
}

func TestMiddlewareUnverified(t *testing.T) {
	handler := auth.Middleware(auth.UnverifiedVerifier{}, logger.NewDiscard())(echoUser())

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"garbage token", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "Bearer " + signedToken(t, "user-7"), http.StatusOK, "user-7"},
		{"lowercase scheme", "bearer " + signedToken(t, "user-8"), http.StatusOK, "user-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/queue/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRequireStaff(t *testing.T) {
	handler := auth.RequireStaff(staffSet{"doc": true}, logger.NewDiscard())(echoUser())

	run := func(uid string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/queue/admin/advance", nil)
		if uid != "" {
			req = req.WithContext(auth.WithUserID(req.Context(), uid))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, run("doc"))
	assert.Equal(t, http.StatusForbidden, run("patient"))
	assert.Equal(t, http.StatusUnauthorized, run(""))
	assert.Equal(t, http.StatusServiceUnavailable, run("broken"))
}

func TestNewVerifierModes(t *testing.T) {
	v, err := auth.NewVerifier(context.Background(), config.AuthConfig{Mode: "unverified"}, logger.NewDiscard())
	require.NoError(t, err)
	assert.IsType(t, auth.UnverifiedVerifier{}, v)

	_, err = auth.NewVerifier(context.Background(), config.AuthConfig{Mode: "oidc"}, logger.NewDiscard())
	assert.Error(t, err, "oidc mode needs an issuer")

	_, err = auth.NewVerifier(context.Background(), config.AuthConfig{Mode: "saml"}, logger.NewDiscard())
	assert.Error(t, err)
}
