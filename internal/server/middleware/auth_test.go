package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubValidator struct {
	err error
}

func (s stubValidator) ValidateToken(string) error { return s.err }

func doRequest(handler http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	var called bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("missing header", func(t *testing.T) {
		called = false
		rec := doRequest(Auth(stubValidator{})(next), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("malformed header", func(t *testing.T) {
		called = false
		rec := doRequest(Auth(stubValidator{})(next), "Token abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("invalid token", func(t *testing.T) {
		called = false
		rec := doRequest(Auth(stubValidator{err: errors.New("bad token")})(next), "Bearer abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("valid token", func(t *testing.T) {
		called = false
		rec := doRequest(Auth(stubValidator{})(next), "Bearer abc")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, called)
	})
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	req.Header.Set("Authorization", "bearer tok123")
	token, ok := BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "tok123", token)

	req.Header.Set("Authorization", "Bearer")
	_, ok = BearerToken(req)
	assert.False(t, ok)

	req.Header.Del("Authorization")
	_, ok = BearerToken(req)
	assert.False(t, ok)
}
