package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanswolff/clubportal/internal/handlers"
	"github.com/hanswolff/clubportal/internal/models"
)

type mockAuthService struct {
	token  string
	err    error
	lastIP string
}

func (m *mockAuthService) Login(_ context.Context, _, _, clientIP string) (string, error) {
	m.lastIP = clientIP
	if m.err != nil {
		return "", m.err
	}
	return m.token, nil
}

func postJSON(handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.10:44321"
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestLoginHandler_Success(t *testing.T) {
	service := &mockAuthService{token: "signed.jwt.token"}
	handler := handlers.NewAuthHandler(service, nil)

	w := postJSON(handler.Login, "/auth/login", `{"email":"member@example.com","password":"pw"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "203.0.113.10", service.lastIP)

	var resp handlers.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "signed.jwt.token", resp.Token)
}

func TestLoginHandler_BadCredentials(t *testing.T) {
	handler := handlers.NewAuthHandler(&mockAuthService{err: models.ErrUnauthorized}, nil)

	w := postJSON(handler.Login, "/auth/login", `{"email":"member@example.com","password":"pw"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginHandler_RateLimitedSetsRetryAfter(t *testing.T) {
	limited := &models.RateLimitedError{BlockedUntil: time.Now().Add(2 * time.Minute)}
	handler := handlers.NewAuthHandler(&mockAuthService{err: limited}, nil)

	w := postJSON(handler.Login, "/auth/login", `{"email":"member@example.com","password":"pw"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestLoginHandler_InvalidEmail(t *testing.T) {
	service := &mockAuthService{token: "unused"}
	handler := handlers.NewAuthHandler(service, nil)

	w := postJSON(handler.Login, "/auth/login", `{"email":"not-an-email","password":"pw"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
