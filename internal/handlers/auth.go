package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hanswolff/clubportal/internal/models"
	pkghttp "github.com/hanswolff/clubportal/pkg/http"
)

// AuthServiceInterface defines the interface for login logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, clientIP string) (string, error)
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{service: service, ipConfig: ipConfig}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the signed session token
type LoginResponse struct {
	Token string `json:"token"`
}

// Login handles member login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	signed, err := h.service.Login(r.Context(), req.Email, req.Password, clientIP)
	if err != nil {
		var limited *models.RateLimitedError
		switch {
		case errors.As(err, &limited):
			pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.", limited.BlockedUntil)
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{Token: signed})
}
