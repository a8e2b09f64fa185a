package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hanswolff/clubportal/internal/models"
	"github.com/hanswolff/clubportal/pkg/auth"
	pkghttp "github.com/hanswolff/clubportal/pkg/http"
)

// PasswordResetServiceInterface defines the interface for the reset flow
type PasswordResetServiceInterface interface {
	Request(ctx context.Context, email, clientIP string) error
	Complete(ctx context.Context, rawToken, newPassword, clientIP string) error
}

// PasswordResetHandler handles forgot-password and reset-password requests
type PasswordResetHandler struct {
	service  PasswordResetServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewPasswordResetHandler creates a new PasswordResetHandler
func NewPasswordResetHandler(service PasswordResetServiceInterface, ipConfig *pkghttp.IPConfig) *PasswordResetHandler {
	return &PasswordResetHandler{service: service, ipConfig: ipConfig}
}

// ForgotPasswordRequest represents the request body for requesting a reset link
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents the request body for completing a reset
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Forgot handles POST /auth/forgot-password. The response is identical for
// known and unknown addresses.
func (h *PasswordResetHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.Request(r.Context(), req.Email, clientIP); err != nil {
		var limited *models.RateLimitedError
		if errors.As(err, &limited) {
			pkghttp.WriteTooManyRequests(w, "Too many reset requests. Please try again later.", limited.BlockedUntil)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "If the address is known, a reset link has been sent",
	})
}

// Reset handles POST /auth/reset-password
func (h *PasswordResetHandler) Reset(w http.ResponseWriter, r *http.Request) {
	setNoStore(w)

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.Complete(r.Context(), req.Token, req.NewPassword, clientIP); err != nil {
		var limited *models.RateLimitedError
		if errors.As(err, &limited) {
			pkghttp.WriteTooManyRequests(w, "Too many attempts. Please try again later.", limited.BlockedUntil)
			return
		}
		writeTokenError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "password updated",
	})
}
