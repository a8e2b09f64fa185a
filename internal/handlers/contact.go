package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hanswolff/clubportal/internal/models"
	pkghttp "github.com/hanswolff/clubportal/pkg/http"
)

// ContactServiceInterface defines the interface for contact form relay
type ContactServiceInterface interface {
	Submit(ctx context.Context, fromEmail, fromName, message, clientIP string) error
}

// ContactHandler handles contact form submissions
type ContactHandler struct {
	service  ContactServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewContactHandler creates a new ContactHandler
func NewContactHandler(service ContactServiceInterface, ipConfig *pkghttp.IPConfig) *ContactHandler {
	return &ContactHandler{service: service, ipConfig: ipConfig}
}

// ContactRequest represents the request body for the contact form
type ContactRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name" validate:"required,min=1,max=200"`
	Message string `json:"message" validate:"required,min=1,max=5000"`
}

// Submit handles POST /contact
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.Submit(r.Context(), req.Email, req.Name, req.Message, clientIP); err != nil {
		var limited *models.RateLimitedError
		if errors.As(err, &limited) {
			pkghttp.WriteTooManyRequests(w, "Too many messages. Please try again later.", limited.BlockedUntil)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "message sent",
	})
}
