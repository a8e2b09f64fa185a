package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hanswolff/clubportal/internal/models"
	"github.com/hanswolff/clubportal/internal/services"
	pkghttp "github.com/hanswolff/clubportal/pkg/http"
)

// RSVPServiceInterface defines the interface for token redemption logic
type RSVPServiceInterface interface {
	LookupRSVP(ctx context.Context, rawToken, clientIP string) (*services.RSVPState, error)
	RedeemRSVP(ctx context.Context, rawToken, choice, clientIP string) (*services.RSVPState, error)
	RedeemUnsubscribe(ctx context.Context, rawToken, clientIP string) error
}

// RSVPHandler handles reminder-link redemption requests
type RSVPHandler struct {
	service  RSVPServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewRSVPHandler creates a new RSVPHandler
func NewRSVPHandler(service RSVPServiceInterface, ipConfig *pkghttp.IPConfig) *RSVPHandler {
	return &RSVPHandler{service: service, ipConfig: ipConfig}
}

// RedeemRSVPRequest represents the request body for recording a vote
type RedeemRSVPRequest struct {
	Token  string `json:"token" validate:"required"`
	Choice string `json:"choice" validate:"required,oneof=yes no maybe"`
}

// RSVPEventResponse is the event summary shown on the RSVP page
type RSVPEventResponse struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	TimeFrom string    `json:"time_from"`
	TimeTo   string    `json:"time_to"`
	Location string    `json:"location"`
}

// RSVPStateResponse represents the response for lookup and redemption
type RSVPStateResponse struct {
	Event RSVPEventResponse `json:"event"`
	Vote  *string           `json:"vote,omitempty"`
}

func toRSVPStateResponse(state *services.RSVPState) RSVPStateResponse {
	resp := RSVPStateResponse{
		Event: RSVPEventResponse{
			ID:       state.Event.ID,
			Title:    state.Event.Title,
			Date:     state.Event.Date,
			TimeFrom: state.Event.TimeFrom,
			TimeTo:   state.Event.TimeTo,
			Location: state.Event.Location,
		},
	}
	if state.Vote != nil {
		resp.Vote = &state.Vote.Choice
	}
	return resp
}

// setNoStore marks token-bearing responses as uncacheable so raw tokens
// never end up in shared caches or proxies
func setNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

// Lookup handles GET /rsvp?token=...
// Returns the event and any recorded vote without mutating anything.
func (h *RSVPHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	setNoStore(w)

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	state, err := h.service.LookupRSVP(r.Context(), r.URL.Query().Get("token"), clientIP)
	if err != nil {
		writeTokenError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toRSVPStateResponse(state))
}

// Redeem handles POST /rsvp
func (h *RSVPHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	setNoStore(w)

	var req RedeemRSVPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	state, err := h.service.RedeemRSVP(r.Context(), req.Token, req.Choice, clientIP)
	if err != nil {
		writeTokenError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toRSVPStateResponse(state))
}

// Unsubscribe handles GET and POST /unsubscribe?token=...
// GET is supported so the mail link works with a single click.
func (h *RSVPHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	setNoStore(w)

	rawToken := r.URL.Query().Get("token")
	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.RedeemUnsubscribe(r.Context(), rawToken, clientIP); err != nil {
		writeTokenError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "unsubscribed",
	})
}

// writeTokenError maps redemption outcomes to HTTP responses. Unknown and
// expired tokens are distinct so the page can offer different guidance.
func writeTokenError(w http.ResponseWriter, err error) {
	var limited *models.RateLimitedError

	switch {
	case errors.As(err, &limited):
		pkghttp.WriteTooManyRequests(w, "Too many attempts. Please try again later.", limited.BlockedUntil)
	case errors.Is(err, models.ErrTokenNotFound):
		pkghttp.WriteNotFound(w, "This link is not valid")
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteGone(w, "This link has expired")
	case errors.Is(err, models.ErrTokenUsed):
		pkghttp.WriteConflict(w, "This link has already been used")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
