package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/auth"
	"github.com/signalix/phoneauth/internal/middleware"
)

// ProfileHandler serves the authenticated user's profile.
type ProfileHandler struct {
	authService *auth.AuthService
	logger      *zap.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(authService *auth.AuthService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{authService: authService, logger: logger}
}

type profileRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	IsVerified  *bool   `json:"is_verified"`
}

// HandleGet handles GET /profile (protected).
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, h.logger, auth.ErrUnauthenticated)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, newUserResponse(*user))
}

// HandlePatch handles PATCH /profile (protected).
func (h *ProfileHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, h.logger, auth.ErrUnauthenticated)
		return
	}

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), userID, auth.ProfileUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		IsVerified:  req.IsVerified,
	})
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, newUserResponse(user))
}
