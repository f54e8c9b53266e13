package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/auth"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *auth.AuthService
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

// initiateRequest is the request body for POST /auth/initiate
type initiateRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type messageResponse struct {
	Message     string `json:"message"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type initiateResponse struct {
	Message     string `json:"message"`
	PhoneNumber string `json:"phone_number"`
	IsNewUser   bool   `json:"is_new_user"`
}

// sessionResponse carries issued tokens.
type sessionResponse struct {
	Access    string        `json:"access"`
	Refresh   string        `json:"refresh"`
	User      *userResponse `json:"user,omitempty"`
	IsNewUser *bool         `json:"is_new_user,omitempty"`
}

// HandleInitiate handles POST /auth/initiate
func (h *AuthHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	res, err := h.authService.Initiate(r.Context(), req.PhoneNumber)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if res.IsNewUser {
		status = http.StatusCreated
	}
	respondWithJSON(w, h.logger, status, initiateResponse{
		Message:     "OTP sent",
		PhoneNumber: res.PhoneNumber,
		IsNewUser:   res.IsNewUser,
	})
}

// verifyRequest is the request body for POST /auth/verify
type verifyRequest struct {
	PhoneNumber string   `json:"phone_number"`
	OTP         codeText `json:"otp"`
}

// codeText accepts a code sent either as a JSON string or a JSON number.
type codeText string

func (c *codeText) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = codeText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("otp must be a string or a number")
	}
	*c = codeText(n.String())
	return nil
}

// HandleVerify handles POST /auth/verify. Without an otp it resends a code.
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	res, err := h.authService.VerifyOrResend(r.Context(), req.PhoneNumber, string(req.OTP))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	if res.Resent {
		respondWithJSON(w, h.logger, http.StatusOK, messageResponse{
			Message:     "OTP resent",
			PhoneNumber: res.PhoneNumber,
		})
		return
	}

	user := newUserResponse(res.User)
	isNew := res.IsNewUser
	respondWithJSON(w, h.logger, http.StatusOK, sessionResponse{
		Access:    res.Session.Access,
		Refresh:   res.Session.Refresh,
		User:      &user,
		IsNewUser: &isNew,
	})
}

// federatedRequest is the request body for POST /auth/federated.
// access_token is accepted as an alias of provider_token.
type federatedRequest struct {
	ProviderToken string `json:"provider_token"`
	AccessToken   string `json:"access_token"`
	PhoneNumber   string `json:"phone_number"`
}

type federatedResponse struct {
	Message     string       `json:"message"`
	IsNewUser   bool         `json:"is_new_user"`
	FederatedID string       `json:"federated_id,omitempty"`
	PhoneNumber string       `json:"phone_number,omitempty"`
	User        userResponse `json:"user"`
}

// HandleFederated handles POST /auth/federated
func (h *AuthHandler) HandleFederated(w http.ResponseWriter, r *http.Request) {
	var req federatedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	token := strings.TrimSpace(req.ProviderToken)
	if token == "" {
		token = strings.TrimSpace(req.AccessToken)
	}
	if token == "" {
		respondWithError(w, h.logger, &auth.ValidationError{
			Message: "provider_token is required",
			Fields:  map[string]string{"provider_token": "This field is required."},
		})
		return
	}

	res, err := h.authService.FederatedSignIn(r.Context(), token, req.PhoneNumber)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	user := newUserResponse(res.User)
	switch res.Outcome {
	case auth.FederatedNewUser:
		respondWithJSON(w, h.logger, http.StatusCreated, federatedResponse{
			Message:     "User created, phone number required",
			IsNewUser:   true,
			FederatedID: res.FederatedID,
			User:        user,
		})
	case auth.FederatedOTPSent:
		respondWithJSON(w, h.logger, http.StatusOK, federatedResponse{
			Message:     "OTP sent",
			FederatedID: res.FederatedID,
			PhoneNumber: res.PhoneNumber,
			User:        user,
		})
	case auth.FederatedSignedIn:
		isNew := false
		respondWithJSON(w, h.logger, http.StatusOK, sessionResponse{
			Access:    res.Session.Access,
			Refresh:   res.Session.Refresh,
			User:      &user,
			IsNewUser: &isNew,
		})
	default:
		respondWithJSON(w, h.logger, http.StatusOK, federatedResponse{
			Message:     "Phone number required",
			FederatedID: res.FederatedID,
			User:        user,
		})
	}
}

// refreshRequest is the request body for POST /auth/token/refresh
type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// HandleRefresh handles POST /auth/token/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Refresh) == "" {
		respondWithError(w, h.logger, &auth.ValidationError{
			Message: "refresh is required",
			Fields:  map[string]string{"refresh": "This field is required."},
		})
		return
	}

	pair, err := h.authService.RefreshSession(r.Context(), req.Refresh)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, sessionResponse{Access: pair.Access, Refresh: pair.Refresh})
}
