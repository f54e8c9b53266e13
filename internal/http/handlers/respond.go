package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/auth"
	"github.com/signalix/phoneauth/internal/model"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error       string            `json:"error"`
	Code        string            `json:"code"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID          string  `json:"id"`
	PhoneNumber *string `json:"phone_number"`
	Email       *string `json:"email"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	IsVerified  bool    `json:"is_verified"`
}

func newUserResponse(u model.User) userResponse {
	return userResponse{
		ID:          u.ID.String(),
		PhoneNumber: u.PhoneNumber,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		IsVerified:  u.IsVerified,
	}
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &auth.ValidationError{Message: "request body is empty"}
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &auth.ValidationError{Message: "request body too large"}
		}
		return &auth.ValidationError{Message: "invalid request body"}
	}
	return nil
}

func respondWithJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

// statusFor maps a service error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case auth.CodeValidation, auth.CodeInvalidOTP:
		return http.StatusBadRequest
	case auth.CodeNotFound:
		return http.StatusNotFound
	case auth.CodeInvalidToken, auth.CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError writes err as a JSON error body. Internal errors are logged
// and replaced by a generic message.
func respondWithError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := auth.Code(err)
	resp := errorResponse{Code: code}

	switch code {
	case auth.CodeInternal:
		logger.Error("request failed", zap.Error(err))
		resp.Error = "internal server error"
	case auth.CodeInvalidToken:
		resp.Error = "Invalid or expired token."
	case auth.CodeValidation:
		resp.Error = err.Error()
		var ve *auth.ValidationError
		if errors.As(err, &ve) && len(ve.Fields) > 0 {
			resp.FieldErrors = ve.Fields
		}
	default:
		resp.Error = err.Error()
	}

	respondWithJSON(w, logger, statusFor(code), resp)
}
