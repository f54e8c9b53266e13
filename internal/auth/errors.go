package auth

import (
	"errors"
	"sort"
	"strings"
)

// Errors returned by AuthService. Each maps to a stable code through Code.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("user not found")
	ErrInvalidOTP      = errors.New("invalid OTP")
	ErrInvalidToken    = errors.New("invalid token")
	ErrDeliveryFailed  = errors.New("failed to send OTP")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError reports malformed input or a unique-field collision.
// Fields maps request field names to messages.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Message: msg, Fields: map[string]string{field: msg}}
}

// Stable error codes exposed to clients.
const (
	CodeValidation      = "validation_error"
	CodeNotFound        = "not_found"
	CodeInvalidOTP      = "invalid_otp"
	CodeInvalidToken    = "invalid_token"
	CodeDeliveryFailed  = "delivery_failed"
	CodeUnauthenticated = "unauthenticated"
	CodeInternal        = "internal_error"
)

// Code returns the stable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidOTP):
		return CodeInvalidOTP
	case errors.Is(err, ErrInvalidToken):
		return CodeInvalidToken
	case errors.Is(err, ErrDeliveryFailed):
		return CodeDeliveryFailed
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	default:
		return CodeInternal
	}
}
