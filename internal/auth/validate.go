package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/signalix/phoneauth/internal/otp"
)

const (
	maxPhoneLen = 17
	maxNameLen  = 30
	maxEmailLen = 254
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]+$`)

// normalizePhone trims and checks a phone number: optional leading +, digits only.
func normalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	switch {
	case phone == "":
		return "", fieldError("phone_number", "Phone number required")
	case len(phone) > maxPhoneLen:
		return "", fieldError("phone_number", "Ensure this field has no more than 17 characters.")
	case !phonePattern.MatchString(phone):
		return "", fieldError("phone_number", "Phone number must contain only digits and an optional leading '+'.")
	}
	return phone, nil
}

// normalizeCode trims a submitted code. An empty result means "no code".
func normalizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) > otp.Digits {
		return "", fieldError("otp", "Ensure this field has no more than 6 characters.")
	}
	return code, nil
}

// normalizeEmail lowercases a bare address and rejects display-name forms.
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > maxEmailLen {
		return "", fieldError("email", "Enter a valid email address.")
	}
	return strings.ToLower(email), nil
}

func validateName(field, name string) error {
	if utf8.RuneCountInString(name) > maxNameLen {
		return fieldError(field, "Ensure this field has no more than 30 characters.")
	}
	return nil
}

// truncateName clips provider-supplied names to the column width.
func truncateName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= maxNameLen {
		return name
	}
	return string([]rune(name)[:maxNameLen])
}
