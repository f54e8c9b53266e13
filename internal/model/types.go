package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account. PhoneNumber is nil only for federated signups
// that have not linked a phone yet.
type User struct {
	ID          uuid.UUID
	PhoneNumber *string
	Email       *string
	FederatedID *string
	FirstName   string
	LastName    string
	IsVerified  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Phone returns the phone number or "" when none is linked.
func (u User) Phone() string {
	if u.PhoneNumber == nil {
		return ""
	}
	return *u.PhoneNumber
}

// EmailAddress returns the email or "" when none is set.
func (u User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// NewUser holds the fields used to create a user
type NewUser struct {
	PhoneNumber *string
	Email       *string
	FederatedID *string
	FirstName   string
	LastName    string
}

// UserUpdate is a partial update; nil fields are left unchanged.
// IsVerified can only ever set the flag, never clear it.
type UserUpdate struct {
	PhoneNumber *string
	Email       *string
	FirstName   *string
	LastName    *string
	IsVerified  *bool
}

// PendingOTP is a live verification challenge for a phone number
type PendingOTP struct {
	PhoneNumber string
	Code        string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// OtpRecord is the hashed form of a PendingOTP persisted in Postgres
type OtpRecord struct {
	PhoneNumber string
	CodeHash    []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// TokenPair is an issued session
type TokenPair struct {
	Access  string
	Refresh string
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
