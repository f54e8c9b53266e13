// Package otp issues and checks short-lived numeric codes keyed by phone number.
//
// A Store holds at most one live code per phone: Store replaces, Verify
// compares without consuming, and Clear removes. A missing or expired code is
// not an error; Verify simply reports false. Errors are reserved for backend
// failures.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	// Digits is the length of generated codes.
	Digits = 6
	// TTL is how long a stored code stays valid.
	TTL = 300 * time.Second
)

// keyspace is 10^Digits.
var keyspace = big.NewInt(1_000_000)

// Store is the pending-code capability used by the auth service.
type Store interface {
	Store(ctx context.Context, phone, code string) error
	Verify(ctx context.Context, phone, code string) (bool, error)
	Clear(ctx context.Context, phone string) error
}

// Generate returns a uniformly random 6-digit code, leading zeros included.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, keyspace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", Digits, n.Int64()), nil
}
