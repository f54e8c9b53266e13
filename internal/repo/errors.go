package repo

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no row matches a lookup.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when a write would violate a unique field.
	ErrDuplicateKey = errors.New("duplicate key")
)

// DuplicateKeyError names the unique field a write collided on.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	if e.Field == "" {
		return ErrDuplicateKey.Error()
	}
	return "duplicate key: " + e.Field
}

// Is lets errors.Is(err, ErrDuplicateKey) match.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// asDuplicateKey converts a pq unique violation into a DuplicateKeyError.
// Any other error is returned unchanged.
func asDuplicateKey(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return err
	}
	return &DuplicateKeyError{Field: fieldFromConstraint(pqErr.Constraint)}
}

// fieldFromConstraint maps a constraint name such as users_phone_number_key to phone_number.
func fieldFromConstraint(constraint string) string {
	for _, field := range []string{"phone_number", "federated_id", "email"} {
		if strings.Contains(constraint, field) {
			return field
		}
	}
	return ""
}
