package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/model"
	"github.com/signalix/phoneauth/internal/repo"
)

// ProfileUpdate is a partial profile edit. Nil fields are left unchanged.
// PhoneNumber and IsVerified are accepted only so they can be rejected.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	Email       *string
	PhoneNumber *string
	IsVerified  *bool
}

// GetProfile returns the user by id.
func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateProfile applies upd to the user. Read-only and invalid fields are all
// reported together in one ValidationError.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (model.User, error) {
	fields := map[string]string{}
	if upd.PhoneNumber != nil {
		fields["phone_number"] = "This field is read-only."
	}
	if upd.IsVerified != nil {
		fields["is_verified"] = "This field is read-only."
	}

	var change model.UserUpdate
	if upd.FirstName != nil {
		if err := validateName("first_name", *upd.FirstName); err != nil {
			fields["first_name"] = err.Error()
		}
		change.FirstName = upd.FirstName
	}
	if upd.LastName != nil {
		if err := validateName("last_name", *upd.LastName); err != nil {
			fields["last_name"] = err.Error()
		}
		change.LastName = upd.LastName
	}
	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			fields["email"] = err.Error()
		}
		change.Email = &email
	}
	if len(fields) > 0 {
		return model.User{}, &ValidationError{Fields: fields}
	}

	user, err := s.users.Update(ctx, userID, change)
	if err != nil {
		var dup *repo.DuplicateKeyError
		switch {
		case errors.As(err, &dup) && dup.Field == "email":
			return model.User{}, fieldError("email", "A user with this email already exists.")
		case errors.Is(err, repo.ErrNotFound):
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("update profile: %w", err)
	}

	s.logger.Info("profile updated", zap.Stringer("user_id", user.ID))
	return user, nil
}
