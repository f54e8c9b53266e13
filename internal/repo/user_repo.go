package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/signalix/phoneauth/internal/model"
)

// UserRepo is the identity registry. Phone number, email and federated id are
// each unique when set; writes that would break that fail with ErrDuplicateKey.
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	FindByPhone(ctx context.Context, phone string) (model.User, error)
	FindByFederatedID(ctx context.Context, federatedID string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.NewUser) (model.User, error)
	Update(ctx context.Context, id uuid.UUID, upd model.UserUpdate) (model.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new Postgres-backed UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, phone_number, email, federated_id, first_name, last_name, is_verified, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		user                     model.User
		idStr                    string
		phone, email, federation sql.NullString
	)
	err := row.Scan(
		&idStr,
		&phone,
		&email,
		&federation,
		&user.FirstName,
		&user.LastName,
		&user.IsVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	user.PhoneNumber = nullToPtr(phone)
	user.Email = nullToPtr(email)
	user.FederatedID = nullToPtr(federation)
	return user, nil
}

func nullToPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.findOne(ctx, "id", id)
}

// FindByPhone retrieves a user by phone number
func (r *userRepo) FindByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.findOne(ctx, "phone_number", phone)
}

// FindByFederatedID retrieves a user by the identity provider's subject
func (r *userRepo) FindByFederatedID(ctx context.Context, federatedID string) (model.User, error) {
	return r.findOne(ctx, "federated_id", federatedID)
}

// FindByEmail retrieves a user by email
func (r *userRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, "email", email)
}

// findOne runs a single-row lookup. column is always a constant from this file.
func (r *userRepo) findOne(ctx context.Context, column string, value any) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to query user by %s: %w", column, err)
	}
	return user, nil
}

// Create inserts a user. Unique violations surface as *DuplicateKeyError.
func (r *userRepo) Create(ctx context.Context, u model.NewUser) (model.User, error) {
	query := `
		INSERT INTO users (phone_number, email, federated_id, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query,
		u.PhoneNumber, u.Email, u.FederatedID, u.FirstName, u.LastName,
	))
	if err != nil {
		if dup := asDuplicateKey(err); errors.Is(dup, ErrDuplicateKey) {
			return model.User{}, dup
		}
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// Update applies a partial update. is_verified is OR-ed so it can never revert.
func (r *userRepo) Update(ctx context.Context, id uuid.UUID, upd model.UserUpdate) (model.User, error) {
	query := `
		UPDATE users SET
			phone_number = COALESCE($2, phone_number),
			email        = COALESCE($3, email),
			first_name   = COALESCE($4, first_name),
			last_name    = COALESCE($5, last_name),
			is_verified  = is_verified OR COALESCE($6, FALSE),
			updated_at   = now()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query,
		id, upd.PhoneNumber, upd.Email, upd.FirstName, upd.LastName, upd.IsVerified,
	))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.User{}, ErrNotFound
		}
		if dup := asDuplicateKey(err); errors.Is(dup, ErrDuplicateKey) {
			return model.User{}, dup
		}
		return model.User{}, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// Delete removes a user. Deleting a missing user returns ErrNotFound.
func (r *userRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
