package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/signalix/phoneauth/internal/model"
)

// OtpRepo persists hashed pending codes, at most one row per phone number.
type OtpRepo interface {
	Upsert(ctx context.Context, phone, codeHashHex string, expiresAt time.Time) error
	GetActive(ctx context.Context, phone string, now time.Time) (model.OtpRecord, error)
	Delete(ctx context.Context, phone string) error
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a new OtpRepo instance
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

// Upsert replaces any existing code for the phone. phone_number is the primary
// key, so the single statement is atomic per phone.
func (r *otpRepo) Upsert(ctx context.Context, phone, codeHashHex string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO otp_codes (phone_number, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (phone_number) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
	`, phone, codeHashHex, expiresAt)
	if err != nil {
		return fmt.Errorf("upsert otp code: %w", err)
	}
	return nil
}

// GetActive returns the code for the phone if it expires after now.
func (r *otpRepo) GetActive(ctx context.Context, phone string, now time.Time) (model.OtpRecord, error) {
	var (
		rec     model.OtpRecord
		hashHex string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT phone_number, code_hash, created_at, expires_at
		FROM otp_codes
		WHERE phone_number = $1 AND expires_at > $2
	`, phone, now).Scan(&rec.PhoneNumber, &hashHex, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OtpRecord{}, ErrNotFound
		}
		return model.OtpRecord{}, fmt.Errorf("query otp code: %w", err)
	}
	rec.CodeHash, err = hex.DecodeString(hashHex)
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("decode code_hash: %w", err)
	}
	return rec, nil
}

// Delete removes the code for the phone; deleting nothing is not an error.
func (r *otpRepo) Delete(ctx context.Context, phone string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE phone_number = $1`, phone); err != nil {
		return fmt.Errorf("delete otp code: %w", err)
	}
	return nil
}
