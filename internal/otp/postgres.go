package otp

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/signalix/phoneauth/internal/repo"
)

// PostgresStore keeps only SHA-256(phone:code:salt) in the otp_codes table so
// a database read never reveals a live code.
type PostgresStore struct {
	otpRepo repo.OtpRepo
	salt    string
	nowF    func() time.Time
}

// NewPostgresStore creates a Store backed by otpRepo.
func NewPostgresStore(otpRepo repo.OtpRepo, salt string) *PostgresStore {
	return &PostgresStore{
		otpRepo: otpRepo,
		salt:    salt,
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *PostgresStore) Store(ctx context.Context, phone, code string) error {
	expiresAt := s.nowF().Add(TTL)
	if err := s.otpRepo.Upsert(ctx, phone, hashOTPHex(phone, code, s.salt), expiresAt); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

func (s *PostgresStore) Verify(ctx context.Context, phone, code string) (bool, error) {
	rec, err := s.otpRepo.GetActive(ctx, phone, s.nowF())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load otp: %w", err)
	}
	provided := hashOTPBytes(phone, code, s.salt)
	return subtle.ConstantTimeCompare(provided, rec.CodeHash) == 1, nil
}

func (s *PostgresStore) Clear(ctx context.Context, phone string) error {
	if err := s.otpRepo.Delete(ctx, phone); err != nil {
		return fmt.Errorf("clear otp: %w", err)
	}
	return nil
}

// hashOTPHex returns SHA-256(phone:code:salt) as hex for DB storage
func hashOTPHex(phone, code, salt string) string {
	return hex.EncodeToString(hashOTPBytes(phone, code, salt))
}

func hashOTPBytes(phone, code, salt string) []byte {
	hash := sha256.Sum256([]byte(phone + ":" + code + ":" + salt))
	return hash[:]
}
