package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "otp_"

// RedisStore keeps codes in Redis with a native TTL. Every operation is a
// single command, so each is atomic per phone key.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a Store backed by the given client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(phone string) string {
	return s.prefix + phone
}

// Store overwrites any prior code and resets the expiry.
func (s *RedisStore) Store(ctx context.Context, phone, code string) error {
	if err := s.redis.Set(ctx, s.key(phone), code, TTL).Err(); err != nil {
		return fmt.Errorf("redis set otp: %w", err)
	}
	return nil
}

func (s *RedisStore) Verify(ctx context.Context, phone, code string) (bool, error) {
	stored, err := s.redis.Get(ctx, s.key(phone)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get otp: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1, nil
}

func (s *RedisStore) Clear(ctx context.Context, phone string) error {
	if err := s.redis.Del(ctx, s.key(phone)).Err(); err != nil {
		return fmt.Errorf("redis del otp: %w", err)
	}
	return nil
}
