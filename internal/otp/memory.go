package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/signalix/phoneauth/internal/model"
)

// MemoryStore is an in-process Store. Expiry is enforced lazily in Verify;
// Sweep can be called periodically to drop dead entries.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]model.PendingOTP
	nowF func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.nowF = now }
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		m:    make(map[string]model.PendingOTP),
		nowF: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Store(ctx context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	s.m[phone] = model.PendingOTP{
		PhoneNumber: phone,
		Code:        code,
		IssuedAt:    now,
		ExpiresAt:   now.Add(TTL),
	}
	return nil
}

func (s *MemoryStore) Verify(ctx context.Context, phone, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[phone]
	if !ok {
		return false, nil
	}
	if !p.ExpiresAt.After(s.nowF()) {
		delete(s.m, phone)
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(p.Code), []byte(code)) == 1, nil
}

func (s *MemoryStore) Clear(ctx context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, phone)
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	n := 0
	for phone, p := range s.m {
		if !p.ExpiresAt.After(now) {
			delete(s.m, phone)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, live or not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
