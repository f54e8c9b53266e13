package otp

import (
	"context"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalix/phoneauth/internal/model"
	"github.com/signalix/phoneauth/internal/repo"
)

func TestGenerate_format(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.Len(t, code, Digits)
		for _, c := range code {
			require.True(t, c >= '0' && c <= '9', "code %q must be numeric", code)
		}
		seen[code] = struct{}{}
	}
	// 200 draws from 10^6 values; a handful of collisions at most.
	assert.Greater(t, len(seen), 190)
}

// backend bundles a Store with a way to move its notion of time forward.
type backend struct {
	store   Store
	advance func(time.Duration)
}

func memoryBackend(t *testing.T) backend {
	t.Helper()
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))
	return backend{store: s, advance: func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}}
}

func redisBackend(t *testing.T) backend {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return backend{store: NewRedisStore(rdb, ""), advance: mr.FastForward}
}

func postgresBackend(t *testing.T) backend {
	t.Helper()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewPostgresStore(newFakeOtpRepo(), "test-salt")
	s.nowF = func() time.Time { return now }
	return backend{store: s, advance: func(d time.Duration) { now = now.Add(d) }}
}

func TestStoreBackends(t *testing.T) {
	backends := map[string]func(*testing.T) backend{
		"memory":   memoryBackend,
		"redis":    redisBackend,
		"postgres": postgresBackend,
	}
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("store then verify", func(t *testing.T) {
				b := mk(t)
				ctx := context.Background()
				require.NoError(t, b.store.Store(ctx, "+15551234567", "123456"))

				ok, err := b.store.Verify(ctx, "+15551234567", "123456")
				require.NoError(t, err)
				assert.True(t, ok)

				ok, err = b.store.Verify(ctx, "+15551234567", "654321")
				require.NoError(t, err)
				assert.False(t, ok)

				// Verify does not consume.
				ok, err = b.store.Verify(ctx, "+15551234567", "123456")
				require.NoError(t, err)
				assert.True(t, ok)
			})

			t.Run("unknown phone", func(t *testing.T) {
				b := mk(t)
				ok, err := b.store.Verify(context.Background(), "+19999999999", "123456")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("clear", func(t *testing.T) {
				b := mk(t)
				ctx := context.Background()
				require.NoError(t, b.store.Store(ctx, "+1555", "123456"))
				require.NoError(t, b.store.Clear(ctx, "+1555"))

				ok, err := b.store.Verify(ctx, "+1555", "123456")
				require.NoError(t, err)
				assert.False(t, ok)

				require.NoError(t, b.store.Clear(ctx, "+1555"), "clear must be idempotent")
			})

			t.Run("replace", func(t *testing.T) {
				b := mk(t)
				ctx := context.Background()
				require.NoError(t, b.store.Store(ctx, "+1555", "111111"))
				require.NoError(t, b.store.Store(ctx, "+1555", "222222"))

				ok, err := b.store.Verify(ctx, "+1555", "111111")
				require.NoError(t, err)
				assert.False(t, ok, "old code must not verify after replacement")

				ok, err = b.store.Verify(ctx, "+1555", "222222")
				require.NoError(t, err)
				assert.True(t, ok)
			})

			t.Run("expiry", func(t *testing.T) {
				b := mk(t)
				ctx := context.Background()
				require.NoError(t, b.store.Store(ctx, "+1555", "123456"))

				b.advance(TTL - time.Second)
				ok, err := b.store.Verify(ctx, "+1555", "123456")
				require.NoError(t, err)
				assert.True(t, ok, "code must be valid just before TTL")

				b.advance(2 * time.Second)
				ok, err = b.store.Verify(ctx, "+1555", "123456")
				require.NoError(t, err)
				assert.False(t, ok, "code must be invalid after TTL")
			})

			t.Run("keys are per phone", func(t *testing.T) {
				b := mk(t)
				ctx := context.Background()
				require.NoError(t, b.store.Store(ctx, "+1555", "123456"))

				ok, err := b.store.Verify(ctx, "+1556", "123456")
				require.NoError(t, err)
				assert.False(t, ok)
			})
		})
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	b := memoryBackend(t)
	s := b.store.(*MemoryStore)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "+1", "111111"))
	b.advance(time.Minute)
	require.NoError(t, s.Store(ctx, "+2", "222222"))
	b.advance(TTL - 30*time.Second)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestRedisStore_usesPrefixAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb, "")
	require.NoError(t, s.Store(context.Background(), "+1555", "123456"))

	got, err := mr.Get("otp_+1555")
	require.NoError(t, err)
	assert.Equal(t, "123456", got)
	assert.Equal(t, TTL, mr.TTL("otp_+1555"))
}

func TestRedisStore_backendFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	s := NewRedisStore(rdb, "")
	_, err := s.Verify(context.Background(), "+1555", "123456")
	assert.Error(t, err)
}

func TestHashOTPHex_consistency(t *testing.T) {
	phone, code, salt := "+49123", "123456", "test-salt"
	h1 := hashOTPHex(phone, code, salt)
	h2 := hashOTPHex(phone, code, salt)
	assert.Equal(t, h1, h2, "hash should be deterministic")

	decoded, err := hex.DecodeString(h1)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)

	assert.NotEqual(t, h1, hashOTPHex("+49124", code, salt))
	assert.NotEqual(t, h1, hashOTPHex(phone, "654321", salt))
	assert.NotEqual(t, h1, hashOTPHex(phone, code, "other-salt"))
}

// fakeOtpRepo mirrors the otp_codes table: one row per phone, expiry checked against the caller's clock.
type fakeOtpRepo struct {
	mu   sync.Mutex
	rows map[string]model.OtpRecord
}

func newFakeOtpRepo() *fakeOtpRepo {
	return &fakeOtpRepo{rows: make(map[string]model.OtpRecord)}
}

func (f *fakeOtpRepo) Upsert(ctx context.Context, phone, codeHashHex string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := hex.DecodeString(codeHashHex)
	if err != nil {
		return err
	}
	f.rows[phone] = model.OtpRecord{PhoneNumber: phone, CodeHash: h, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeOtpRepo) GetActive(ctx context.Context, phone string, now time.Time) (model.OtpRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[phone]
	if !ok || !rec.ExpiresAt.After(now) {
		return model.OtpRecord{}, repo.ErrNotFound
	}
	return rec, nil
}

func (f *fakeOtpRepo) Delete(ctx context.Context, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, phone)
	return nil
}
