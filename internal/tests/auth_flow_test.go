package tests

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalix/phoneauth/internal/repo"
)

const testPhone = "+491234567890"

var testVerifier = StubVerifier{
	"google-ok": {
		Subject:       "google-sub-1",
		Email:         "grace@example.com",
		EmailVerified: true,
		GivenName:     "Grace",
		FamilyName:    "Hopper",
	},
	"google-collide": {
		Subject:       "google-sub-2",
		Email:         "taken@example.com",
		EmailVerified: true,
	},
}

// runAuthFlows exercises the public HTTP surface. newStack must return a
// stack over empty storage.
func runAuthFlows(t *testing.T, newStack func(t *testing.T) *Stack) {
	t.Run("A_Health", func(t *testing.T) {
		c := newClient(t, newStack(t))
		var body map[string]bool
		assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", "", nil, &body))
		assert.True(t, body["ok"])
	})

	t.Run("B_InitiateVerifyProfile", func(t *testing.T) {
		s := newStack(t)
		c := newClient(t, s)

		var init initiateBody
		require.Equal(t, http.StatusCreated, c.post("/auth/initiate", map[string]string{"phone_number": testPhone}, &init))
		assert.True(t, init.IsNewUser)
		assert.Equal(t, testPhone, init.PhoneNumber)

		require.Equal(t, http.StatusOK, c.post("/auth/initiate", map[string]string{"phone_number": testPhone}, &init))
		assert.False(t, init.IsNewUser)

		code, ok := s.Gateway.LastCode(testPhone)
		require.True(t, ok)

		var sess sessionBody
		require.Equal(t, http.StatusOK, c.post("/auth/verify", map[string]string{"phone_number": testPhone, "otp": code}, &sess))
		assert.NotEmpty(t, sess.Access)
		assert.NotEmpty(t, sess.Refresh)
		assert.True(t, sess.IsNewUser)
		assert.True(t, sess.User.IsVerified)

		claims, err := s.JWT.VerifyAccessToken(sess.Access)
		require.NoError(t, err)
		assert.Equal(t, sess.User.ID, claims.Subject)
		assert.Equal(t, testPhone, claims.PhoneNumber)

		// consumed on success
		stillLive, err := s.OTPs.Verify(context.Background(), testPhone, code)
		require.NoError(t, err)
		assert.False(t, stillLive)

		var profile userBody
		require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/profile", sess.Access, nil, &profile))
		require.NotNil(t, profile.PhoneNumber)
		assert.Equal(t, testPhone, *profile.PhoneNumber)

		require.Equal(t, http.StatusOK, c.do(http.MethodPatch, "/profile", sess.Access,
			map[string]string{"first_name": "Ada", "email": "Ada@Example.com"}, &profile))
		assert.Equal(t, "Ada", profile.FirstName)
		require.NotNil(t, profile.Email)
		assert.Equal(t, "ada@example.com", *profile.Email)

		var errResp errorBody
		require.Equal(t, http.StatusBadRequest, c.do(http.MethodPatch, "/profile", sess.Access,
			map[string]interface{}{"phone_number": "+15550000", "is_verified": false}, &errResp))
		assert.Equal(t, "validation_error", errResp.Code)
		assert.Contains(t, errResp.FieldErrors, "phone_number")
		assert.Contains(t, errResp.FieldErrors, "is_verified")

		var refreshed sessionBody
		require.Equal(t, http.StatusOK, c.post("/auth/token/refresh", map[string]string{"refresh": sess.Refresh}, &refreshed))
		assert.NotEmpty(t, refreshed.Access)

		require.Equal(t, http.StatusUnauthorized, c.post("/auth/token/refresh", map[string]string{"refresh": sess.Access}, &errResp))
		assert.Equal(t, "invalid_token", errResp.Code)
	})

	t.Run("C_WrongCode", func(t *testing.T) {
		s := newStack(t)
		c := newClient(t, s)
		require.Equal(t, http.StatusCreated, c.post("/auth/initiate", map[string]string{"phone_number": testPhone}, nil))
		code, _ := s.Gateway.LastCode(testPhone)
		wrong := "000000"
		if code == wrong {
			wrong = "999999"
		}

		var errResp errorBody
		require.Equal(t, http.StatusBadRequest, c.post("/auth/verify", map[string]string{"phone_number": testPhone, "otp": wrong}, &errResp))
		assert.Equal(t, "invalid_otp", errResp.Code)

		u, err := s.Users.FindByPhone(context.Background(), testPhone)
		require.NoError(t, err)
		assert.False(t, u.IsVerified)
	})

	t.Run("D_Resend", func(t *testing.T) {
		s := newStack(t)
		c := newClient(t, s)
		require.Equal(t, http.StatusCreated, c.post("/auth/initiate", map[string]string{"phone_number": testPhone}, nil))

		var msg sessionBody
		require.Equal(t, http.StatusOK, c.post("/auth/verify", map[string]string{"phone_number": testPhone}, &msg))
		assert.Empty(t, msg.Access)
		assert.Equal(t, "OTP resent", msg.Message)

		var errResp errorBody
		require.Equal(t, http.StatusNotFound, c.post("/auth/verify", map[string]string{"phone_number": "+15559999", "otp": "123456"}, &errResp))
		assert.Equal(t, "not_found", errResp.Code)
	})

	t.Run("J_NumericOTP", func(t *testing.T) {
		s := newStack(t)
		c := newClient(t, s)
		require.Equal(t, http.StatusCreated, c.post("/auth/initiate", map[string]string{"phone_number": testPhone}, nil))

		// a numeric code cannot carry a leading zero, so pin one that has none
		require.NoError(t, s.OTPs.Store(context.Background(), testPhone, "482913"))

		var errResp errorBody
		require.Equal(t, http.StatusBadRequest, c.post("/auth/verify",
			map[string]interface{}{"phone_number": testPhone, "otp": 111111}, &errResp))
		assert.Equal(t, "invalid_otp", errResp.Code)

		var sess sessionBody
		require.Equal(t, http.StatusOK, c.post("/auth/verify",
			map[string]interface{}{"phone_number": testPhone, "otp": 482913}, &sess))
		assert.NotEmpty(t, sess.Access)
		assert.True(t, sess.User.IsVerified)

		require.Equal(t, http.StatusBadRequest, c.post("/auth/verify",
			map[string]interface{}{"phone_number": testPhone, "otp": true}, &errResp))
		assert.Equal(t, "validation_error", errResp.Code)
	})

	t.Run("E_DeliveryFailureRollsBack", func(t *testing.T) {
		s := newStack(t)
		c := newClient(t, s)
		s.Gateway.SetFail(true)

		var errResp errorBody
		require.Equal(t, http.StatusInternalServerError, c.post("/auth/initiate", map[string]string{"phone_number": testPhone}, &errResp))
		assert.Equal(t, "delivery_failed", errResp.Code)

		_, err := s.Users.FindByPhone(context.Background(), testPhone)
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("F_Validation", func(t *testing.T) {
		c := newClient(t, newStack(t))
		var errResp errorBody
		require.Equal(t, http.StatusBadRequest, c.post("/auth/initiate", map[string]string{"phone_number": "12-34"}, &errResp))
		assert.Equal(t, "validation_error", errResp.Code)
		assert.Contains(t, errResp.FieldErrors, "phone_number")

		require.Equal(t, http.StatusBadRequest, c.post("/auth/initiate", "not an object", &errResp))

		long := map[string]string{"phone_number": "+" + strings.Repeat("1", 17)}
		require.Equal(t, http.StatusBadRequest, c.post("/auth/initiate", long, &errResp))

		require.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/profile", "", nil, &errResp))
		assert.Equal(t, "unauthenticated", errResp.Code)
	})

	t.Run("G_Federated", func(t *testing.T) {
		s := newStack(t)
		c := newClient(t, s)

		var fed federatedBody
		require.Equal(t, http.StatusCreated, c.post("/auth/federated", map[string]string{"provider_token": "google-ok"}, &fed))
		assert.True(t, fed.IsNewUser)
		assert.Equal(t, "google-sub-1", fed.FederatedID)
		assert.Equal(t, "Grace", fed.User.FirstName)

		require.Equal(t, http.StatusOK, c.post("/auth/federated", map[string]string{"access_token": "google-ok", "phone_number": testPhone}, &fed))
		assert.Equal(t, testPhone, fed.PhoneNumber)

		code, ok := s.Gateway.LastCode(testPhone)
		require.True(t, ok)
		var sess sessionBody
		require.Equal(t, http.StatusOK, c.post("/auth/verify", map[string]string{"phone_number": testPhone, "otp": code}, &sess))
		assert.False(t, sess.IsNewUser)

		require.Equal(t, http.StatusOK, c.post("/auth/federated", map[string]string{"provider_token": "google-ok"}, &fed))
		assert.NotEmpty(t, fed.Access)

		var errResp errorBody
		require.Equal(t, http.StatusUnauthorized, c.post("/auth/federated", map[string]string{"provider_token": "forged"}, &errResp))
		assert.Equal(t, "invalid_token", errResp.Code)

		require.Equal(t, http.StatusBadRequest, c.post("/auth/federated", map[string]string{}, &errResp))
		assert.Contains(t, errResp.FieldErrors, "provider_token")
	})

	t.Run("H_FederatedEmailCollision", func(t *testing.T) {
		s := newStack(t)
		c := newClient(t, s)

		var sess sessionBody
		require.Equal(t, http.StatusCreated, c.post("/auth/initiate", map[string]string{"phone_number": testPhone}, nil))
		code, _ := s.Gateway.LastCode(testPhone)
		require.Equal(t, http.StatusOK, c.post("/auth/verify", map[string]string{"phone_number": testPhone, "otp": code}, &sess))
		require.Equal(t, http.StatusOK, c.do(http.MethodPatch, "/profile", sess.Access, map[string]string{"email": "taken@example.com"}, nil))

		var errResp errorBody
		require.Equal(t, http.StatusBadRequest, c.post("/auth/federated", map[string]string{"provider_token": "google-collide"}, &errResp))
		assert.Contains(t, errResp.FieldErrors, "email")

		u, err := s.Users.FindByPhone(context.Background(), testPhone)
		require.NoError(t, err)
		assert.Nil(t, u.FederatedID)
	})

	t.Run("I_ConcurrentInitiate", func(t *testing.T) {
		s := newStack(t)
		c := newClient(t, s)

		const n = 8
		statuses := make([]int, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				statuses[i] = c.post("/auth/initiate", map[string]string{"phone_number": testPhone}, nil)
			}(i)
		}
		wg.Wait()

		created := 0
		for _, st := range statuses {
			assert.Contains(t, []int{http.StatusOK, http.StatusCreated}, st)
			if st == http.StatusCreated {
				created++
			}
		}
		assert.Equal(t, 1, created)
	})
}
