package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalix/phoneauth/internal/model"
)

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	phone := "+15550040"
	u, err := f.users.Create(ctx, model.NewUser{PhoneNumber: &phone})
	require.NoError(t, err)

	first, email := "Ada", " Ada@Example.COM "
	got, err := f.svc.UpdateProfile(ctx, u.ID, ProfileUpdate{FirstName: &first, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, "ada@example.com", got.EmailAddress())
	assert.Equal(t, phone, got.Phone())

	got, err = f.svc.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
}

func TestUpdateProfile_readOnlyAndInvalid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	phone := "+15550041"
	u, err := f.users.Create(ctx, model.NewUser{PhoneNumber: &phone})
	require.NoError(t, err)

	newPhone, verified := "+15550099", true
	long := strings.Repeat("x", 31)
	bad := "not an email"
	_, err = f.svc.UpdateProfile(ctx, u.ID, ProfileUpdate{
		PhoneNumber: &newPhone,
		IsVerified:  &verified,
		LastName:    &long,
		Email:       &bad,
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 4)
	for _, k := range []string{"phone_number", "is_verified", "last_name", "email"} {
		assert.Contains(t, ve.Fields, k)
	}

	got, err := f.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsVerified)
	assert.Equal(t, phone, got.Phone())
}

func TestUpdateProfile_duplicateEmail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p1, p2, email := "+15550042", "+15550043", "taken@example.com"
	_, err := f.users.Create(ctx, model.NewUser{PhoneNumber: &p1, Email: &email})
	require.NoError(t, err)
	u, err := f.users.Create(ctx, model.NewUser{PhoneNumber: &p2})
	require.NoError(t, err)

	_, err = f.svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: &email})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "email")
}

func TestProfile_unknownUser(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.GetProfile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	name := "x"
	_, err = f.svc.UpdateProfile(context.Background(), uuid.New(), ProfileUpdate{FirstName: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}
