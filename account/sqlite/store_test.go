package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-auth/authkit/account"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleAccount(id, email string) *account.Account {
	now := time.Now().UTC()
	return &account.Account{
		ID:           id,
		Email:        email,
		PasswordHash: "$argon2id$stub",
		Profile: account.Profile{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Phone:     "+15550000001",
			Company:   "Analytical Engines",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndFind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, sampleAccount("id-1", "Ada@Example.com")))

	got, err := s.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "Ada", got.Profile.FirstName)
	assert.False(t, got.Verified)

	byID, err := s.FindByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, got.Email, byID.Email)

	_, err = s.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestDuplicateEmailRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, sampleAccount("id-1", "ada@example.com")))
	err := s.Create(ctx, sampleAccount("id-2", "ADA@EXAMPLE.COM"))
	assert.ErrorIs(t, err, account.ErrDuplicate)
}

func TestUpdates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, sampleAccount("id-1", "ada@example.com")))

	require.NoError(t, s.SetVerified(ctx, "id-1", true))
	require.NoError(t, s.UpdatePasswordHash(ctx, "id-1", "$argon2id$new"))
	require.NoError(t, s.SetDisabled(ctx, "id-1", true))

	got, err := s.FindByID(ctx, "id-1")
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.True(t, got.Disabled)
	assert.Equal(t, "$argon2id$new", got.PasswordHash)

	assert.ErrorIs(t, s.SetVerified(ctx, "ghost", true), account.ErrNotFound)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
