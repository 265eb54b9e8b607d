package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunshineDad/poping/internal/auth"
	"github.com/sunshineDad/poping/internal/testutil"
)

func TestStore_RegisterAndAuthenticate(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := auth.NewStore(tdb.Pool)
	ctx := context.Background()

	user, err := store.Register(ctx, "Alice@Example.com", "s3cret-pass", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email, "email is normalized")

	got, err := store.Authenticate(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	byID, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", byID.DisplayName)
}

func TestStore_DuplicateEmail(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := auth.NewStore(tdb.Pool)
	ctx := context.Background()

	_, err := store.Register(ctx, "dup@example.com", "s3cret-pass", "")
	require.NoError(t, err)

	_, err = store.Register(ctx, "dup@example.com", "other-pass123", "")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestStore_AuthenticateFailures(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := auth.NewStore(tdb.Pool)
	ctx := context.Background()

	_, err := store.Register(ctx, "bob@example.com", "s3cret-pass", "")
	require.NoError(t, err)

	// Wrong password and unknown email are indistinguishable.
	_, err = store.Authenticate(ctx, "bob@example.com", "wrong-pass")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = store.Authenticate(ctx, "nobody@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}
