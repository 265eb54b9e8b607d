package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunshineDad/poping/internal/session"
	"github.com/sunshineDad/poping/internal/testutil"
)

func seedUserAndAgent(t *testing.T, tdb *testutil.TestDB) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	var userID uuid.UUID
	err := tdb.Pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, 'x') RETURNING id`,
		uuid.NewString()+"@example.com",
	).Scan(&userID)
	require.NoError(t, err)

	var agentID uuid.UUID
	err = tdb.Pool.QueryRow(ctx, `
		INSERT INTO agent_configs (user_id, name)
		VALUES ($1, 'seed agent') RETURNING id`,
		userID,
	).Scan(&agentID)
	require.NoError(t, err)

	return userID, agentID
}

func TestStore_CreateAndGet(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := session.NewStore(tdb.Pool)
	userID, agentID := seedUserAndAgent(t, tdb)
	ctx := context.Background()

	created, err := store.Create(ctx, userID, agentID, "remote-1", "First chat")
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, created.Status)
	assert.Equal(t, "remote-1", created.RemoteSessionID)

	got, err := store.Get(ctx, created.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "First chat", got.Title)
}

func TestStore_GetOwnership(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := session.NewStore(tdb.Pool)
	userID, agentID := seedUserAndAgent(t, tdb)
	otherID, _ := seedUserAndAgent(t, tdb)
	ctx := context.Background()

	created, err := store.Create(ctx, userID, agentID, "remote-1", "t")
	require.NoError(t, err)

	_, err = store.Get(ctx, created.ID, otherID)
	assert.ErrorIs(t, err, session.ErrForbidden)

	_, err = store.Get(ctx, uuid.New(), userID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStore_ListByUserOrdersByActivity(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := session.NewStore(tdb.Pool)
	userID, agentID := seedUserAndAgent(t, tdb)
	ctx := context.Background()

	older, err := store.Create(ctx, userID, agentID, "remote-1", "older")
	require.NoError(t, err)
	newer, err := store.Create(ctx, userID, agentID, "remote-2", "newer")
	require.NoError(t, err)

	// Touch the older session so it becomes the most recently active.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Touch(ctx, older.ID))

	sessions, err := store.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, older.ID, sessions[0].ID)
	assert.Equal(t, newer.ID, sessions[1].ID)
}

func TestStore_TouchIsIdempotent(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := session.NewStore(tdb.Pool)
	userID, agentID := seedUserAndAgent(t, tdb)
	ctx := context.Background()

	created, err := store.Create(ctx, userID, agentID, "remote-1", "t")
	require.NoError(t, err)

	require.NoError(t, store.Touch(ctx, created.ID))
	require.NoError(t, store.Touch(ctx, created.ID))

	got, err := store.Get(ctx, created.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status)
	assert.Equal(t, created.RemoteSessionID, got.RemoteSessionID)
	assert.True(t, got.LastActivity.After(created.LastActivity) ||
		got.LastActivity.Equal(created.LastActivity))

	// Touching an unknown session is not an error.
	assert.NoError(t, store.Touch(ctx, uuid.New()))
}

func TestStore_UpdateStatus(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := session.NewStore(tdb.Pool)
	userID, agentID := seedUserAndAgent(t, tdb)
	ctx := context.Background()

	created, err := store.Create(ctx, userID, agentID, "remote-1", "t")
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, created.ID, userID, session.StatusEnded))

	got, err := store.Get(ctx, created.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, got.Status)

	err = store.UpdateStatus(ctx, uuid.New(), userID, session.StatusEnded)
	assert.ErrorIs(t, err, session.ErrNotFound)

	// Another user's session is off limits, not invisible.
	err = store.UpdateStatus(ctx, created.ID, uuid.New(), session.StatusArchived)
	assert.ErrorIs(t, err, session.ErrForbidden)
}

func TestStore_UpdateTitle(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := session.NewStore(tdb.Pool)
	userID, agentID := seedUserAndAgent(t, tdb)
	ctx := context.Background()

	created, err := store.Create(ctx, userID, agentID, "remote-1", "t")
	require.NoError(t, err)

	require.NoError(t, store.UpdateTitle(ctx, created.ID, userID, "Renamed"))

	got, err := store.Get(ctx, created.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	// Another user's session is off limits, not invisible.
	err = store.UpdateTitle(ctx, created.ID, uuid.New(), "hijack")
	assert.ErrorIs(t, err, session.ErrForbidden)

	err = store.UpdateTitle(ctx, uuid.New(), userID, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestStore_DeleteRemovesTranscript(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := session.NewStore(tdb.Pool)
	userID, agentID := seedUserAndAgent(t, tdb)
	ctx := context.Background()

	created, err := store.Create(ctx, userID, agentID, "remote-1", "t")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := tdb.Pool.Exec(ctx, `
			INSERT INTO messages (session_id, role, content, sequence_number)
			VALUES ($1, 'user', 'm', $2)`,
			created.ID, i)
		require.NoError(t, err)
	}

	count, err := store.Delete(ctx, created.ID, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	_, err = store.Get(ctx, created.ID, userID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	var remaining int
	require.NoError(t, tdb.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = $1`, created.ID,
	).Scan(&remaining))
	assert.Zero(t, remaining)
}

func TestStore_DeleteOwnership(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := session.NewStore(tdb.Pool)
	userID, agentID := seedUserAndAgent(t, tdb)
	otherID, _ := seedUserAndAgent(t, tdb)
	ctx := context.Background()

	created, err := store.Create(ctx, userID, agentID, "remote-1", "t")
	require.NoError(t, err)

	_, err = store.Delete(ctx, created.ID, otherID)
	assert.ErrorIs(t, err, session.ErrForbidden)

	// Still present for the owner.
	_, err = store.Get(ctx, created.ID, userID)
	assert.NoError(t, err)
}
