package catalog_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunshineDad/poping/internal/catalog"
	"github.com/sunshineDad/poping/internal/testutil"
)

func seedUser(t *testing.T, tdb *testutil.TestDB) uuid.UUID {
	t.Helper()

	var userID uuid.UUID
	err := tdb.Pool.QueryRow(context.Background(), `
		INSERT INTO users (email, password_hash)
		VALUES ($1, 'x') RETURNING id`,
		uuid.NewString()+"@example.com",
	).Scan(&userID)
	require.NoError(t, err)
	return userID
}

func TestStore_ProvidersSeeded(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := catalog.NewStore(tdb.Pool)

	providers, err := store.Providers(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name)
		assert.Equal(t, catalog.StatusActive, p.Status)
	}
	assert.Contains(t, names, "openai")
	assert.Contains(t, names, "aigents")
}

func TestStore_SaveConfigUpserts(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := catalog.NewStore(tdb.Pool)
	userID := seedUser(t, tdb)
	ctx := context.Background()

	providers, err := store.Providers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, providers)
	providerID := providers[0].ID

	created, err := store.SaveConfig(ctx, userID, providerID,
		"https://api.example.com/v1", "sk-first-key-0123456789", "")
	require.NoError(t, err)
	assert.Equal(t, providers[0].Name, created.ProviderName)
	assert.Equal(t, catalog.StatusActive, created.Status)

	// Saving again for the same provider replaces, not duplicates.
	updated, err := store.SaveConfig(ctx, userID, providerID,
		"https://api.example.com/v2", "sk-second-key-0123456789", `{"org":"acme"}`)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "https://api.example.com/v2", updated.APIURL)

	configs, err := store.UserConfigs(ctx, userID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "sk-second-key-0123456789", configs[0].APIKey)
}

func TestStore_SaveConfigUnknownProvider(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := catalog.NewStore(tdb.Pool)
	userID := seedUser(t, tdb)

	_, err := store.SaveConfig(context.Background(), userID, uuid.New(),
		"https://api.example.com/v1", "sk-key-0123456789", "")
	assert.ErrorIs(t, err, catalog.ErrUnknownProvider)
}

func TestStore_DeleteConfigDeactivatesAndRevives(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := catalog.NewStore(tdb.Pool)
	userID := seedUser(t, tdb)
	ctx := context.Background()

	providers, err := store.Providers(ctx)
	require.NoError(t, err)
	providerID := providers[0].ID

	_, err = store.SaveConfig(ctx, userID, providerID,
		"https://api.example.com/v1", "sk-key-0123456789", "")
	require.NoError(t, err)

	require.NoError(t, store.DeleteConfig(ctx, userID, providerID))

	_, err = store.Config(ctx, userID, providerID)
	assert.ErrorIs(t, err, catalog.ErrConfigNotFound)

	err = store.DeleteConfig(ctx, userID, providerID)
	assert.ErrorIs(t, err, catalog.ErrConfigNotFound)

	// Saving again revives the deactivated row.
	revived, err := store.SaveConfig(ctx, userID, providerID,
		"https://api.example.com/v3", "sk-new-key-0123456789", "")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusActive, revived.Status)

	got, err := store.Config(ctx, userID, providerID)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v3", got.APIURL)
}

func TestStore_ConfigsScopedToUser(t *testing.T) {
	tdb := testutil.SetupTestDB(t)
	store := catalog.NewStore(tdb.Pool)
	userID := seedUser(t, tdb)
	otherID := seedUser(t, tdb)
	ctx := context.Background()

	providers, err := store.Providers(ctx)
	require.NoError(t, err)
	providerID := providers[0].ID

	_, err = store.SaveConfig(ctx, userID, providerID,
		"https://api.example.com/v1", "sk-key-0123456789", "")
	require.NoError(t, err)

	configs, err := store.UserConfigs(ctx, otherID)
	require.NoError(t, err)
	assert.Empty(t, configs)

	_, err = store.Config(ctx, otherID, providerID)
	assert.ErrorIs(t, err, catalog.ErrConfigNotFound)
}

func TestConfig_APIKeyMaskedInJSON(t *testing.T) {
	t.Parallel()

	cfg := catalog.Config{
		ID:     uuid.New(),
		APIKey: "sk-verysecretkey-0123456789",
		APIURL: "https://api.example.com/v1",
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "sk-verysecretkey-0123456789")
	assert.Contains(t, string(data), "sk-v")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	key, _ := decoded["api_key"].(string)
	assert.Contains(t, key, "*")
}

func TestConfig_ShortAPIKeyFullyMasked(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(catalog.Config{APIKey: "tiny"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tiny")
	assert.Contains(t, string(data), "****")
}
