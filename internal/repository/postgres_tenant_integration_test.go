// +build integration

package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"bizadmin/internal/domain"
)

// These run against a scratch tenant database: TEST_DB_NAME (or the default)
// doubles as the tenant schema target.

func TestPostgresCatalog_EnsureListAndRebuild(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()
	store := NewPostgresCatalogStore(db)

	defer db.Exec(`DROP TABLE IF EXISTS user_feature_overrides`)
	defer db.Exec(`DROP TABLE IF EXISTS feature_catalog`)

	require.NoError(t, store.EnsureFeatures(ctx, []domain.Feature{
		{FeatureKey: "analytics", Label: "Analytics", FeatureGroup: "insights"},
		{FeatureKey: "dashboard", Label: "Dashboard", FeatureGroup: "core", DefaultEnabled: true},
	}))

	exists, err := store.Exists(ctx)
	require.NoError(t, err)
	require.True(t, exists)

	keyType, err := store.KeyType(ctx)
	require.NoError(t, err)
	require.Equal(t, "bigint", keyType)

	// Reruns are no-ops for existing keys.
	require.NoError(t, store.EnsureFeatures(ctx, []domain.Feature{
		{FeatureKey: "analytics", Label: "Analytics Renamed"},
	}))
	features, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, features, 2)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Rebuild(ctx, snap))

	features, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, features, 2)
	for _, f := range features {
		require.NotZero(t, f.FeatureID)
	}
}

func TestPostgresOverrides_FlatReplaceAndLegacyMirror(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	catalog := NewPostgresCatalogStore(db)
	defer db.Exec(`DROP TABLE IF EXISTS user_feature_flags`)
	defer db.Exec(`DROP TABLE IF EXISTS user_feature_overrides`)
	defer db.Exec(`DROP TABLE IF EXISTS feature_catalog`)

	require.NoError(t, catalog.EnsureFeatures(ctx, []domain.Feature{
		{FeatureKey: "analytics", Label: "Analytics", FeatureGroup: "insights"},
	}))
	features, err := catalog.List(ctx)
	require.NoError(t, err)
	featureID := features[0].FeatureID

	flat := NewPostgresFlatOverrideStore(db)
	// First write creates the table on demand.
	require.NoError(t, flat.ReplaceForUser(ctx, 1, []domain.Override{
		{FeatureKey: "analytics", Allowed: true},
		{FeatureKey: "exports", Allowed: false},
	}))
	require.True(t, flat.Present(ctx))

	rows, err := flat.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Full replace drops rows not in the new set.
	require.NoError(t, flat.ReplaceForUser(ctx, 1, []domain.Override{
		{FeatureKey: "analytics", Allowed: false},
	}))
	rows, err = flat.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.False(t, rows[0].Allowed)

	legacy := NewPostgresLegacyOverrideStore(db)
	_, err = db.Exec(createLegacyOverridesSQL)
	require.NoError(t, err)
	require.True(t, legacy.Present(ctx))

	// Zero feature ids are skipped, resolvable ones land.
	require.NoError(t, legacy.ReplaceForUser(ctx, 1, []domain.Override{
		{FeatureID: featureID, Allowed: true},
		{FeatureID: 0, FeatureKey: "exports", Allowed: false},
	}))
	rows, err = legacy.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, featureID, rows[0].FeatureID)
}

func TestPostgresOverrides_ConcurrentReplaceKeepsOnePayload(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	flat := NewPostgresFlatOverrideStore(db)
	defer db.Exec(`DROP TABLE IF EXISTS user_feature_flags`)

	const userID = int64(7)
	payloadA := []domain.Override{{FeatureKey: "analytics", Allowed: true}}
	payloadB := []domain.Override{{FeatureKey: "exports", Allowed: true}}

	// Overlapping full replaces with disjoint key sets: without the per-user
	// lock each transaction's DELETE misses the other's uncommitted inserts
	// and the table ends up holding both payloads merged.
	for i := 0; i < 20; i++ {
		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- flat.ReplaceForUser(ctx, userID, payloadA)
		}()
		go func() {
			defer wg.Done()
			errs <- flat.ReplaceForUser(ctx, userID, payloadB)
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		rows, err := flat.ListForUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, rows, 1, "stored state must equal exactly one payload")
		require.Contains(t, []string{"analytics", "exports"}, rows[0].FeatureKey)
	}
}

func TestPostgresTenantUsers_UpsertByEmail(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, EnsureTenantSchema(ctx, db))
	repo := NewPostgresTenantUsersRepository(db)
	defer db.Exec(`DELETE FROM users WHERE email = 'upsert@integration.example'`)

	id1, err := repo.Upsert(ctx, &domain.TenantUser{Email: "Upsert@Integration.Example", Username: "u1"})
	require.NoError(t, err)
	id2, err := repo.Upsert(ctx, &domain.TenantUser{Email: "upsert@integration.example", Username: "u2"})
	require.NoError(t, err)
	require.Equal(t, id1, id2, "upsert keys on email")

	got, err := repo.GetByEmail(ctx, "upsert@integration.example")
	require.NoError(t, err)
	require.Equal(t, "u2", got.Username)

	_, err = repo.GetByID(ctx, id1+100000)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
