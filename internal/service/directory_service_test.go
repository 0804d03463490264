package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bizadmin/internal/domain"
	"bizadmin/internal/repository"
)

type directoryFixture struct {
	tenants     *repository.MemoryTenantsRepository
	memberships *repository.MemoryMembershipsRepository
	provider    *MemoryStoreProvider
	svc         *DirectoryService
}

func newDirectoryFixture() *directoryFixture {
	f := &directoryFixture{
		tenants:     repository.NewMemoryTenantsRepository(),
		memberships: repository.NewMemoryMembershipsRepository(),
		provider:    NewMemoryStoreProvider(),
	}
	resolver := NewResolverService(f.tenants, f.memberships, f.provider, "", zap.NewNop())
	f.svc = NewDirectoryService(f.tenants, f.memberships, f.provider, resolver, zap.NewNop())
	return f
}

func (f *directoryFixture) addTenant(t *testing.T, tenantID, orgName string) *TenantStores {
	t.Helper()
	require.NoError(t, f.tenants.CreateTenant(context.Background(), &domain.Tenant{
		TenantID:  tenantID,
		OrgName:   orgName,
		Status:    domain.TenantStatusActive,
		CreatedAt: time.Now(),
	}))
	return f.provider.Add(tenantID, nil)
}

func TestMasterUsers_FiltersTestAccounts(t *testing.T) {
	f := newDirectoryFixture()
	ctx := context.Background()
	f.addTenant(t, "t1", "Acme Fuels")

	require.NoError(t, f.memberships.UpsertMembership(ctx, "t1", "owner@acme.com", 1))
	require.NoError(t, f.memberships.UpsertMembership(ctx, "t1", "test.account@acme.com", 2))
	require.NoError(t, f.memberships.UpsertMembership(ctx, "t1", "owner+alias@acme.com", 3))
	require.NoError(t, f.memberships.UpsertMembership(ctx, "t1", "bob@example.com", 4))

	users, err := f.svc.MasterUsers(ctx, false)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "owner@acme.com", users[0].Email)
	require.Equal(t, "Acme Fuels", users[0].Memberships[0].OrgName)

	all, err := f.svc.MasterUsers(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestMasterUsers_DeduplicatesByEmailAcrossTenants(t *testing.T) {
	f := newDirectoryFixture()
	ctx := context.Background()
	f.addTenant(t, "t1", "Acme Fuels")
	f.addTenant(t, "t2", "Harbor Petrol")

	require.NoError(t, f.memberships.UpsertMembership(ctx, "t1", "owner@acme.com", 1))
	require.NoError(t, f.memberships.UpsertMembership(ctx, "t2", "owner@acme.com", 9))

	users, err := f.svc.MasterUsers(ctx, false)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Len(t, users[0].Memberships, 2)
}

func TestLooksLikeTestAccount(t *testing.T) {
	cases := map[string]bool{
		"owner@acme.com":         false,
		"mytest@acme.com":        true,
		"demo-user@acme.com":     true,
		"a+b@acme.com":           true,
		"real@mailinator.com":    true,
		"x@example.org":          true,
		"y@staging.test":         true,
		"sales@fakenamestore.io": false, // markers only apply to the local part
	}
	for email, want := range cases {
		require.Equal(t, want, looksLikeTestAccount(email), email)
	}
}

func TestMapUser_ResolvesZeroUserIDFromTenantDatabase(t *testing.T) {
	f := newDirectoryFixture()
	ctx := context.Background()
	stores := f.addTenant(t, "t1", "Acme Fuels")
	userID, err := stores.Users.(*repository.MemoryTenantUsersRepository).
		Upsert(ctx, &domain.TenantUser{Email: "clerk@acme.com"})
	require.NoError(t, err)

	require.NoError(t, f.svc.MapUser(ctx, "t1", "Clerk@Acme.com", 0))

	rows, err := f.memberships.ListByEmail(ctx, "clerk@acme.com")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, userID, rows[0].TenantUserID)
}

func TestMapUser_UnknownTenantRejected(t *testing.T) {
	f := newDirectoryFixture()
	err := f.svc.MapUser(context.Background(), "missing", "clerk@acme.com", 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnmapUser_ReportsAffectedCount(t *testing.T) {
	f := newDirectoryFixture()
	ctx := context.Background()
	f.addTenant(t, "t1", "Acme Fuels")
	require.NoError(t, f.memberships.UpsertMembership(ctx, "t1", "clerk@acme.com", 1))

	n, err := f.svc.UnmapUser(ctx, "t1", "clerk@acme.com")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = f.svc.UnmapUser(ctx, "t1", "clerk@acme.com")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSyncTenantUsers_BackfillsAndIsIdempotent(t *testing.T) {
	f := newDirectoryFixture()
	ctx := context.Background()
	stores := f.addTenant(t, "t1", "Acme Fuels")
	users := stores.Users.(*repository.MemoryTenantUsersRepository)
	_, err := users.Upsert(ctx, &domain.TenantUser{Email: "a@acme.com"})
	require.NoError(t, err)
	_, err = users.Upsert(ctx, &domain.TenantUser{Email: "b@acme.com"})
	require.NoError(t, err)

	synced, err := f.svc.SyncTenantUsers(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 2, synced)

	rows, err := f.memberships.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	synced, err = f.svc.SyncTenantUsers(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 2, synced)

	rows, err = f.memberships.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
