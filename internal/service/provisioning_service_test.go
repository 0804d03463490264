package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bizadmin/internal/config"
	"bizadmin/internal/domain"
	"bizadmin/internal/notify"
	"bizadmin/internal/repository"
	"bizadmin/internal/store"
	"bizadmin/internal/tenantpool"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", store.ErrMiss
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

type provisioningFixture struct {
	tenants     *repository.MemoryTenantsRepository
	memberships *repository.MemoryMembershipsRepository
	kv          *fakeKV
	svc         *ProvisioningService
}

func newProvisioningFixture(wait time.Duration) *provisioningFixture {
	logger := zap.NewNop()
	f := &provisioningFixture{
		tenants:     repository.NewMemoryTenantsRepository(),
		memberships: repository.NewMemoryMembershipsRepository(),
		kv:          newFakeKV(),
	}
	f.svc = NewProvisioningService(
		&config.DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", SSLMode: "disable"},
		wait,
		f.tenants, f.memberships,
		tenantpool.NewRegistry(1, 1, logger),
		NewCatalogService(logger),
		f.kv,
		notify.NewWebhook("", logger),
		logger,
	)
	return f
}

func TestProvisionStart_ValidatesInput(t *testing.T) {
	f := newProvisioningFixture(time.Second)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "", "admin@acme.com")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Start(ctx, "Acme Fuels", "not-an-email")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestProvisionStart_FailureWithinWaitIsReported(t *testing.T) {
	f := newProvisioningFixture(5 * time.Second)
	f.svc.openAdmin = func() (*sql.DB, error) {
		return nil, fmt.Errorf("server unreachable")
	}

	result, err := f.svc.Start(context.Background(), "Acme Fuels", "Admin@Acme.com")
	require.Error(t, err)
	require.Equal(t, ProvisionStatusFailed, result.Status)
	require.Equal(t, "admin@acme.com", result.AdminEmail)
	require.NotEmpty(t, result.Tenant.TenantID)

	// The tenant row exists for polling even after a failed attempt.
	tenant, err := f.tenants.GetTenant(context.Background(), result.Tenant.TenantID)
	require.NoError(t, err)
	require.Equal(t, domain.TenantStatusProvisioning, tenant.Status)

	status, err := f.svc.Status(context.Background(), result.Tenant.TenantID)
	require.NoError(t, err)
	require.Equal(t, ProvisionStatusFailed, status)
}

func TestProvisionStart_SlowWorkAnswersPending(t *testing.T) {
	f := newProvisioningFixture(20 * time.Millisecond)
	blocked := make(chan struct{})
	f.svc.openAdmin = func() (*sql.DB, error) {
		<-blocked
		return nil, fmt.Errorf("server unreachable")
	}
	defer close(blocked)

	result, err := f.svc.Start(context.Background(), "Acme Fuels", "admin@acme.com")
	require.NoError(t, err)
	require.Equal(t, ProvisionStatusPending, result.Status)
	require.NotEmpty(t, result.AdminPassword, "the one-time password is handed out with the pending answer")
}

func TestProvisionStatus_FallsBackToTenantRow(t *testing.T) {
	f := newProvisioningFixture(time.Second)
	ctx := context.Background()

	for _, tc := range []struct {
		tenantStatus string
		want         string
	}{
		{domain.TenantStatusActive, ProvisionStatusReady},
		{domain.TenantStatusProvisioning, ProvisionStatusPending},
		{domain.TenantStatusInactive, ProvisionStatusFailed},
	} {
		tenant := &domain.Tenant{OrgName: "Acme Fuels", Status: tc.tenantStatus}
		require.NoError(t, f.tenants.CreateTenant(ctx, tenant))
		status, err := f.svc.Status(ctx, tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, tc.want, status, "tenant status %s", tc.tenantStatus)
	}

	_, err := f.svc.Status(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProvisionStatus_KVCarriesFailureMessage(t *testing.T) {
	f := newProvisioningFixture(time.Second)
	ctx := context.Background()
	require.NoError(t, f.kv.Set(ctx, provisionKey("t1"), "failed|create database refused", 0))

	status, err := f.svc.Status(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, ProvisionStatusFailed, status)
}

func TestTempPassword(t *testing.T) {
	a, b := tempPassword(), tempPassword()
	require.Len(t, a, 12)
	require.NotEqual(t, a, b)
}
