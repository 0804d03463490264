package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bizadmin/internal/config"
	"bizadmin/internal/domain"
	"bizadmin/internal/notify"
	"bizadmin/internal/repository"
	"bizadmin/internal/service"
	"bizadmin/internal/store"
	"bizadmin/internal/tenantpool"
)

type mapKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *mapKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", store.ErrMiss
	}
	return v, nil
}

func (m *mapKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// newTestRouter wires the whole admin surface over in-memory storage.
func newTestRouter(t *testing.T) *Router {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	tenants := repository.NewMemoryTenantsRepository()
	memberships := repository.NewMemoryMembershipsRepository()
	audit := repository.NewMemoryAuditRepository()
	provider := service.NewMemoryStoreProvider()

	require.NoError(t, tenants.CreateTenant(ctx, &domain.Tenant{
		TenantID:  "t1",
		OrgName:   "Acme Fuels",
		Status:    domain.TenantStatusActive,
		CreatedAt: time.Now(),
	}))
	stores := provider.Add("t1", nil)
	require.NoError(t, stores.Catalog.EnsureFeatures(ctx, service.StaticDefaults()))
	userID, err := stores.Users.(*repository.MemoryTenantUsersRepository).
		Upsert(ctx, &domain.TenantUser{Email: "clerk@acme.com"})
	require.NoError(t, err)
	require.NoError(t, memberships.UpsertMembership(ctx, "t1", "clerk@acme.com", userID))

	catalog := service.NewCatalogService(logger)
	resolver := service.NewResolverService(tenants, memberships, provider, "", logger)
	entitlements := service.NewEntitlementService(catalog, audit, logger)
	directory := service.NewDirectoryService(tenants, memberships, provider, resolver, logger)
	provisioning := service.NewProvisioningService(
		&config.DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", SSLMode: "disable"},
		time.Second,
		tenants, memberships,
		tenantpool.NewRegistry(1, 1, logger),
		catalog,
		&mapKV{data: map[string]string{}},
		notify.NewWebhook("", logger),
		logger,
	)

	router := NewRouter(logger)
	router.RegisterAdminRoutes(
		NewTenantsHandler(tenants, provisioning, directory, logger),
		NewMasterUsersHandler(directory, logger),
		NewFeaturesHandler(catalog, entitlements, resolver, provider, "", logger),
		NewAuditHandler(audit, logger),
	)
	return router
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_TenantListAndGet(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/api/v1/tenants", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), decodeResult(t, rec)["total"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/api/v1/tenants/t1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.Equal(t, "Acme Fuels", result["org_name"])
	require.Equal(t, "ready", result["provisioning_status"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/api/v1/tenants/t1/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), decodeResult(t, rec)["total"])
}

func TestRouter_UserFeaturesPath(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/admin/api/v1/users/clerk@acme.com/features", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "t1", decodeResult(t, rec)["tenant_id"])
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(t)
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/admin/api/v1/features"},
		{http.MethodDelete, "/admin/api/v1/tenants"},
		{http.MethodGet, "/admin/api/v1/sync-tenant-users"},
		{http.MethodPost, "/admin/api/v1/audit-logs"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
	}
}
