package service

import (
	"context"
	"fmt"

	"bizadmin/internal/domain"
	"bizadmin/internal/repository"
	"bizadmin/internal/tenantpool"
)

// TenantStores bundles the repositories over one tenant's database.
type TenantStores struct {
	Users   repository.TenantUsersRepository
	Catalog repository.CatalogStore
	Flat    repository.OverrideStore
	Legacy  repository.OverrideStore
}

// StoreProvider resolves a tenant id to its stores. The Postgres
// implementation routes through the master directory and the pool registry;
// tests substitute fixed in-memory stores.
type StoreProvider interface {
	Stores(ctx context.Context, tenantID string) (*TenantStores, error)
}

// PoolStoreProvider looks up the tenant's connection descriptor in the master
// directory and acquires a pooled connection from the registry.
type PoolStoreProvider struct {
	tenants  repository.TenantsRepository
	registry *tenantpool.Registry
}

func NewPoolStoreProvider(tenants repository.TenantsRepository, registry *tenantpool.Registry) *PoolStoreProvider {
	return &PoolStoreProvider{tenants: tenants, registry: registry}
}

var _ StoreProvider = (*PoolStoreProvider)(nil)

func (p *PoolStoreProvider) Stores(ctx context.Context, tenantID string) (*TenantStores, error) {
	tenant, err := p.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.ConnDescriptor == "" {
		return nil, fmt.Errorf("tenant has no connection descriptor yet: tenant_id=%s: %w", tenantID, domain.ErrNotFound)
	}

	db, err := p.registry.Acquire(ctx, tenantID, tenant.ConnDescriptor)
	if err != nil {
		return nil, err
	}

	return &TenantStores{
		Users:   repository.NewPostgresTenantUsersRepository(db),
		Catalog: repository.NewPostgresCatalogStore(db),
		Flat:    repository.NewPostgresFlatOverrideStore(db),
		Legacy:  repository.NewPostgresLegacyOverrideStore(db),
	}, nil
}

// MemoryStoreProvider serves fixed stores per tenant (tests / DB-less dev).
type MemoryStoreProvider struct {
	byTenant map[string]*TenantStores
}

func NewMemoryStoreProvider() *MemoryStoreProvider {
	return &MemoryStoreProvider{byTenant: map[string]*TenantStores{}}
}

var _ StoreProvider = (*MemoryStoreProvider)(nil)

// Add registers stores for a tenant, creating memory defaults for nil fields.
func (p *MemoryStoreProvider) Add(tenantID string, stores *TenantStores) *TenantStores {
	if stores == nil {
		stores = &TenantStores{}
	}
	if stores.Users == nil {
		stores.Users = repository.NewMemoryTenantUsersRepository()
	}
	if stores.Catalog == nil {
		stores.Catalog = repository.NewMemoryCatalogStore()
	}
	if stores.Flat == nil {
		stores.Flat = repository.NewMemoryOverrideStore(domain.OverrideSourceFlat)
	}
	if stores.Legacy == nil {
		stores.Legacy = repository.NewMemoryOverrideStore(domain.OverrideSourceLegacy)
	}
	p.byTenant[tenantID] = stores
	return stores
}

func (p *MemoryStoreProvider) Stores(_ context.Context, tenantID string) (*TenantStores, error) {
	stores, ok := p.byTenant[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant not found: tenant_id=%s: %w", tenantID, domain.ErrNotFound)
	}
	return stores, nil
}
