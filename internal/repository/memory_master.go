package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bizadmin/internal/domain"
)

// In-memory master directory. Supports unit tests and DB-less dev runs.
// NOTE: platform-level data, not per-tenant.

type MemoryTenantsRepository struct {
	mu      sync.RWMutex
	tenants map[string]domain.Tenant
}

func NewMemoryTenantsRepository() *MemoryTenantsRepository {
	return &MemoryTenantsRepository{tenants: map[string]domain.Tenant{}}
}

var _ TenantsRepository = (*MemoryTenantsRepository)(nil)

func (r *MemoryTenantsRepository) GetTenant(_ context.Context, tenantID string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant not found: tenant_id=%s: %w", tenantID, domain.ErrNotFound)
	}
	out := t
	return &out, nil
}

func (r *MemoryTenantsRepository) sortedTenants(status string) []*domain.Tenant {
	all := make([]*domain.Tenant, 0, len(r.tenants))
	for id := range r.tenants {
		t := r.tenants[id]
		if status != "" && t.Status != status {
			continue
		}
		out := t
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].TenantID < all[j].TenantID
	})
	return all
}

func (r *MemoryTenantsRepository) ListTenants(_ context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.sortedTenants(filter.Status)
	if filter.Search != "" {
		filtered := all[:0]
		needle := strings.ToLower(filter.Search)
		for _, t := range all {
			if strings.Contains(strings.ToLower(t.OrgName), needle) {
				filtered = append(filtered, t)
			}
		}
		all = filtered
	}

	total := len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MemoryTenantsRepository) ListActiveTenants(_ context.Context) ([]*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedTenants(domain.TenantStatusActive), nil
}

func (r *MemoryTenantsRepository) CreateTenant(_ context.Context, tenant *domain.Tenant) error {
	if tenant == nil || tenant.OrgName == "" {
		return fmt.Errorf("org_name is required: %w", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t := *tenant
	if t.TenantID == "" {
		t.TenantID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	r.tenants[t.TenantID] = t
	tenant.TenantID = t.TenantID
	tenant.CreatedAt = t.CreatedAt
	return nil
}

func (r *MemoryTenantsRepository) UpdateConnDescriptor(_ context.Context, tenantID, descriptor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant not found: tenant_id=%s: %w", tenantID, domain.ErrNotFound)
	}
	t.ConnDescriptor = descriptor
	r.tenants[tenantID] = t
	return nil
}

func (r *MemoryTenantsRepository) SetTenantStatus(_ context.Context, tenantID string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant not found: tenant_id=%s: %w", tenantID, domain.ErrNotFound)
	}
	t.Status = status
	r.tenants[tenantID] = t
	return nil
}

type MemoryMembershipsRepository struct {
	mu   sync.RWMutex
	rows map[string]domain.Membership // key: tenantID|email
	seq  int
}

func NewMemoryMembershipsRepository() *MemoryMembershipsRepository {
	return &MemoryMembershipsRepository{rows: map[string]domain.Membership{}}
}

var _ MembershipsRepository = (*MemoryMembershipsRepository)(nil)

func membershipKey(tenantID, email string) string {
	return tenantID + "|" + strings.ToLower(strings.TrimSpace(email))
}

func (r *MemoryMembershipsRepository) UpsertMembership(_ context.Context, tenantID, email string, userID int64) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if tenantID == "" || email == "" {
		return fmt.Errorf("tenant_id and email are required: %w", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := membershipKey(tenantID, email)
	if existing, ok := r.rows[key]; ok {
		existing.TenantUserID = userID
		r.rows[key] = existing
		return nil
	}
	r.seq++
	r.rows[key] = domain.Membership{
		TenantID:     tenantID,
		UserEmail:    email,
		TenantUserID: userID,
		CreatedAt:    time.Now().Add(time.Duration(r.seq) * time.Microsecond),
	}
	return nil
}

func (r *MemoryMembershipsRepository) DeleteMembership(_ context.Context, tenantID, email string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := membershipKey(tenantID, email)
	if _, ok := r.rows[key]; !ok {
		return 0, nil
	}
	delete(r.rows, key)
	return 1, nil
}

func (r *MemoryMembershipsRepository) list(match func(domain.Membership) bool) []*domain.Membership {
	out := []*domain.Membership{}
	for key := range r.rows {
		m := r.rows[key]
		if match(m) {
			row := m
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserEmail != out[j].UserEmail {
			return out[i].UserEmail < out[j].UserEmail
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryMembershipsRepository) ListByEmail(_ context.Context, email string) ([]*domain.Membership, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.list(func(m domain.Membership) bool { return m.UserEmail == email })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryMembershipsRepository) ListByTenant(_ context.Context, tenantID string) ([]*domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list(func(m domain.Membership) bool { return m.TenantID == tenantID }), nil
}

func (r *MemoryMembershipsRepository) ListAll(_ context.Context) ([]*domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list(func(domain.Membership) bool { return true }), nil
}

type MemoryAuditRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

var _ AuditRepository = (*MemoryAuditRepository)(nil)

func (r *MemoryAuditRepository) Append(_ context.Context, entry *domain.AuditEntry) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := *entry
	if e.AuditID == "" {
		e.AuditID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryAuditRepository) List(_ context.Context, targetEmail string, page, size int) ([]*domain.AuditEntry, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []*domain.AuditEntry{}
	for i := len(r.entries) - 1; i >= 0; i-- { // newest first
		e := r.entries[i]
		if targetEmail != "" && e.TargetUserEmail != targetEmail {
			continue
		}
		row := e
		matched = append(matched, &row)
	}

	total := len(matched)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
