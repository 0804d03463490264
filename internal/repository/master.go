package repository

import (
	"context"

	"bizadmin/internal/domain"
)

// TenantsRepository 租户目录Repository接口（master 库）
// Repository层只负责数据访问；路由/解析策略在 service 层。
type TenantsRepository interface {
	// GetTenant 根据tenant_id获取租户信息
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)

	// ListTenants 查询租户列表（支持分页、status过滤）
	ListTenants(ctx context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error)

	// ListActiveTenants 查询全部 active 租户（跨租户汇总用）
	ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error)

	// CreateTenant 创建新租户（provisioning 状态下插入）
	CreateTenant(ctx context.Context, tenant *domain.Tenant) error

	// UpdateConnDescriptor 更新租户库连接描述符
	UpdateConnDescriptor(ctx context.Context, tenantID, descriptor string) error

	// SetTenantStatus 更新租户状态
	SetTenantStatus(ctx context.Context, tenantID string, status string) error
}

// TenantFilters 租户查询过滤器
type TenantFilters struct {
	Status string // 可选，按status过滤
	Search string // 可选，按org_name搜索（模糊匹配）
}

// MembershipsRepository is the global user→tenant index (master 库).
// All mutations are idempotent upserts keyed by (tenant_id, lower(email)).
type MembershipsRepository interface {
	// UpsertMembership applies (tenantID, email, userID); repeating the same
	// mapping is a no-op beyond refreshing tenant_user_id.
	UpsertMembership(ctx context.Context, tenantID, email string, userID int64) error

	// DeleteMembership removes by (tenantID, lower(email)) and reports the
	// affected-row count; zero is not an error.
	DeleteMembership(ctx context.Context, tenantID, email string) (int64, error)

	// ListByEmail returns every membership for a lowercased email.
	ListByEmail(ctx context.Context, email string) ([]*domain.Membership, error)

	// ListByTenant returns every membership of one tenant.
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Membership, error)

	// ListAll returns the whole index (cross-tenant dedup view).
	ListAll(ctx context.Context) ([]*domain.Membership, error)
}

// AuditRepository 审计日志Repository接口（master 库，append-only）
type AuditRepository interface {
	// Append writes one entry. Callers swallow errors: observability must
	// never block a functional write.
	Append(ctx context.Context, entry *domain.AuditEntry) error

	// List returns entries newest-first, optionally filtered by target email.
	// A missing audit relation yields an empty list, not an error.
	List(ctx context.Context, targetEmail string, page, size int) ([]*domain.AuditEntry, int, error)
}
