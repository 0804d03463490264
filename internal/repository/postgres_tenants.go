package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bizadmin/internal/domain"
)

// PostgresTenantsRepository 租户目录Repository实现（master 库）
type PostgresTenantsRepository struct {
	db *sql.DB
}

func NewPostgresTenantsRepository(db *sql.DB) *PostgresTenantsRepository {
	return &PostgresTenantsRepository{db: db}
}

var _ TenantsRepository = (*PostgresTenantsRepository)(nil)

const tenantColumns = `tenant_id::text, org_name, conn_descriptor, status, super_admin_email, created_at`

func scanTenant(row interface{ Scan(...any) error }) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(&t.TenantID, &t.OrgName, &t.ConnDescriptor, &t.Status, &t.SuperAdminEmail, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresTenantsRepository) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required: %w", domain.ErrValidation)
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE tenant_id = $1`, tenantID)
	t, err := scanTenant(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant not found: tenant_id=%s: %w", tenantID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query tenant: %w", err)
	}
	return t, nil
}

func (r *PostgresTenantsRepository) ListTenants(ctx context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	where := []string{}
	args := []any{}
	argN := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, filter.Status)
		argN++
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("org_name ILIKE $%d", argN))
		args = append(args, "%"+filter.Search+"%")
		argN++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQuery := `SELECT COUNT(*) FROM tenants ` + whereClause
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	offset := (page - 1) * size

	query := `SELECT ` + tenantColumns + ` FROM tenants ` + whereClause +
		fmt.Sprintf(` ORDER BY created_at, tenant_id LIMIT $%d OFFSET $%d`, argN, argN+1)
	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*domain.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return tenants, total, nil
}

func (r *PostgresTenantsRepository) ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE status = $1 ORDER BY created_at, tenant_id`,
		domain.TenantStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*domain.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return tenants, nil
}

func (r *PostgresTenantsRepository) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	if tenant == nil || tenant.TenantID == "" || tenant.OrgName == "" {
		return fmt.Errorf("tenant_id and org_name are required: %w", domain.ErrValidation)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (tenant_id, org_name, conn_descriptor, status, super_admin_email)
		 VALUES ($1, $2, $3, $4, $5)`,
		tenant.TenantID, tenant.OrgName, tenant.ConnDescriptor, tenant.Status, tenant.SuperAdminEmail,
	)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

func (r *PostgresTenantsRepository) UpdateConnDescriptor(ctx context.Context, tenantID, descriptor string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET conn_descriptor = $2 WHERE tenant_id = $1`, tenantID, descriptor)
	if err != nil {
		return fmt.Errorf("failed to update conn_descriptor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tenant not found: tenant_id=%s: %w", tenantID, domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresTenantsRepository) SetTenantStatus(ctx context.Context, tenantID string, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET status = $2 WHERE tenant_id = $1`, tenantID, status)
	if err != nil {
		return fmt.Errorf("failed to set tenant status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tenant not found: tenant_id=%s: %w", tenantID, domain.ErrNotFound)
	}
	return nil
}
