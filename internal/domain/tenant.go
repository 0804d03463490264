package domain

import "time"

// Tenant statuses. A tenant stays in "provisioning" until its database,
// schema and super-admin exist; only "active" tenants are routable.
const (
	TenantStatusProvisioning = "provisioning"
	TenantStatusActive       = "active"
	TenantStatusInactive     = "inactive"
)

// SystemTenantID is the platform's own internal/staff tenant. It exists in
// the directory like any other tenant but is excluded from heuristic
// resolution whenever a real customer tenant is a candidate.
const SystemTenantID = "00000000-0000-0000-0000-000000000001"

// Tenant 对应 master 库 tenants 表
type Tenant struct {
	TenantID        string    `db:"tenant_id"`         // UUID, PRIMARY KEY
	OrgName         string    `db:"org_name"`          // VARCHAR(255), NOT NULL
	ConnDescriptor  string    `db:"conn_descriptor"`   // TEXT, DSN of the tenant database
	Status          string    `db:"status"`            // provisioning | active | inactive
	SuperAdminEmail string    `db:"super_admin_email"` // VARCHAR(255)
	CreatedAt       time.Time `db:"created_at"`
}

// Membership 对应 master 库 tenant_user_memberships 表
// user_email is the lowercased identity key; unique on (tenant_id, user_email).
type Membership struct {
	TenantID     string    `db:"tenant_id"`
	UserEmail    string    `db:"user_email"`
	TenantUserID int64     `db:"tenant_user_id"` // user's id inside the tenant database
	CreatedAt    time.Time `db:"created_at"`
}

// TenantUser 对应租户库 users 表（per-tenant database）
type TenantUser struct {
	UserID       int64  `db:"user_id"` // BIGINT IDENTITY, tenant-local key
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Username     string `db:"username"`
	FullName     string `db:"full_name"`
}
