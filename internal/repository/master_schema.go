package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureMasterSchema creates the master directory tables when absent.
// Runs once at startup on the singleton master pool.
func EnsureMasterSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			tenant_id UUID PRIMARY KEY,
			org_name VARCHAR(255) NOT NULL,
			conn_descriptor TEXT NOT NULL DEFAULT '',
			status VARCHAR(50) NOT NULL DEFAULT 'provisioning',
			super_admin_email VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS tenant_user_memberships (
			tenant_id UUID NOT NULL REFERENCES tenants(tenant_id) ON DELETE CASCADE,
			user_email VARCHAR(255) NOT NULL,
			tenant_user_id BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, user_email)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_email ON tenant_user_memberships (user_email)`,
		`CREATE TABLE IF NOT EXISTS admin_audit_log (
			audit_id UUID PRIMARY KEY,
			developer_email VARCHAR(255) NOT NULL,
			target_user_email VARCHAR(255) NOT NULL,
			feature_key VARCHAR(100) NOT NULL,
			action VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure master schema: %w", err)
		}
	}
	return nil
}
