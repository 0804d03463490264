// +build integration

package repository

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"bizadmin/internal/domain"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getTestDB(t *testing.T) *sql.DB {
	dsn := "host=" + getEnv("TEST_DB_HOST", "localhost") +
		" port=" + strconv.Itoa(getEnvInt("TEST_DB_PORT", 5432)) +
		" user=" + getEnv("TEST_DB_USER", "postgres") +
		" password=" + getEnv("TEST_DB_PASSWORD", "postgres") +
		" dbname=" + getEnv("TEST_DB_NAME", "bizadmin_master_test") +
		" sslmode=" + getEnv("TEST_DB_SSLMODE", "disable")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil
	}
	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil
	}
	require.NoError(t, EnsureMasterSchema(context.Background(), db))
	return db
}

func TestPostgresTenants_CRUD(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()
	repo := NewPostgresTenantsRepository(db)

	tenant := &domain.Tenant{
		TenantID:        uuid.NewString(),
		OrgName:         "Integration Test Fuels",
		Status:          domain.TenantStatusProvisioning,
		SuperAdminEmail: "admin@integration.example",
	}
	require.NoError(t, repo.CreateTenant(ctx, tenant))
	defer db.Exec(`DELETE FROM tenants WHERE tenant_id = $1`, tenant.TenantID)

	got, err := repo.GetTenant(ctx, tenant.TenantID)
	require.NoError(t, err)
	require.Equal(t, tenant.OrgName, got.OrgName)
	require.Equal(t, domain.TenantStatusProvisioning, got.Status)

	require.NoError(t, repo.UpdateConnDescriptor(ctx, tenant.TenantID, "host=x dbname=tenant_a"))
	require.NoError(t, repo.SetTenantStatus(ctx, tenant.TenantID, domain.TenantStatusActive))

	got, err = repo.GetTenant(ctx, tenant.TenantID)
	require.NoError(t, err)
	require.Equal(t, "host=x dbname=tenant_a", got.ConnDescriptor)
	require.Equal(t, domain.TenantStatusActive, got.Status)

	_, err = repo.GetTenant(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresMemberships_UpsertAndList(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	tenants := NewPostgresTenantsRepository(db)
	tenant := &domain.Tenant{
		TenantID: uuid.NewString(),
		OrgName:  "Membership Test Fuels",
		Status:   domain.TenantStatusActive,
	}
	require.NoError(t, tenants.CreateTenant(ctx, tenant))
	defer db.Exec(`DELETE FROM tenants WHERE tenant_id = $1`, tenant.TenantID)

	repo := NewPostgresMembershipsRepository(db)
	email := "Member@Integration.Example"
	defer db.Exec(`DELETE FROM tenant_user_memberships WHERE tenant_id = $1`, tenant.TenantID)

	require.NoError(t, repo.UpsertMembership(ctx, tenant.TenantID, email, 7))
	// Upsert with a new id updates in place.
	require.NoError(t, repo.UpsertMembership(ctx, tenant.TenantID, email, 8))

	rows, err := repo.ListByEmail(ctx, "member@integration.example")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(8), rows[0].TenantUserID)
	require.Equal(t, "member@integration.example", rows[0].UserEmail)

	deleted, err := repo.DeleteMembership(ctx, tenant.TenantID, email)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	deleted, err = repo.DeleteMembership(ctx, tenant.TenantID, email)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestPostgresAudit_AppendAndList(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()
	repo := NewPostgresAuditRepository(db)

	target := uuid.NewString() + "@integration.example"
	defer db.Exec(`DELETE FROM admin_audit_log WHERE target_user_email = $1`, target)

	for _, action := range []string{domain.AuditActionEnabled, domain.AuditActionDisabled} {
		require.NoError(t, repo.Append(ctx, &domain.AuditEntry{
			DeveloperEmail:  "dev@platform.io",
			TargetUserEmail: target,
			FeatureKey:      "analytics",
			Action:          action,
		}))
	}

	entries, total, err := repo.List(ctx, target, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, domain.AuditActionDisabled, entries[0].Action, "newest first")
}
