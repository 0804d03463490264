package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"bizadmin/internal/config"
	"bizadmin/internal/domain"
	"bizadmin/internal/notify"
	"bizadmin/internal/repository"
	"bizadmin/internal/store"
	"bizadmin/internal/tenantpool"
)

// Provisioning statuses exposed through the polling interface.
const (
	ProvisionStatusPending = "pending"
	ProvisionStatusReady   = "ready"
	ProvisionStatusFailed  = "failed"
)

func provisionKey(tenantID string) string { return "provisioning:" + tenantID }

// ProvisioningService creates a tenant's database, schema and first
// super-admin. Two-phase: Start returns within a bounded wait and the work
// continues in the background; Status supports idempotent polling.
type ProvisioningService struct {
	master      *config.DatabaseConfig
	wait        time.Duration
	tenants     repository.TenantsRepository
	memberships repository.MembershipsRepository
	registry    *tenantpool.Registry
	catalog     *CatalogService
	kv          store.KV
	webhook     *notify.Webhook
	logger      *zap.Logger

	// openAdmin is swapped in tests; the default dials the cluster's
	// maintenance database to issue CREATE DATABASE.
	openAdmin func() (*sql.DB, error)
}

func NewProvisioningService(
	master *config.DatabaseConfig,
	wait time.Duration,
	tenants repository.TenantsRepository,
	memberships repository.MembershipsRepository,
	registry *tenantpool.Registry,
	catalog *CatalogService,
	kv store.KV,
	webhook *notify.Webhook,
	logger *zap.Logger,
) *ProvisioningService {
	s := &ProvisioningService{
		master:      master,
		wait:        wait,
		tenants:     tenants,
		memberships: memberships,
		registry:    registry,
		catalog:     catalog,
		kv:          kv,
		webhook:     webhook,
		logger:      logger,
	}
	s.openAdmin = func() (*sql.DB, error) {
		return tenantpool.Open(master.ServerDSN(), 1, 1)
	}
	return s
}

// ProvisionResult is what the caller gets back from Start.
type ProvisionResult struct {
	Tenant        *domain.Tenant `json:"tenant"`
	Status        string         `json:"status"` // ready | pending | failed
	AdminEmail    string         `json:"admin_email"`
	AdminPassword string         `json:"admin_password,omitempty"` // temp password, shown once
}

// Start registers the tenant and kicks off provisioning. It blocks at most
// the configured wait; on timeout the caller is told "pending" and the work
// continues in the background.
func (s *ProvisioningService) Start(ctx context.Context, orgName, adminEmail string) (*ProvisionResult, error) {
	orgName = strings.TrimSpace(orgName)
	adminEmail = strings.ToLower(strings.TrimSpace(adminEmail))
	if orgName == "" || !strings.Contains(adminEmail, "@") {
		return nil, fmt.Errorf("org_name and a valid admin_email are required: %w", domain.ErrValidation)
	}

	tenant := &domain.Tenant{
		TenantID:        uuid.NewString(),
		OrgName:         orgName,
		Status:          domain.TenantStatusProvisioning,
		SuperAdminEmail: adminEmail,
		CreatedAt:       time.Now(),
	}
	if err := s.tenants.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}
	s.setStatus(ctx, tenant.TenantID, ProvisionStatusPending, "")

	password := tempPassword()
	done := make(chan error, 1)
	go func() {
		// Detached from the request context: the work outlives the caller.
		done <- s.provision(context.Background(), tenant, password)
	}()

	result := &ProvisionResult{Tenant: tenant, AdminEmail: adminEmail, AdminPassword: password}
	select {
	case err := <-done:
		if err != nil {
			result.Status = ProvisionStatusFailed
			return result, fmt.Errorf("provisioning failed: %w", err)
		}
		tenant.Status = domain.TenantStatusActive
		result.Status = ProvisionStatusReady
	case <-time.After(s.wait):
		result.Status = ProvisionStatusPending
	}
	return result, nil
}

// Status reads the provisioning state for polling. Falls back to the tenant
// row when the KV entry has expired.
func (s *ProvisioningService) Status(ctx context.Context, tenantID string) (string, error) {
	if val, err := s.kv.Get(ctx, provisionKey(tenantID)); err == nil {
		return strings.SplitN(val, "|", 2)[0], nil
	}
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	switch tenant.Status {
	case domain.TenantStatusActive:
		return ProvisionStatusReady, nil
	case domain.TenantStatusProvisioning:
		return ProvisionStatusPending, nil
	default:
		return ProvisionStatusFailed, nil
	}
}

func (s *ProvisioningService) provision(ctx context.Context, tenant *domain.Tenant, password string) error {
	if err := s.doProvision(ctx, tenant, password); err != nil {
		s.logger.Error("tenant provisioning failed",
			zap.String("tenant_id", tenant.TenantID), zap.Error(err))
		s.setStatus(ctx, tenant.TenantID, ProvisionStatusFailed, err.Error())
		s.webhook.Send(ctx, notify.TenantEvent{
			Event:    "tenant.provision_failed",
			TenantID: tenant.TenantID,
			OrgName:  tenant.OrgName,
			Message:  err.Error(),
		})
		return err
	}
	s.setStatus(ctx, tenant.TenantID, ProvisionStatusReady, "")
	s.webhook.Send(ctx, notify.TenantEvent{
		Event:    "tenant.provisioned",
		TenantID: tenant.TenantID,
		OrgName:  tenant.OrgName,
	})
	s.logger.Info("tenant provisioned",
		zap.String("tenant_id", tenant.TenantID), zap.String("org_name", tenant.OrgName))
	return nil
}

func (s *ProvisioningService) doProvision(ctx context.Context, tenant *domain.Tenant, password string) error {
	dbName := "tenant_" + strings.ReplaceAll(tenant.TenantID, "-", "")

	if err := s.createDatabase(ctx, dbName); err != nil {
		return err
	}

	descriptor := s.master.TenantDSN(dbName)
	if err := s.tenants.UpdateConnDescriptor(ctx, tenant.TenantID, descriptor); err != nil {
		return err
	}
	tenant.ConnDescriptor = descriptor

	db, err := s.registry.Acquire(ctx, tenant.TenantID, descriptor)
	if err != nil {
		return err
	}
	if err := repository.EnsureTenantSchema(ctx, db); err != nil {
		return err
	}

	catalogStore := repository.NewPostgresCatalogStore(db)
	if err := catalogStore.EnsureFeatures(ctx, StaticDefaults()); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	users := repository.NewPostgresTenantUsersRepository(db)
	userID, err := users.Upsert(ctx, &domain.TenantUser{
		Email:        tenant.SuperAdminEmail,
		PasswordHash: string(hash),
		Username:     "admin",
		FullName:     "Administrator",
	})
	if err != nil {
		return err
	}

	// Super-admin starts with every catalog feature granted.
	features := s.catalog.Load(ctx, catalogStore, tenant.TenantID)
	grants := make([]domain.Override, 0, len(features))
	for _, f := range features {
		grants = append(grants, domain.Override{FeatureKey: f.FeatureKey, FeatureID: f.FeatureID, Allowed: true})
	}
	flat := repository.NewPostgresFlatOverrideStore(db)
	if err := flat.ReplaceForUser(ctx, userID, grants); err != nil {
		return err
	}
	legacy := repository.NewPostgresLegacyOverrideStore(db)
	if legacy.Present(ctx) {
		if err := legacy.ReplaceForUser(ctx, userID, grants); err != nil {
			s.logger.Warn("legacy grant mirror failed",
				zap.String("tenant_id", tenant.TenantID), zap.Error(err))
		}
	}

	if err := s.memberships.UpsertMembership(ctx, tenant.TenantID, tenant.SuperAdminEmail, userID); err != nil {
		return err
	}
	return s.tenants.SetTenantStatus(ctx, tenant.TenantID, domain.TenantStatusActive)
}

// createDatabase issues CREATE DATABASE on the maintenance connection.
// Identifier is quoted, never interpolated raw; reruns are no-ops.
func (s *ProvisioningService) createDatabase(ctx context.Context, dbName string) error {
	admin, err := s.openAdmin()
	if err != nil {
		return fmt.Errorf("failed to reach database server: %w", err)
	}
	defer admin.Close()

	var exists bool
	if err := admin.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, dbName,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}
	if exists {
		return nil
	}
	// CREATE DATABASE cannot run inside a transaction.
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("failed to create tenant database: %w", err)
	}
	return nil
}

func (s *ProvisioningService) setStatus(ctx context.Context, tenantID, status, message string) {
	val := status
	if message != "" {
		val = status + "|" + message
	}
	if err := s.kv.Set(ctx, provisionKey(tenantID), val, 24*time.Hour); err != nil {
		s.logger.Warn("provisioning status write failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// tempPassword returns a 12-char URL-safe temp password; shown once in the
// creation response.
func tempPassword() string {
	b := make([]byte, 9)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
