package repository

import (
	"context"

	"bizadmin/internal/domain"
)

// Interfaces over one tenant's isolated database. Implementations are cheap
// structs constructed around a pooled *sql.DB from the tenant registry.

// TenantUsersRepository 租户库 users 表Repository接口
type TenantUsersRepository interface {
	GetByID(ctx context.Context, userID int64) (*domain.TenantUser, error)
	GetByEmail(ctx context.Context, email string) (*domain.TenantUser, error)
	List(ctx context.Context) ([]*domain.TenantUser, error)

	// Upsert keys on lowercased email and returns the tenant-local user id.
	Upsert(ctx context.Context, user *domain.TenantUser) (int64, error)
}

// CatalogStore is the storage face of the feature catalog. The healing and
// synthesis policy lives in service.CatalogService; this interface only moves
// rows and reports schema shape.
type CatalogStore interface {
	// Exists probes for the catalog table.
	Exists(ctx context.Context) (bool, error)

	// KeyType reports the data type of the catalog's key column ("bigint"
	// when healthy; legacy catalogs carried a text key).
	KeyType(ctx context.Context) (string, error)

	// List returns all rows sorted by (feature_group, label), case-insensitive.
	List(ctx context.Context) ([]domain.Feature, error)

	// Snapshot reads the rows without relying on the key column's type, so a
	// drifted catalog can be preserved before a rebuild.
	Snapshot(ctx context.Context) ([]domain.Feature, error)

	// Rebuild drops the catalog and the dependent legacy-override table,
	// recreates both with the uniform key type, and reinserts rows
	// insert-if-absent so no feature is lost or duplicated.
	Rebuild(ctx context.Context, rows []domain.Feature) error

	// EnsureFeatures inserts any missing rows by feature_key (no updates).
	// Creates the catalog table first when absent.
	EnsureFeatures(ctx context.Context, rows []domain.Feature) error
}

// OverrideStore is one of the two coexisting per-user override schemas.
// The entitlement engine merges the two readers with flat-wins precedence.
type OverrideStore interface {
	// Source tags rows: domain.OverrideSourceFlat or domain.OverrideSourceLegacy.
	Source() string

	// Present reports whether this schema exists in the tenant database.
	Present(ctx context.Context) bool

	ListForUser(ctx context.Context, userID int64) ([]domain.Override, error)

	// ReplaceForUser deletes every row for the user and inserts exactly the
	// given set, in one transaction. There is no observable window in which
	// the user has zero overrides.
	ReplaceForUser(ctx context.Context, userID int64, rows []domain.Override) error
}
