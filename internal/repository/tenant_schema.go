package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureTenantSchema creates a freshly provisioned tenant database's tables:
// local users, the feature catalog, and both override schemas.
func EnsureTenantSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL DEFAULT '',
			username VARCHAR(100) NOT NULL DEFAULT '',
			full_name VARCHAR(255) NOT NULL DEFAULT ''
		)`,
		createFeatureCatalogSQL,
		createLegacyOverridesSQL,
		createFlatOverridesSQL,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure tenant schema: %w", err)
		}
	}
	return nil
}
