package repository

import (
	"context"
	"database/sql"
	"fmt"

	"bizadmin/internal/domain"
)

// DDL for the two tables owned by the catalog. The legacy-override table has a
// foreign key into the catalog, so a catalog rebuild recreates both.
const (
	createFeatureCatalogSQL = `
		CREATE TABLE IF NOT EXISTS feature_catalog (
			feature_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			feature_key VARCHAR(100) NOT NULL UNIQUE,
			label VARCHAR(255) NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			feature_group VARCHAR(100) NOT NULL DEFAULT 'custom',
			default_enabled BOOLEAN NOT NULL DEFAULT false
		)`

	createLegacyOverridesSQL = `
		CREATE TABLE IF NOT EXISTS user_feature_overrides (
			user_id BIGINT NOT NULL,
			feature_id BIGINT NOT NULL REFERENCES feature_catalog(feature_id) ON DELETE CASCADE,
			allowed BOOLEAN NOT NULL,
			PRIMARY KEY (user_id, feature_id)
		)`
)

// PostgresCatalogStore 租户库 feature_catalog 表存储实现
type PostgresCatalogStore struct {
	db *sql.DB
}

func NewPostgresCatalogStore(db *sql.DB) *PostgresCatalogStore {
	return &PostgresCatalogStore{db: db}
}

var _ CatalogStore = (*PostgresCatalogStore)(nil)

func (s *PostgresCatalogStore) Exists(ctx context.Context) (bool, error) {
	var regclass sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT to_regclass('public.feature_catalog')::text`).Scan(&regclass)
	if err != nil {
		return false, fmt.Errorf("failed to probe feature_catalog: %w", err)
	}
	return regclass.Valid, nil
}

func (s *PostgresCatalogStore) KeyType(ctx context.Context) (string, error) {
	var dataType string
	err := s.db.QueryRowContext(ctx,
		`SELECT data_type FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = 'feature_catalog' AND column_name = 'feature_id'`,
	).Scan(&dataType)
	if err != nil {
		if err == sql.ErrNoRows {
			// Table exists but has no feature_id column at all; treat as the
			// worst form of drift so the heal path rebuilds it.
			return "", nil
		}
		return "", fmt.Errorf("failed to inspect feature_catalog key type: %w", err)
	}
	return dataType, nil
}

func (s *PostgresCatalogStore) List(ctx context.Context) ([]domain.Feature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feature_id, feature_key, label, description, feature_group, default_enabled
		 FROM feature_catalog
		 ORDER BY lower(feature_group), lower(label), feature_key`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature_catalog: %w", err)
	}
	defer rows.Close()

	features := []domain.Feature{}
	for rows.Next() {
		var f domain.Feature
		if err := rows.Scan(&f.FeatureID, &f.FeatureKey, &f.Label, &f.Description, &f.FeatureGroup, &f.DefaultEnabled); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return features, nil
}

// Snapshot reads catalog rows regardless of the key column's type. Used by
// the heal path to preserve rows before a rebuild.
func (s *PostgresCatalogStore) Snapshot(ctx context.Context) ([]domain.Feature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feature_key, label, description, feature_group, default_enabled FROM feature_catalog`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot feature_catalog: %w", err)
	}
	defer rows.Close()

	features := []domain.Feature{}
	for rows.Next() {
		var f domain.Feature
		if err := rows.Scan(&f.FeatureKey, &f.Label, &f.Description, &f.FeatureGroup, &f.DefaultEnabled); err != nil {
			return nil, fmt.Errorf("failed to scan feature snapshot: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return features, nil
}

func (s *PostgresCatalogStore) Rebuild(ctx context.Context, rows []domain.Feature) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Legacy overrides depend on the catalog key; both go and come back.
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS user_feature_overrides`,
		`DROP TABLE IF EXISTS feature_catalog`,
		createFeatureCatalogSQL,
		createLegacyOverridesSQL,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to rebuild catalog schema: %w", err)
		}
	}

	for _, f := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feature_catalog (feature_key, label, description, feature_group, default_enabled)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (feature_key) DO NOTHING`,
			f.FeatureKey, f.Label, f.Description, f.FeatureGroup, f.DefaultEnabled,
		); err != nil {
			return fmt.Errorf("failed to reinsert feature %s: %w", f.FeatureKey, err)
		}
	}

	return tx.Commit()
}

func (s *PostgresCatalogStore) EnsureFeatures(ctx context.Context, rows []domain.Feature) error {
	if _, err := s.db.ExecContext(ctx, createFeatureCatalogSQL); err != nil {
		return fmt.Errorf("failed to ensure feature_catalog: %w", err)
	}

	for _, f := range rows {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO feature_catalog (feature_key, label, description, feature_group, default_enabled)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (feature_key) DO NOTHING`,
			f.FeatureKey, f.Label, f.Description, f.FeatureGroup, f.DefaultEnabled,
		); err != nil {
			return fmt.Errorf("failed to ensure feature %s: %w", f.FeatureKey, err)
		}
	}
	return nil
}
