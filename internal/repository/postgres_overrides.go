package repository

import (
	"context"
	"database/sql"
	"fmt"

	"bizadmin/internal/domain"
)

const createFlatOverridesSQL = `
	CREATE TABLE IF NOT EXISTS user_feature_flags (
		user_id BIGINT NOT NULL,
		feature_key VARCHAR(100) NOT NULL,
		allowed BOOLEAN NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, feature_key)
	)`

// PostgresFlatOverrideStore is the primary override schema, keyed by
// feature_key. It is the mandatory system of record for entitlement writes.
type PostgresFlatOverrideStore struct {
	db *sql.DB
}

func NewPostgresFlatOverrideStore(db *sql.DB) *PostgresFlatOverrideStore {
	return &PostgresFlatOverrideStore{db: db}
}

var _ OverrideStore = (*PostgresFlatOverrideStore)(nil)

func (s *PostgresFlatOverrideStore) Source() string { return domain.OverrideSourceFlat }

func (s *PostgresFlatOverrideStore) Present(ctx context.Context) bool {
	var regclass sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass('public.user_feature_flags')::text`).Scan(&regclass); err != nil {
		return false
	}
	return regclass.Valid
}

func (s *PostgresFlatOverrideStore) ListForUser(ctx context.Context, userID int64) ([]domain.Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feature_key, allowed, updated_at FROM user_feature_flags WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query flat overrides: %w", err)
	}
	defer rows.Close()

	overrides := []domain.Override{}
	for rows.Next() {
		o := domain.Override{UserID: userID, Source: domain.OverrideSourceFlat}
		if err := rows.Scan(&o.FeatureKey, &o.Allowed, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flat override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return overrides, nil
}

// ReplaceForUser is the full-replace write: every row for the user goes,
// exactly the desired rows come back, one transaction. Creates the table on
// tenants that predate the flat schema.
func (s *PostgresFlatOverrideStore) ReplaceForUser(ctx context.Context, userID int64, rows []domain.Override) error {
	if _, err := s.db.ExecContext(ctx, createFlatOverridesSQL); err != nil {
		return fmt.Errorf("failed to ensure user_feature_flags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Per-user lock held to commit. Under read committed, two overlapping
	// replaces would otherwise delete against stale snapshots and commit an
	// interleaved merge of both payloads.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext('user_feature_flags'), hashtext($1::text))`,
		userID,
	); err != nil {
		return fmt.Errorf("failed to lock flat overrides: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_feature_flags WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete flat overrides: %w", err)
	}
	for _, o := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_feature_flags (user_id, feature_key, allowed, updated_at)
			 VALUES ($1, $2, $3, now())`,
			userID, o.FeatureKey, o.Allowed,
		); err != nil {
			return fmt.Errorf("failed to insert flat override %s: %w", o.FeatureKey, err)
		}
	}

	return tx.Commit()
}

// PostgresLegacyOverrideStore is the historical normalized schema, keyed by
// feature_id. Reads feed the merge at lower precedence; writes are a
// best-effort mirror only.
type PostgresLegacyOverrideStore struct {
	db *sql.DB
}

func NewPostgresLegacyOverrideStore(db *sql.DB) *PostgresLegacyOverrideStore {
	return &PostgresLegacyOverrideStore{db: db}
}

var _ OverrideStore = (*PostgresLegacyOverrideStore)(nil)

func (s *PostgresLegacyOverrideStore) Source() string { return domain.OverrideSourceLegacy }

func (s *PostgresLegacyOverrideStore) Present(ctx context.Context) bool {
	var regclass sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass('public.user_feature_overrides')::text`).Scan(&regclass); err != nil {
		return false
	}
	return regclass.Valid
}

func (s *PostgresLegacyOverrideStore) ListForUser(ctx context.Context, userID int64) ([]domain.Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feature_id, allowed FROM user_feature_overrides WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query legacy overrides: %w", err)
	}
	defer rows.Close()

	overrides := []domain.Override{}
	for rows.Next() {
		o := domain.Override{UserID: userID, Source: domain.OverrideSourceLegacy}
		if err := rows.Scan(&o.FeatureID, &o.Allowed); err != nil {
			return nil, fmt.Errorf("failed to scan legacy override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return overrides, nil
}

func (s *PostgresLegacyOverrideStore) ReplaceForUser(ctx context.Context, userID int64, rows []domain.Override) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_feature_overrides WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete legacy overrides: %w", err)
	}
	for _, o := range rows {
		if o.FeatureID == 0 {
			// Row could not be resolved to a catalog id; the flat schema
			// already holds it, so skip rather than fail the mirror.
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_feature_overrides (user_id, feature_id, allowed)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, feature_id) DO UPDATE SET allowed = EXCLUDED.allowed`,
			userID, o.FeatureID, o.Allowed,
		); err != nil {
			return fmt.Errorf("failed to insert legacy override feature_id=%d: %w", o.FeatureID, err)
		}
	}

	return tx.Commit()
}
