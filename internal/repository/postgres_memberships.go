package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bizadmin/internal/domain"
)

// PostgresMembershipsRepository is the master-side user→tenant index.
type PostgresMembershipsRepository struct {
	db *sql.DB
}

func NewPostgresMembershipsRepository(db *sql.DB) *PostgresMembershipsRepository {
	return &PostgresMembershipsRepository{db: db}
}

var _ MembershipsRepository = (*PostgresMembershipsRepository)(nil)

const membershipColumns = `tenant_id::text, user_email, tenant_user_id, created_at`

func (r *PostgresMembershipsRepository) UpsertMembership(ctx context.Context, tenantID, email string, userID int64) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if tenantID == "" || email == "" {
		return fmt.Errorf("tenant_id and email are required: %w", domain.ErrValidation)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenant_user_memberships (tenant_id, user_email, tenant_user_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, user_email)
		 DO UPDATE SET tenant_user_id = EXCLUDED.tenant_user_id`,
		tenantID, email, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

func (r *PostgresMembershipsRepository) DeleteMembership(ctx context.Context, tenantID, email string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if tenantID == "" || email == "" {
		return 0, fmt.Errorf("tenant_id and email are required: %w", domain.ErrValidation)
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tenant_user_memberships WHERE tenant_id = $1 AND user_email = $2`,
		tenantID, email,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete membership: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *PostgresMembershipsRepository) ListByEmail(ctx context.Context, email string) ([]*domain.Membership, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM tenant_user_memberships
		 WHERE user_email = $1 ORDER BY created_at, tenant_id`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()
	return scanMemberships(rows)
}

func (r *PostgresMembershipsRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM tenant_user_memberships
		 WHERE tenant_id = $1 ORDER BY user_email`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()
	return scanMemberships(rows)
}

func (r *PostgresMembershipsRepository) ListAll(ctx context.Context) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ` + membershipColumns + ` FROM tenant_user_memberships ORDER BY user_email, created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()
	return scanMemberships(rows)
}

func scanMemberships(rows *sql.Rows) ([]*domain.Membership, error) {
	memberships := []*domain.Membership{}
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.TenantID, &m.UserEmail, &m.TenantUserID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return memberships, nil
}
