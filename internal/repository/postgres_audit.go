package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"bizadmin/internal/domain"
)

// PostgresAuditRepository 审计日志Repository实现（master 库，append-only）
type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

var _ AuditRepository = (*PostgresAuditRepository)(nil)

// undefined_table: the audit relation may not exist on older master databases.
func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}

func (r *PostgresAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if entry.AuditID == "" {
		entry.AuditID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_audit_log (audit_id, developer_email, target_user_email, feature_key, action)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.AuditID, entry.DeveloperEmail, entry.TargetUserEmail, entry.FeatureKey, entry.Action,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *PostgresAuditRepository) List(ctx context.Context, targetEmail string, page, size int) ([]*domain.AuditEntry, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 100
	}
	offset := (page - 1) * size

	where := ""
	args := []any{}
	argN := 1
	if targetEmail != "" {
		where = fmt.Sprintf("WHERE target_user_email = $%d", argN)
		args = append(args, targetEmail)
		argN++
	}

	countQuery := `SELECT COUNT(*) FROM admin_audit_log ` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		if isUndefinedTable(err) {
			return []*domain.AuditEntry{}, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	query := `SELECT audit_id::text, developer_email, target_user_email, feature_key, action, created_at
		FROM admin_audit_log ` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, audit_id LIMIT $%d OFFSET $%d`, argN, argN+1)
	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return []*domain.AuditEntry{}, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*domain.AuditEntry{}
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.AuditID, &e.DeveloperEmail, &e.TargetUserEmail, &e.FeatureKey, &e.Action, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, total, nil
}
