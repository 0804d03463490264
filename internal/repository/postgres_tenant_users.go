package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bizadmin/internal/domain"
)

// PostgresTenantUsersRepository 租户库 users 表Repository实现
type PostgresTenantUsersRepository struct {
	db *sql.DB
}

func NewPostgresTenantUsersRepository(db *sql.DB) *PostgresTenantUsersRepository {
	return &PostgresTenantUsersRepository{db: db}
}

var _ TenantUsersRepository = (*PostgresTenantUsersRepository)(nil)

const tenantUserColumns = `user_id, email, password_hash, username, full_name`

func (r *PostgresTenantUsersRepository) GetByID(ctx context.Context, userID int64) (*domain.TenantUser, error) {
	var u domain.TenantUser
	err := r.db.QueryRowContext(ctx,
		`SELECT `+tenantUserColumns+` FROM users WHERE user_id = $1`, userID,
	).Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.Username, &u.FullName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found: user_id=%d: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (r *PostgresTenantUsersRepository) GetByEmail(ctx context.Context, email string) (*domain.TenantUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u domain.TenantUser
	err := r.db.QueryRowContext(ctx,
		`SELECT `+tenantUserColumns+` FROM users WHERE lower(email) = $1`, email,
	).Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.Username, &u.FullName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found: email=%s: %w", email, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (r *PostgresTenantUsersRepository) List(ctx context.Context) ([]*domain.TenantUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tenantUserColumns+` FROM users ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []*domain.TenantUser{}
	for rows.Next() {
		var u domain.TenantUser
		if err := rows.Scan(&u.UserID, &u.Email, &u.PasswordHash, &u.Username, &u.FullName); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return users, nil
}

func (r *PostgresTenantUsersRepository) Upsert(ctx context.Context, user *domain.TenantUser) (int64, error) {
	if user == nil || user.Email == "" {
		return 0, fmt.Errorf("email is required: %w", domain.ErrValidation)
	}
	email := strings.ToLower(strings.TrimSpace(user.Email))

	var userID int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, username, full_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email)
		 DO UPDATE SET username = EXCLUDED.username, full_name = EXCLUDED.full_name
		 RETURNING user_id`,
		email, user.PasswordHash, user.Username, user.FullName,
	).Scan(&userID)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert user: %w", err)
	}
	return userID, nil
}
