package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorepoints/internal/model"
)

type UserStore struct {
	db DBTX
}

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	var deletedAt sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.GlobalRole, &u.CreatedAt, &u.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	u.DeletedAt = ptrTime(deletedAt)
	return &u, nil
}

const userCols = `id, email, name, global_role, created_at, updated_at, deleted_at`

func (s *UserStore) Create(ctx context.Context, email, name, passwordHash, globalRole string) (*model.User, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash, global_role) VALUES (?, ?, ?, ?)`,
		email, name, passwordHash, globalRole,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the user even when soft-deleted; ledger history still
// references them.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetCredentials returns an active user and their password hash by email.
func (s *UserStore) GetCredentials(ctx context.Context, email string) (*model.User, string, error) {
	var u model.User
	var deletedAt sql.NullTime
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+`, password_hash FROM users WHERE email = ? AND deleted_at IS NULL`,
		email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.GlobalRole, &u.CreatedAt, &u.UpdatedAt, &deletedAt, &hash)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get credentials: %w", err)
	}
	return &u, hash, nil
}

// EmailTaken reports whether any user, deleted or not, holds the email.
func (s *UserStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count users by email: %w", err)
	}
	return n > 0, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, id int64, name string) (*model.User, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(ctx, id)
}

// SoftDelete marks the user deleted. Rows are never removed.
func (s *UserStore) SoftDelete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	return nil
}
