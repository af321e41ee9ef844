package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AdminUser is one provisioned dashboard login.
type AdminUser struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateAdminUser provisions one dashboard user.
func (s *Store) CreateAdminUser(ctx context.Context, username, passwordHash string) (*AdminUser, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, fmt.Errorf("password hash is required")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_users (username, password_hash, disabled, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
	`, username, passwordHash, formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: user %s already exists", ErrInvalidState, username)
		}
		return nil, err
	}

	return &AdminUser{Username: username, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}, nil
}

// GetAdminUser returns one dashboard user, or ErrNotFound.
func (s *Store) GetAdminUser(ctx context.Context, username string) (*AdminUser, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	row := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, disabled, created_at, updated_at
		FROM admin_users WHERE username = ?
	`, username)

	user := AdminUser{}
	var disabled int
	var createdAt, updatedAt string
	err := row.Scan(&user.Username, &user.PasswordHash, &disabled, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, username)
		}
		return nil, err
	}
	user.Disabled = disabled != 0
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListAdminUsers returns all dashboard users sorted by username.
func (s *Store) ListAdminUsers(ctx context.Context) ([]AdminUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, disabled, created_at, updated_at
		FROM admin_users ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []AdminUser{}
	for rows.Next() {
		user := AdminUser{}
		var disabled int
		var createdAt, updatedAt string
		if err := rows.Scan(&user.Username, &user.PasswordHash, &disabled, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		user.Disabled = disabled != 0
		if user.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetAdminUserDisabled toggles one dashboard user's disabled flag.
func (s *Store) SetAdminUserDisabled(ctx context.Context, username string, disabled bool) error {
	username = strings.TrimSpace(strings.ToLower(username))
	state := 0
	if disabled {
		state = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE admin_users SET disabled = ?, updated_at = ? WHERE username = ?
	`, state, formatTime(time.Now()), username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, username)
	}
	return nil
}
