package store

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pavelanni/testmaker/internal/model"
)

const userColumns = `id, external_id, email, name, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	u.ID = uuid.NewString()
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.ExternalID, u.Email, u.Name, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		slog.Error("failed to create user", "external_id", u.ExternalID, "error", err)
		return nil, err
	}
	slog.Info("created user", "id", u.ID, "external_id", u.ExternalID)
	return &u, nil
}

// GetUserByExternalID returns a user by identity-provider ID, or nil if not found.
func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID))
}

// UpdateUserByExternalID changes a user's email and name. It returns
// ErrNotFound when no such user exists.
func (s *Store) UpdateUserByExternalID(ctx context.Context, externalID, email, name string) (*model.User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, name = ?, updated_at = ? WHERE external_id = ?`,
		email, name, s.now(), externalID,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetUserByExternalID(ctx, externalID)
}

// DeleteUserByExternalID removes a user. It returns ErrNotFound when no such user exists.
func (s *Store) DeleteUserByExternalID(ctx context.Context, externalID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE external_id = ?`, externalID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	slog.Info("deleted user", "external_id", externalID)
	return nil
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
