package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/models"
)

const userColumns = `id, name, email, system_role, avatar_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.SystemRole = models.SystemRole(role)
	return u, nil
}

// CreateUser inserts u, lowercasing its email and filling the id, role and
// timestamps when unset. A taken email is a conflict.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" {
		return errs.Validation("email is required")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.SystemRole == "" {
		u.SystemRole = models.SystemRoleUser
	}
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt

	_, err := s.conn.ExecContext(ctx, s.q(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Name, u.Email, string(u.SystemRole), u.AvatarURL, u.CreatedAt, u.UpdatedAt,
	)
	if s.isUniqueViolation(err) {
		return errs.Conflict(fmt.Sprintf("email already registered: %s", u.Email))
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns the user with the given ID.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.conn.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if isNoRows(err) {
		return nil, errs.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email (case-insensitive).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(s.conn.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE email = ?`), email))
	if isNoRows(err) {
		return nil, errs.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: iterate: %w", err)
	}
	return users, nil
}

// SetSystemRole changes a user's global role. Demoting the last system
// admin is a conflict.
func (s *Store) SetSystemRole(ctx context.Context, userID string, role models.SystemRole) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, s.q(`SELECT system_role FROM users WHERE id = ?`), userID).Scan(&current)
		if isNoRows(err) {
			return errs.NotFound("user", userID)
		}
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}

		if models.SystemRole(current) == models.SystemRoleAdmin && role != models.SystemRoleAdmin {
			admins, err := s.countLocked(ctx, tx, "count admins",
				`SELECT id FROM users WHERE system_role = ?`, string(models.SystemRoleAdmin))
			if err != nil {
				return err
			}
			if admins <= 1 {
				return errs.Conflict("cannot revoke last admin")
			}
		}

		if _, err := tx.ExecContext(ctx, s.q(`UPDATE users SET system_role = ?, updated_at = ? WHERE id = ?`),
			string(role), now(), userID); err != nil {
			return fmt.Errorf("set system role: %w", err)
		}
		return nil
	})
}
