package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/models"
)

const permissionColumns = `id, user_id, project_id, role, created_at, updated_at`

func scanPermission(row rowScanner) (*models.Permission, error) {
	p := &models.Permission{}
	var role string
	if err := row.Scan(&p.ID, &p.UserID, &p.ProjectID, &role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = models.ProjectRole(role)
	return p, nil
}

// GetPermission returns the user's permission in a project, or nil if the
// user has none.
func (s *Store) GetPermission(ctx context.Context, userID, projectID string) (*models.Permission, error) {
	p, err := scanPermission(s.conn.QueryRowContext(ctx, s.q(
		`SELECT `+permissionColumns+` FROM permissions WHERE user_id = ? AND project_id = ?`), userID, projectID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return p, nil
}

// SavePermission inserts a new permission. A user holds at most one role
// per project, so a second grant is a conflict.
func (s *Store) SavePermission(ctx context.Context, p *models.Permission) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt

	_, err := s.conn.ExecContext(ctx, s.q(
		`INSERT INTO permissions (`+permissionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		p.ID, p.UserID, p.ProjectID, string(p.Role), p.CreatedAt, p.UpdatedAt,
	)
	if s.isUniqueViolation(err) {
		return errs.Conflict("user already has a permission in this project")
	}
	if err != nil {
		return fmt.Errorf("insert permission: %w", err)
	}
	return nil
}

// lockProjectAdmins counts the project's admins inside tx, holding row locks
// on them until tx ends so two concurrent demotions cannot both pass.
func (s *Store) lockProjectAdmins(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	return s.countLocked(ctx, tx, "count project admins",
		`SELECT id FROM permissions WHERE project_id = ? AND role = ?`, projectID, string(models.RoleAdmin))
}

// countLocked runs a row-locking SELECT and counts the rows. Aggregates
// cannot take FOR UPDATE on postgres.
func (s *Store) countLocked(ctx context.Context, tx *sql.Tx, op, query string, args ...any) (int, error) {
	rows, err := tx.QueryContext(ctx, s.q(s.dialect.forUpdate(query)), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *Store) getPermissionTx(ctx context.Context, tx *sql.Tx, userID, projectID string) (*models.Permission, error) {
	p, err := scanPermission(tx.QueryRowContext(ctx, s.q(
		`SELECT `+permissionColumns+` FROM permissions WHERE user_id = ? AND project_id = ?`), userID, projectID))
	if isNoRows(err) {
		return nil, errs.NotFound("permission", "")
	}
	if err != nil {
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return p, nil
}

// UpdatePermissionRole changes a user's role in a project. Demoting the
// project's last admin is a conflict.
func (s *Store) UpdatePermissionRole(ctx context.Context, userID, projectID string, role models.ProjectRole) (*models.Permission, error) {
	var updated *models.Permission
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getPermissionTx(ctx, tx, userID, projectID)
		if err != nil {
			return err
		}
		if p.Role == models.RoleAdmin && role != models.RoleAdmin {
			admins, err := s.lockProjectAdmins(ctx, tx, projectID)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return errs.Conflict("cannot demote the last project admin")
			}
		}

		p.Role = role
		p.UpdatedAt = now()
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE permissions SET role = ?, updated_at = ? WHERE id = ?`),
			string(p.Role), p.UpdatedAt, p.ID); err != nil {
			return fmt.Errorf("update permission: %w", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeletePermission revokes a user's access to a project. Removing the
// project's last admin is a conflict.
func (s *Store) DeletePermission(ctx context.Context, userID, projectID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getPermissionTx(ctx, tx, userID, projectID)
		if err != nil {
			return err
		}
		if p.Role == models.RoleAdmin {
			admins, err := s.lockProjectAdmins(ctx, tx, projectID)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return errs.Conflict("cannot remove the last project admin")
			}
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM permissions WHERE id = ?`), p.ID); err != nil {
			return fmt.Errorf("delete permission: %w", err)
		}
		return nil
	})
}

// ListPermissions returns every permission in a project.
func (s *Store) ListPermissions(ctx context.Context, projectID string) ([]*models.Permission, error) {
	rows, err := s.conn.QueryContext(ctx, s.q(
		`SELECT `+permissionColumns+` FROM permissions WHERE project_id = ? ORDER BY created_at, id`), projectID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var perms []*models.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list permissions: iterate: %w", err)
	}
	return perms, nil
}
