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

const projectColumns = `id, project_key, issue_counter, name, url, description, category, is_public, created_at, updated_at`

func scanProject(row rowScanner) (*models.Project, error) {
	p := &models.Project{}
	var category string
	if err := row.Scan(&p.ID, &p.Key, &p.IssueCounter, &p.Name, &p.URL, &p.Description,
		&category, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Category = models.Category(category)
	return p, nil
}

// CreateProject inserts p with a zero issue counter and grants ownerUserID
// the admin role in a single transaction. A taken key is a conflict.
func (s *Store) CreateProject(ctx context.Context, p *models.Project, ownerUserID string) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.IssueCounter = 0
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(
			`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			p.ID, p.Key, p.IssueCounter, p.Name, p.URL, p.Description, string(p.Category), p.IsPublic, p.CreatedAt, p.UpdatedAt,
		)
		if s.isUniqueViolation(err) {
			return errs.Conflict(fmt.Sprintf("project key already exists: %s", p.Key))
		}
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}

		_, err = tx.ExecContext(ctx, s.q(
			`INSERT INTO permissions (id, user_id, project_id, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
			uuid.NewString(), ownerUserID, p.ID, string(models.RoleAdmin), p.CreatedAt, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert owner permission: %w", err)
		}
		return nil
	})
}

// GetProject returns a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanProject(s.conn.QueryRowContext(ctx, s.q(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id))
	if isNoRows(err) {
		return nil, errs.NotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ProjectKeyExists reports whether a project already uses key.
func (s *Store) ProjectKeyExists(ctx context.Context, key string) (bool, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM projects WHERE project_key = ?`), key).Scan(&n); err != nil {
		return false, fmt.Errorf("check project key: %w", err)
	}
	return n > 0, nil
}

// ListProjects returns the projects matching f, oldest first.
func (s *Store) ListProjects(ctx context.Context, f models.ProjectFilter) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var (
		where []string
		args  []any
	)
	if !f.All {
		if f.IncludePublic {
			where = append(where, `is_public = ?`)
			args = append(args, true)
		}
		if f.UserID != "" {
			where = append(where, `id IN (SELECT project_id FROM permissions WHERE user_id = ?)`)
			args = append(args, f.UserID)
		}
		if len(where) == 0 {
			return nil, nil
		}
		query += ` WHERE ` + strings.Join(where, ` OR `)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.conn.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: iterate: %w", err)
	}
	return projects, nil
}

// UpdateProject writes the mutable fields of p. The key and issue counter
// are never changed here.
func (s *Store) UpdateProject(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = now()
	res, err := s.conn.ExecContext(ctx, s.q(
		`UPDATE projects SET name = ?, url = ?, description = ?, category = ?, is_public = ?, updated_at = ? WHERE id = ?`),
		p.Name, p.URL, p.Description, string(p.Category), p.IsPublic, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("project", p.ID)
	}
	return nil
}

// DeleteProject removes a project. Permissions, issues, assignee links and
// comments go with it through foreign key cascades.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, s.q(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("project", id)
	}
	return nil
}

// IncrementIssueCounter bumps the project's issue counter with a single
// UPDATE and re-reads the row in the same transaction. The row stays locked
// until commit, so concurrent callers each observe a distinct value.
func (s *Store) IncrementIssueCounter(ctx context.Context, projectID string) (*models.Project, error) {
	var p *models.Project
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(
			`UPDATE projects SET issue_counter = issue_counter + 1 WHERE id = ?`), projectID)
		if err != nil {
			return fmt.Errorf("increment issue counter: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.NotFound("project", projectID)
		}

		p, err = scanProject(tx.QueryRowContext(ctx, s.q(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), projectID))
		if err != nil {
			return fmt.Errorf("reload project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
