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

const issueColumns = `id, issue_key, project_id, title, type, status, priority, list_position, description,
	estimate, time_spent, time_remaining, reporter_id, parent_issue_id, created_at, updated_at`

func scanIssue(row rowScanner) (*models.Issue, error) {
	i := &models.Issue{}
	var (
		typ, status, priority string
		parent                sql.NullString
	)
	err := row.Scan(&i.ID, &i.Key, &i.ProjectID, &i.Title, &typ, &status, &priority, &i.ListPosition,
		&i.Description, &i.Estimate, &i.TimeSpent, &i.TimeRemaining, &i.ReporterID, &parent,
		&i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	i.Type = models.Type(typ)
	i.Status = models.Status(status)
	i.Priority = models.Priority(priority)
	if parent.Valid && parent.String != "" {
		p := parent.String
		i.ParentIssueID = &p
	}
	i.AssigneeIDs = []string{}
	return i, nil
}

func nullableParent(i *models.Issue) any {
	if id := i.ParentID(); id != "" {
		return id
	}
	return nil
}

// CreateIssue inserts an issue together with its assignee links. The key
// must already be minted by the caller.
func (s *Store) CreateIssue(ctx context.Context, i *models.Issue, assigneeIDs []string) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.CreatedAt = now()
	i.UpdatedAt = i.CreatedAt
	i.AssigneeIDs = dedupe(assigneeIDs)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(
			`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			i.ID, i.Key, i.ProjectID, i.Title, string(i.Type), string(i.Status), string(i.Priority), i.ListPosition,
			i.Description, i.Estimate, i.TimeSpent, i.TimeRemaining, i.ReporterID, nullableParent(i),
			i.CreatedAt, i.UpdatedAt,
		)
		if s.isUniqueViolation(err) {
			return errs.Conflict(fmt.Sprintf("issue key already exists: %s", i.Key))
		}
		if err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
		return s.insertAssignees(ctx, tx, i.ID, i.AssigneeIDs)
	})
}

func (s *Store) insertAssignees(ctx context.Context, tx *sql.Tx, issueID string, userIDs []string) error {
	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO issue_assignees (issue_id, user_id) VALUES (?, ?)`),
			issueID, uid); err != nil {
			return fmt.Errorf("insert assignee %s: %w", uid, err)
		}
	}
	return nil
}

// UpdateIssue writes the mutable fields of i. When assigneeIDs is non-nil
// the assignee set is replaced with it; nil leaves the links untouched.
func (s *Store) UpdateIssue(ctx context.Context, i *models.Issue, assigneeIDs *[]string) error {
	i.UpdatedAt = now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(
			`UPDATE issues SET title = ?, type = ?, status = ?, priority = ?, list_position = ?, description = ?,
				estimate = ?, time_spent = ?, time_remaining = ?, reporter_id = ?, parent_issue_id = ?, updated_at = ?
			WHERE id = ?`),
			i.Title, string(i.Type), string(i.Status), string(i.Priority), i.ListPosition, i.Description,
			i.Estimate, i.TimeSpent, i.TimeRemaining, i.ReporterID, nullableParent(i), i.UpdatedAt, i.ID,
		)
		if err != nil {
			return fmt.Errorf("update issue: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.NotFound("issue", i.ID)
		}
		if assigneeIDs == nil {
			return nil
		}

		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM issue_assignees WHERE issue_id = ?`), i.ID); err != nil {
			return fmt.Errorf("clear assignees: %w", err)
		}
		i.AssigneeIDs = dedupe(*assigneeIDs)
		return s.insertAssignees(ctx, tx, i.ID, i.AssigneeIDs)
	})
	if err != nil {
		return err
	}
	if assigneeIDs == nil {
		ids, err := s.assigneesOf(ctx, i.ID)
		if err != nil {
			return err
		}
		i.AssigneeIDs = ids
	}
	return nil
}

// GetIssue returns an issue with its assignees.
func (s *Store) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	i, err := scanIssue(s.conn.QueryRowContext(ctx, s.q(`SELECT `+issueColumns+` FROM issues WHERE id = ?`), id))
	if isNoRows(err) {
		return nil, errs.NotFound("issue", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	if i.AssigneeIDs, err = s.assigneesOf(ctx, id); err != nil {
		return nil, err
	}
	return i, nil
}

func (s *Store) assigneesOf(ctx context.Context, issueID string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, s.q(
		`SELECT user_id FROM issue_assignees WHERE issue_id = ? ORDER BY user_id`), issueID)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		ids = append(ids, uid)
	}
	return ids, rows.Err()
}

// DeleteIssue removes an issue and applies policy to its subtasks in the
// same transaction, returning how many subtasks were deleted or detached.
// Assignee links and comments cascade. Under SubtasksReject an issue with
// subtasks is a validation error and nothing changes.
func (s *Store) DeleteIssue(ctx context.Context, id string, policy models.SubtaskPolicy) (int, error) {
	var affected int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// The parent row lock makes concurrent subtask inserts wait on
		// their foreign key check until this transaction ends.
		var key string
		err := tx.QueryRowContext(ctx, s.q(s.dialect.forUpdate(`SELECT issue_key FROM issues WHERE id = ?`)), id).Scan(&key)
		if isNoRows(err) {
			return errs.NotFound("issue", id)
		}
		if err != nil {
			return fmt.Errorf("get issue: %w", err)
		}

		var res sql.Result
		switch policy {
		case models.SubtasksCascade:
			res, err = tx.ExecContext(ctx, s.q(`DELETE FROM issues WHERE parent_issue_id = ?`), id)
			if err != nil {
				return fmt.Errorf("delete subtasks: %w", err)
			}
		case models.SubtasksOrphan:
			res, err = tx.ExecContext(ctx, s.q(
				`UPDATE issues SET parent_issue_id = NULL, type = ?, updated_at = ? WHERE parent_issue_id = ?`),
				string(models.TypeTask), now(), id)
			if err != nil {
				return fmt.Errorf("detach subtasks: %w", err)
			}
		case models.SubtasksReject, "":
			var n int
			if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM issues WHERE parent_issue_id = ?`),
				id).Scan(&n); err != nil {
				return fmt.Errorf("count children: %w", err)
			}
			if n > 0 {
				return errs.Validationf("issue %s has %d subtasks; delete or convert them first", key, n)
			}
		default:
			return fmt.Errorf("unknown subtask policy %q", policy)
		}
		if res != nil {
			n, _ := res.RowsAffected()
			affected = int(n)
		}

		res, err = tx.ExecContext(ctx, s.q(`DELETE FROM issues WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete issue: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.NotFound("issue", id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// CountChildren returns the number of issues whose parent is parentID.
func (s *Store) CountChildren(ctx context.Context, parentID string) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM issues WHERE parent_issue_id = ?`),
		parentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count children: %w", err)
	}
	return n, nil
}

// ListChildren returns the subtasks of parentID.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*models.Issue, error) {
	return s.queryIssues(ctx, `SELECT `+issueColumns+` FROM issues WHERE parent_issue_id = ?
		ORDER BY list_position, created_at, id`, parentID)
}

// ListIssues returns a project's issues in board order.
func (s *Store) ListIssues(ctx context.Context, projectID string) ([]*models.Issue, error) {
	return s.queryIssues(ctx, `SELECT `+issueColumns+` FROM issues WHERE project_id = ?
		ORDER BY list_position, created_at, id`, projectID)
}

// SearchIssues matches term case-insensitively against key, title and
// description. An empty projectID searches every project.
func (s *Store) SearchIssues(ctx context.Context, term, projectID string) ([]*models.Issue, error) {
	like := "%" + escapeLike(strings.ToLower(strings.TrimSpace(term))) + "%"
	query := `SELECT ` + issueColumns + ` FROM issues
		WHERE (LOWER(issue_key) LIKE ? ESCAPE '!' OR LOWER(title) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!')`
	args := []any{like, like, like}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY updated_at DESC, id`
	return s.queryIssues(ctx, query, args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

func (s *Store) queryIssues(ctx context.Context, query string, args ...any) ([]*models.Issue, error) {
	rows, err := s.conn.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	var issues []*models.Issue
	byID := make(map[string]*models.Issue)
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, i)
		byID[i.ID] = i
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("query issues: iterate: %w", err)
	}
	rows.Close()

	if err := s.loadAssignees(ctx, byID); err != nil {
		return nil, err
	}
	return issues, nil
}

// loadAssignees fills AssigneeIDs for a batch of issues. It runs after the
// issue cursor is closed, since SQLite holds a single connection.
func (s *Store) loadAssignees(ctx context.Context, byID map[string]*models.Issue) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]any, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	rows, err := s.conn.QueryContext(ctx, s.q(
		`SELECT issue_id, user_id FROM issue_assignees WHERE issue_id IN (`+placeholders+`) ORDER BY user_id`), ids...)
	if err != nil {
		return fmt.Errorf("load assignees: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var issueID, userID string
		if err := rows.Scan(&issueID, &userID); err != nil {
			return fmt.Errorf("scan assignee: %w", err)
		}
		if i := byID[issueID]; i != nil {
			i.AssigneeIDs = append(i.AssigneeIDs, userID)
		}
	}
	return rows.Err()
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
