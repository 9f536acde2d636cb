package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marcus/taskflow/internal/errs"
	"github.com/marcus/taskflow/internal/models"
)

const commentColumns = `id, issue_id, user_id, body, created_at, updated_at`

func scanComment(row rowScanner) (*models.Comment, error) {
	c := &models.Comment{}
	if err := row.Scan(&c.ID, &c.IssueID, &c.UserID, &c.Body, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateComment inserts a comment.
func (s *Store) CreateComment(ctx context.Context, c *models.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	_, err := s.conn.ExecContext(ctx, s.q(`INSERT INTO comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		c.ID, c.IssueID, c.UserID, c.Body, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// GetComment returns a comment by ID.
func (s *Store) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	c, err := scanComment(s.conn.QueryRowContext(ctx, s.q(`SELECT `+commentColumns+` FROM comments WHERE id = ?`), id))
	if isNoRows(err) {
		return nil, errs.NotFound("comment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

// UpdateComment rewrites a comment body.
func (s *Store) UpdateComment(ctx context.Context, c *models.Comment) error {
	c.UpdatedAt = now()
	res, err := s.conn.ExecContext(ctx, s.q(`UPDATE comments SET body = ?, updated_at = ? WHERE id = ?`),
		c.Body, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("comment", c.ID)
	}
	return nil
}

// DeleteComment removes a comment.
func (s *Store) DeleteComment(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, s.q(`DELETE FROM comments WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("comment", id)
	}
	return nil
}

// ListComments returns an issue's comments, oldest first.
func (s *Store) ListComments(ctx context.Context, issueID string) ([]*models.Comment, error) {
	rows, err := s.conn.QueryContext(ctx, s.q(
		`SELECT `+commentColumns+` FROM comments WHERE issue_id = ? ORDER BY created_at, id`), issueID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list comments: iterate: %w", err)
	}
	return comments, nil
}
