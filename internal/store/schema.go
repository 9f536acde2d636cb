package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// SchemaVersion is the current database schema version
const SchemaVersion = 3

// Migration defines a database migration. Statements use {{TYPE}}
// placeholders that each dialect expands, and run one at a time since not
// every driver accepts multi-statement Exec.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id {{ID}} PRIMARY KEY,
				name {{STR}} NOT NULL,
				email {{STR}} NOT NULL UNIQUE,
				system_role {{STR}} NOT NULL,
				avatar_url {{STR}} NOT NULL,
				created_at {{TS}} NOT NULL,
				updated_at {{TS}} NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS projects (
				id {{ID}} PRIMARY KEY,
				project_key {{ID}} NOT NULL UNIQUE,
				issue_counter {{BIGINT}} NOT NULL,
				name {{STR}} NOT NULL,
				url {{STR}} NOT NULL,
				description {{TEXT}} NOT NULL,
				category {{STR}} NOT NULL,
				is_public {{BOOL}} NOT NULL,
				created_at {{TS}} NOT NULL,
				updated_at {{TS}} NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS permissions (
				id {{ID}} PRIMARY KEY,
				user_id {{ID}} NOT NULL,
				project_id {{ID}} NOT NULL,
				role {{STR}} NOT NULL,
				created_at {{TS}} NOT NULL,
				updated_at {{TS}} NOT NULL,
				UNIQUE (user_id, project_id),
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS issues (
				id {{ID}} PRIMARY KEY,
				issue_key {{ID}} NOT NULL UNIQUE,
				project_id {{ID}} NOT NULL,
				title {{STR}} NOT NULL,
				type {{STR}} NOT NULL,
				status {{STR}} NOT NULL,
				priority {{STR}} NOT NULL,
				list_position {{FLOAT}} NOT NULL,
				description {{TEXT}} NOT NULL,
				estimate {{INT}} NOT NULL,
				time_spent {{INT}} NOT NULL,
				time_remaining {{INT}} NOT NULL,
				reporter_id {{ID}} NOT NULL,
				parent_issue_id {{ID}},
				created_at {{TS}} NOT NULL,
				updated_at {{TS}} NOT NULL,
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
				FOREIGN KEY (parent_issue_id) REFERENCES issues(id) ON DELETE SET NULL
			)`,
			`CREATE TABLE IF NOT EXISTS issue_assignees (
				issue_id {{ID}} NOT NULL,
				user_id {{ID}} NOT NULL,
				PRIMARY KEY (issue_id, user_id),
				FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS comments (
				id {{ID}} PRIMARY KEY,
				issue_id {{ID}} NOT NULL,
				user_id {{ID}} NOT NULL,
				body {{TEXT}} NOT NULL,
				created_at {{TS}} NOT NULL,
				updated_at {{TS}} NOT NULL,
				FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX idx_permissions_project ON permissions(project_id)`,
			`CREATE INDEX idx_issues_project ON issues(project_id)`,
			`CREATE INDEX idx_issues_parent ON issues(parent_issue_id)`,
			`CREATE INDEX idx_comments_issue ON comments(issue_id)`,
		},
	},
	{
		Version:     2,
		Description: "Add api_keys table",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS api_keys (
				id {{ID}} PRIMARY KEY,
				user_id {{ID}} NOT NULL,
				key_hash {{ID}} NOT NULL UNIQUE,
				key_prefix {{ID}} NOT NULL,
				name {{STR}} NOT NULL,
				expires_at {{TS}},
				last_used_at {{TS}},
				created_at {{TS}} NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX idx_api_keys_user ON api_keys(user_id)`,
		},
	},
	{
		Version:     3,
		Description: "Index assignee lookups by user",
		Statements: []string{
			`CREATE INDEX idx_issue_assignees_user ON issue_assignees(user_id)`,
		},
	},
}

// RunMigrations runs any pending database migrations and returns how many ran.
func (s *Store) RunMigrations(ctx context.Context) (int, error) {
	if _, err := s.conn.ExecContext(ctx, s.dialect.types.Replace(
		`CREATE TABLE IF NOT EXISTS schema_info (name {{ID}} PRIMARY KEY, value {{STR}} NOT NULL)`,
	)); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return 0, err
	}
	if currentVersion >= SchemaVersion {
		return 0, nil
	}

	migrationsRun := 0
	for _, m := range Migrations {
		if m.Version <= currentVersion {
			continue
		}
		for i, stmt := range m.Statements {
			if _, err := s.conn.ExecContext(ctx, s.dialect.types.Replace(stmt)); err != nil {
				return migrationsRun, fmt.Errorf("migration %d (%s) statement %d: %w", m.Version, m.Description, i+1, err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.Version); err != nil {
			return migrationsRun, fmt.Errorf("set version %d: %w", m.Version, err)
		}
		migrationsRun++
	}
	return migrationsRun, nil
}

// SchemaVersion returns the recorded schema version, 0 for a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version string
	err := s.conn.QueryRowContext(ctx, s.q(`SELECT value FROM schema_info WHERE name = ?`), "version").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(version)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", version, err)
	}
	return v, nil
}

// setSchemaVersion updates the version row, inserting it on first use.
func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	v := strconv.Itoa(version)
	res, err := s.conn.ExecContext(ctx, s.q(`UPDATE schema_info SET value = ? WHERE name = ?`), v, "version")
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.conn.ExecContext(ctx, s.q(`INSERT INTO schema_info (name, value) VALUES (?, ?)`), "version", v)
	return err
}
