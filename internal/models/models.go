package models

import (
	"strings"
	"time"
)

// Status represents issue status
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusSelected   Status = "selected"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Type represents issue type
type Type string

const (
	TypeStory   Type = "story"
	TypeTask    Type = "task"
	TypeBug     Type = "bug"
	TypeSubtask Type = "subtask"
)

// Priority represents issue priority
type Priority string

const (
	PriorityLowest  Priority = "lowest"
	PriorityLow     Priority = "low"
	PriorityMedium  Priority = "medium" // default
	PriorityHigh    Priority = "high"
	PriorityHighest Priority = "highest"
)

// Category classifies a project
type Category string

const (
	CategorySoftware  Category = "software"
	CategoryMarketing Category = "marketing"
	CategoryBusiness  Category = "business"
)

// SystemRole is a user's global role
type SystemRole string

const (
	SystemRoleAdmin SystemRole = "admin"
	SystemRoleUser  SystemRole = "user"
)

// ProjectRole is a user's role within a single project
type ProjectRole string

const (
	RoleViewer ProjectRole = "viewer"
	RoleMember ProjectRole = "member"
	RoleAdmin  ProjectRole = "admin"
)

// SubtaskPolicy decides what happens to subtasks when their parent is deleted
type SubtaskPolicy string

const (
	SubtasksReject  SubtaskPolicy = "reject"
	SubtasksCascade SubtaskPolicy = "cascade"
	SubtasksOrphan  SubtaskPolicy = "orphan"
)

// User represents a registered user
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	SystemRole SystemRole `json:"system_role"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsSystemAdmin reports whether the user bypasses project-level checks.
func (u *User) IsSystemAdmin() bool {
	return u != nil && u.SystemRole == SystemRoleAdmin
}

// Project is a tenant that owns issues and permissions
type Project struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	IssueCounter int64     `json:"issue_counter"`
	Name         string    `json:"name"`
	URL          string    `json:"url,omitempty"`
	Description  string    `json:"description,omitempty"`
	Category     Category  `json:"category"`
	IsPublic     bool      `json:"is_public"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProjectFilter selects projects for listing
type ProjectFilter struct {
	All           bool   // every project, ignoring the other fields
	UserID        string // projects the user holds a permission in
	IncludePublic bool   // plus every public project
}

// Permission grants a user one role in one project
type Permission struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	ProjectID string      `json:"project_id"`
	Role      ProjectRole `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Issue represents a story/task/bug/subtask in a project
type Issue struct {
	ID            string    `json:"id"`
	Key           string    `json:"key"`
	ProjectID     string    `json:"project_id"`
	Title         string    `json:"title"`
	Type          Type      `json:"type"`
	Status        Status    `json:"status"`
	Priority      Priority  `json:"priority"`
	ListPosition  float64   `json:"list_position"`
	Description   string    `json:"description,omitempty"`
	Estimate      int       `json:"estimate,omitempty"`
	TimeSpent     int       `json:"time_spent,omitempty"`
	TimeRemaining int       `json:"time_remaining,omitempty"`
	ReporterID    string    `json:"reporter_id"`
	ParentIssueID *string   `json:"parent_issue_id,omitempty"`
	AssigneeIDs   []string  `json:"assignee_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ParentID returns the parent issue id, or "" when the issue has no parent.
func (i *Issue) ParentID() string {
	if i.ParentIssueID == nil {
		return ""
	}
	return *i.ParentIssueID
}

// Comment represents a comment on an issue
type Comment struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue_id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsValidStatus checks if a status is valid
func IsValidStatus(s Status) bool {
	switch s {
	case StatusBacklog, StatusSelected, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// IsValidType checks if a type is valid
func IsValidType(t Type) bool {
	switch t {
	case TypeStory, TypeTask, TypeBug, TypeSubtask:
		return true
	}
	return false
}

// IsValidPriority checks if a priority is valid
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityLowest, PriorityLow, PriorityMedium, PriorityHigh, PriorityHighest:
		return true
	}
	return false
}

// IsValidCategory checks if a category is valid
func IsValidCategory(c Category) bool {
	switch c {
	case CategorySoftware, CategoryMarketing, CategoryBusiness:
		return true
	}
	return false
}

// IsValidProjectRole checks if a project role is valid
func IsValidProjectRole(r ProjectRole) bool {
	switch r {
	case RoleViewer, RoleMember, RoleAdmin:
		return true
	}
	return false
}

// IsValidSystemRole checks if a system role is valid
func IsValidSystemRole(r SystemRole) bool {
	return r == SystemRoleAdmin || r == SystemRoleUser
}

// NormalizeStatus converts alternate status names to canonical form.
// Accepts upper case and "in progress" / "in-progress".
func NormalizeStatus(s string) Status {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "in progress", "in-progress", "inprogress":
		return StatusInProgress
	default:
		return Status(s)
	}
}

// NormalizeType converts alternate type names to canonical form.
// Accepts upper case and "sub-task".
func NormalizeType(t string) Type {
	t = strings.ToLower(strings.TrimSpace(t))
	switch t {
	case "sub-task", "sub_task":
		return TypeSubtask
	default:
		return Type(t)
	}
}

// NormalizePriority converts alternate priority formats to canonical form.
// Accepts upper case and "1".."5" as aliases for lowest..highest.
func NormalizePriority(p string) Priority {
	p = strings.ToLower(strings.TrimSpace(p))
	switch p {
	case "1":
		return PriorityLowest
	case "2":
		return PriorityLow
	case "3":
		return PriorityMedium
	case "4":
		return PriorityHigh
	case "5":
		return PriorityHighest
	default:
		return Priority(p)
	}
}

// NormalizeCategory lowercases a category name
func NormalizeCategory(c string) Category {
	return Category(strings.ToLower(strings.TrimSpace(c)))
}

// NormalizeProjectRole lowercases a role name
func NormalizeProjectRole(r string) ProjectRole {
	return ProjectRole(strings.ToLower(strings.TrimSpace(r)))
}
