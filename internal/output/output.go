// Package output renders users, projects, issues and comments for the
// taskflow CLI, with lipgloss styling for terminals and a JSON mode for
// scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/taskflow/internal/models"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	priorityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	statusStyles  = map[models.Status]lipgloss.Style{
		models.StatusBacklog:    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		models.StatusSelected:   lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
	statusSymbols = map[models.Status]string{
		models.StatusBacklog:    "○",
		models.StatusSelected:   "◎",
		models.StatusInProgress: "▶",
		models.StatusDone:       "✓",
	}
)

// Mode determines output format
type Mode int

const (
	ModeShort Mode = iota
	ModeLong
	ModeJSON
)

// ParseMode maps a --output flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "short", "text":
		return ModeShort, nil
	case "long":
		return ModeLong, nil
	case "json":
		return ModeJSON, nil
	}
	return ModeShort, fmt.Errorf("unknown output mode %q (want short, long or json)", s)
}

// Success writes a success message
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error writes an error message
func Error(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning writes a warning message
func Warning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, warningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// JSONError writes an error envelope in the same shape the HTTP API uses.
func JSONError(w io.Writer, code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Fprintln(w, string(data))
}

// FormatStatus formats a status with color
func FormatStatus(s models.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatPriority formats a priority
func FormatPriority(p models.Priority) string {
	return priorityStyle.Render(fmt.Sprintf("[%s]", p))
}

// FormatEstimate returns "" for zero, otherwise "Nh".
func FormatEstimate(hours int) string {
	if hours == 0 {
		return ""
	}
	return fmt.Sprintf("%dh", hours)
}

// FormatIssueShort formats an issue on one line.
func FormatIssueShort(issue *models.Issue) string {
	parts := []string{
		titleStyle.Render(issue.Key),
		FormatPriority(issue.Priority),
		issue.Title,
	}
	if est := FormatEstimate(issue.Estimate); est != "" {
		parts = append(parts, subtleStyle.Render(est))
	}
	parts = append(parts, subtleStyle.Render(string(issue.Type)), FormatStatus(issue.Status))
	return strings.Join(parts, "  ")
}

// IssueDetail carries the lookups FormatIssueLong needs beyond the issue.
// Names maps user ids to display names; missing ids print as the raw id.
type IssueDetail struct {
	ParentKey   string
	Names       map[string]string
	Subtasks    []*models.Issue
	Comments    []*models.Comment
	Description string // pre-rendered description; falls back to the raw text
}

func (d IssueDetail) name(id string) string {
	if n, ok := d.Names[id]; ok && n != "" {
		return n
	}
	return id
}

// FormatIssueLong formats an issue with its people, hierarchy and comments.
func FormatIssueLong(issue *models.Issue, d IssueDetail) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s: %s", issue.Key, issue.Title)))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Status: %s\n", FormatStatus(issue.Status))
	fmt.Fprintf(&sb, "Type: %s | Priority: %s", issue.Type, issue.Priority)
	if issue.Estimate > 0 {
		fmt.Fprintf(&sb, " | Estimate: %dh", issue.Estimate)
	}
	if issue.TimeSpent > 0 || issue.TimeRemaining > 0 {
		fmt.Fprintf(&sb, " | Spent: %dh | Remaining: %dh", issue.TimeSpent, issue.TimeRemaining)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Reporter: %s\n", d.name(issue.ReporterID))
	if len(issue.AssigneeIDs) > 0 {
		names := make([]string, len(issue.AssigneeIDs))
		for i, id := range issue.AssigneeIDs {
			names[i] = d.name(id)
		}
		fmt.Fprintf(&sb, "Assignees: %s\n", strings.Join(names, ", "))
	}
	if parent := issue.ParentID(); parent != "" {
		key := d.ParentKey
		if key == "" {
			key = parent
		}
		fmt.Fprintf(&sb, "Parent: %s\n", key)
	}

	desc := d.Description
	if desc == "" {
		desc = issue.Description
	}
	if desc != "" {
		sb.WriteString("\n")
		sb.WriteString(subtleStyle.Render("Description:"))
		sb.WriteString("\n")
		sb.WriteString(desc)
		sb.WriteString("\n")
	}

	if len(d.Subtasks) > 0 {
		sb.WriteString(SectionHeader("subtasks"))
		for _, st := range d.Subtasks {
			sb.WriteString("  ")
			sb.WriteString(IssueOneLiner(st))
			sb.WriteString("\n")
		}
	}

	if len(d.Comments) > 0 {
		sb.WriteString(SectionHeader("comments"))
		for _, c := range d.Comments {
			sb.WriteString(FormatComment(c, d.name(c.UserID)))
		}
	}

	return sb.String()
}

// FormatComment formats a comment header plus its indented body.
func FormatComment(c *models.Comment, author string) string {
	header := fmt.Sprintf("  %s %s", titleStyle.Render(author), subtleStyle.Render(FormatTimeAgo(c.CreatedAt)))
	if c.UpdatedAt.After(c.CreatedAt) {
		header += subtleStyle.Render(" (edited)")
	}
	return header + "\n" + IndentString(c.Body, 4) + "\n"
}

// FormatProject formats a project on one line. role may be empty.
func FormatProject(p *models.Project, role models.ProjectRole) string {
	parts := []string{titleStyle.Render(p.Key), p.Name, subtleStyle.Render(string(p.Category))}
	if p.IsPublic {
		parts = append(parts, subtleStyle.Render("public"))
	}
	if role != "" {
		parts = append(parts, fmt.Sprintf("[%s]", role))
	}
	return strings.Join(parts, "  ")
}

// FormatUser formats a user on one line.
func FormatUser(u *models.User) string {
	line := fmt.Sprintf("%s  %s <%s>", subtleStyle.Render(u.ID), titleStyle.Render(u.Name), u.Email)
	if u.IsSystemAdmin() {
		line += "  " + warningStyle.Render("[admin]")
	}
	return line
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// IssueOneLiner returns `KEY "Title" [status]` with the status colored.
func IssueOneLiner(issue *models.Issue) string {
	return fmt.Sprintf("%s \"%s\" %s", issue.Key, issue.Title, FormatStatus(issue.Status))
}

// IssueOneLinerPlain is IssueOneLiner without styling.
func IssueOneLinerPlain(issue *models.Issue) string {
	return fmt.Sprintf("%s \"%s\" [%s]", issue.Key, issue.Title, issue.Status)
}

// StatusBadge returns a status indicator with symbol, e.g. "▶ in_progress".
func StatusBadge(status models.Status) string {
	symbol, ok := statusSymbols[status]
	if !ok {
		symbol = "?"
	}
	if style, ok := statusStyles[status]; ok {
		return style.Render(fmt.Sprintf("%s %s", symbol, status))
	}
	return fmt.Sprintf("%s %s", symbol, status)
}

// SectionHeader returns a formatted section header, e.g. "\nSUBTASKS:\n".
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentLines indents each line by the specified number of spaces
func IndentLines(lines []string, spaces int) []string {
	indent := strings.Repeat(" ", spaces)
	result := make([]string, len(lines))
	for i, line := range lines {
		result[i] = indent + line
	}
	return result
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	return strings.Join(IndentLines(strings.Split(s, "\n"), spaces), "\n")
}
