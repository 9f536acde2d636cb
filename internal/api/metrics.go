package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime       time.Time
	requests        atomic.Int64
	serverErrors    atomic.Int64
	clientErrors    atomic.Int64
	rateLimited     atomic.Int64
	projectsCreated atomic.Int64
	issuesCreated   atomic.Int64
	commentsCreated atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	Requests        int64   `json:"requests"`
	ServerErrors    int64   `json:"server_errors"`
	ClientErrors    int64   `json:"client_errors"`
	RateLimited     int64   `json:"rate_limited"`
	ProjectsCreated int64   `json:"projects_created"`
	IssuesCreated   int64   `json:"issues_created"`
	CommentsCreated int64   `json:"comments_created"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordRateLimited increments the rejected-by-rate-limit counter.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Add(1)
}

func (m *Metrics) RecordProjectCreated() {
	m.projectsCreated.Add(1)
}

func (m *Metrics) RecordIssueCreated() {
	m.issuesCreated.Add(1)
}

func (m *Metrics) RecordCommentCreated() {
	m.commentsCreated.Add(1)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:   time.Since(m.startTime).Seconds(),
		Requests:        m.requests.Load(),
		ServerErrors:    m.serverErrors.Load(),
		ClientErrors:    m.clientErrors.Load(),
		RateLimited:     m.rateLimited.Load(),
		ProjectsCreated: m.projectsCreated.Load(),
		IssuesCreated:   m.issuesCreated.Load(),
		CommentsCreated: m.commentsCreated.Load(),
	}
}
