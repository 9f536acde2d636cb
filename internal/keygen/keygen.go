// Package keygen derives human-readable project keys and mints per-project
// issue keys from an atomically incremented counter.
package keygen

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/marcus/taskflow/internal/models"
)

const (
	maxKeyLen        = 10
	maxSuffixAttempt = 999
)

// DeriveProjectKey returns the base key candidate for a project name:
// first 3 letters of a single word, or the initials of up to 4 words,
// padded with "01" when shorter than 2 and truncated to 10.
func DeriveProjectKey(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())

	var key string
	switch len(words) {
	case 0:
		key = ""
	case 1:
		key = words[0]
		if len(key) > 3 {
			key = key[:3]
		}
	default:
		for i := 0; i < len(words) && i < 4; i++ {
			key += words[i][:1]
		}
	}

	if len(key) < 2 {
		key += "01"
	}
	if len(key) > maxKeyLen {
		key = key[:maxKeyLen]
	}
	return key
}

// ExistsFunc reports whether a project key is already taken.
type ExistsFunc func(ctx context.Context, key string) (bool, error)

// Generator disambiguates project keys and mints issue keys.
type Generator struct {
	now func() time.Time
}

// New returns a Generator using the wall clock for the fallback suffix.
func New() *Generator {
	return &Generator{now: time.Now}
}

// UniqueProjectKey derives the base key for name and appends 1, 2, ... until
// exists reports the candidate free. After 999 taken suffixes it gives up on
// sequential suffixes and uses the current time in milliseconds modulo 1000,
// trading key aesthetics for guaranteed termination. The returned key may
// still collide in that case; the store's unique constraint reports it as a
// conflict.
func (g *Generator) UniqueProjectKey(ctx context.Context, name string, exists ExistsFunc) (string, error) {
	base := DeriveProjectKey(name)
	candidate := base
	for attempt := 1; ; attempt++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check project key %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		if attempt > maxSuffixAttempt {
			return base + strconv.FormatInt(g.now().UnixMilli()%1000, 10), nil
		}
		candidate = base + strconv.Itoa(attempt)
	}
}

// Counter atomically increments a project's issue counter and returns the
// project as re-read after the increment.
type Counter interface {
	IncrementIssueCounter(ctx context.Context, projectID string) (*models.Project, error)
}

// NextIssueKey increments the project's counter and formats "{key}-{n}" from
// the post-increment value. A failure after this call leaves a gap in the
// sequence; keys are unique, not gapless.
func (g *Generator) NextIssueKey(ctx context.Context, c Counter, projectID string) (string, error) {
	p, err := c.IncrementIssueCounter(ctx, projectID)
	if err != nil {
		return "", err
	}
	return FormatIssueKey(p.Key, p.IssueCounter), nil
}

// FormatIssueKey joins a project key and a counter value.
func FormatIssueKey(projectKey string, n int64) string {
	return projectKey + "-" + strconv.FormatInt(n, 10)
}
