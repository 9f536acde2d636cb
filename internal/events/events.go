// Package events defines the change notifications the workflow layer emits
// after a mutation commits.
package events

import (
	"fmt"
	"strings"
	"time"
)

// EntityType represents the kind of record that changed.
type EntityType string

// ActionType represents what happened to it.
type ActionType string

// Canonical entity types
const (
	EntityProjects    EntityType = "projects"
	EntityIssues      EntityType = "issues"
	EntityComments    EntityType = "comments"
	EntityPermissions EntityType = "permissions"
	EntityUsers       EntityType = "users"
)

// Canonical action types
const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// Event is one committed change. Data holds the entity after the change,
// or the last known state for deletes.
type Event struct {
	Entity     EntityType `json:"entity"`
	Action     ActionType `json:"action"`
	EntityID   string     `json:"entity_id"`
	ProjectID  string     `json:"project_id,omitempty"`
	ActorID    string     `json:"actor_id"`
	Data       any        `json:"data,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Name returns the dotted event name, e.g. "issue.created".
func (e Event) Name() string {
	entity := strings.TrimSuffix(string(e.Entity), "s")
	switch e.Action {
	case ActionCreate:
		return entity + ".created"
	case ActionUpdate:
		return entity + ".updated"
	case ActionDelete:
		return entity + ".deleted"
	}
	return entity + "." + string(e.Action)
}

// Validate checks the entity/action pair is one the tracker produces.
func (e Event) Validate() error {
	if !IsValidEntityActionCombination(e.Entity, e.Action) {
		return fmt.Errorf("invalid event %s/%s", e.Entity, e.Action)
	}
	if e.EntityID == "" {
		return fmt.Errorf("event %s has no entity id", e.Name())
	}
	return nil
}

// Notifier receives events. Implementations must not block the caller.
type Notifier interface {
	Notify(Event)
}

// Nop discards events.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(Event) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(e Event) { f(e) }

// NormalizeEntityType maps singular or plural, any case, to the canonical
// entity type.
func NormalizeEntityType(entityType string) (EntityType, bool) {
	switch strings.ToLower(strings.TrimSpace(entityType)) {
	case "project", "projects":
		return EntityProjects, true
	case "issue", "issues":
		return EntityIssues, true
	case "comment", "comments":
		return EntityComments, true
	case "permission", "permissions", "collaborator", "collaborators":
		return EntityPermissions, true
	case "user", "users":
		return EntityUsers, true
	default:
		return "", false
	}
}

// ValidEntityActionCombinations defines which actions each entity emits.
func ValidEntityActionCombinations() map[EntityType]map[ActionType]bool {
	crud := func() map[ActionType]bool {
		return map[ActionType]bool{ActionCreate: true, ActionUpdate: true, ActionDelete: true}
	}
	return map[EntityType]map[ActionType]bool{
		EntityProjects:    crud(),
		EntityIssues:      crud(),
		EntityComments:    crud(),
		EntityPermissions: crud(),
		EntityUsers: {
			ActionCreate: true,
			ActionUpdate: true,
		},
	}
}

// IsValidEntityActionCombination checks if an entity type can have a given action type.
func IsValidEntityActionCombination(entity EntityType, action ActionType) bool {
	if actions, ok := ValidEntityActionCombinations()[entity]; ok {
		return actions[action]
	}
	return false
}

// Filter selects events by entity. The zero Filter matches everything.
type Filter map[EntityType]bool

// ParseFilter builds a Filter from entity names such as "issue" or
// "comments". An empty list or "*" matches all entities.
func ParseFilter(names []string) (Filter, error) {
	f := Filter{}
	for _, n := range names {
		if strings.TrimSpace(n) == "*" {
			return nil, nil
		}
		et, ok := NormalizeEntityType(n)
		if !ok {
			return nil, fmt.Errorf("unknown event entity %q", n)
		}
		f[et] = true
	}
	if len(f) == 0 {
		return nil, nil
	}
	return f, nil
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	return len(f) == 0 || f[e.Entity]
}
