// Package session keeps the per-session recent-category/entity memory the
// Request Router uses for follow-up bias. It is a thin Redis-backed cache,
// not a conversation transcript store: conversation history lives with the
// caller, not the core.
package session

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a session has no recorded context yet.
	ErrNotFound = errors.New("session context not found")
	// ErrExpired is returned when a session's context has aged out of the cache.
	ErrExpired = errors.New("session context expired")
)

// Context is the recent-category/entity memory kept for one session_id,
// per spec's "Session State & Context" component: enough to bias the
// router's next routing decision, nothing more.
type Context struct {
	SessionID      string    `json:"session_id"`
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	RecentCategory string    `json:"recent_category"`
	RecentSkills   []string  `json:"recent_skills,omitempty"`
	RecentEntities []string  `json:"recent_entities,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// IsExpired reports whether the context has aged out of its TTL.
func (c *Context) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}
