package model

import (
	"encoding/json"
	"time"
)

// AuditEvent is append-only. PracticeID is empty when the practice link was
// nulled out.
type AuditEvent struct {
	ID         int64           `json:"id"`
	PracticeID string          `json:"practice_id,omitempty"`
	ActorID    string          `json:"actor_id,omitempty"`
	ActorRole  string          `json:"actor_role,omitempty"`
	Action     string          `json:"action"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entity_id,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

const (
	LoginMethodPassword  = "password"
	LoginMethodMagicLink = "magic_link"
)

type LoginEvent struct {
	ID         int64
	PracticeID string
	UserID     string
	Method     string
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	UserID string
	Role   string
	Email  string
}

const (
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
	RoleProvider = "provider"
)

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
