package domain

import (
	"time"

	"github.com/google/uuid"
)

// Group is the shared mutable group-chat document. Version increments by
// exactly one on every accepted mutation and is the sole concurrency-control
// token; writers must present the version they read.
type Group struct {
	GroupID     uuid.UUID   `json:"group_id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Icon        string      `json:"icon,omitempty"`
	CreatorID   uuid.UUID   `json:"creator_id"`
	Members     []uuid.UUID `json:"members"`
	Admins      []uuid.UUID `json:"admins"`
	Version     int64       `json:"version"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsMember reports whether userID belongs to the group
func (g *Group) IsMember(userID uuid.UUID) bool {
	return containsID(g.Members, userID)
}

// IsAdmin reports whether userID is a group admin
func (g *Group) IsAdmin(userID uuid.UUID) bool {
	return containsID(g.Admins, userID)
}

// AdminCount returns the number of admins
func (g *Group) AdminCount() int {
	return len(g.Admins)
}

// AddMember appends userID to the member set
func (g *Group) AddMember(userID uuid.UUID) {
	if !containsID(g.Members, userID) {
		g.Members = append(g.Members, userID)
	}
}

// RemoveMember drops userID from both members and admins
func (g *Group) RemoveMember(userID uuid.UUID) {
	g.Members = removeID(g.Members, userID)
	g.Admins = removeID(g.Admins, userID)
}

// PromoteAdmin adds userID to the admin set
func (g *Group) PromoteAdmin(userID uuid.UUID) {
	if !containsID(g.Admins, userID) {
		g.Admins = append(g.Admins, userID)
	}
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
