package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContactStatusValue is the lifecycle state of a contact relationship
type ContactStatusValue string

const (
	ContactPending  ContactStatusValue = "pending"
	ContactAccepted ContactStatusValue = "accepted"
	ContactBlocked  ContactStatusValue = "blocked"
)

// Contact links two users. Presence updates fan out only to accepted contacts.
type Contact struct {
	UserID    uuid.UUID          `json:"user_id"`
	ContactID uuid.UUID          `json:"contact_id"`
	Status    ContactStatusValue `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}
