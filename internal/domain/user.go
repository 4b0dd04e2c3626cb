package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the minimal user projection the realtime layer needs for addressing
// and notification payloads. Full profile CRUD lives in the user service.
type User struct {
	UserID   uuid.UUID  `json:"user_id"`
	Username string     `json:"username"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
