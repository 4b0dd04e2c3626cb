package domain

import (
	"time"

	"github.com/google/uuid"
)

// PresenceStatus is a user's stored online/offline flag
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceRecord is the durable presence state for a user. Created lazily on
// the first status change and never deleted; the stored status is only
// authoritative while LastUpdated is fresh.
type PresenceRecord struct {
	UserID      uuid.UUID      `json:"user_id"`
	Status      PresenceStatus `json:"status"`
	LastUpdated time.Time      `json:"last_updated"`
	LastActive  time.Time      `json:"last_active"`
}

// EffectiveStatus applies the read-time staleness check: a stored "online"
// older than the threshold is reported offline without being rewritten, so a
// reconnecting client can still claim the fresh record.
func (p *PresenceRecord) EffectiveStatus(now time.Time, staleness time.Duration) PresenceStatus {
	if p == nil || p.Status != PresenceOnline {
		// covers records created by a bare heartbeat before any status write
		return PresenceOffline
	}
	if now.Sub(p.LastUpdated) >= staleness {
		return PresenceOffline
	}
	return PresenceOnline
}

// ContactStatus is the per-contact presence view returned to clients
type ContactStatus struct {
	UserID     uuid.UUID      `json:"user_id"`
	Username   string         `json:"username"`
	Status     PresenceStatus `json:"status"`
	LastActive *time.Time     `json:"last_active,omitempty"`
}
