package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType represents the media type of a call
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// Valid reports whether t is a known call type
func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusConnected CallStatus = "connected"
	CallStatusEnded     CallStatus = "ended"
	CallStatusMissed    CallStatus = "missed"
	CallStatusDeclined  CallStatus = "declined"
)

// callTransitions is the single source of truth for legal status changes
var callTransitions = map[CallStatus][]CallStatus{
	CallStatusInitiated: {CallStatusRinging, CallStatusEnded},
	CallStatusRinging:   {CallStatusAnswered, CallStatusDeclined, CallStatusMissed, CallStatusEnded},
	CallStatusAnswered:  {CallStatusConnected, CallStatusEnded},
	CallStatusConnected: {CallStatusEnded},
}

// CanTransition reports whether a call may move from one status to another
func CanTransition(from, to CallStatus) bool {
	for _, next := range callTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal call status
func (s CallStatus) Terminal() bool {
	return s == CallStatusEnded || s == CallStatusMissed || s == CallStatusDeclined
}

// CallRecord is the durable history record of a call. Created at initiation,
// updated on every transition, never deleted.
type CallRecord struct {
	CallID     uuid.UUID  `json:"call_id"`
	CallerID   uuid.UUID  `json:"caller_id"`
	CalleeID   uuid.UUID  `json:"callee_id"`
	CallType   CallType   `json:"call_type"`
	Status     CallStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Duration   int        `json:"duration,omitempty"` // seconds, zero when never answered
}

// CallSession is the ephemeral in-memory routing state of an active call.
// It exists only while the call is live and is owned by the call service.
type CallSession struct {
	CallID     uuid.UUID
	CallerID   uuid.UUID
	CalleeID   uuid.UUID
	CallType   CallType
	Status     CallStatus
	RoomName   string
	StartedAt  time.Time
	AnsweredAt *time.Time
}

// Clone returns a copy of the session safe to use outside the owner's lock
func (s *CallSession) Clone() *CallSession {
	clone := *s
	if s.AnsweredAt != nil {
		answeredAt := *s.AnsweredAt
		clone.AnsweredAt = &answeredAt
	}
	return &clone
}

// Participant reports whether userID is the caller or callee of the session
func (s *CallSession) Participant(userID uuid.UUID) bool {
	return userID == s.CallerID || userID == s.CalleeID
}

// Peer returns the other participant of the session
func (s *CallSession) Peer(userID uuid.UUID) uuid.UUID {
	if userID == s.CallerID {
		return s.CalleeID
	}
	return s.CallerID
}
