// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Presence constants
const (
	// HeartbeatSweepInterval is how often the background sweep refreshes
	// presence for every registered connection
	HeartbeatSweepInterval = 60 * time.Second

	// PresenceStalenessThreshold is the maximum age of a presence record's
	// last_updated timestamp before a stored "online" is reported offline
	PresenceStalenessThreshold = 600 * time.Second
)

// Optimistic concurrency constants
const (
	// VersionedUpdateMaxAttempts is the number of conditional-write attempts
	// before giving up with a conflict
	VersionedUpdateMaxAttempts = 3

	// VersionedUpdateRetryDelay is the pause between conditional-write attempts
	VersionedUpdateRetryDelay = 100 * time.Millisecond
)

// Call constants
const (
	// StaleCallTimeout is the age after which a non-terminal durable call
	// record with no live session is reconciled to a terminal state
	StaleCallTimeout = 2 * time.Minute

	// CallReconcileInterval is how often the reconciliation sweep runs
	CallReconcileInterval = 60 * time.Second
)

// WebSocket constants
const (
	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout bounds a single WebSocket write
	WebSocketWriteTimeout = 10 * time.Second
)

// Client-to-server realtime events
const (
	EventHeartbeat          = "heartbeat"
	EventGetContactsStatus  = "get_contacts_status"
	EventCallInitiate       = "call_initiate"
	EventCallAnswer         = "call_answer"
	EventCallDecline        = "call_decline"
	EventCallEnd            = "call_end"
	EventWebRTCOffer        = "webrtc_offer"
	EventWebRTCAnswer       = "webrtc_answer"
	EventWebRTCICECandidate = "webrtc_ice_candidate"
)

// Server-to-client realtime events
const (
	EventPresenceUpdate       = "presence_update"
	EventContactsStatus       = "contacts_status"
	EventIncomingCall         = "incoming_call"
	EventCallInitiated        = "call_initiated"
	EventCallAnswered         = "call_answered"
	EventCallAnswerConfirmed  = "call_answer_confirmed"
	EventCallDeclined         = "call_declined"
	EventCallDeclineConfirmed = "call_decline_confirmed"
	EventCallEnded            = "call_ended"
	EventCallEndConfirmed     = "call_end_confirmed"
	EventCallError            = "call_error"
	EventError                = "error"
	EventGroupUpdated         = "group_updated"
)

// Server constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)
