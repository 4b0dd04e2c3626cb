package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wavelink-backend/internal/domain"
	"wavelink-backend/pkg/constants"
	"wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/logger"
	"wavelink-backend/pkg/metrics"
)

// CallRepository persists the durable call history
type CallRepository interface {
	Create(ctx context.Context, call *domain.CallRecord) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.CallRecord, error)
	UpdateStatus(ctx context.Context, callID uuid.UUID, status domain.CallStatus) error
	MarkAnswered(ctx context.Context, callID uuid.UUID, answeredAt time.Time) error
	Finish(ctx context.Context, callID uuid.UUID, status domain.CallStatus, endedAt time.Time, duration int) error
	GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRecord, error)
	GetMissedCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRecord, error)
	ListStaleActive(ctx context.Context, cutoff time.Time) ([]*domain.CallRecord, error)
}

// UserRepository resolves participants for validation and payloads
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// Registry answers whether a user has a live connection
type Registry interface {
	IsRegistered(userID uuid.UUID) bool
}

// Realtime delivers events to users and call topics
type Realtime interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
	PublishToCall(ctx context.Context, callID uuid.UUID, event string, data interface{}) error
	JoinCallTopic(userID uuid.UUID, callID uuid.UUID)
	DropCallTopic(callID uuid.UUID)
}

// IncomingCall is the payload delivered to the callee when a call starts
type IncomingCall struct {
	CallID     uuid.UUID       `json:"call_id"`
	CallerID   uuid.UUID       `json:"caller_id"`
	CallerName string          `json:"caller_name"`
	CallType   domain.CallType `json:"call_type"`
	RoomName   string          `json:"room_name"`
}

// CallUpdate is the payload of caller/callee lifecycle notifications
type CallUpdate struct {
	CallID   uuid.UUID  `json:"call_id"`
	Status   string     `json:"status"`
	ActorID  uuid.UUID  `json:"actor_id,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Duration int        `json:"duration,omitempty"`
	EndedAt  *time.Time `json:"ended_at,omitempty"`
}

// Signal is a relayed WebRTC negotiation payload. The payload itself is
// opaque to the relay.
type Signal struct {
	CallID   uuid.UUID       `json:"call_id"`
	SenderID uuid.UUID       `json:"sender_id"`
	Payload  json.RawMessage `json:"payload"`
}

// ReasonParticipantDisconnected marks a teardown caused by a participant's
// connection dropping rather than an explicit call_end
const ReasonParticipantDisconnected = "participant_disconnected"

// Service coordinates the call lifecycle. Active calls live in memory as
// sessions; every transition is mirrored to the durable call history. A user
// participates in at most one active call.
type Service struct {
	callRepo CallRepository
	userRepo UserRepository
	registry Registry
	realtime Realtime

	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.CallSession
	byUser   map[uuid.UUID]uuid.UUID // userID -> callID

	now func() time.Time
}

// NewService creates a new call service
func NewService(callRepo CallRepository, userRepo UserRepository, registry Registry, realtime Realtime) *Service {
	return &Service{
		callRepo: callRepo,
		userRepo: userRepo,
		registry: registry,
		realtime: realtime,
		sessions: make(map[uuid.UUID]*domain.CallSession),
		byUser:   make(map[uuid.UUID]uuid.UUID),
		now:      time.Now,
	}
}

// Initiate starts a call from caller to callee. The durable record is created
// first, then the callee is rung. Fails when either participant is already in
// a call or the callee has no live connection.
func (s *Service) Initiate(ctx context.Context, callerID, calleeID uuid.UUID, callType domain.CallType) (*domain.CallSession, error) {
	if !callType.Valid() {
		return nil, errors.ValidationError(fmt.Sprintf("unknown call type: %s", callType))
	}
	if callerID == calleeID {
		return nil, errors.ValidationError("cannot call yourself")
	}

	callee, err := s.userRepo.GetByID(ctx, calleeID)
	if err != nil {
		return nil, err
	}
	caller, err := s.userRepo.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &domain.CallSession{
		CallID:    uuid.New(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		CallType:  callType,
		Status:    domain.CallStatusInitiated,
		StartedAt: now,
	}
	session.RoomName = fmt.Sprintf("call_%s", session.CallID)

	s.mu.Lock()
	if _, busy := s.byUser[callerID]; busy {
		s.mu.Unlock()
		return nil, errors.AlreadyInCallError()
	}
	if _, busy := s.byUser[calleeID]; busy {
		s.mu.Unlock()
		return nil, errors.ConflictError(fmt.Sprintf("%s is busy", callee.Username))
	}
	s.sessions[session.CallID] = session
	s.byUser[callerID] = session.CallID
	s.byUser[calleeID] = session.CallID
	s.mu.Unlock()

	record := &domain.CallRecord{
		CallID:    session.CallID,
		CallerID:  callerID,
		CalleeID:  calleeID,
		CallType:  callType,
		Status:    domain.CallStatusInitiated,
		StartedAt: now,
	}
	if err := s.callRepo.Create(ctx, record); err != nil {
		s.dropSession(session.CallID)
		return nil, err
	}

	// an unreachable callee still leaves a missed call in their history
	if !s.registry.IsRegistered(calleeID) {
		s.dropSession(session.CallID)
		if err := s.callRepo.Finish(ctx, session.CallID, domain.CallStatusMissed, now, 0); err != nil {
			logger.Error("Failed to record missed call",
				zap.String("call_id", session.CallID.String()),
				zap.Error(err))
		}
		metrics.CallsTotal.WithLabelValues(string(domain.CallStatusMissed)).Inc()
		return nil, errors.ConflictError(fmt.Sprintf("%s is not available", callee.Username))
	}

	s.realtime.JoinCallTopic(callerID, session.CallID)

	if err := s.realtime.PublishToUser(ctx, calleeID, constants.EventIncomingCall, IncomingCall{
		CallID:     session.CallID,
		CallerID:   callerID,
		CallerName: caller.Username,
		CallType:   callType,
		RoomName:   session.RoomName,
	}); err != nil {
		logger.Error("Failed to deliver incoming call",
			zap.String("call_id", session.CallID.String()),
			zap.Error(err))
	}

	if err := s.transition(ctx, session, domain.CallStatusRinging); err != nil {
		return nil, err
	}
	s.realtime.JoinCallTopic(calleeID, session.CallID)

	// the session is already visible in the registry, so the callee may be
	// answering concurrently; snapshot under the lock
	s.mu.Lock()
	snapshot := session.Clone()
	s.mu.Unlock()

	metrics.CallsActive.Inc()
	logger.Info("Call initiated",
		zap.String("call_id", session.CallID.String()),
		zap.String("caller_id", callerID.String()),
		zap.String("callee_id", calleeID.String()),
		zap.String("call_type", string(callType)))

	return snapshot, nil
}

// Answer accepts a ringing call. Answering a call that is already answered or
// connected is idempotent: the callee is re-acked without a state change.
func (s *Service) Answer(ctx context.Context, calleeID, callID uuid.UUID) (*domain.CallSession, error) {
	s.mu.Lock()
	session, ok := s.sessions[callID]
	if !ok {
		s.mu.Unlock()
		return nil, errors.CallNotFoundError()
	}
	if session.CalleeID != calleeID {
		s.mu.Unlock()
		return nil, errors.ForbiddenError("Only the callee can answer this call")
	}

	switch session.Status {
	case domain.CallStatusAnswered, domain.CallStatusConnected:
		// duplicate answer, re-ack without touching state
		snapshot := session.Clone()
		s.mu.Unlock()
		return snapshot, nil
	case domain.CallStatusRinging:
	default:
		from := session.Status
		s.mu.Unlock()
		return nil, errors.IllegalTransitionError(string(from), string(domain.CallStatusAnswered))
	}

	now := s.now().UTC()
	session.Status = domain.CallStatusAnswered
	session.AnsweredAt = &now
	snapshot := session.Clone()
	s.mu.Unlock()

	if err := s.callRepo.MarkAnswered(ctx, callID, now); err != nil {
		return nil, err
	}

	if err := s.realtime.PublishToUser(ctx, snapshot.CallerID, constants.EventCallAnswered, CallUpdate{
		CallID:  callID,
		Status:  string(domain.CallStatusAnswered),
		ActorID: calleeID,
	}); err != nil {
		logger.Warn("Failed to notify caller of answer",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}

	logger.Info("Call answered", zap.String("call_id", callID.String()))
	return snapshot, nil
}

// Decline rejects a ringing call. Declining a call that already reached a
// terminal state is idempotent for the callee.
func (s *Service) Decline(ctx context.Context, calleeID, callID uuid.UUID) error {
	s.mu.Lock()
	session, ok := s.sessions[callID]
	if !ok {
		s.mu.Unlock()
		// the session may already be torn down; a terminal record for this
		// callee means the decline simply lost a race and gets acked
		record, err := s.callRepo.GetByID(ctx, callID)
		if err != nil {
			return err
		}
		if record.CalleeID == calleeID && record.Status.Terminal() {
			return nil
		}
		return errors.CallNotFoundError()
	}
	if session.CalleeID != calleeID {
		s.mu.Unlock()
		return errors.ForbiddenError("Only the callee can decline this call")
	}
	if session.Status != domain.CallStatusRinging {
		from := session.Status
		s.mu.Unlock()
		return errors.IllegalTransitionError(string(from), string(domain.CallStatusDeclined))
	}

	callerID := session.CallerID
	s.removeSessionLocked(session)
	s.mu.Unlock()

	now := s.now().UTC()
	if err := s.callRepo.Finish(ctx, callID, domain.CallStatusDeclined, now, 0); err != nil {
		return err
	}

	if err := s.realtime.PublishToUser(ctx, callerID, constants.EventCallDeclined, CallUpdate{
		CallID:  callID,
		Status:  string(domain.CallStatusDeclined),
		ActorID: calleeID,
	}); err != nil {
		logger.Warn("Failed to notify caller of decline",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}
	s.realtime.DropCallTopic(callID)

	metrics.CallsActive.Dec()
	metrics.CallsTotal.WithLabelValues(string(domain.CallStatusDeclined)).Inc()
	logger.Info("Call declined", zap.String("call_id", callID.String()))
	return nil
}

// End hangs up a call. Ending a call that no longer has a session is
// idempotent. An unanswered call ended by either side lands as missed in the
// callee's history; an answered call records its duration.
func (s *Service) End(ctx context.Context, userID, callID uuid.UUID) error {
	s.mu.Lock()
	session, ok := s.sessions[callID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if !session.Participant(userID) {
		s.mu.Unlock()
		return errors.ForbiddenError("Not a participant of this call")
	}

	peerID := session.Peer(userID)
	snapshot := session.Clone()
	s.removeSessionLocked(session)
	s.mu.Unlock()

	now := s.now().UTC()
	status, duration := terminalOutcome(snapshot, now)
	if err := s.callRepo.Finish(ctx, callID, status, now, duration); err != nil {
		return err
	}

	if err := s.realtime.PublishToUser(ctx, peerID, constants.EventCallEnded, CallUpdate{
		CallID:   callID,
		Status:   string(status),
		ActorID:  userID,
		Duration: duration,
		EndedAt:  &now,
	}); err != nil {
		logger.Warn("Failed to notify peer of hangup",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}
	s.realtime.DropCallTopic(callID)

	metrics.CallsActive.Dec()
	metrics.CallsTotal.WithLabelValues(string(status)).Inc()
	logger.Info("Call ended",
		zap.String("call_id", callID.String()),
		zap.String("status", string(status)),
		zap.Int("duration", duration))
	return nil
}

// RelayOffer forwards an SDP offer to the callee. Offers only travel
// caller to callee.
func (s *Service) RelayOffer(ctx context.Context, senderID, callID uuid.UUID, payload json.RawMessage) error {
	return s.relay(ctx, senderID, callID, constants.EventWebRTCOffer, payload, roleCaller)
}

// RelayAnswer forwards an SDP answer to the sender's peer. The first answer
// relayed on an answered call promotes it to connected: media negotiation has
// reached both ends.
func (s *Service) RelayAnswer(ctx context.Context, senderID, callID uuid.UUID, payload json.RawMessage) error {
	s.mu.Lock()
	if session, ok := s.sessions[callID]; ok && session.Status == domain.CallStatusAnswered && senderID == session.CalleeID {
		session.Status = domain.CallStatusConnected
		s.mu.Unlock()
		if err := s.callRepo.UpdateStatus(ctx, callID, domain.CallStatusConnected); err != nil {
			logger.Warn("Failed to persist connected status",
				zap.String("call_id", callID.String()),
				zap.Error(err))
		}
	} else {
		s.mu.Unlock()
	}

	return s.relay(ctx, senderID, callID, constants.EventWebRTCAnswer, payload, roleCallee)
}

// RelayICECandidate forwards an ICE candidate to the sender's peer.
// Candidates travel in both directions.
func (s *Service) RelayICECandidate(ctx context.Context, senderID, callID uuid.UUID, payload json.RawMessage) error {
	return s.relay(ctx, senderID, callID, constants.EventWebRTCICECandidate, payload, roleAny)
}

// relay roles constrain which participant may send a given signal
type relayRole int

const (
	roleAny relayRole = iota
	roleCaller
	roleCallee
)

func (s *Service) relay(ctx context.Context, senderID, callID uuid.UUID, event string, payload json.RawMessage, role relayRole) error {
	s.mu.Lock()
	session, ok := s.sessions[callID]
	if !ok {
		s.mu.Unlock()
		return errors.CallNotFoundError()
	}
	if !session.Participant(senderID) {
		s.mu.Unlock()
		return errors.ForbiddenError("Not a participant of this call")
	}
	if (role == roleCaller && senderID != session.CallerID) ||
		(role == roleCallee && senderID != session.CalleeID) {
		s.mu.Unlock()
		return errors.ForbiddenError("Signal not allowed from this participant")
	}
	peerID := session.Peer(senderID)
	s.mu.Unlock()

	if err := s.realtime.PublishToUser(ctx, peerID, event, Signal{
		CallID:   callID,
		SenderID: senderID,
		Payload:  payload,
	}); err != nil {
		return err
	}

	metrics.CallSignalsRelayedTotal.WithLabelValues(event).Inc()
	return nil
}

// HandleDisconnect tears down the active call, if any, of a user whose
// connection dropped. The surviving peer learns via the call topic.
func (s *Service) HandleDisconnect(ctx context.Context, userID uuid.UUID) {
	s.mu.Lock()
	callID, ok := s.byUser[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	session := s.sessions[callID]
	snapshot := session.Clone()
	s.removeSessionLocked(session)
	s.mu.Unlock()

	now := s.now().UTC()
	status, duration := terminalOutcome(snapshot, now)
	if err := s.callRepo.Finish(ctx, callID, status, now, duration); err != nil {
		logger.Error("Failed to finish call on disconnect",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}

	if err := s.realtime.PublishToCall(ctx, callID, constants.EventCallEnded, CallUpdate{
		CallID:   callID,
		Status:   string(status),
		ActorID:  userID,
		Reason:   ReasonParticipantDisconnected,
		Duration: duration,
		EndedAt:  &now,
	}); err != nil {
		logger.Warn("Failed to notify call topic of disconnect",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}
	s.realtime.DropCallTopic(callID)

	metrics.CallsActive.Dec()
	metrics.CallsTotal.WithLabelValues(string(status)).Inc()
	logger.Info("Call torn down after disconnect",
		zap.String("call_id", callID.String()),
		zap.String("user_id", userID.String()),
		zap.String("status", string(status)))
}

// ActiveCallID returns the call the user currently participates in, if any
func (s *Service) ActiveCallID(userID uuid.UUID) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	callID, ok := s.byUser[userID]
	return callID, ok
}

// History returns the user's call history, newest first
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRecord, error) {
	return s.callRepo.GetUserCalls(ctx, userID, limit, offset)
}

// MissedCalls returns the user's missed calls, newest first
func (s *Service) MissedCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRecord, error) {
	return s.callRepo.GetMissedCalls(ctx, userID, limit, offset)
}

// StartReconciliation periodically expires durable records left non-terminal
// by a crash or restart, so history never shows calls stuck ringing forever.
// Blocks until ctx is cancelled.
func (s *Service) StartReconciliation(ctx context.Context, interval, staleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcileOnce(ctx, staleAfter)
		}
	}
}

func (s *Service) reconcileOnce(ctx context.Context, staleAfter time.Duration) {
	now := s.now().UTC()
	records, err := s.callRepo.ListStaleActive(ctx, now.Add(-staleAfter))
	if err != nil {
		logger.Error("Call reconciliation query failed", zap.Error(err))
		return
	}

	for _, record := range records {
		s.mu.Lock()
		_, live := s.sessions[record.CallID]
		s.mu.Unlock()
		if live {
			continue
		}

		status := domain.CallStatusMissed
		duration := 0
		if record.AnsweredAt != nil {
			status = domain.CallStatusEnded
			duration = int(now.Sub(*record.AnsweredAt).Seconds())
		}

		if err := s.callRepo.Finish(ctx, record.CallID, status, now, duration); err != nil {
			logger.Error("Failed to reconcile stale call",
				zap.String("call_id", record.CallID.String()),
				zap.Error(err))
			continue
		}
		metrics.CallsTotal.WithLabelValues(string(status)).Inc()
		logger.Warn("Reconciled stale call record",
			zap.String("call_id", record.CallID.String()),
			zap.String("status", string(status)))
	}
}

// transition applies a validated status change to the session and mirrors it
// to the durable record
func (s *Service) transition(ctx context.Context, session *domain.CallSession, to domain.CallStatus) error {
	s.mu.Lock()
	from := session.Status
	if !domain.CanTransition(from, to) {
		s.mu.Unlock()
		return errors.IllegalTransitionError(string(from), string(to))
	}
	session.Status = to
	s.mu.Unlock()

	return s.callRepo.UpdateStatus(ctx, session.CallID, to)
}

func (s *Service) dropSession(callID uuid.UUID) {
	s.mu.Lock()
	if session, ok := s.sessions[callID]; ok {
		s.removeSessionLocked(session)
	}
	s.mu.Unlock()
}

// removeSessionLocked clears the session and both participants' busy marks.
// Callers hold s.mu.
func (s *Service) removeSessionLocked(session *domain.CallSession) {
	delete(s.sessions, session.CallID)
	if s.byUser[session.CallerID] == session.CallID {
		delete(s.byUser, session.CallerID)
	}
	if s.byUser[session.CalleeID] == session.CallID {
		delete(s.byUser, session.CalleeID)
	}
}

// terminalOutcome decides how a live session lands in history when torn down:
// unanswered calls are missed, answered ones are ended with their duration
func terminalOutcome(session *domain.CallSession, endedAt time.Time) (domain.CallStatus, int) {
	if session.AnsweredAt == nil {
		return domain.CallStatusMissed, 0
	}
	return domain.CallStatusEnded, int(endedAt.Sub(*session.AnsweredAt).Seconds())
}
