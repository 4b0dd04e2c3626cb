package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wavelink-backend/internal/domain"
	"wavelink-backend/pkg/constants"
	"wavelink-backend/pkg/logger"
	"wavelink-backend/pkg/metrics"
)

// PresenceRepository is the durable presence store
type PresenceRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error)
	GetMany(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.PresenceRecord, error)
	SetStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus, now time.Time) error
	Touch(ctx context.Context, userID uuid.UUID, now time.Time) error
}

// ContactRepository resolves the contact graph around a user
type ContactRepository interface {
	GetWatcherIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	GetContactIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// UserRepository reads the user projection for status views
type UserRepository interface {
	GetByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*domain.User, error)
	TouchLastSeen(ctx context.Context, userID uuid.UUID) error
}

// Registry exposes the live connection registry to the sweep
type Registry interface {
	RegisteredUserIDs() []uuid.UUID
}

// Publisher delivers realtime events to users
type Publisher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// StatusUpdate is the presence_update payload fanned out to a user's watchers
type StatusUpdate struct {
	UserID     uuid.UUID             `json:"user_id"`
	Status     domain.PresenceStatus `json:"status"`
	LastActive *time.Time            `json:"last_active,omitempty"`
}

// Service tracks who is online. Status changes are driven by connection
// lifecycle, kept fresh by the heartbeat sweep, and judged stale at read time
// rather than expired by a background job.
type Service struct {
	presenceRepo PresenceRepository
	contactRepo  ContactRepository
	userRepo     UserRepository
	registry     Registry
	publisher    Publisher
	staleness    time.Duration

	now func() time.Time
}

// NewService creates a new presence service
func NewService(
	presenceRepo PresenceRepository,
	contactRepo ContactRepository,
	userRepo UserRepository,
	registry Registry,
	publisher Publisher,
	staleness time.Duration,
) *Service {
	return &Service{
		presenceRepo: presenceRepo,
		contactRepo:  contactRepo,
		userRepo:     userRepo,
		registry:     registry,
		publisher:    publisher,
		staleness:    staleness,
		now:          time.Now,
	}
}

// Register marks the user online and notifies their watchers. Called when a
// connection is accepted into the registry.
func (s *Service) Register(ctx context.Context, userID uuid.UUID) error {
	now := s.now().UTC()
	if err := s.presenceRepo.SetStatus(ctx, userID, domain.PresenceOnline, now); err != nil {
		metrics.PresenceUpdatesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PresenceUpdatesTotal.WithLabelValues(string(domain.PresenceOnline)).Inc()

	if err := s.userRepo.TouchLastSeen(ctx, userID); err != nil {
		logger.Warn("Failed to touch last_seen", zap.String("user_id", userID.String()), zap.Error(err))
	}

	s.notifyWatchers(ctx, userID, StatusUpdate{
		UserID:     userID,
		Status:     domain.PresenceOnline,
		LastActive: &now,
	})
	return nil
}

// Unregister marks the user offline and notifies their watchers. The caller
// must only invoke this when the departing connection was still the user's
// registered one, so a replaced connection never flips a live user offline.
func (s *Service) Unregister(ctx context.Context, userID uuid.UUID) error {
	now := s.now().UTC()
	if err := s.presenceRepo.SetStatus(ctx, userID, domain.PresenceOffline, now); err != nil {
		metrics.PresenceUpdatesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PresenceUpdatesTotal.WithLabelValues(string(domain.PresenceOffline)).Inc()

	s.notifyWatchers(ctx, userID, StatusUpdate{
		UserID: userID,
		Status: domain.PresenceOffline,
	})
	return nil
}

// Heartbeat refreshes the user's presence record without changing status
func (s *Service) Heartbeat(ctx context.Context, userID uuid.UUID) error {
	metrics.PresenceHeartbeatsTotal.Inc()
	return s.presenceRepo.Touch(ctx, userID, s.now().UTC())
}

// GetStatus returns the effective status of one user. A missing record and a
// stale "online" both read as offline; the stale record is not rewritten.
func (s *Service) GetStatus(ctx context.Context, userID uuid.UUID) (domain.PresenceStatus, error) {
	record, err := s.presenceRepo.Get(ctx, userID)
	if err != nil {
		return domain.PresenceOffline, err
	}
	return record.EffectiveStatus(s.now(), s.staleness), nil
}

// ContactsStatus returns the effective presence of all the user's accepted
// contacts
func (s *Service) ContactsStatus(ctx context.Context, userID uuid.UUID) ([]domain.ContactStatus, error) {
	contactIDs, err := s.contactRepo.GetContactIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(contactIDs) == 0 {
		return []domain.ContactStatus{}, nil
	}

	users, err := s.userRepo.GetByIDs(ctx, contactIDs)
	if err != nil {
		return nil, err
	}

	records, err := s.presenceRepo.GetMany(ctx, contactIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	statuses := make([]domain.ContactStatus, 0, len(users))
	for _, user := range users {
		record := records[user.UserID]
		status := domain.ContactStatus{
			UserID:   user.UserID,
			Username: user.Username,
			Status:   record.EffectiveStatus(now, s.staleness),
		}
		if record != nil {
			lastActive := record.LastActive
			status.LastActive = &lastActive
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// StartSweep refreshes presence for every registered connection on a fixed
// interval, so records stay fresh even when clients never send heartbeats.
// Blocks until ctx is cancelled.
func (s *Service) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	now := s.now().UTC()
	for _, userID := range s.registry.RegisteredUserIDs() {
		if err := s.presenceRepo.Touch(ctx, userID, now); err != nil {
			logger.Warn("Presence sweep failed for user",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
}

func (s *Service) notifyWatchers(ctx context.Context, userID uuid.UUID, update StatusUpdate) {
	watcherIDs, err := s.contactRepo.GetWatcherIDs(ctx, userID)
	if err != nil {
		logger.Error("Failed to resolve presence watchers",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	for _, watcherID := range watcherIDs {
		if err := s.publisher.PublishToUser(ctx, watcherID, constants.EventPresenceUpdate, update); err != nil {
			logger.Warn("Failed to publish presence update",
				zap.String("watcher_id", watcherID.String()),
				zap.Error(err))
		}
	}
}
