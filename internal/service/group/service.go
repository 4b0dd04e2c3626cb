package group

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wavelink-backend/internal/domain"
	"wavelink-backend/pkg/constants"
	"wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/logger"
	"wavelink-backend/pkg/metrics"
	"wavelink-backend/pkg/versioned"
)

// GroupRepository is the version-guarded group store
type GroupRepository interface {
	GetByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error)
	UpdateConditional(ctx context.Context, group *domain.Group) (bool, error)
}

// UserRepository validates that mutation targets exist
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// Publisher notifies group members of accepted mutations
type Publisher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// GroupUpdate is the group_updated payload fanned out to members after an
// accepted mutation
type GroupUpdate struct {
	GroupID   uuid.UUID `json:"group_id"`
	Operation string    `json:"operation"`
	ActorID   uuid.UUID `json:"actor_id"`
	Version   int64     `json:"version"`
}

// Service applies group mutations under optimistic concurrency control.
// Every mutation is a read-validate-write round against the group's version;
// lost races are retried a bounded number of times before surfacing a
// conflict to the caller.
type Service struct {
	groupRepo GroupRepository
	userRepo  UserRepository
	publisher Publisher
}

// NewService creates a new group service
func NewService(groupRepo GroupRepository, userRepo UserRepository, publisher Publisher) *Service {
	return &Service{
		groupRepo: groupRepo,
		userRepo:  userRepo,
		publisher: publisher,
	}
}

// Get returns the current group document
func (s *Service) Get(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	return s.groupRepo.GetByID(ctx, groupID)
}

// AddMember adds a user to the group. Admin-only; adding an existing member
// is a conflict.
func (s *Service) AddMember(ctx context.Context, actorID, groupID, userID uuid.UUID) (*domain.Group, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	return s.mutate(ctx, "add_member", groupID, actorID, func(group *domain.Group) error {
		if !group.IsAdmin(actorID) {
			return errors.ForbiddenError("Only admins can add members")
		}
		if group.IsMember(userID) {
			return errors.ConflictError("User is already a member")
		}
		group.AddMember(userID)
		return nil
	})
}

// RemoveMember removes a user from the group. Admin-only, except that any
// member may remove themselves. The last admin cannot leave while other
// members remain.
func (s *Service) RemoveMember(ctx context.Context, actorID, groupID, userID uuid.UUID) (*domain.Group, error) {
	return s.mutate(ctx, "remove_member", groupID, actorID, func(group *domain.Group) error {
		if actorID != userID && !group.IsAdmin(actorID) {
			return errors.ForbiddenError("Only admins can remove members")
		}
		if !group.IsMember(userID) {
			return errors.ConflictError("User is not a member")
		}
		if group.IsAdmin(userID) && group.AdminCount() == 1 && len(group.Members) > 1 {
			return errors.ForbiddenError("Cannot remove the last admin while the group has members")
		}
		group.RemoveMember(userID)
		return nil
	})
}

// PromoteAdmin grants admin rights to a member. Admin-only; the target must
// already be a member.
func (s *Service) PromoteAdmin(ctx context.Context, actorID, groupID, userID uuid.UUID) (*domain.Group, error) {
	return s.mutate(ctx, "promote_admin", groupID, actorID, func(group *domain.Group) error {
		if !group.IsAdmin(actorID) {
			return errors.ForbiddenError("Only admins can promote members")
		}
		if !group.IsMember(userID) {
			return errors.ConflictError("User is not a member")
		}
		if group.IsAdmin(userID) {
			return errors.ConflictError("User is already an admin")
		}
		group.PromoteAdmin(userID)
		return nil
	})
}

// Rename changes the group's name. Admin-only.
func (s *Service) Rename(ctx context.Context, actorID, groupID uuid.UUID, name string) (*domain.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.MissingFieldError("name")
	}

	return s.mutate(ctx, "rename", groupID, actorID, func(group *domain.Group) error {
		if !group.IsAdmin(actorID) {
			return errors.ForbiddenError("Only admins can rename the group")
		}
		group.Name = name
		return nil
	})
}

// UpdateIcon changes the group's icon. Admin-only.
func (s *Service) UpdateIcon(ctx context.Context, actorID, groupID uuid.UUID, icon string) (*domain.Group, error) {
	return s.mutate(ctx, "update_icon", groupID, actorID, func(group *domain.Group) error {
		if !group.IsAdmin(actorID) {
			return errors.ForbiddenError("Only admins can change the group icon")
		}
		group.Icon = icon
		return nil
	})
}

// mutate runs one group mutation under the bounded optimistic retry loop.
// Each round re-reads the document, re-validates change against the fresh
// snapshot, and attempts the conditional write.
func (s *Service) mutate(ctx context.Context, operation string, groupID, actorID uuid.UUID, change func(group *domain.Group) error) (*domain.Group, error) {
	var updated *domain.Group

	err := versioned.Update(ctx, versioned.Config{
		Name:        "group." + operation,
		MaxAttempts: constants.VersionedUpdateMaxAttempts,
		RetryDelay:  constants.VersionedUpdateRetryDelay,
	}, func(ctx context.Context) (bool, error) {
		group, err := s.groupRepo.GetByID(ctx, groupID)
		if err != nil {
			return false, err
		}
		if err := change(group); err != nil {
			return false, versioned.AbortUpdate(err)
		}

		applied, err := s.groupRepo.UpdateConditional(ctx, group)
		if err != nil {
			return false, err
		}
		if !applied {
			metrics.GroupVersionConflictsTotal.Inc()
			return false, nil
		}

		updated = group
		return true, nil
	})
	if err != nil {
		if err == versioned.ErrConflict {
			err = errors.ConcurrencyConflictError("group")
		}
		metrics.GroupMutationsTotal.WithLabelValues(operation, "error").Inc()
		return nil, err
	}

	metrics.GroupMutationsTotal.WithLabelValues(operation, "success").Inc()
	logger.Info("Group mutation applied",
		zap.String("operation", operation),
		zap.String("group_id", groupID.String()),
		zap.Int64("version", updated.Version))

	s.notifyMembers(ctx, updated, operation, actorID)
	return updated, nil
}

func (s *Service) notifyMembers(ctx context.Context, group *domain.Group, operation string, actorID uuid.UUID) {
	update := GroupUpdate{
		GroupID:   group.GroupID,
		Operation: operation,
		ActorID:   actorID,
		Version:   group.Version,
	}
	for _, memberID := range group.Members {
		if err := s.publisher.PublishToUser(ctx, memberID, constants.EventGroupUpdated, update); err != nil {
			logger.Warn("Failed to notify group member",
				zap.String("group_id", group.GroupID.String()),
				zap.String("member_id", memberID.String()),
				zap.Error(err))
		}
	}
}
