package group

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"wavelink-backend/internal/domain"
	"wavelink-backend/pkg/errors"
	"wavelink-backend/pkg/logger"
)

func init() {
	logger.InitDefault()
}

type MockGroupRepository struct {
	mock.Mock
}

func (m *MockGroupRepository) GetByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Group), args.Error(1)
}

func (m *MockGroupRepository) UpdateConditional(ctx context.Context, group *domain.Group) (bool, error) {
	args := m.Called(ctx, group)
	if args.Bool(0) {
		group.Version++
	}
	return args.Bool(0), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishToUser(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	args := m.Called(ctx, userID, event, data)
	return args.Error(0)
}

func newTestService() (*Service, *MockGroupRepository, *MockUserRepository, *MockPublisher) {
	groupRepo := new(MockGroupRepository)
	userRepo := new(MockUserRepository)
	publisher := new(MockPublisher)
	return NewService(groupRepo, userRepo, publisher), groupRepo, userRepo, publisher
}

// testGroup builds a fresh group document with admin as creator/admin/member
// and the extra members appended
func testGroup(groupID, admin uuid.UUID, members ...uuid.UUID) *domain.Group {
	g := &domain.Group{
		GroupID:   groupID,
		Name:      "engineering",
		CreatorID: admin,
		Members:   append([]uuid.UUID{admin}, members...),
		Admins:    []uuid.UUID{admin},
		Version:   7,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	return g
}

func TestAddMember_AppliedAndNotified(t *testing.T) {
	svc, groupRepo, userRepo, publisher := newTestService()

	groupID := uuid.New()
	admin := uuid.New()
	newcomer := uuid.New()

	userRepo.On("GetByID", mock.Anything, newcomer).Return(&domain.User{UserID: newcomer, Username: "dana"}, nil)
	groupRepo.On("GetByID", mock.Anything, groupID).Return(testGroup(groupID, admin), nil).Once()
	groupRepo.On("UpdateConditional", mock.Anything, mock.Anything).Return(true, nil).Once()
	publisher.On("PublishToUser", mock.Anything, mock.Anything, "group_updated", mock.Anything).Return(nil)

	updated, err := svc.AddMember(context.Background(), admin, groupID, newcomer)

	assert.NoError(t, err)
	assert.True(t, updated.IsMember(newcomer))
	assert.Equal(t, int64(8), updated.Version)
	publisher.AssertNumberOfCalls(t, "PublishToUser", 2)
}

func TestAddMember_NonAdminForbidden(t *testing.T) {
	svc, groupRepo, userRepo, _ := newTestService()

	groupID := uuid.New()
	admin := uuid.New()
	member := uuid.New()
	newcomer := uuid.New()

	userRepo.On("GetByID", mock.Anything, newcomer).Return(&domain.User{UserID: newcomer}, nil)
	groupRepo.On("GetByID", mock.Anything, groupID).Return(testGroup(groupID, admin, member), nil)

	_, err := svc.AddMember(context.Background(), member, groupID, newcomer)

	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))
	groupRepo.AssertNotCalled(t, "UpdateConditional", mock.Anything, mock.Anything)
}

func TestAddMember_DuplicateConflicts(t *testing.T) {
	svc, groupRepo, userRepo, _ := newTestService()

	groupID := uuid.New()
	admin := uuid.New()
	member := uuid.New()

	userRepo.On("GetByID", mock.Anything, member).Return(&domain.User{UserID: member}, nil)
	groupRepo.On("GetByID", mock.Anything, groupID).Return(testGroup(groupID, admin, member), nil)

	_, err := svc.AddMember(context.Background(), admin, groupID, member)

	assert.True(t, errors.HasCode(err, errors.ErrCodeConflict))
	// a precondition failure must not burn retry rounds
	groupRepo.AssertNumberOfCalls(t, "GetByID", 1)
}

func TestAddMember_UnknownTarget(t *testing.T) {
	svc, groupRepo, userRepo, _ := newTestService()

	newcomer := uuid.New()
	userRepo.On("GetByID", mock.Anything, newcomer).Return(nil, errors.UserNotFoundError())

	_, err := svc.AddMember(context.Background(), uuid.New(), uuid.New(), newcomer)

	assert.True(t, errors.HasCode(err, errors.ErrCodeUserNotFound))
	groupRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestAddMember_LostRaceRetriesWithFreshSnapshot(t *testing.T) {
	svc, groupRepo, userRepo, publisher := newTestService()

	groupID := uuid.New()
	admin := uuid.New()
	newcomer := uuid.New()

	userRepo.On("GetByID", mock.Anything, newcomer).Return(&domain.User{UserID: newcomer}, nil)

	// first round reads version 7 and loses the race; second reads the
	// winner's version 8 and lands
	groupRepo.On("GetByID", mock.Anything, groupID).Return(testGroup(groupID, admin), nil).Once()
	stale := testGroup(groupID, admin)
	stale.Version = 8
	groupRepo.On("GetByID", mock.Anything, groupID).Return(stale, nil).Once()
	groupRepo.On("UpdateConditional", mock.Anything, mock.Anything).Return(false, nil).Once()
	groupRepo.On("UpdateConditional", mock.Anything, mock.Anything).Return(true, nil).Once()
	publisher.On("PublishToUser", mock.Anything, mock.Anything, "group_updated", mock.Anything).Return(nil)

	updated, err := svc.AddMember(context.Background(), admin, groupID, newcomer)

	assert.NoError(t, err)
	assert.Equal(t, int64(9), updated.Version)
	groupRepo.AssertNumberOfCalls(t, "UpdateConditional", 2)
}

func TestAddMember_ExhaustedRetriesSurfaceConflict(t *testing.T) {
	svc, groupRepo, userRepo, _ := newTestService()

	groupID := uuid.New()
	admin := uuid.New()
	newcomer := uuid.New()

	userRepo.On("GetByID", mock.Anything, newcomer).Return(&domain.User{UserID: newcomer}, nil)
	groupRepo.On("GetByID", mock.Anything, groupID).Return(testGroup(groupID, admin), nil)
	groupRepo.On("UpdateConditional", mock.Anything, mock.Anything).Return(false, nil)

	_, err := svc.AddMember(context.Background(), admin, groupID, newcomer)

	assert.True(t, errors.HasCode(err, errors.ErrCodeConcurrencyConflict))
	groupRepo.AssertNumberOfCalls(t, "UpdateConditional", 3)
}

func TestRemoveMember_SelfRemovalBypassesAdminCheck(t *testing.T) {
	svc, groupRepo, _, publisher := newTestService()

	groupID := uuid.New()
	admin := uuid.New()
	member := uuid.New()

	groupRepo.On("GetByID", mock.Anything, groupID).Return(testGroup(groupID, admin, member), nil)
	groupRepo.On("UpdateConditional", mock.Anything, mock.Anything).Return(true, nil)
	publisher.On("PublishToUser", mock.Anything, mock.Anything, "group_updated", mock.Anything).Return(nil)

	updated, err := svc.RemoveMember(context.Background(), member, groupID, member)

	assert.NoError(t, err)
	assert.False(t, updated.IsMember(member))
}

func TestRemoveMember_LastAdminCannotLeave(t *testing.T) {
	svc, groupRepo, _, _ := newTestService()

	groupID := uuid.New()
	admin := uuid.New()
	member := uuid.New()

	groupRepo.On("GetByID", mock.Anything, groupID).Return(testGroup(groupID, admin, member), nil)

	_, err := svc.RemoveMember(context.Background(), admin, groupID, admin)

	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))
	groupRepo.AssertNotCalled(t, "UpdateConditional", mock.Anything, mock.Anything)
}

func TestRemoveMember_RemovalDropsAdminRole(t *testing.T) {
	svc, groupRepo, _, publisher := newTestService()

	groupID := uuid.New()
	admin := uuid.New()
	other := uuid.New()

	g := testGroup(groupID, admin, other)
	g.PromoteAdmin(other)
	groupRepo.On("GetByID", mock.Anything, groupID).Return(g, nil)
	groupRepo.On("UpdateConditional", mock.Anything, mock.Anything).Return(true, nil)
	publisher.On("PublishToUser", mock.Anything, mock.Anything, "group_updated", mock.Anything).Return(nil)

	updated, err := svc.RemoveMember(context.Background(), admin, groupID, other)

	assert.NoError(t, err)
	assert.False(t, updated.IsMember(other))
	assert.False(t, updated.IsAdmin(other))
}

func TestPromoteAdmin_TargetMustBeMember(t *testing.T) {
	svc, groupRepo, _, _ := newTestService()

	groupID := uuid.New()
	admin := uuid.New()

	groupRepo.On("GetByID", mock.Anything, groupID).Return(testGroup(groupID, admin), nil)

	_, err := svc.PromoteAdmin(context.Background(), admin, groupID, uuid.New())

	assert.True(t, errors.HasCode(err, errors.ErrCodeConflict))
}

func TestPromoteAdmin_Applied(t *testing.T) {
	svc, groupRepo, _, publisher := newTestService()

	groupID := uuid.New()
	admin := uuid.New()
	member := uuid.New()

	groupRepo.On("GetByID", mock.Anything, groupID).Return(testGroup(groupID, admin, member), nil)
	groupRepo.On("UpdateConditional", mock.Anything, mock.Anything).Return(true, nil)
	publisher.On("PublishToUser", mock.Anything, mock.Anything, "group_updated", mock.Anything).Return(nil)

	updated, err := svc.PromoteAdmin(context.Background(), admin, groupID, member)

	assert.NoError(t, err)
	assert.True(t, updated.IsAdmin(member))
}

func TestRename_EmptyNameRejected(t *testing.T) {
	svc, groupRepo, _, _ := newTestService()

	_, err := svc.Rename(context.Background(), uuid.New(), uuid.New(), "   ")

	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingField))
	groupRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestRename_Applied(t *testing.T) {
	svc, groupRepo, _, publisher := newTestService()

	groupID := uuid.New()
	admin := uuid.New()

	groupRepo.On("GetByID", mock.Anything, groupID).Return(testGroup(groupID, admin), nil)
	groupRepo.On("UpdateConditional", mock.Anything, mock.Anything).Return(true, nil)
	publisher.On("PublishToUser", mock.Anything, mock.Anything, "group_updated", mock.Anything).Return(nil)

	updated, err := svc.Rename(context.Background(), admin, groupID, "platform")

	assert.NoError(t, err)
	assert.Equal(t, "platform", updated.Name)
}

func TestGet_UnknownGroup(t *testing.T) {
	svc, groupRepo, _, _ := newTestService()

	groupID := uuid.New()
	groupRepo.On("GetByID", mock.Anything, groupID).Return(nil, errors.GroupNotFoundError())

	_, err := svc.Get(context.Background(), groupID)

	assert.True(t, errors.HasCode(err, errors.ErrCodeGroupNotFound))
}
