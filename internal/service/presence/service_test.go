package presence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"wavelink-backend/internal/domain"
	"wavelink-backend/pkg/logger"
)

func init() {
	logger.InitDefault()
}

type MockPresenceRepository struct {
	mock.Mock
}

func (m *MockPresenceRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PresenceRecord), args.Error(1)
}

func (m *MockPresenceRepository) GetMany(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.PresenceRecord, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*domain.PresenceRecord), args.Error(1)
}

func (m *MockPresenceRepository) SetStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus, now time.Time) error {
	args := m.Called(ctx, userID, status, now)
	return args.Error(0)
}

func (m *MockPresenceRepository) Touch(ctx context.Context, userID uuid.UUID, now time.Time) error {
	args := m.Called(ctx, userID, now)
	return args.Error(0)
}

type MockContactRepository struct {
	mock.Mock
}

func (m *MockContactRepository) GetWatcherIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockContactRepository) GetContactIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*domain.User, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepository) TouchLastSeen(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) RegisteredUserIDs() []uuid.UUID {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]uuid.UUID)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishToUser(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	args := m.Called(ctx, userID, event, data)
	return args.Error(0)
}

type serviceMocks struct {
	presenceRepo *MockPresenceRepository
	contactRepo  *MockContactRepository
	userRepo     *MockUserRepository
	registry     *MockRegistry
	publisher    *MockPublisher
}

func newTestService(staleness time.Duration, now time.Time) (*Service, *serviceMocks) {
	m := &serviceMocks{
		presenceRepo: new(MockPresenceRepository),
		contactRepo:  new(MockContactRepository),
		userRepo:     new(MockUserRepository),
		registry:     new(MockRegistry),
		publisher:    new(MockPublisher),
	}
	svc := NewService(m.presenceRepo, m.contactRepo, m.userRepo, m.registry, m.publisher, staleness)
	svc.now = func() time.Time { return now }
	return svc, m
}

func TestRegister_MarksOnlineAndNotifiesWatchers(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, m := newTestService(600*time.Second, now)

	userID := uuid.New()
	watcherA := uuid.New()
	watcherB := uuid.New()

	m.presenceRepo.On("SetStatus", mock.Anything, userID, domain.PresenceOnline, now).Return(nil)
	m.userRepo.On("TouchLastSeen", mock.Anything, userID).Return(nil)
	m.contactRepo.On("GetWatcherIDs", mock.Anything, userID).Return([]uuid.UUID{watcherA, watcherB}, nil)
	m.publisher.On("PublishToUser", mock.Anything, watcherA, "presence_update", mock.MatchedBy(func(data interface{}) bool {
		update, ok := data.(StatusUpdate)
		return ok && update.UserID == userID && update.Status == domain.PresenceOnline
	})).Return(nil)
	m.publisher.On("PublishToUser", mock.Anything, watcherB, "presence_update", mock.Anything).Return(nil)

	err := svc.Register(context.Background(), userID)

	assert.NoError(t, err)
	m.presenceRepo.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
}

func TestUnregister_MarksOfflineAndNotifiesWatchers(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, m := newTestService(600*time.Second, now)

	userID := uuid.New()
	watcher := uuid.New()

	m.presenceRepo.On("SetStatus", mock.Anything, userID, domain.PresenceOffline, now).Return(nil)
	m.contactRepo.On("GetWatcherIDs", mock.Anything, userID).Return([]uuid.UUID{watcher}, nil)
	m.publisher.On("PublishToUser", mock.Anything, watcher, "presence_update", mock.MatchedBy(func(data interface{}) bool {
		update, ok := data.(StatusUpdate)
		return ok && update.Status == domain.PresenceOffline
	})).Return(nil)

	err := svc.Unregister(context.Background(), userID)

	assert.NoError(t, err)
	m.presenceRepo.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
}

func TestHeartbeat_TouchesRecord(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, m := newTestService(600*time.Second, now)

	userID := uuid.New()
	m.presenceRepo.On("Touch", mock.Anything, userID, now).Return(nil)

	err := svc.Heartbeat(context.Background(), userID)

	assert.NoError(t, err)
	m.presenceRepo.AssertExpectations(t)
}

func TestGetStatus_MissingRecordReadsOffline(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, m := newTestService(600*time.Second, now)

	userID := uuid.New()
	m.presenceRepo.On("Get", mock.Anything, userID).Return(nil, nil)

	status, err := svc.GetStatus(context.Background(), userID)

	assert.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, status)
}

func TestGetStatus_StaleOnlineReadsOffline(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, m := newTestService(600*time.Second, now)

	userID := uuid.New()
	m.presenceRepo.On("Get", mock.Anything, userID).Return(&domain.PresenceRecord{
		UserID:      userID,
		Status:      domain.PresenceOnline,
		LastUpdated: now.Add(-601 * time.Second),
	}, nil)

	status, err := svc.GetStatus(context.Background(), userID)

	assert.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, status)
	// the stored record must not be rewritten by the read
	m.presenceRepo.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetStatus_FreshOnlineReadsOnline(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, m := newTestService(600*time.Second, now)

	userID := uuid.New()
	m.presenceRepo.On("Get", mock.Anything, userID).Return(&domain.PresenceRecord{
		UserID:      userID,
		Status:      domain.PresenceOnline,
		LastUpdated: now.Add(-30 * time.Second),
	}, nil)

	status, err := svc.GetStatus(context.Background(), userID)

	assert.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, status)
}

// fakePresenceRepo is a stateful in-memory store for sequence tests that
// need reads to observe earlier writes
type fakePresenceRepo struct {
	records map[uuid.UUID]*domain.PresenceRecord
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{records: make(map[uuid.UUID]*domain.PresenceRecord)}
}

func (f *fakePresenceRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	return f.records[userID], nil
}

func (f *fakePresenceRepo) GetMany(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.PresenceRecord, error) {
	out := make(map[uuid.UUID]*domain.PresenceRecord, len(userIDs))
	for _, id := range userIDs {
		if record, ok := f.records[id]; ok {
			out[id] = record
		}
	}
	return out, nil
}

func (f *fakePresenceRepo) SetStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus, now time.Time) error {
	record := f.record(userID)
	record.Status = status
	record.LastUpdated = now
	if status == domain.PresenceOnline {
		record.LastActive = now
	}
	return nil
}

func (f *fakePresenceRepo) Touch(ctx context.Context, userID uuid.UUID, now time.Time) error {
	record := f.record(userID)
	record.LastUpdated = now
	record.LastActive = now
	return nil
}

func (f *fakePresenceRepo) record(userID uuid.UUID) *domain.PresenceRecord {
	record, ok := f.records[userID]
	if !ok {
		record = &domain.PresenceRecord{UserID: userID}
		f.records[userID] = record
	}
	return record
}

func TestGetStatus_HeartbeatRevivesStaleOnline(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, m := newTestService(600*time.Second, start)
	svc.presenceRepo = newFakePresenceRepo()

	userID := uuid.New()
	m.userRepo.On("TouchLastSeen", mock.Anything, userID).Return(nil)
	m.contactRepo.On("GetWatcherIDs", mock.Anything, userID).Return([]uuid.UUID{}, nil)

	assert.NoError(t, svc.Register(context.Background(), userID))

	// the record goes stale without an unregister ever happening
	svc.now = func() time.Time { return start.Add(700 * time.Second) }
	status, err := svc.GetStatus(context.Background(), userID)
	assert.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, status)

	// a heartbeat alone revives the stored record, no re-register
	assert.NoError(t, svc.Heartbeat(context.Background(), userID))
	status, err = svc.GetStatus(context.Background(), userID)
	assert.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, status)
}

func TestGetStatus_HeartbeatOnlyRecordReadsOffline(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(600*time.Second, now)
	svc.presenceRepo = newFakePresenceRepo()

	// a heartbeat can land before any status write creates the record
	userID := uuid.New()
	assert.NoError(t, svc.Heartbeat(context.Background(), userID))

	status, err := svc.GetStatus(context.Background(), userID)
	assert.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, status)
}

func TestContactsStatus_MixedContacts(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, m := newTestService(600*time.Second, now)

	userID := uuid.New()
	online := uuid.New()
	stale := uuid.New()
	never := uuid.New()
	contactIDs := []uuid.UUID{online, stale, never}

	m.contactRepo.On("GetContactIDs", mock.Anything, userID).Return(contactIDs, nil)
	m.userRepo.On("GetByIDs", mock.Anything, contactIDs).Return([]*domain.User{
		{UserID: online, Username: "alice"},
		{UserID: stale, Username: "bob"},
		{UserID: never, Username: "carol"},
	}, nil)
	m.presenceRepo.On("GetMany", mock.Anything, contactIDs).Return(map[uuid.UUID]*domain.PresenceRecord{
		online: {UserID: online, Status: domain.PresenceOnline, LastUpdated: now.Add(-10 * time.Second)},
		stale:  {UserID: stale, Status: domain.PresenceOnline, LastUpdated: now.Add(-20 * time.Minute)},
	}, nil)

	statuses, err := svc.ContactsStatus(context.Background(), userID)

	assert.NoError(t, err)
	assert.Len(t, statuses, 3)

	byID := make(map[uuid.UUID]domain.ContactStatus)
	for _, s := range statuses {
		byID[s.UserID] = s
	}
	assert.Equal(t, domain.PresenceOnline, byID[online].Status)
	assert.Equal(t, domain.PresenceOffline, byID[stale].Status)
	assert.Equal(t, domain.PresenceOffline, byID[never].Status)
	assert.Nil(t, byID[never].LastActive)
}

func TestContactsStatus_NoContacts(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, m := newTestService(600*time.Second, now)

	userID := uuid.New()
	m.contactRepo.On("GetContactIDs", mock.Anything, userID).Return([]uuid.UUID{}, nil)

	statuses, err := svc.ContactsStatus(context.Background(), userID)

	assert.NoError(t, err)
	assert.Empty(t, statuses)
	m.presenceRepo.AssertNotCalled(t, "GetMany", mock.Anything, mock.Anything)
}

func TestSweep_TouchesEveryRegisteredUser(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, m := newTestService(600*time.Second, now)

	userA := uuid.New()
	userB := uuid.New()

	m.registry.On("RegisteredUserIDs").Return([]uuid.UUID{userA, userB})
	m.presenceRepo.On("Touch", mock.Anything, userA, now).Return(nil)
	m.presenceRepo.On("Touch", mock.Anything, userB, now).Return(nil)

	svc.sweepOnce(context.Background())

	m.presenceRepo.AssertExpectations(t)
}
