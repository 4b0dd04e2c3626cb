package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"wavelink-backend/internal/database"
	"wavelink-backend/internal/domain"
)

// PresenceRepository stores durable presence records in Redis, one hash per
// user. Records have no TTL: staleness is a read-time policy applied by the
// presence service, and the record itself is never deleted.
type PresenceRepository struct {
	client *database.RedisClient
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient) *PresenceRepository {
	return &PresenceRepository{client: client}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// Get returns the presence record for a user, or nil when none exists yet
func (r *PresenceRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	fields, err := r.client.Client.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return recordFromFields(userID, fields), nil
}

// GetMany returns presence records for a set of users; missing records are
// omitted from the result
func (r *PresenceRepository) GetMany(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.PresenceRecord, error) {
	pipe := r.client.Client.Pipeline()
	cmds := make(map[uuid.UUID]*redis.MapStringStringCmd, len(userIDs))
	for _, id := range userIDs {
		cmds[id] = pipe.HGetAll(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read presence batch: %w", err)
	}

	out := make(map[uuid.UUID]*domain.PresenceRecord, len(userIDs))
	for id, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		out[id] = recordFromFields(id, fields)
	}
	return out, nil
}

// SetStatus writes the stored status and refreshes last_updated. Going online
// also refreshes last_active.
func (r *PresenceRepository) SetStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus, now time.Time) error {
	values := map[string]interface{}{
		"status":       string(status),
		"last_updated": now.UTC().Format(time.RFC3339Nano),
	}
	if status == domain.PresenceOnline {
		values["last_active"] = now.UTC().Format(time.RFC3339Nano)
	}

	if err := r.client.Client.HSet(ctx, presenceKey(userID), values).Err(); err != nil {
		return fmt.Errorf("failed to set presence status: %w", err)
	}
	return nil
}

// Touch refreshes last_updated and last_active without changing status
func (r *PresenceRepository) Touch(ctx context.Context, userID uuid.UUID, now time.Time) error {
	ts := now.UTC().Format(time.RFC3339Nano)
	err := r.client.Client.HSet(ctx, presenceKey(userID), map[string]interface{}{
		"last_updated": ts,
		"last_active":  ts,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

func recordFromFields(userID uuid.UUID, fields map[string]string) *domain.PresenceRecord {
	record := &domain.PresenceRecord{
		UserID: userID,
		Status: domain.PresenceStatus(fields["status"]),
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["last_updated"]); err == nil {
		record.LastUpdated = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["last_active"]); err == nil {
		record.LastActive = t
	}
	return record
}
