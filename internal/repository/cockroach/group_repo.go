package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wavelink-backend/internal/domain"
	"wavelink-backend/pkg/errors"
)

// GroupRepository handles the versioned group documents. All writes go
// through UpdateConditional: the version column is the concurrency token and
// a write only lands when the caller's observed version is still current.
type GroupRepository struct {
	pool *pgxpool.Pool
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// GetByID retrieves an active group document with its current version
func (r *GroupRepository) GetByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	query := `
		SELECT group_id, name, description, icon, creator_id,
		       members, admins, version, is_active, created_at, updated_at
		FROM groups
		WHERE group_id = $1 AND is_active = true
	`

	group := &domain.Group{}
	err := r.pool.QueryRow(ctx, query, groupID).Scan(
		&group.GroupID,
		&group.Name,
		&group.Description,
		&group.Icon,
		&group.CreatorID,
		&group.Members,
		&group.Admins,
		&group.Version,
		&group.IsActive,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.GroupNotFoundError()
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return group, nil
}

// UpdateConditional writes the mutated document and bumps the version, but
// only if the stored version still equals group.Version (the value read with
// the snapshot). Returns false when a concurrent writer won the race.
func (r *GroupRepository) UpdateConditional(ctx context.Context, group *domain.Group) (bool, error) {
	query := `
		UPDATE groups
		SET name = $2,
		    description = $3,
		    icon = $4,
		    members = $5,
		    admins = $6,
		    version = version + 1,
		    updated_at = $7
		WHERE group_id = $1 AND version = $8 AND is_active = true
	`

	tag, err := r.pool.Exec(ctx, query,
		group.GroupID,
		group.Name,
		group.Description,
		group.Icon,
		group.Members,
		group.Admins,
		time.Now().UTC(),
		group.Version,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update group: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return false, nil
	}

	group.Version++
	return true, nil
}
