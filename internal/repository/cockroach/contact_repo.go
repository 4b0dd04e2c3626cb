package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"wavelink-backend/internal/domain"
)

// ContactRepository reads contact relationships for presence fan-out
type ContactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository creates a new contact repository
func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

// GetWatcherIDs returns the users who have userID as an accepted contact:
// the audience for that user's presence updates.
func (r *ContactRepository) GetWatcherIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT user_id FROM contacts WHERE contact_id = $1 AND status = $2`
	return r.queryIDs(ctx, query, userID)
}

// GetContactIDs returns userID's own accepted contacts: the set whose status
// the user may ask for.
func (r *ContactRepository) GetContactIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT contact_id FROM contacts WHERE user_id = $1 AND status = $2`
	return r.queryIDs(ctx, query, userID)
}

func (r *ContactRepository) queryIDs(ctx context.Context, query string, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, query, userID, domain.ContactAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
