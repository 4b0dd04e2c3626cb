package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wavelink-backend/internal/domain"
	"wavelink-backend/pkg/errors"
)

// UserRepository reads the user projection the realtime layer needs
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT user_id, username, last_seen FROM users WHERE user_id = $1`

	user := &domain.User{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&user.UserID,
		&user.Username,
		&user.LastSeen,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.UserNotFoundError()
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByIDs retrieves the user projections for a set of IDs; unknown IDs are
// omitted from the result
func (r *UserRepository) GetByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*domain.User, error) {
	query := `SELECT user_id, username, last_seen FROM users WHERE user_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user := &domain.User{}
		if err := rows.Scan(&user.UserID, &user.Username, &user.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, nil
}

// TouchLastSeen updates a user's last_seen timestamp
func (r *UserRepository) TouchLastSeen(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET last_seen = now() WHERE user_id = $1`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to touch last_seen: %w", err)
	}
	return nil
}
