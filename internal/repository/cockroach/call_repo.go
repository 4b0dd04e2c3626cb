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

// CallRepository handles durable call records
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// Create inserts a new call record
func (r *CallRepository) Create(ctx context.Context, call *domain.CallRecord) error {
	query := `
		INSERT INTO calls (
			call_id, caller_id, callee_id, call_type, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		call.CallID,
		call.CallerID,
		call.CalleeID,
		call.CallType,
		call.Status,
		call.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}

	return nil
}

// GetByID retrieves a call record by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.CallRecord, error) {
	query := `
		SELECT call_id, caller_id, callee_id, call_type, status,
		       started_at, answered_at, ended_at, duration
		FROM calls
		WHERE call_id = $1
	`

	call := &domain.CallRecord{}
	err := r.pool.QueryRow(ctx, query, callID).Scan(
		&call.CallID,
		&call.CallerID,
		&call.CalleeID,
		&call.CallType,
		&call.Status,
		&call.StartedAt,
		&call.AnsweredAt,
		&call.EndedAt,
		&call.Duration,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.CallNotFoundError()
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}

	return call, nil
}

// UpdateStatus updates a call's status
func (r *CallRepository) UpdateStatus(ctx context.Context, callID uuid.UUID, status domain.CallStatus) error {
	query := `UPDATE calls SET status = $2 WHERE call_id = $1`

	_, err := r.pool.Exec(ctx, query, callID, status)
	if err != nil {
		return fmt.Errorf("failed to update call status: %w", err)
	}

	return nil
}

// MarkAnswered records the answer timestamp alongside the status change
func (r *CallRepository) MarkAnswered(ctx context.Context, callID uuid.UUID, answeredAt time.Time) error {
	query := `UPDATE calls SET status = $2, answered_at = $3 WHERE call_id = $1`

	_, err := r.pool.Exec(ctx, query, callID, domain.CallStatusAnswered, answeredAt)
	if err != nil {
		return fmt.Errorf("failed to mark call answered: %w", err)
	}

	return nil
}

// Finish persists a terminal status with end time and duration. Duration is
// zero for calls that were never answered.
func (r *CallRepository) Finish(ctx context.Context, callID uuid.UUID, status domain.CallStatus, endedAt time.Time, duration int) error {
	query := `
		UPDATE calls
		SET status = $2, ended_at = $3, duration = $4
		WHERE call_id = $1
	`

	_, err := r.pool.Exec(ctx, query, callID, status, endedAt, duration)
	if err != nil {
		return fmt.Errorf("failed to finish call: %w", err)
	}

	return nil
}

// GetUserCalls retrieves call history for a user, newest first
func (r *CallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRecord, error) {
	query := `
		SELECT call_id, caller_id, callee_id, call_type, status,
		       started_at, answered_at, ended_at, duration
		FROM calls
		WHERE caller_id = $1 OR callee_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user calls: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// GetMissedCalls retrieves missed calls for a callee, newest first
func (r *CallRepository) GetMissedCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRecord, error) {
	query := `
		SELECT call_id, caller_id, callee_id, call_type, status,
		       started_at, answered_at, ended_at, duration
		FROM calls
		WHERE callee_id = $1 AND status = $2
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.pool.Query(ctx, query, userID, domain.CallStatusMissed, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get missed calls: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// ListStaleActive returns non-terminal call records started before the cutoff.
// Used by the reconciliation sweep to expire records orphaned by a restart.
func (r *CallRepository) ListStaleActive(ctx context.Context, cutoff time.Time) ([]*domain.CallRecord, error) {
	query := `
		SELECT call_id, caller_id, callee_id, call_type, status,
		       started_at, answered_at, ended_at, duration
		FROM calls
		WHERE status NOT IN ($1, $2, $3) AND started_at < $4
	`

	rows, err := r.pool.Query(ctx, query,
		domain.CallStatusEnded, domain.CallStatusMissed, domain.CallStatusDeclined, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale calls: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

func scanCalls(rows pgx.Rows) ([]*domain.CallRecord, error) {
	var calls []*domain.CallRecord
	for rows.Next() {
		call := &domain.CallRecord{}
		err := rows.Scan(
			&call.CallID,
			&call.CallerID,
			&call.CalleeID,
			&call.CallType,
			&call.Status,
			&call.StartedAt,
			&call.AnsweredAt,
			&call.EndedAt,
			&call.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		calls = append(calls, call)
	}

	return calls, nil
}
