// Package versioned implements compare-and-swap style updates against a
// version-guarded document, with bounded retries. Mutating operations read a
// snapshot, validate against it, and attempt a conditional write that only
// lands if the document version is unchanged; a lost race re-reads and tries
// again up to a fixed attempt count.
package versioned

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"wavelink-backend/pkg/logger"
)

// ErrConflict is returned when every conditional-write attempt lost the race
var ErrConflict = errors.New("versioned update: retries exhausted")

// Abort wraps a validation failure so the update loop stops without retrying.
// Precondition failures (e.g. "already a member") are not version conflicts
// and re-reading cannot fix them.
type Abort struct {
	Err error
}

func (a *Abort) Error() string { return a.Err.Error() }

func (a *Abort) Unwrap() error { return a.Err }

// AbortUpdate marks err as terminal for the retry loop
func AbortUpdate(err error) error {
	return &Abort{Err: err}
}

// Config controls the retry behaviour of Update
type Config struct {
	// Name identifies the operation in logs
	Name string
	// MaxAttempts is the number of read-validate-write rounds before giving up
	MaxAttempts int
	// RetryDelay is the pause between rounds
	RetryDelay time.Duration
}

// Update runs apply until it reports the conditional write landed, a
// validation failure aborts it, or MaxAttempts rounds are exhausted.
//
// apply performs one full read-validate-write round and returns true when the
// conditional write modified the document. Returning (false, nil) means a
// concurrent writer won the race and the round should be retried.
func Update(ctx context.Context, cfg Config, apply func(ctx context.Context) (bool, error)) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		applied, err := apply(ctx)
		if err != nil {
			var abort *Abort
			if errors.As(err, &abort) {
				return abort.Err
			}
			return err
		}
		if applied {
			if attempt > 1 {
				logger.Info("versioned update landed after retry",
					zap.String("operation", cfg.Name),
					zap.Int("attempt", attempt))
			}
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Warn("versioned update lost race, retrying",
			zap.String("operation", cfg.Name),
			zap.Int("attempt", attempt))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}

	logger.Warn("versioned update exhausted retries",
		zap.String("operation", cfg.Name),
		zap.Int("attempts", cfg.MaxAttempts))
	return ErrConflict
}
