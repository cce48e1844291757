package timer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for upgrade timer data access.
// Status moves use conditional updates asserting the active status, so a
// timer processed by one sweep run is never reprocessed by another.
type Repository interface {
	Create(ctx context.Context, t *Timer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Timer, error)

	// GetActiveByWallet returns the member's active timers, soonest expiring first
	GetActiveByWallet(ctx context.Context, wallet string) ([]*Timer, error)

	// GetExpiredActive returns active timers whose deadline has passed at now
	GetExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Timer, error)

	// MarkCompleted moves an active timer to completed. ErrInvalidState if
	// the timer is no longer active.
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkExpired moves an active timer to expired. ErrInvalidState if the
	// timer is no longer active.
	MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) error

	// ExpireActiveForTarget expires any active timer a member already holds
	// for the same target level, returning how many were superseded
	ExpireActiveForTarget(ctx context.Context, wallet string, targetLevel int, at time.Time) (int, error)
}
