package member

import (
	"context"
	"time"
)

// Repository defines the interface for member data access
type Repository interface {
	GetByWallet(ctx context.Context, wallet string) (*Member, error)

	// GetCurrentLevel returns the member's present-day level, 0 if unknown
	GetCurrentLevel(ctx context.Context, wallet string) (int, error)

	// Activate flips the member's activation flag
	Activate(ctx context.Context, wallet string, at time.Time) error

	// FindQualified returns activated members at or above minLevel, ordered
	// by current level descending then team size descending
	FindQualified(ctx context.Context, minLevel, limit int) ([]*Member, error)
}
