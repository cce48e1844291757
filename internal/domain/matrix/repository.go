package matrix

import (
	"context"
	"time"
)

// Repository defines the read contract the reward engine needs from the
// matrix position store, plus the activation flip side effect.
type Repository interface {
	// GetPosition returns a member's position in one matrix
	GetPosition(ctx context.Context, matrixRoot, memberWallet string) (*Position, error)

	// GetLayerMembers returns the active positions of one layer of a matrix,
	// ordered by slot
	GetLayerMembers(ctx context.Context, matrixRoot string, layer int) ([]*Position, error)

	// GetMemberships returns every position a member holds across matrices
	GetMemberships(ctx context.Context, memberWallet string) ([]*Position, error)

	// ActivatePositions marks all of a member's positions activated
	ActivatePositions(ctx context.Context, memberWallet string, at time.Time) error
}
