package postgres

import (
	"context"
	"database/sql"
	"time"

	"beehive/internal/domain/matrix"
	"beehive/pkg/errors"
)

// Compile-time check
var _ matrix.Repository = (*MatrixRepository)(nil)

const matrixColumns = `
	matrix_root, member_wallet, layer, slot,
	is_active, member_activated, placed_at, activated_at`

// MatrixRepository implements matrix.Repository using sqlx
type MatrixRepository struct {
	db DBTX
}

// NewMatrixRepository creates a new matrix position repository
func NewMatrixRepository(db DBTX) *MatrixRepository {
	return &MatrixRepository{db: db}
}

// GetPosition retrieves a member's position in one matrix
func (r *MatrixRepository) GetPosition(ctx context.Context, matrixRoot, memberWallet string) (*matrix.Position, error) {
	var pos matrix.Position

	query := `
		SELECT ` + matrixColumns + `
		FROM matrix_positions
		WHERE matrix_root = $1 AND member_wallet = $2`

	err := r.db.GetContext(ctx, &pos, query, matrixRoot, memberWallet)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "member %s has no position in matrix %s", memberWallet, matrixRoot)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get matrix position")
	}

	return &pos, nil
}

// GetLayerMembers retrieves the active positions of one layer, ordered by slot.
// The layer lookup is a single indexed query keyed by (matrix_root, layer);
// walking ancestors never chases parent pointers.
func (r *MatrixRepository) GetLayerMembers(ctx context.Context, matrixRoot string, layer int) ([]*matrix.Position, error) {
	var positions []*matrix.Position

	query := `
		SELECT ` + matrixColumns + `
		FROM matrix_positions
		WHERE matrix_root = $1 AND layer = $2 AND is_active = TRUE
		ORDER BY slot ASC`

	err := r.db.SelectContext(ctx, &positions, query, matrixRoot, layer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get layer members")
	}

	return positions, nil
}

// GetMemberships retrieves every position a member holds across matrices
func (r *MatrixRepository) GetMemberships(ctx context.Context, memberWallet string) ([]*matrix.Position, error) {
	var positions []*matrix.Position

	query := `
		SELECT ` + matrixColumns + `
		FROM matrix_positions
		WHERE member_wallet = $1
		ORDER BY placed_at ASC`

	err := r.db.SelectContext(ctx, &positions, query, memberWallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get matrix memberships")
	}

	return positions, nil
}

// ActivatePositions marks all of a member's positions activated
func (r *MatrixRepository) ActivatePositions(ctx context.Context, memberWallet string, at time.Time) error {
	query := `
		UPDATE matrix_positions
		SET member_activated = TRUE, activated_at = $2
		WHERE member_wallet = $1 AND member_activated = FALSE`

	_, err := r.db.ExecContext(ctx, query, memberWallet, at)
	if err != nil {
		return errors.Wrap(err, "failed to activate matrix positions")
	}

	return nil
}
