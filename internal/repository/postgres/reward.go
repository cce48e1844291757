package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"beehive/internal/domain/reward"
	"beehive/pkg/errors"
)

// Compile-time check
var _ reward.Repository = (*RewardRepository)(nil)

const rewardColumns = `
	id, recipient_wallet, trigger_wallet, trigger_level, matrix_root,
	layer_number, reward_amount_cents, requires_level, recipient_level_at_creation,
	status, pending_expires_at,
	created_at, claimed_at, rolled_up_at,
	rollup_to_wallet, rollup_from_reward_id`

// RewardRepository implements reward.Repository using sqlx
type RewardRepository struct {
	db DBTX
}

// NewRewardRepository creates a new reward repository
func NewRewardRepository(db DBTX) *RewardRepository {
	return &RewardRepository{db: db}
}

// Create inserts a new reward record
func (r *RewardRepository) Create(ctx context.Context, rec *reward.Record) error {
	query := `
		INSERT INTO layer_rewards (
			id, recipient_wallet, trigger_wallet, trigger_level, matrix_root,
			layer_number, reward_amount_cents, requires_level, recipient_level_at_creation,
			status, pending_expires_at, created_at,
			rollup_from_reward_id
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13
		)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.RecipientWallet, rec.TriggerWallet, rec.TriggerLevel, rec.MatrixRoot,
		rec.LayerNumber, rec.AmountCents, rec.RequiresLevel, rec.RecipientLevelAtCreation,
		rec.Status, rec.PendingExpiresAt, rec.CreatedAt,
		rec.RollupFromRewardID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create reward record")
	}

	return nil
}

// GetByID retrieves a reward record by ID
func (r *RewardRepository) GetByID(ctx context.Context, id uuid.UUID) (*reward.Record, error) {
	var rec reward.Record

	query := `SELECT ` + rewardColumns + ` FROM layer_rewards WHERE id = $1`

	err := r.db.GetContext(ctx, &rec, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "reward not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get reward")
	}

	return &rec, nil
}

// GetClaimableByWallet retrieves claimable rewards for a wallet, newest first
func (r *RewardRepository) GetClaimableByWallet(ctx context.Context, wallet string) ([]*reward.Record, error) {
	var records []*reward.Record

	query := `
		SELECT ` + rewardColumns + `
		FROM layer_rewards
		WHERE recipient_wallet = $1 AND status = 'claimable'
		ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &records, query, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get claimable rewards")
	}

	return records, nil
}

// GetPendingByWallet retrieves pending rewards not yet expired at now,
// soonest expiring first
func (r *RewardRepository) GetPendingByWallet(ctx context.Context, wallet string, now time.Time) ([]*reward.Record, error) {
	var records []*reward.Record

	query := `
		SELECT ` + rewardColumns + `
		FROM layer_rewards
		WHERE recipient_wallet = $1 AND status = 'pending' AND pending_expires_at > $2
		ORDER BY pending_expires_at ASC`

	err := r.db.SelectContext(ctx, &records, query, wallet, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pending rewards")
	}

	return records, nil
}

// GetAllPendingByWallet retrieves every pending reward for a wallet
func (r *RewardRepository) GetAllPendingByWallet(ctx context.Context, wallet string) ([]*reward.Record, error) {
	var records []*reward.Record

	query := `
		SELECT ` + rewardColumns + `
		FROM layer_rewards
		WHERE recipient_wallet = $1 AND status = 'pending'
		ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &records, query, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pending rewards")
	}

	return records, nil
}

// GetHistory retrieves a wallet's records, newest first
func (r *RewardRepository) GetHistory(ctx context.Context, wallet string, limit int) ([]*reward.Record, error) {
	if limit <= 0 {
		limit = 50 // Default limit
	}

	var records []*reward.Record

	query := `
		SELECT ` + rewardColumns + `
		FROM layer_rewards
		WHERE recipient_wallet = $1
		ORDER BY created_at DESC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &records, query, wallet, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get reward history")
	}

	return records, nil
}

// GetExpiredPending retrieves pending records whose deadline has passed at
// now. The boundary is inclusive: a deadline equal to now is expired.
func (r *RewardRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*reward.Record, error) {
	if limit <= 0 {
		limit = 500
	}

	var records []*reward.Record

	query := `
		SELECT ` + rewardColumns + `
		FROM layer_rewards
		WHERE status = 'pending' AND pending_expires_at <= $1
		ORDER BY pending_expires_at ASC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &records, query, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get expired pending rewards")
	}

	return records, nil
}

// GetExpiredReissued retrieves claimable records created by a rollup whose
// claim window has lapsed at now. Original claimable rewards without a
// rollup back-reference never expire and are excluded.
func (r *RewardRepository) GetExpiredReissued(ctx context.Context, now time.Time, limit int) ([]*reward.Record, error) {
	if limit <= 0 {
		limit = 500
	}

	var records []*reward.Record

	query := `
		SELECT ` + rewardColumns + `
		FROM layer_rewards
		WHERE status = 'claimable' AND rollup_from_reward_id IS NOT NULL AND pending_expires_at <= $1
		ORDER BY pending_expires_at ASC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &records, query, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get expired reissued rewards")
	}

	return records, nil
}

// MarkClaimed moves a claimable record to claimed. The update is conditional
// on the current status so a double-claim can never pay out twice.
func (r *RewardRepository) MarkClaimed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE layer_rewards
		SET status = 'claimed', claimed_at = $2
		WHERE id = $1 AND status = 'claimable'`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return errors.Wrap(err, "failed to mark reward claimed")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrInvalidState, "reward %s is not claimable", id)
	}

	return nil
}

// MarkRolledUp moves a record from the expected prior status to rollup
func (r *RewardRepository) MarkRolledUp(ctx context.Context, id uuid.UUID, from reward.Status, toWallet string, at time.Time) error {
	query := `
		UPDATE layer_rewards
		SET status = 'rollup', rollup_to_wallet = $3, rolled_up_at = $4
		WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, from, toWallet, at)
	if err != nil {
		return errors.Wrap(err, "failed to mark reward rolled up")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrInvalidState, "reward %s is no longer %s", id, from)
	}

	return nil
}

// CountPendingByWallet returns the number of pending rewards for a wallet
func (r *RewardRepository) CountPendingByWallet(ctx context.Context, wallet string) (int, error) {
	var count int

	query := `SELECT COUNT(*) FROM layer_rewards WHERE recipient_wallet = $1 AND status = 'pending'`

	err := r.db.GetContext(ctx, &count, query, wallet)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count pending rewards")
	}

	return count, nil
}

// SumPendingByWallet returns the total pending amount for a wallet in cents
func (r *RewardRepository) SumPendingByWallet(ctx context.Context, wallet string) (int64, error) {
	var sum int64

	query := `
		SELECT COALESCE(SUM(reward_amount_cents), 0)
		FROM layer_rewards
		WHERE recipient_wallet = $1 AND status = 'pending'`

	err := r.db.GetContext(ctx, &sum, query, wallet)
	if err != nil {
		return 0, errors.Wrap(err, "failed to sum pending rewards")
	}

	return sum, nil
}
