package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"beehive/internal/domain/timer"
	"beehive/pkg/errors"
)

// Compile-time check
var _ timer.Repository = (*TimerRepository)(nil)

const timerColumns = `
	id, member_wallet, current_level, target_level, status,
	created_at, expires_at, completed_at, expired_at`

// TimerRepository implements timer.Repository using sqlx
type TimerRepository struct {
	db DBTX
}

// NewTimerRepository creates a new upgrade timer repository
func NewTimerRepository(db DBTX) *TimerRepository {
	return &TimerRepository{db: db}
}

// Create inserts a new upgrade timer
func (r *TimerRepository) Create(ctx context.Context, t *timer.Timer) error {
	query := `
		INSERT INTO upgrade_timers (
			id, member_wallet, current_level, target_level, status,
			created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.MemberWallet, t.CurrentLevel, t.TargetLevel, t.Status,
		t.CreatedAt, t.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create upgrade timer")
	}

	return nil
}

// GetByID retrieves a timer by ID
func (r *TimerRepository) GetByID(ctx context.Context, id uuid.UUID) (*timer.Timer, error) {
	var t timer.Timer

	query := `SELECT ` + timerColumns + ` FROM upgrade_timers WHERE id = $1`

	err := r.db.GetContext(ctx, &t, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "upgrade timer not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get upgrade timer")
	}

	return &t, nil
}

// GetActiveByWallet retrieves a member's active timers, soonest expiring first
func (r *TimerRepository) GetActiveByWallet(ctx context.Context, wallet string) ([]*timer.Timer, error) {
	var timers []*timer.Timer

	query := `
		SELECT ` + timerColumns + `
		FROM upgrade_timers
		WHERE member_wallet = $1 AND status = 'active'
		ORDER BY expires_at ASC`

	err := r.db.SelectContext(ctx, &timers, query, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get active timers")
	}

	return timers, nil
}

// GetExpiredActive retrieves active timers whose deadline has passed at now
func (r *TimerRepository) GetExpiredActive(ctx context.Context, now time.Time, limit int) ([]*timer.Timer, error) {
	if limit <= 0 {
		limit = 500
	}

	var timers []*timer.Timer

	query := `
		SELECT ` + timerColumns + `
		FROM upgrade_timers
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &timers, query, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get expired timers")
	}

	return timers, nil
}

// MarkCompleted moves an active timer to completed
func (r *TimerRepository) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE upgrade_timers
		SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'active'`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return errors.Wrap(err, "failed to mark timer completed")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrInvalidState, "timer %s is not active", id)
	}

	return nil
}

// MarkExpired moves an active timer to expired
func (r *TimerRepository) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE upgrade_timers
		SET status = 'expired', expired_at = $2
		WHERE id = $1 AND status = 'active'`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return errors.Wrap(err, "failed to mark timer expired")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrInvalidState, "timer %s is not active", id)
	}

	return nil
}

// ExpireActiveForTarget expires any active timer a member already holds for
// the same target level. A newer timer supersedes older ones.
func (r *TimerRepository) ExpireActiveForTarget(ctx context.Context, wallet string, targetLevel int, at time.Time) (int, error) {
	query := `
		UPDATE upgrade_timers
		SET status = 'expired', expired_at = $3
		WHERE member_wallet = $1 AND target_level = $2 AND status = 'active'`

	res, err := r.db.ExecContext(ctx, query, wallet, targetLevel, at)
	if err != nil {
		return 0, errors.Wrap(err, "failed to supersede active timers")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read rows affected")
	}

	return int(affected), nil
}
