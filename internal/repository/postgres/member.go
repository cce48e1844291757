package postgres

import (
	"context"
	"database/sql"
	"time"

	"beehive/internal/domain/member"
	"beehive/pkg/errors"
)

// Compile-time check
var _ member.Repository = (*MemberRepository)(nil)

const memberColumns = `
	wallet_address, current_level, is_activated, activated_at,
	direct_referral_count, total_team_size, created_at, updated_at`

// MemberRepository implements member.Repository using sqlx
type MemberRepository struct {
	db DBTX
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db DBTX) *MemberRepository {
	return &MemberRepository{db: db}
}

// GetByWallet retrieves a member by wallet address
func (r *MemberRepository) GetByWallet(ctx context.Context, wallet string) (*member.Member, error) {
	var m member.Member

	query := `SELECT ` + memberColumns + ` FROM members WHERE wallet_address = $1`

	err := r.db.GetContext(ctx, &m, query, wallet)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "member %s not found", wallet)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get member")
	}

	return &m, nil
}

// GetCurrentLevel retrieves a member's present-day level, 0 if unknown
func (r *MemberRepository) GetCurrentLevel(ctx context.Context, wallet string) (int, error) {
	var level int

	query := `SELECT current_level FROM members WHERE wallet_address = $1`

	err := r.db.GetContext(ctx, &level, query, wallet)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to get member level")
	}

	return level, nil
}

// Activate flips the member's activation flag
func (r *MemberRepository) Activate(ctx context.Context, wallet string, at time.Time) error {
	query := `
		UPDATE members
		SET is_activated = TRUE, activated_at = $2, updated_at = $2
		WHERE wallet_address = $1 AND is_activated = FALSE`

	_, err := r.db.ExecContext(ctx, query, wallet, at)
	if err != nil {
		return errors.Wrap(err, "failed to activate member")
	}

	return nil
}

// FindQualified retrieves activated members at or above minLevel, ordered by
// current level descending then team size descending
func (r *MemberRepository) FindQualified(ctx context.Context, minLevel, limit int) ([]*member.Member, error) {
	if limit <= 0 {
		limit = 10
	}

	var members []*member.Member

	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE is_activated = TRUE AND current_level >= $1
		ORDER BY current_level DESC, total_team_size DESC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &members, query, minLevel, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find qualified members")
	}

	return members, nil
}
