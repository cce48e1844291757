package postgres

import (
	"context"
	"database/sql"

	"beehive/internal/domain/balance"
	"beehive/pkg/errors"
)

// Compile-time check
var _ balance.Repository = (*BalanceRepository)(nil)

// BalanceRepository implements balance.Repository using sqlx
type BalanceRepository struct {
	db DBTX
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db DBTX) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// GetByWallet retrieves a wallet's balance, or a zero balance if the wallet
// has never earned
func (r *BalanceRepository) GetByWallet(ctx context.Context, wallet string) (*balance.Balance, error) {
	var b balance.Balance

	query := `
		SELECT wallet_address, total_earned_cents, available_cents, total_withdrawn_cents, updated_at
		FROM member_balances
		WHERE wallet_address = $1`

	err := r.db.GetContext(ctx, &b, query, wallet)
	if err == sql.ErrNoRows {
		return &balance.Balance{WalletAddress: wallet}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get balance")
	}

	return &b, nil
}

// Credit atomically adds amountCents to total earned and available
func (r *BalanceRepository) Credit(ctx context.Context, wallet string, amountCents int64) (*balance.Balance, error) {
	var b balance.Balance

	query := `
		INSERT INTO member_balances (wallet_address, total_earned_cents, available_cents, total_withdrawn_cents, updated_at)
		VALUES ($1, $2, $2, 0, NOW())
		ON CONFLICT (wallet_address) DO UPDATE SET
			total_earned_cents = member_balances.total_earned_cents + EXCLUDED.total_earned_cents,
			available_cents = member_balances.available_cents + EXCLUDED.available_cents,
			updated_at = NOW()
		RETURNING wallet_address, total_earned_cents, available_cents, total_withdrawn_cents, updated_at`

	err := r.db.GetContext(ctx, &b, query, wallet, amountCents)
	if err != nil {
		return nil, errors.Wrap(err, "failed to credit balance")
	}

	return &b, nil
}

// Debit atomically moves amountCents from available to withdrawn. The update
// is conditional on sufficient available balance.
func (r *BalanceRepository) Debit(ctx context.Context, wallet string, amountCents int64) (*balance.Balance, error) {
	var b balance.Balance

	query := `
		UPDATE member_balances
		SET available_cents = available_cents - $2,
			total_withdrawn_cents = total_withdrawn_cents + $2,
			updated_at = NOW()
		WHERE wallet_address = $1 AND available_cents >= $2
		RETURNING wallet_address, total_earned_cents, available_cents, total_withdrawn_cents, updated_at`

	err := r.db.GetContext(ctx, &b, query, wallet, amountCents)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrInsufficientBalance, "wallet %s cannot withdraw %d cents", wallet, amountCents)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to debit balance")
	}

	return &b, nil
}
