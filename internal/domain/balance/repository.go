package balance

import (
	"context"
)

// Repository defines the interface for balance ledger data access
type Repository interface {
	// GetByWallet returns the wallet's balance, or a zero balance if the
	// wallet has never earned
	GetByWallet(ctx context.Context, wallet string) (*Balance, error)

	// Credit atomically adds amountCents to both total earned and available,
	// creating the balance row if absent, and returns the updated balance
	Credit(ctx context.Context, wallet string, amountCents int64) (*Balance, error)

	// Debit atomically moves amountCents from available to withdrawn.
	// ErrInsufficientBalance if available is less than amountCents.
	Debit(ctx context.Context, wallet string, amountCents int64) (*Balance, error)
}
