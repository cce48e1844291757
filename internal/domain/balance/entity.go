package balance

import (
	"time"
)

// Balance is the per-wallet accumulator of reward earnings. All amounts are
// integer minor units (cents); conversion to display units happens only at
// the reporting boundary.
type Balance struct {
	WalletAddress       string    `db:"wallet_address"`
	TotalEarnedCents    int64     `db:"total_earned_cents"`
	AvailableCents      int64     `db:"available_cents"`
	TotalWithdrawnCents int64     `db:"total_withdrawn_cents"`
	UpdatedAt           time.Time `db:"updated_at"`
}
