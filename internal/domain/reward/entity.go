package reward

import (
	"time"

	"github.com/google/uuid"
)

// Layer number markers. Layer 0 is the matrix root position; -1 marks a
// recipient found by the platform-wide fallback search.
const (
	RootLayer           = 0
	GlobalFallbackLayer = -1
)

// PlatformWallet is the terminal recipient when no qualified member exists
// anywhere on the platform. Amounts rolled up to it are platform revenue.
const PlatformWallet = "platform"

// Record is a single reward ledger entry. Records are append-only: once a
// record reaches a terminal status it is never mutated again, and a rolled-up
// record is superseded by a fresh claimable record for the resolved recipient.
type Record struct {
	ID              uuid.UUID `db:"id"`
	RecipientWallet string    `db:"recipient_wallet"`
	TriggerWallet   string    `db:"trigger_wallet"`
	TriggerLevel    int       `db:"trigger_level"`
	MatrixRoot      string    `db:"matrix_root"`

	// LayerNumber is the recipient's layer in the matrix at creation time.
	// 0 means the matrix root position.
	LayerNumber int `db:"layer_number"`

	AmountCents              int64 `db:"reward_amount_cents"`
	RequiresLevel            int   `db:"requires_level"`
	RecipientLevelAtCreation int   `db:"recipient_level_at_creation"`

	Status           Status    `db:"status"`
	PendingExpiresAt time.Time `db:"pending_expires_at"`

	CreatedAt  time.Time  `db:"created_at"`
	ClaimedAt  *time.Time `db:"claimed_at"`
	RolledUpAt *time.Time `db:"rolled_up_at"`

	RollupToWallet     *string    `db:"rollup_to_wallet"`
	RollupFromRewardID *uuid.UUID `db:"rollup_from_reward_id"`
}

// Expired reports whether a pending record's deadline has passed at now.
// The boundary is inclusive: a record whose deadline equals now is expired.
func (r *Record) Expired(now time.Time) bool {
	return r.Status == StatusPending && !r.PendingExpiresAt.After(now)
}

// Status is the reward lifecycle state
type Status string

const (
	// StatusPending awaits the recipient reaching the required level
	StatusPending Status = "pending"
	// StatusClaimable is ready for the recipient to convert into balance
	StatusClaimable Status = "claimable"
	// StatusClaimed is terminal: the amount was credited to the recipient
	StatusClaimed Status = "claimed"
	// StatusRollup is terminal: the record was superseded and its amount
	// reissued to a new record (or surrendered to the platform)
	StatusRollup Status = "rollup"
)

// Valid checks if the status is a known lifecycle state
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusClaimable, StatusClaimed, StatusRollup:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transition
func (s Status) Terminal() bool {
	return s == StatusClaimed || s == StatusRollup
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
// Pending rewards either roll up at expiry or stay pending; claimable
// rewards are claimed, or forcibly rolled up by cascade expiry.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRollup
	case StatusClaimable:
		return next == StatusClaimed || next == StatusRollup
	case StatusClaimed, StatusRollup:
		return false
	}
	return false
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}
