package timer

import (
	"time"

	"github.com/google/uuid"
)

// Timer is an upgrade grace-period deadline. The member must reach
// TargetLevel before ExpiresAt or forfeit their pending rewards.
type Timer struct {
	ID           uuid.UUID  `db:"id"`
	MemberWallet string     `db:"member_wallet"`
	CurrentLevel int        `db:"current_level"`
	TargetLevel  int        `db:"target_level"`
	Status       Status     `db:"status"`
	CreatedAt    time.Time  `db:"created_at"`
	ExpiresAt    time.Time  `db:"expires_at"`
	CompletedAt  *time.Time `db:"completed_at"`
	ExpiredAt    *time.Time `db:"expired_at"`
}

// Status is the timer lifecycle state
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// Valid checks if the status is a known state
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}
