package member

import (
	"time"
)

// Member is the membership record the reward engine reads levels and
// activation from. Levels are granted by the upgrade workflow; the reward
// engine's only write is the first-activation flip on a level-1 trigger.
type Member struct {
	WalletAddress       string     `db:"wallet_address"`
	CurrentLevel        int        `db:"current_level"`
	IsActivated         bool       `db:"is_activated"`
	ActivatedAt         *time.Time `db:"activated_at"`
	DirectReferralCount int        `db:"direct_referral_count"`
	TotalTeamSize       int        `db:"total_team_size"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// Qualifies reports whether the member can receive a reward gated on level
func (m *Member) Qualifies(requiredLevel int) bool {
	return m.IsActivated && m.CurrentLevel >= requiredLevel
}
