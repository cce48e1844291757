package events

import (
	"time"

	"github.com/google/uuid"
)

// RewardCreatedEvent is published for every reward record the distribution
// engine writes
type RewardCreatedEvent struct {
	RewardID        uuid.UUID `json:"reward_id"`
	RecipientWallet string    `json:"recipient_wallet"`
	TriggerWallet   string    `json:"trigger_wallet"`
	TriggerLevel    int       `json:"trigger_level"`
	LayerNumber     int       `json:"layer_number"`
	AmountCents     int64     `json:"amount_cents"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// ClaimRequestedEvent is consumed from the user-facing layer, one message
// per claim attempt
type ClaimRequestedEvent struct {
	RewardID      uuid.UUID `json:"reward_id"`
	ClaimerWallet string    `json:"claimer_wallet"`
	RequestedAt   time.Time `json:"requested_at"`
}

// RewardClaimedEvent is published when a recipient converts a reward into balance
type RewardClaimedEvent struct {
	RewardID        uuid.UUID `json:"reward_id"`
	RecipientWallet string    `json:"recipient_wallet"`
	AmountCents     int64     `json:"amount_cents"`
	NewBalanceCents int64     `json:"new_balance_cents"`
	ClaimedAt       time.Time `json:"claimed_at"`
}

// RewardRolledUpEvent is published when an expired reward is reassigned
type RewardRolledUpEvent struct {
	OriginalRewardID  uuid.UUID  `json:"original_reward_id"`
	NewRewardID       *uuid.UUID `json:"new_reward_id,omitempty"`
	OriginalRecipient string     `json:"original_recipient"`
	FinalRecipient    string     `json:"final_recipient"`
	AmountCents       int64      `json:"amount_cents"`
	Reason            string     `json:"reason"`
	RollupLayer       int        `json:"rollup_layer"`
	ProcessedAt       time.Time  `json:"processed_at"`
}

// MemberUpgradedEvent is consumed from the upgrade workflow, one message
// per purchased level
type MemberUpgradedEvent struct {
	MemberWallet string    `json:"member_wallet"`
	NewLevel     int       `json:"new_level"`
	AmountCents  int64     `json:"amount_cents"`
	UpgradedAt   time.Time `json:"upgraded_at"`
}

// TimerCreatedEvent is published when a member is placed under upgrade pressure
type TimerCreatedEvent struct {
	TimerID      uuid.UUID `json:"timer_id"`
	MemberWallet string    `json:"member_wallet"`
	CurrentLevel int       `json:"current_level"`
	TargetLevel  int       `json:"target_level"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// TimerExpiredEvent is published when an upgrade timer lapses unmet
type TimerExpiredEvent struct {
	TimerID       uuid.UUID `json:"timer_id"`
	MemberWallet  string    `json:"member_wallet"`
	TargetLevel   int       `json:"target_level"`
	CascadedCount int       `json:"cascaded_count"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// MemberActivatedEvent is published on a member's first activation
type MemberActivatedEvent struct {
	MemberWallet string    `json:"member_wallet"`
	ActivatedAt  time.Time `json:"activated_at"`
}
