package kafka

// Topic definitions for reward lifecycle event streaming
const (
	// Reward events
	TopicClaimRequested = "rewards.claim_requests"
	TopicRewardCreated  = "rewards.created"
	TopicRewardClaimed  = "rewards.claimed"
	TopicRewardRolledUp = "rewards.rolled_up"

	// Timer events
	TopicTimerCreated = "timers.created"
	TopicTimerExpired = "timers.expired"

	// Member events
	TopicMemberUpgraded  = "members.upgraded"
	TopicMemberActivated = "members.activated"
)
