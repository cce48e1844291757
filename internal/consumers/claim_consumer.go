package consumers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	segmentio "github.com/segmentio/kafka-go"

	"beehive/internal/adapters/kafka"
	"beehive/internal/domain/balance"
	"beehive/internal/domain/reward"
	"beehive/internal/events"
	"beehive/pkg/errors"
	"beehive/pkg/logger"
)

// Claimer settles claim commands against the reward ledger
type Claimer interface {
	Claim(ctx context.Context, rewardID uuid.UUID, claimerWallet string) (*reward.Record, *balance.Balance, error)
}

// ClaimConsumer settles claim commands published by the user-facing layer.
// The outcome is observable on the rewards.claimed event stream; rejected
// commands are logged and dropped, since replaying them can never succeed.
type ClaimConsumer struct {
	consumer *kafka.Consumer
	claimer  Claimer
	log      *logger.Logger
}

// NewClaimConsumer creates a new claim command consumer
func NewClaimConsumer(consumer *kafka.Consumer, claimer Claimer) *ClaimConsumer {
	return &ClaimConsumer{
		consumer: consumer,
		claimer:  claimer,
		log:      logger.Get().With("component", "claim_consumer"),
	}
}

// Start consumes claim commands until the context is cancelled
func (c *ClaimConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

func (c *ClaimConsumer) handleMessage(ctx context.Context, msg segmentio.Message) error {
	var cmd events.ClaimRequestedEvent
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		c.log.Errorf("Failed to decode claim command: %v", err)
		return nil
	}

	_, _, err := c.claimer.Claim(ctx, cmd.RewardID, cmd.ClaimerWallet)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrNotFound),
		errors.Is(err, errors.ErrUnauthorized),
		errors.Is(err, errors.ErrInvalidState):
		c.log.Warnw("Rejected claim command",
			"reward_id", cmd.RewardID,
			"wallet", cmd.ClaimerWallet,
			"error", err,
		)
		return nil
	default:
		return errors.Wrap(err, "failed to settle claim")
	}
}
