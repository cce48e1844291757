package consumers

import (
	"context"
	"encoding/json"
	"time"

	segmentio "github.com/segmentio/kafka-go"

	"beehive/internal/adapters/kafka"
	"beehive/internal/domain/reward"
	"beehive/internal/domain/timer"
	"beehive/internal/events"
	"beehive/pkg/errors"
	"beehive/pkg/logger"
)

// Distributor produces reward records for an upgrade event
type Distributor interface {
	ProcessLevelUpgradeRewards(ctx context.Context, triggerWallet string, triggerLevel int) ([]*reward.Record, error)
}

// TimerCreator places a member under upgrade pressure
type TimerCreator interface {
	CreateUpgradeTimer(ctx context.Context, wallet string, currentLevel, targetLevel int, gracePeriod time.Duration) (*timer.Timer, error)
}

// UpgradeConsumer is the input boundary for upgrade events: the upgrade
// workflow publishes a message per purchased level and this consumer drives
// the distribution engine. Recipients left with a pending reward are placed
// under an upgrade timer so the grace period is enforced even if they never
// touch the platform again.
type UpgradeConsumer struct {
	consumer     *kafka.Consumer
	distributor  Distributor
	timerCreator TimerCreator
	log          *logger.Logger
}

// NewUpgradeConsumer creates a new upgrade event consumer
func NewUpgradeConsumer(consumer *kafka.Consumer, distributor Distributor, timerCreator TimerCreator) *UpgradeConsumer {
	return &UpgradeConsumer{
		consumer:     consumer,
		distributor:  distributor,
		timerCreator: timerCreator,
		log:          logger.Get().With("component", "upgrade_consumer"),
	}
}

// Start consumes upgrade events until the context is cancelled
func (c *UpgradeConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

func (c *UpgradeConsumer) handleMessage(ctx context.Context, msg segmentio.Message) error {
	var event events.MemberUpgradedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// Poison message. Log and move on, never wedge the partition.
		c.log.Errorf("Failed to decode upgrade event: %v", err)
		return nil
	}

	records, err := c.distributor.ProcessLevelUpgradeRewards(ctx, event.MemberWallet, event.NewLevel)
	if err != nil {
		if errors.Is(err, errors.ErrConfigurationMissing) || errors.Is(err, errors.ErrInvalidInput) {
			c.log.Errorf("Rejected upgrade event for %s level %d: %v", event.MemberWallet, event.NewLevel, err)
			return nil
		}
		return errors.Wrap(err, "failed to distribute rewards")
	}

	c.startTimers(ctx, records)

	c.log.Infow("Processed upgrade event",
		"wallet", event.MemberWallet,
		"level", event.NewLevel,
		"rewards_created", len(records),
	)

	return nil
}

// startTimers creates one upgrade timer per recipient who received a
// pending reward from this event, targeting the required level. Duplicate
// timers for the same target are superseded downstream.
func (c *UpgradeConsumer) startTimers(ctx context.Context, records []*reward.Record) {
	type pressure struct {
		wallet string
		level  int
	}
	seen := make(map[pressure]bool)

	for _, rec := range records {
		if rec.Status != reward.StatusPending {
			continue
		}
		key := pressure{rec.RecipientWallet, rec.RequiresLevel}
		if seen[key] {
			continue
		}
		seen[key] = true

		_, err := c.timerCreator.CreateUpgradeTimer(ctx, rec.RecipientWallet, rec.RecipientLevelAtCreation, rec.RequiresLevel, 0)
		if err != nil {
			c.log.Errorf("Failed to create upgrade timer for %s: %v", rec.RecipientWallet, err)
		}
	}
}
