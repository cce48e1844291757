package events

import (
	"context"

	"beehive/internal/adapters/kafka"
	"beehive/pkg/logger"
)

// Publisher publishes reward lifecycle events to Kafka. All publishing is
// best-effort: a broker failure is logged, never propagated, because event
// delivery must not fail the financial operation that produced it.
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewPublisher creates a new event publisher. A nil producer yields a
// publisher that drops all events (Kafka disabled).
func NewPublisher(producer *kafka.Producer, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		log:      log,
	}
}

// PublishRewardCreated publishes a reward created event
func (p *Publisher) PublishRewardCreated(ctx context.Context, event *RewardCreatedEvent) {
	p.publish(ctx, kafka.TopicRewardCreated, event.RecipientWallet, event)
}

// PublishRewardClaimed publishes a reward claimed event
func (p *Publisher) PublishRewardClaimed(ctx context.Context, event *RewardClaimedEvent) {
	p.publish(ctx, kafka.TopicRewardClaimed, event.RecipientWallet, event)
}

// PublishRewardRolledUp publishes a rollup event
func (p *Publisher) PublishRewardRolledUp(ctx context.Context, event *RewardRolledUpEvent) {
	p.publish(ctx, kafka.TopicRewardRolledUp, event.OriginalRecipient, event)
}

// PublishTimerCreated publishes a timer created event
func (p *Publisher) PublishTimerCreated(ctx context.Context, event *TimerCreatedEvent) {
	p.publish(ctx, kafka.TopicTimerCreated, event.MemberWallet, event)
}

// PublishTimerExpired publishes a timer expired event
func (p *Publisher) PublishTimerExpired(ctx context.Context, event *TimerExpiredEvent) {
	p.publish(ctx, kafka.TopicTimerExpired, event.MemberWallet, event)
}

// PublishMemberActivated publishes a member activated event
func (p *Publisher) PublishMemberActivated(ctx context.Context, event *MemberActivatedEvent) {
	p.publish(ctx, kafka.TopicMemberActivated, event.MemberWallet, event)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, event interface{}) {
	if p.producer == nil {
		return
	}
	if err := p.producer.Publish(ctx, topic, key, event); err != nil {
		p.log.Errorf("Failed to publish %s event: %v", topic, err)
	}
}
