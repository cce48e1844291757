package clickhouse

import (
	"context"

	"beehive/internal/adapters/clickhouse"
	"beehive/internal/domain/reward"
	chbatch "beehive/pkg/clickhouse"
	"beehive/pkg/errors"
)

// Compile-time check
var _ reward.AuditSink = (*RewardEventStore)(nil)

// RewardEventStore appends reward lifecycle events to ClickHouse for
// reporting. Postgres stays authoritative; this stream is best-effort and
// buffered, so a recorded event may trail its transaction by a few seconds.
type RewardEventStore struct {
	client *clickhouse.Client
	writer *chbatch.BatchWriter
}

// NewRewardEventStore creates a new reward event store
func NewRewardEventStore(client *clickhouse.Client) *RewardEventStore {
	s := &RewardEventStore{client: client}
	s.writer = chbatch.NewBatchWriter(chbatch.BatchWriterConfig{
		FlushFunc: s.flush,
		TableName: "reward_events",
	})
	return s
}

// Start begins the background flush loop
func (s *RewardEventStore) Start(ctx context.Context) {
	s.writer.Start(ctx)
}

// Stop flushes buffered events and stops the writer
func (s *RewardEventStore) Stop(ctx context.Context) error {
	return s.writer.Stop(ctx)
}

// Migrate creates the audit table if it does not exist
func (s *RewardEventStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS reward_events (
			event_type       LowCardinality(String),
			reward_id        UUID,
			recipient_wallet String,
			trigger_wallet   String,
			trigger_level    UInt8,
			layer_number     Int16,
			amount_cents     Int64,
			status           LowCardinality(String),
			occurred_at      DateTime64(3)
		)
		ENGINE = MergeTree()
		ORDER BY (occurred_at, recipient_wallet)`

	if err := s.client.Exec(ctx, query); err != nil {
		return errors.Wrap(err, "failed to create reward_events table")
	}

	return nil
}

// Record buffers one lifecycle event for the next batch flush
func (s *RewardEventStore) Record(ctx context.Context, event reward.AuditEvent) error {
	return s.writer.Add(ctx, event)
}

func (s *RewardEventStore) flush(ctx context.Context, items []interface{}) error {
	batch, err := s.client.Conn().PrepareBatch(ctx, `
		INSERT INTO reward_events (
			event_type, reward_id, recipient_wallet, trigger_wallet,
			trigger_level, layer_number, amount_cents, status, occurred_at
		)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare reward event batch")
	}

	for _, item := range items {
		event, ok := item.(reward.AuditEvent)
		if !ok {
			continue
		}
		if err := batch.Append(
			event.EventType,
			event.RewardID,
			event.RecipientWallet,
			event.TriggerWallet,
			uint8(event.TriggerLevel),
			int16(event.LayerNumber),
			event.AmountCents,
			event.Status.String(),
			event.OccurredAt,
		); err != nil {
			return errors.Wrap(err, "failed to append reward event")
		}
	}

	if err := batch.Send(); err != nil {
		return errors.Wrap(err, "failed to send reward event batch")
	}

	return nil
}

// NoopSink discards audit events. Used when ClickHouse is disabled.
type NoopSink struct{}

// Record discards the event
func (NoopSink) Record(ctx context.Context, event reward.AuditEvent) error {
	return nil
}
