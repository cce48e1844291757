package postgres

import (
	"context"
	"time"

	"beehive/internal/domain/reward"
	"beehive/pkg/errors"
)

// Compile-time check
var _ reward.TraceRepository = (*RollupTraceRepository)(nil)

// RollupTraceRepository implements reward.TraceRepository using sqlx
type RollupTraceRepository struct {
	db DBTX
}

// NewRollupTraceRepository creates a new rollup trace repository
func NewRollupTraceRepository(db DBTX) *RollupTraceRepository {
	return &RollupTraceRepository{db: db}
}

// Create inserts an immutable rollup trace
func (r *RollupTraceRepository) Create(ctx context.Context, trace *reward.Trace) error {
	query := `
		INSERT INTO reward_rollups (
			id, original_recipient, final_recipient,
			trigger_wallet, trigger_level, reward_amount_cents,
			rollup_reason, rollup_path, rollup_layer,
			processed_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10
		)`

	_, err := r.db.ExecContext(ctx, query,
		trace.ID, trace.OriginalRecipient, trace.FinalRecipient,
		trace.TriggerWallet, trace.TriggerLevel, trace.AmountCents,
		trace.Reason, trace.Path, trace.RollupLayer,
		trace.ProcessedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create rollup trace")
	}

	return nil
}

// GetSince retrieves traces processed at or after since, oldest first
func (r *RollupTraceRepository) GetSince(ctx context.Context, since time.Time) ([]*reward.Trace, error) {
	var traces []*reward.Trace

	query := `
		SELECT id, original_recipient, final_recipient,
			   trigger_wallet, trigger_level, reward_amount_cents,
			   rollup_reason, rollup_path, rollup_layer,
			   processed_at
		FROM reward_rollups
		WHERE processed_at >= $1
		ORDER BY processed_at ASC`

	err := r.db.SelectContext(ctx, &traces, query, since)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rollup traces")
	}

	return traces, nil
}
