package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"beehive/internal/domain/levelconfig"
	"beehive/pkg/errors"
)

// Compile-time check
var _ levelconfig.Repository = (*LevelConfigRepository)(nil)

// LevelConfigRepository implements levelconfig.Repository using sqlx
type LevelConfigRepository struct {
	db DBTX
}

// NewLevelConfigRepository creates a new level configuration repository
func NewLevelConfigRepository(db DBTX) *LevelConfigRepository {
	return &LevelConfigRepository{db: db}
}

type levelConfigRow struct {
	Level                   int           `db:"level"`
	LevelName               string        `db:"level_name"`
	PriceCents              int64         `db:"price_usdt_cents"`
	RewardAmountCents       int64         `db:"reward_amount_usdt_cents"`
	RequiredDirectReferrals int           `db:"required_direct_referrals"`
	RequiredPreviousLevel   *int          `db:"required_previous_level"`
	UnlockedLayers          pq.Int64Array `db:"unlocked_layers"`
}

func (row *levelConfigRow) toDomain() *levelconfig.Config {
	layers := make([]int, len(row.UnlockedLayers))
	for i, l := range row.UnlockedLayers {
		layers[i] = int(l)
	}
	return &levelconfig.Config{
		Level:                   row.Level,
		LevelName:               row.LevelName,
		PriceCents:              row.PriceCents,
		RewardAmountCents:       row.RewardAmountCents,
		RequiredDirectReferrals: row.RequiredDirectReferrals,
		RequiredPreviousLevel:   row.RequiredPreviousLevel,
		UnlockedLayers:          layers,
	}
}

// GetByLevel retrieves the configuration for one level
func (r *LevelConfigRepository) GetByLevel(ctx context.Context, level int) (*levelconfig.Config, error) {
	var row levelConfigRow

	query := `
		SELECT level, level_name, price_usdt_cents, reward_amount_usdt_cents,
			   required_direct_referrals, required_previous_level, unlocked_layers
		FROM level_config
		WHERE level = $1`

	err := r.db.GetContext(ctx, &row, query, level)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrConfigurationMissing, "level %d has no configuration", level)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get level config")
	}

	return row.toDomain(), nil
}

// GetAll retrieves every configured level ordered ascending
func (r *LevelConfigRepository) GetAll(ctx context.Context) ([]*levelconfig.Config, error) {
	var rows []levelConfigRow

	query := `
		SELECT level, level_name, price_usdt_cents, reward_amount_usdt_cents,
			   required_direct_referrals, required_previous_level, unlocked_layers
		FROM level_config
		ORDER BY level ASC`

	err := r.db.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get level configs")
	}

	configs := make([]*levelconfig.Config, len(rows))
	for i := range rows {
		configs[i] = rows[i].toDomain()
	}

	return configs, nil
}

// Seed inserts the default level table, skipping levels that already exist
func (r *LevelConfigRepository) Seed(ctx context.Context, configs []*levelconfig.Config) error {
	query := `
		INSERT INTO level_config (
			level, level_name, price_usdt_cents, reward_amount_usdt_cents,
			required_direct_referrals, required_previous_level, unlocked_layers
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (level) DO NOTHING`

	for _, cfg := range configs {
		layers := make(pq.Int64Array, len(cfg.UnlockedLayers))
		for i, l := range cfg.UnlockedLayers {
			layers[i] = int64(l)
		}

		_, err := r.db.ExecContext(ctx, query,
			cfg.Level, cfg.LevelName, cfg.PriceCents, cfg.RewardAmountCents,
			cfg.RequiredDirectReferrals, cfg.RequiredPreviousLevel, layers,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to seed level %d", cfg.Level)
		}
	}

	return nil
}
