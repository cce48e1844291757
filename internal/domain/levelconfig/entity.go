package levelconfig

// Config is the static per-level pricing and reward table, seeded once and
// immutable at runtime. Amounts are integer minor units (cents).
type Config struct {
	Level                   int    `db:"level"`
	LevelName               string `db:"level_name"`
	PriceCents              int64  `db:"price_usdt_cents"`
	RewardAmountCents       int64  `db:"reward_amount_usdt_cents"`
	RequiredDirectReferrals int    `db:"required_direct_referrals"`
	RequiredPreviousLevel   *int   `db:"required_previous_level"`
	UnlockedLayers          []int  `db:"-"`
}

// MinLevel and MaxLevel bound the configured membership levels
const (
	MinLevel = 1
	MaxLevel = 19
)

// ValidLevel reports whether level is within the configured range
func ValidLevel(level int) bool {
	return level >= MinLevel && level <= MaxLevel
}

// UnlocksLayer reports whether this level may receive rewards from layer
func (c *Config) UnlocksLayer(layer int) bool {
	for _, l := range c.UnlockedLayers {
		if l == layer {
			return true
		}
	}
	return false
}
