package levelconfig

import "fmt"

// Defaults returns the seed table for all 19 membership levels.
// Pricing starts at 100 USDT and rises 50 USDT per level to 1000 USDT at
// level 19; the reward unit amount equals the level price; each level
// unlocks reward layers 1 through that level.
func Defaults() []*Config {
	names := map[int]string{
		1:  "Bronze Member",
		2:  "Silver Member",
		3:  "Gold Member",
		4:  "Platinum Member",
		5:  "Diamond Member",
		19: "Master Level",
	}

	configs := make([]*Config, 0, MaxLevel)
	for level := MinLevel; level <= MaxLevel; level++ {
		name, ok := names[level]
		if !ok {
			name = fmt.Sprintf("Elite Level %d", level)
		}

		priceCents := int64(100+(level-1)*50) * 100

		layers := make([]int, level)
		for i := range layers {
			layers[i] = i + 1
		}

		cfg := &Config{
			Level:                   level,
			LevelName:               name,
			PriceCents:              priceCents,
			RewardAmountCents:       priceCents,
			RequiredDirectReferrals: requiredReferrals(level),
			UnlockedLayers:          layers,
		}
		if level > MinLevel {
			prev := level - 1
			cfg.RequiredPreviousLevel = &prev
		}
		configs = append(configs, cfg)
	}
	return configs
}

func requiredReferrals(level int) int {
	switch {
	case level == 1:
		return 0
	case level == 2:
		return 3
	case level == 3:
		return 5
	case level == 4:
		return 7
	case level == 5:
		return 10
	case level == 6:
		return 12
	case level == 19:
		return 50
	default:
		return (level-6)*2 + 12
	}
}
