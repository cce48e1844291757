package rollup

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"beehive/internal/domain/reward"
	"beehive/pkg/errors"
)

// Analytics aggregates recent rollup trace history. Cent fields are
// authoritative; USDT and rate fields are display values derived from them.
// The average layer covers matrix-resolved reissues only; global-fallback
// resolutions carry a sentinel layer and are bucketed separately.
type Analytics struct {
	WindowDays          int             `json:"window_days"`
	TotalExpired        int             `json:"total_expired"`
	ResolvedToMember    int             `json:"resolved_to_member"`
	ResolvedToPlatform  int             `json:"resolved_to_platform"`
	GlobalFallbackCount int             `json:"global_fallback_count"`
	PlatformAmountCents int64           `json:"platform_amount_cents"`
	PlatformAmountUSDT  decimal.Decimal `json:"platform_amount_usdt"`
	ReissuedAmountCents int64           `json:"reissued_amount_cents"`
	AverageRollupLayer  decimal.Decimal `json:"average_rollup_layer"`
	EfficiencyRate      decimal.Decimal `json:"efficiency_rate"`
}

// GetRollupAnalytics computes read-only aggregates over the trailing
// analytics window. The efficiency rate is the share of expired rewards
// that reached a real member instead of the platform, as a percentage.
func (s *Service) GetRollupAnalytics(ctx context.Context) (*Analytics, error) {
	since := s.clock.Now().Add(-s.cfg.AnalyticsWindow)

	traces, err := s.traces.GetSince(ctx, since)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rollup traces")
	}

	a := &Analytics{
		WindowDays: int(s.cfg.AnalyticsWindow.Hours() / 24),
	}

	var layerSum int64
	var layered int
	for _, t := range traces {
		a.TotalExpired++
		if t.ResolvedToMember() {
			a.ResolvedToMember++
			a.ReissuedAmountCents += t.AmountCents
			if t.RollupLayer == reward.GlobalFallbackLayer {
				a.GlobalFallbackCount++
			} else {
				layerSum += int64(t.RollupLayer)
				layered++
			}
		} else {
			a.ResolvedToPlatform++
			a.PlatformAmountCents += t.AmountCents
		}
	}

	a.PlatformAmountUSDT = decimal.NewFromInt(a.PlatformAmountCents).Div(decimal.NewFromInt(100))
	if layered > 0 {
		a.AverageRollupLayer = decimal.NewFromInt(layerSum).
			Div(decimal.NewFromInt(int64(layered))).
			Round(2)
	}
	if a.TotalExpired > 0 {
		a.EfficiencyRate = decimal.NewFromInt(int64(a.ResolvedToMember)).
			Div(decimal.NewFromInt(int64(a.TotalExpired))).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	s.log.Infow("Computed rollup analytics",
		"window_days", a.WindowDays,
		"total_expired", a.TotalExpired,
		"efficiency_rate", a.EfficiencyRate.String(),
		"platform_amount", humanize.Comma(a.PlatformAmountCents),
	)

	return a, nil
}
