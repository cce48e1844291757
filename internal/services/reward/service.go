package reward

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"beehive/internal/adapters/config"
	redisadapter "beehive/internal/adapters/redis"
	"beehive/internal/domain/balance"
	"beehive/internal/domain/reward"
	"beehive/internal/events"
	"beehive/internal/metrics"
	"beehive/pkg/errors"
	"beehive/pkg/logger"
)

// Service handles the claim path of the reward ledger plus the read
// surfaces built on it. Claiming is deliberately not idempotent: a second
// claim against an already-claimed record is rejected, never absorbed.
type Service struct {
	db        DB
	rewards   reward.Repository
	balances  balance.Repository
	cache     *redisadapter.Client
	audit     reward.AuditSink
	publisher *events.Publisher
	clock     clockwork.Clock
	cfg       config.RewardsConfig
	log       *logger.Logger
}

// NewService creates a new reward service. cache may be nil (Redis disabled);
// summaries are then always computed from Postgres.
func NewService(
	db DB,
	rewards reward.Repository,
	balances balance.Repository,
	cache *redisadapter.Client,
	audit reward.AuditSink,
	publisher *events.Publisher,
	clock clockwork.Clock,
	cfg config.RewardsConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		db:        db,
		rewards:   rewards,
		balances:  balances,
		cache:     cache,
		audit:     audit,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		log:       log,
	}
}

// Claim converts a claimable reward into balance for its recipient. The
// status transition and the balance credit are applied in one transaction;
// the conditional status update makes a racing claim or cascade-expiry lose
// with ErrInvalidState instead of double-paying.
func (s *Service) Claim(ctx context.Context, rewardID uuid.UUID, claimerWallet string) (*reward.Record, *balance.Balance, error) {
	rec, err := s.rewards.GetByID(ctx, rewardID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			metrics.ClaimFailures.WithLabelValues("not_found").Inc()
		}
		return nil, nil, errors.Wrap(err, "failed to get reward")
	}

	if rec.RecipientWallet != claimerWallet {
		metrics.ClaimFailures.WithLabelValues("unauthorized").Inc()
		return nil, nil, errors.Wrapf(errors.ErrUnauthorized, "reward %s belongs to another wallet", rewardID)
	}

	if rec.Status != reward.StatusClaimable {
		metrics.ClaimFailures.WithLabelValues("invalid_state").Inc()
		return nil, nil, errors.Wrapf(errors.ErrInvalidState, "reward %s is %s", rewardID, rec.Status)
	}

	now := s.clock.Now()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.Rewards().MarkClaimed(ctx, rewardID, now); err != nil {
		metrics.ClaimFailures.WithLabelValues("invalid_state").Inc()
		return nil, nil, errors.Wrap(err, "failed to mark claimed")
	}

	bal, err := tx.Balances().Credit(ctx, claimerWallet, rec.AmountCents)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to credit balance")
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to commit claim")
	}

	rec.Status = reward.StatusClaimed
	rec.ClaimedAt = &now

	s.invalidateSummary(ctx, claimerWallet)

	metrics.RewardsClaimed.Inc()
	s.publisher.PublishRewardClaimed(ctx, &events.RewardClaimedEvent{
		RewardID:        rec.ID,
		RecipientWallet: rec.RecipientWallet,
		AmountCents:     rec.AmountCents,
		NewBalanceCents: bal.AvailableCents,
		ClaimedAt:       now,
	})
	if err := s.audit.Record(ctx, reward.AuditEvent{
		EventType:       "reward_claimed",
		RewardID:        rec.ID,
		RecipientWallet: rec.RecipientWallet,
		TriggerWallet:   rec.TriggerWallet,
		TriggerLevel:    rec.TriggerLevel,
		LayerNumber:     rec.LayerNumber,
		AmountCents:     rec.AmountCents,
		Status:          rec.Status,
		OccurredAt:      now,
	}); err != nil {
		s.log.Debugw("Audit sink rejected reward_claimed event", "error", err)
	}

	s.log.Infow("Claimed reward",
		"reward_id", rec.ID,
		"wallet", claimerWallet,
		"amount_cents", rec.AmountCents,
	)

	return rec, bal, nil
}

// GetClaimableRewards returns the wallet's claimable rewards, newest first
func (s *Service) GetClaimableRewards(ctx context.Context, wallet string) ([]*reward.Record, error) {
	return s.rewards.GetClaimableByWallet(ctx, wallet)
}

// GetPendingRewards returns the wallet's live pending rewards, soonest
// deadline first. Rewards already past their deadline are excluded; those
// belong to the timeout sweep.
func (s *Service) GetPendingRewards(ctx context.Context, wallet string) ([]*reward.Record, error) {
	return s.rewards.GetPendingByWallet(ctx, wallet, s.clock.Now())
}

// GetRewardHistory returns the wallet's reward records, newest first
func (s *Service) GetRewardHistory(ctx context.Context, wallet string, limit int) ([]*reward.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return s.rewards.GetHistory(ctx, wallet, limit)
}

// EarningsSummary is the per-wallet earnings aggregate. Cent fields are
// authoritative; the USDT fields are display values derived from them.
type EarningsSummary struct {
	WalletAddress       string          `json:"wallet_address"`
	TotalEarnedCents    int64           `json:"total_earned_cents"`
	AvailableCents      int64           `json:"available_cents"`
	TotalWithdrawnCents int64           `json:"total_withdrawn_cents"`
	ClaimableCents      int64           `json:"claimable_cents"`
	ClaimableCount      int             `json:"claimable_count"`
	PendingCents        int64           `json:"pending_cents"`
	PendingCount        int             `json:"pending_count"`
	TotalEarnedUSDT     decimal.Decimal `json:"total_earned_usdt"`
	AvailableUSDT       decimal.Decimal `json:"available_usdt"`
}

// GetEarningsSummary aggregates the wallet's balance, claimable and pending
// totals. Summaries are cached briefly in Redis and invalidated on claim.
func (s *Service) GetEarningsSummary(ctx context.Context, wallet string) (*EarningsSummary, error) {
	key := summaryCacheKey(wallet)
	if s.cache != nil {
		var cached EarningsSummary
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	bal, err := s.balances.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get balance")
	}

	claimable, err := s.rewards.GetClaimableByWallet(ctx, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get claimable rewards")
	}
	var claimableCents int64
	for _, r := range claimable {
		claimableCents += r.AmountCents
	}

	pendingCount, err := s.rewards.CountPendingByWallet(ctx, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count pending rewards")
	}
	pendingCents, err := s.rewards.SumPendingByWallet(ctx, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum pending rewards")
	}

	summary := &EarningsSummary{
		WalletAddress:       wallet,
		TotalEarnedCents:    bal.TotalEarnedCents,
		AvailableCents:      bal.AvailableCents,
		TotalWithdrawnCents: bal.TotalWithdrawnCents,
		ClaimableCents:      claimableCents,
		ClaimableCount:      len(claimable),
		PendingCents:        pendingCents,
		PendingCount:        pendingCount,
		TotalEarnedUSDT:     centsToUSDT(bal.TotalEarnedCents),
		AvailableUSDT:       centsToUSDT(bal.AvailableCents),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cfg.ClaimableCacheTTL); err != nil {
			s.log.Debugw("Failed to cache earnings summary", "wallet", wallet, "error", err)
		}
	}

	return summary, nil
}

// ProcessWithdrawal debits the wallet's available balance. The actual
// payment rail is outside this service; a debit that commits here is handed
// to it as an opaque instruction.
func (s *Service) ProcessWithdrawal(ctx context.Context, wallet string, amountCents int64) (*balance.Balance, error) {
	if amountCents <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "withdrawal amount %d", amountCents)
	}

	bal, err := s.balances.Debit(ctx, wallet, amountCents)
	if err != nil {
		return nil, errors.Wrap(err, "failed to debit balance")
	}

	s.invalidateSummary(ctx, wallet)

	s.log.Infow("Processed withdrawal",
		"wallet", wallet,
		"amount_cents", amountCents,
		"available_cents", bal.AvailableCents,
	)

	return bal, nil
}

func (s *Service) invalidateSummary(ctx context.Context, wallet string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, summaryCacheKey(wallet)); err != nil {
		s.log.Debugw("Failed to invalidate earnings summary", "wallet", wallet, "error", err)
	}
}

func summaryCacheKey(wallet string) string {
	return fmt.Sprintf("rewards:summary:%s", wallet)
}

func centsToUSDT(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}
