package rollup

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"beehive/internal/adapters/config"
	redisadapter "beehive/internal/adapters/redis"
	"beehive/internal/domain/levelconfig"
	"beehive/internal/domain/matrix"
	"beehive/internal/domain/member"
	"beehive/internal/domain/reward"
	"beehive/internal/domain/timer"
	"beehive/internal/events"
	"beehive/internal/metrics"
	"beehive/pkg/errors"
	"beehive/pkg/logger"
)

// sweepLockKey is the advisory lock serializing sweep runs across instances
const sweepLockKey = "rewards:sweep:lock"

// sweepBatchSize bounds how many records one sweep run picks up. Records
// beyond the batch stay in place for the next run.
const sweepBatchSize = 500

// Service is the rollup and timeout engine. It sweeps expired pending
// rewards and lapsed reissued rewards through a three-strategy recipient
// search, and sweeps upgrade timers, cascade-expiring the rewards of
// members who failed to upgrade in time.
type Service struct {
	db        DB
	rewards   reward.Repository
	traces    reward.TraceRepository
	members   member.Repository
	matrices  matrix.Repository
	timers    timer.Repository
	locker    *redisadapter.Client
	audit     reward.AuditSink
	publisher *events.Publisher
	clock     clockwork.Clock
	cfg       config.RewardsConfig
	limiter   *rate.Limiter
	log       *logger.Logger
}

// NewService creates a new rollup service. locker may be nil, in which case
// sweep runs are not serialized across instances.
func NewService(
	db DB,
	rewards reward.Repository,
	traces reward.TraceRepository,
	members member.Repository,
	matrices matrix.Repository,
	timers timer.Repository,
	locker *redisadapter.Client,
	audit reward.AuditSink,
	publisher *events.Publisher,
	clock clockwork.Clock,
	cfg config.RewardsConfig,
	log *logger.Logger,
) *Service {
	burst := int(cfg.SweepRatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Service{
		db:        db,
		rewards:   rewards,
		traces:    traces,
		members:   members,
		matrices:  matrices,
		timers:    timers,
		locker:    locker,
		audit:     audit,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.SweepRatePerSecond), burst),
		log:       log,
	}
}

// SweepResult summarizes one full sweep run. Analytics carries the
// trailing-window rollup aggregates recomputed at the end of the run; it
// is nil when the aggregate query failed.
type SweepResult struct {
	ExpiredProcessed   int
	RolledUpToMember   int
	RolledUpToPlatform int
	TimersCompleted    int
	TimersExpired      int
	CascadedRewards    int
	Failures           int
	Analytics          *Analytics
}

// ProcessAllTimeouts runs both sweeps under the advisory lock.
// ErrSweepLocked means another instance holds the lock; the caller should
// skip this round, not retry.
func (s *Service) ProcessAllTimeouts(ctx context.Context) (*SweepResult, error) {
	if s.locker != nil {
		token, err := s.locker.AcquireLock(ctx, sweepLockKey, s.cfg.SweepLockTTL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to acquire sweep lock")
		}
		if token == "" {
			return nil, errors.ErrSweepLocked
		}
		defer func() {
			if err := s.locker.ReleaseLock(ctx, sweepLockKey, token); err != nil {
				s.log.Errorf("Failed to release sweep lock: %v", err)
			}
		}()
	}

	started := s.clock.Now()
	result := &SweepResult{}

	s.sweepExpiredRewards(ctx, result)
	s.sweepUpgradeTimers(ctx, result)

	analytics, err := s.GetRollupAnalytics(ctx)
	if err != nil {
		result.Failures++
		s.log.Errorf("Failed to compute rollup analytics: %v", err)
	} else {
		result.Analytics = analytics
	}

	elapsed := s.clock.Now().Sub(started)
	metrics.SweepDuration.Observe(elapsed.Seconds())

	s.log.Infow("Completed timeout sweep",
		"expired_processed", humanize.Comma(int64(result.ExpiredProcessed)),
		"to_member", result.RolledUpToMember,
		"to_platform", result.RolledUpToPlatform,
		"timers_completed", result.TimersCompleted,
		"timers_expired", result.TimersExpired,
		"cascaded", result.CascadedRewards,
		"failures", result.Failures,
		"elapsed", elapsed,
	)

	return result, nil
}

// sweepExpiredRewards processes expired pending rewards and lapsed reissued
// claimable rewards. Each record is handled in isolation; one failure never
// aborts the rest of the batch.
func (s *Service) sweepExpiredRewards(ctx context.Context, result *SweepResult) {
	now := s.clock.Now()

	expired, err := s.rewards.GetExpiredPending(ctx, now, sweepBatchSize)
	if err != nil {
		s.log.Errorf("Failed to fetch expired pending rewards: %v", err)
		result.Failures++
		return
	}

	for _, rec := range expired {
		s.processOne(ctx, rec, reward.StatusPending, reward.ReasonPendingExpired, result)
	}

	reissued, err := s.rewards.GetExpiredReissued(ctx, now, sweepBatchSize)
	if err != nil {
		s.log.Errorf("Failed to fetch expired reissued rewards: %v", err)
		result.Failures++
		return
	}

	for _, rec := range reissued {
		s.processOne(ctx, rec, reward.StatusClaimable, reward.ReasonPendingExpired, result)
	}
}

func (s *Service) processOne(ctx context.Context, rec *reward.Record, from reward.Status, reason reward.RollupReason, result *SweepResult) {
	if err := s.limiter.Wait(ctx); err != nil {
		result.Failures++
		return
	}

	outcome, err := s.rollUpReward(ctx, rec, from, reason)
	switch {
	case errors.Is(err, errors.ErrInvalidState):
		// A concurrent sweep or claim got there first. Already settled.
		s.log.Debugw("Reward already processed, skipping", "reward_id", rec.ID)
	case err != nil:
		metrics.SweepErrors.Inc()
		result.Failures++
		s.log.Errorf("Failed to roll up reward %s: %v", rec.ID, err)
	default:
		result.ExpiredProcessed++
		if outcome.ResolvedToMember() {
			result.RolledUpToMember++
			metrics.RollupsProcessed.WithLabelValues("member").Inc()
		} else {
			result.RolledUpToPlatform++
			metrics.RollupsProcessed.WithLabelValues("platform").Inc()
		}
	}
}

// rollUpReward resolves one expired reward: finds the next recipient, flips
// the original record to rollup, reissues the amount as a fresh claimable
// record with a shortened claim window, and writes the audit trace. The
// three writes share one transaction; a failed reissue or trace rolls the
// status flip back so the record stays sweepable.
func (s *Service) rollUpReward(ctx context.Context, rec *reward.Record, from reward.Status, reason reward.RollupReason) (*reward.Trace, error) {
	now := s.clock.Now()

	res := s.findRollupRecipient(ctx, rec)

	traceReason := reason
	if !res.Resolved() {
		traceReason = reward.ReasonNoQualifiedRecipient
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	if err := tx.Rewards().MarkRolledUp(ctx, rec.ID, from, res.Wallet, now); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	var newID *uuid.UUID
	if res.Resolved() {
		reissue := &reward.Record{
			ID:                       uuid.New(),
			RecipientWallet:          res.Wallet,
			TriggerWallet:            rec.TriggerWallet,
			TriggerLevel:             rec.TriggerLevel,
			MatrixRoot:               res.MatrixRoot,
			LayerNumber:              res.Layer,
			AmountCents:              rec.AmountCents,
			RequiresLevel:            rec.RequiresLevel,
			RecipientLevelAtCreation: res.RecipientLevel,
			Status:                   reward.StatusClaimable,
			PendingExpiresAt:         now.Add(s.cfg.RollupClaimWindow),
			CreatedAt:                now,
			RollupFromRewardID:       &rec.ID,
		}
		if err := tx.Rewards().Create(ctx, reissue); err != nil {
			_ = tx.Rollback()
			return nil, errors.Wrap(err, "failed to reissue reward")
		}
		newID = &reissue.ID
	}

	trace := &reward.Trace{
		ID:                uuid.New(),
		OriginalRecipient: rec.RecipientWallet,
		FinalRecipient:    res.Wallet,
		TriggerWallet:     rec.TriggerWallet,
		TriggerLevel:      rec.TriggerLevel,
		AmountCents:       rec.AmountCents,
		Reason:            traceReason,
		Path:              res.Path,
		RollupLayer:       res.Layer,
		ProcessedAt:       now,
	}
	if err := tx.Traces().Create(ctx, trace); err != nil {
		_ = tx.Rollback()
		return nil, errors.Wrap(err, "failed to write rollup trace")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit rollup")
	}

	s.publisher.PublishRewardRolledUp(ctx, &events.RewardRolledUpEvent{
		OriginalRewardID:  rec.ID,
		NewRewardID:       newID,
		OriginalRecipient: rec.RecipientWallet,
		FinalRecipient:    res.Wallet,
		AmountCents:       rec.AmountCents,
		Reason:            traceReason.String(),
		RollupLayer:       res.Layer,
		ProcessedAt:       now,
	})
	if err := s.audit.Record(ctx, reward.AuditEvent{
		EventType:       "reward_rolled_up",
		RewardID:        rec.ID,
		RecipientWallet: res.Wallet,
		TriggerWallet:   rec.TriggerWallet,
		TriggerLevel:    rec.TriggerLevel,
		LayerNumber:     res.Layer,
		AmountCents:     rec.AmountCents,
		Status:          reward.StatusRollup,
		OccurredAt:      now,
	}); err != nil {
		s.log.Debugw("Audit sink rejected reward_rolled_up event", "error", err)
	}

	s.log.Infow("Rolled up reward",
		"reward_id", rec.ID,
		"from", rec.RecipientWallet,
		"to", res.Wallet,
		"strategy", res.Strategy,
		"amount_cents", rec.AmountCents,
	)

	return trace, nil
}

// sweepUpgradeTimers completes timers whose member reached the target level
// and expires the rest, cascade-expiring every live reward the failed
// member still holds.
func (s *Service) sweepUpgradeTimers(ctx context.Context, result *SweepResult) {
	now := s.clock.Now()

	expired, err := s.timers.GetExpiredActive(ctx, now, sweepBatchSize)
	if err != nil {
		s.log.Errorf("Failed to fetch expired timers: %v", err)
		result.Failures++
		return
	}

	for _, t := range expired {
		if err := s.processTimer(ctx, t, result); err != nil {
			if errors.Is(err, errors.ErrInvalidState) {
				s.log.Debugw("Timer already processed, skipping", "timer_id", t.ID)
				continue
			}
			metrics.SweepErrors.Inc()
			result.Failures++
			s.log.Errorf("Failed to process timer %s: %v", t.ID, err)
		}
	}
}

func (s *Service) processTimer(ctx context.Context, t *timer.Timer, result *SweepResult) error {
	now := s.clock.Now()

	level, err := s.members.GetCurrentLevel(ctx, t.MemberWallet)
	if err != nil {
		return errors.Wrap(err, "failed to get member level")
	}

	if level >= t.TargetLevel {
		if err := s.timers.MarkCompleted(ctx, t.ID, now); err != nil {
			return err
		}
		result.TimersCompleted++
		metrics.TimersProcessed.WithLabelValues("completed").Inc()
		s.log.Infow("Upgrade timer completed", "timer_id", t.ID, "wallet", t.MemberWallet, "level", level)
		return nil
	}

	if err := s.timers.MarkExpired(ctx, t.ID, now); err != nil {
		return err
	}
	result.TimersExpired++
	metrics.TimersProcessed.WithLabelValues("expired").Inc()

	cascaded := s.cascadeExpire(ctx, t.MemberWallet, result)
	result.CascadedRewards += cascaded

	s.publisher.PublishTimerExpired(ctx, &events.TimerExpiredEvent{
		TimerID:       t.ID,
		MemberWallet:  t.MemberWallet,
		TargetLevel:   t.TargetLevel,
		CascadedCount: cascaded,
		ExpiredAt:     now,
	})

	s.log.Infow("Upgrade timer expired",
		"timer_id", t.ID,
		"wallet", t.MemberWallet,
		"target_level", t.TargetLevel,
		"cascaded", cascaded,
	)

	return nil
}

// cascadeExpire rolls up every pending and claimable reward the member
// holds, through the same recipient search the expiry sweep uses.
func (s *Service) cascadeExpire(ctx context.Context, wallet string, result *SweepResult) int {
	cascaded := 0

	pending, err := s.rewards.GetAllPendingByWallet(ctx, wallet)
	if err != nil {
		s.log.Errorf("Failed to fetch pending rewards of %s: %v", wallet, err)
		result.Failures++
		return cascaded
	}
	for _, rec := range pending {
		if s.cascadeOne(ctx, rec, reward.StatusPending, result) {
			cascaded++
		}
	}

	claimable, err := s.rewards.GetClaimableByWallet(ctx, wallet)
	if err != nil {
		s.log.Errorf("Failed to fetch claimable rewards of %s: %v", wallet, err)
		result.Failures++
		return cascaded
	}
	for _, rec := range claimable {
		if s.cascadeOne(ctx, rec, reward.StatusClaimable, result) {
			cascaded++
		}
	}

	return cascaded
}

func (s *Service) cascadeOne(ctx context.Context, rec *reward.Record, from reward.Status, result *SweepResult) bool {
	if err := s.limiter.Wait(ctx); err != nil {
		result.Failures++
		return false
	}

	_, err := s.rollUpReward(ctx, rec, from, reward.ReasonMemberUpgradeTimeout)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidState) {
			// Claimed or rolled up concurrently. Not ours anymore.
			return false
		}
		metrics.SweepErrors.Inc()
		result.Failures++
		s.log.Errorf("Failed to cascade-expire reward %s: %v", rec.ID, err)
		return false
	}
	return true
}

// CreateUpgradeTimer places a member under upgrade pressure. A zero grace
// period falls back to the configured default. Any active timer the member
// already holds for the same target level is superseded.
func (s *Service) CreateUpgradeTimer(ctx context.Context, wallet string, currentLevel, targetLevel int, gracePeriod time.Duration) (*timer.Timer, error) {
	if !levelconfig.ValidLevel(targetLevel) || targetLevel <= currentLevel {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "target level %d from level %d", targetLevel, currentLevel)
	}
	if gracePeriod <= 0 {
		gracePeriod = s.cfg.UpgradeGracePeriod
	}

	now := s.clock.Now()

	superseded, err := s.timers.ExpireActiveForTarget(ctx, wallet, targetLevel, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to supersede timers")
	}
	if superseded > 0 {
		s.log.Infow("Superseded active upgrade timers",
			"wallet", wallet,
			"target_level", targetLevel,
			"count", superseded,
		)
	}

	t := &timer.Timer{
		ID:           uuid.New(),
		MemberWallet: wallet,
		CurrentLevel: currentLevel,
		TargetLevel:  targetLevel,
		Status:       timer.StatusActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(gracePeriod),
	}
	if err := s.timers.Create(ctx, t); err != nil {
		return nil, errors.Wrap(err, "failed to create timer")
	}

	s.publisher.PublishTimerCreated(ctx, &events.TimerCreatedEvent{
		TimerID:      t.ID,
		MemberWallet: t.MemberWallet,
		CurrentLevel: t.CurrentLevel,
		TargetLevel:  t.TargetLevel,
		ExpiresAt:    t.ExpiresAt,
		CreatedAt:    t.CreatedAt,
	})

	s.log.Infow("Created upgrade timer",
		"timer_id", t.ID,
		"wallet", wallet,
		"target_level", targetLevel,
		"expires_at", t.ExpiresAt,
	)

	return t, nil
}

// TimerStatus pairs the member's active timers with what is at stake:
// the pending rewards that cascade-expire if any timer lapses.
type TimerStatus struct {
	Timers      []*timer.Timer `json:"timers"`
	AtRiskCount int            `json:"at_risk_count"`
	AtRiskCents int64          `json:"at_risk_cents"`
}

// GetUpgradeTimers returns the member's active timers, soonest expiring
// first, with the count and value of the pending rewards riding on them.
func (s *Service) GetUpgradeTimers(ctx context.Context, wallet string) (*TimerStatus, error) {
	timers, err := s.timers.GetActiveByWallet(ctx, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get active timers")
	}

	count, err := s.rewards.CountPendingByWallet(ctx, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count pending rewards")
	}
	sum, err := s.rewards.SumPendingByWallet(ctx, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum pending rewards")
	}

	return &TimerStatus{
		Timers:      timers,
		AtRiskCount: count,
		AtRiskCents: sum,
	}, nil
}
