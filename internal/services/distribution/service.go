package distribution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"beehive/internal/adapters/config"
	"beehive/internal/domain/levelconfig"
	"beehive/internal/domain/matrix"
	"beehive/internal/domain/member"
	"beehive/internal/domain/reward"
	"beehive/internal/events"
	"beehive/internal/metrics"
	"beehive/pkg/errors"
	"beehive/pkg/logger"
)

// Service distributes layer rewards for member level upgrades. For every
// matrix the triggering member participates in it walks the ancestor layers
// upward, halving the reward amount with each layer of distance, and writes
// one reward record per qualifying recipient. The matrix root always
// receives the full configured amount.
type Service struct {
	levels    levelconfig.Repository
	members   member.Repository
	matrices  matrix.Repository
	rewards   reward.Repository
	audit     reward.AuditSink
	publisher *events.Publisher
	clock     clockwork.Clock
	cfg       config.RewardsConfig
	log       *logger.Logger
}

// NewService creates a new distribution service
func NewService(
	levels levelconfig.Repository,
	members member.Repository,
	matrices matrix.Repository,
	rewards reward.Repository,
	audit reward.AuditSink,
	publisher *events.Publisher,
	clock clockwork.Clock,
	cfg config.RewardsConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		levels:    levels,
		members:   members,
		matrices:  matrices,
		rewards:   rewards,
		audit:     audit,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		log:       log,
	}
}

// ProcessLevelUpgradeRewards handles a member purchasing a level upgrade.
// It returns every reward record it created. The authoritative reward unit
// amount comes from the level configuration, never from the payment amount.
//
// A level-1 trigger additionally flips the member's first-activation flag.
// Absence of a qualifying candidate at a layer is logged and skipped, never
// an error; each record insert is independent, so one failed insert does
// not abort the remaining layers.
func (s *Service) ProcessLevelUpgradeRewards(ctx context.Context, triggerWallet string, triggerLevel int) ([]*reward.Record, error) {
	if !levelconfig.ValidLevel(triggerLevel) {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "level %d out of range", triggerLevel)
	}

	cfg, err := s.levels.GetByLevel(ctx, triggerLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "level %d configuration", triggerLevel)
	}

	now := s.clock.Now()

	if triggerLevel == levelconfig.MinLevel {
		if err := s.activateMember(ctx, triggerWallet, now); err != nil {
			return nil, err
		}
	}

	memberships, err := s.matrices.GetMemberships(ctx, triggerWallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get matrix memberships")
	}

	if len(memberships) == 0 {
		s.log.Infow("Member has no matrix positions, nothing to distribute",
			"wallet", triggerWallet,
			"level", triggerLevel,
		)
		return nil, nil
	}

	var created []*reward.Record
	for _, pos := range memberships {
		records := s.processMatrixRewards(ctx, pos, triggerWallet, triggerLevel, cfg, now)
		created = append(created, records...)
	}

	s.log.Infow("Distributed upgrade rewards",
		"wallet", triggerWallet,
		"level", triggerLevel,
		"matrices", len(memberships),
		"rewards_created", len(created),
	)

	return created, nil
}

// processMatrixRewards walks one matrix: ancestor layers from the member's
// layer upward to layer 1, then the matrix root.
func (s *Service) processMatrixRewards(ctx context.Context, pos *matrix.Position, triggerWallet string, triggerLevel int, cfg *levelconfig.Config, now time.Time) []*reward.Record {
	var created []*reward.Record

	baseReward := cfg.RewardAmountCents

	for layer := pos.Layer - 1; layer >= 1; layer-- {
		distance := pos.Layer - layer
		amount := baseReward >> uint(distance-1)
		if amount == 0 {
			s.log.Debugw("Reward halved to zero, stopping walk",
				"matrix_root", pos.MatrixRoot,
				"layer", layer,
			)
			break
		}

		candidate, err := s.layerCandidate(ctx, pos.MatrixRoot, layer)
		if err != nil {
			s.log.Errorf("Failed to read layer %d of matrix %s: %v", layer, pos.MatrixRoot, err)
			continue
		}
		if candidate == nil {
			s.log.Debugw("No qualifying candidate in layer",
				"matrix_root", pos.MatrixRoot,
				"layer", layer,
			)
			continue
		}

		rec := s.createReward(ctx, candidate.MemberWallet, triggerWallet, triggerLevel, pos.MatrixRoot, layer, amount, now)
		if rec != nil {
			created = append(created, rec)
		}
	}

	// The root receives the full amount at the root position, never a
	// halved share, unless the root is the triggering member itself.
	if pos.MatrixRoot != triggerWallet {
		rec := s.createReward(ctx, pos.MatrixRoot, triggerWallet, triggerLevel, pos.MatrixRoot, reward.RootLayer, baseReward, now)
		if rec != nil {
			created = append(created, rec)
		}

		if triggerLevel == levelconfig.MaxLevel {
			if rec := s.createMasterReward(ctx, pos.MatrixRoot, triggerWallet, cfg, now); rec != nil {
				created = append(created, rec)
			}
		}
	}

	return created
}

// layerCandidate returns the first active, activated position of a layer,
// or nil when the layer holds no eligible recipient.
func (s *Service) layerCandidate(ctx context.Context, matrixRoot string, layer int) (*matrix.Position, error) {
	positions, err := s.matrices.GetLayerMembers(ctx, matrixRoot, layer)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if p.IsActive && p.MemberActivated {
			return p, nil
		}
	}
	return nil, nil
}

// createReward writes one reward record, claimable when the recipient's
// present level meets the trigger level, pending otherwise. Insert failures
// are logged and swallowed so the rest of the walk proceeds.
func (s *Service) createReward(ctx context.Context, recipientWallet, triggerWallet string, triggerLevel int, matrixRoot string, layer int, amount int64, now time.Time) *reward.Record {
	recipientLevel, err := s.members.GetCurrentLevel(ctx, recipientWallet)
	if err != nil {
		s.log.Errorf("Failed to read level of %s: %v", recipientWallet, err)
		return nil
	}

	status := reward.StatusPending
	if recipientLevel >= triggerLevel {
		status = reward.StatusClaimable
	}

	rec := &reward.Record{
		ID:                       uuid.New(),
		RecipientWallet:          recipientWallet,
		TriggerWallet:            triggerWallet,
		TriggerLevel:             triggerLevel,
		MatrixRoot:               matrixRoot,
		LayerNumber:              layer,
		AmountCents:              amount,
		RequiresLevel:            triggerLevel,
		RecipientLevelAtCreation: recipientLevel,
		Status:                   status,
		PendingExpiresAt:         now.Add(s.cfg.PendingTimeout),
		CreatedAt:                now,
	}

	if err := s.rewards.Create(ctx, rec); err != nil {
		s.log.Errorf("Failed to create reward for %s at layer %d: %v", recipientWallet, layer, err)
		return nil
	}

	s.recordCreated(ctx, rec, now)
	return rec
}

// createMasterReward grants the matrix root the additive level-19 master
// reward, immediately claimable, only when the root itself holds level 19.
func (s *Service) createMasterReward(ctx context.Context, rootWallet, triggerWallet string, cfg *levelconfig.Config, now time.Time) *reward.Record {
	rootLevel, err := s.members.GetCurrentLevel(ctx, rootWallet)
	if err != nil {
		s.log.Errorf("Failed to read level of root %s: %v", rootWallet, err)
		return nil
	}
	if rootLevel < levelconfig.MaxLevel {
		return nil
	}

	rec := &reward.Record{
		ID:                       uuid.New(),
		RecipientWallet:          rootWallet,
		TriggerWallet:            triggerWallet,
		TriggerLevel:             cfg.Level,
		MatrixRoot:               rootWallet,
		LayerNumber:              reward.RootLayer,
		AmountCents:              cfg.RewardAmountCents,
		RequiresLevel:            cfg.Level,
		RecipientLevelAtCreation: rootLevel,
		Status:                   reward.StatusClaimable,
		PendingExpiresAt:         now.Add(s.cfg.PendingTimeout),
		CreatedAt:                now,
	}

	if err := s.rewards.Create(ctx, rec); err != nil {
		s.log.Errorf("Failed to create master reward for %s: %v", rootWallet, err)
		return nil
	}

	s.log.Infow("Created master reward",
		"root", rootWallet,
		"trigger", triggerWallet,
		"amount_cents", rec.AmountCents,
	)

	s.recordCreated(ctx, rec, now)
	return rec
}

func (s *Service) recordCreated(ctx context.Context, rec *reward.Record, now time.Time) {
	metrics.RewardsDistributed.WithLabelValues(string(rec.Status)).Inc()
	metrics.RewardAmountDistributed.Add(float64(rec.AmountCents))

	s.publisher.PublishRewardCreated(ctx, &events.RewardCreatedEvent{
		RewardID:        rec.ID,
		RecipientWallet: rec.RecipientWallet,
		TriggerWallet:   rec.TriggerWallet,
		TriggerLevel:    rec.TriggerLevel,
		LayerNumber:     rec.LayerNumber,
		AmountCents:     rec.AmountCents,
		Status:          string(rec.Status),
		CreatedAt:       rec.CreatedAt,
	})

	if err := s.audit.Record(ctx, reward.AuditEvent{
		EventType:       "reward_created",
		RewardID:        rec.ID,
		RecipientWallet: rec.RecipientWallet,
		TriggerWallet:   rec.TriggerWallet,
		TriggerLevel:    rec.TriggerLevel,
		LayerNumber:     rec.LayerNumber,
		AmountCents:     rec.AmountCents,
		Status:          rec.Status,
		OccurredAt:      now,
	}); err != nil {
		s.log.Debugw("Audit sink rejected reward_created event", "error", err)
	}
}

// activateMember flips first-activation on a level-1 trigger. Already
// activated members pass through untouched.
func (s *Service) activateMember(ctx context.Context, wallet string, now time.Time) error {
	m, err := s.members.GetByWallet(ctx, wallet)
	if err != nil {
		return errors.Wrap(err, "failed to get member")
	}
	if m.IsActivated {
		return nil
	}

	if err := s.members.Activate(ctx, wallet, now); err != nil {
		return errors.Wrap(err, "failed to activate member")
	}
	if err := s.matrices.ActivatePositions(ctx, wallet, now); err != nil {
		return errors.Wrap(err, "failed to activate matrix positions")
	}

	s.publisher.PublishMemberActivated(ctx, &events.MemberActivatedEvent{
		MemberWallet: wallet,
		ActivatedAt:  now,
	})

	s.log.Infow("Activated member", "wallet", wallet)
	return nil
}
