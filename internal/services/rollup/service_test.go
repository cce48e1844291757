package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"beehive/internal/adapters/config"
	"beehive/internal/domain/matrix"
	"beehive/internal/domain/member"
	"beehive/internal/domain/reward"
	"beehive/internal/domain/timer"
	"beehive/internal/events"
	pkgerrors "beehive/pkg/errors"
	"beehive/pkg/logger"
)

// MockRewardRepository is a mock for reward.Repository
type MockRewardRepository struct {
	mock.Mock
}

func (m *MockRewardRepository) Create(ctx context.Context, rec *reward.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRewardRepository) GetByID(ctx context.Context, id uuid.UUID) (*reward.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reward.Record), args.Error(1)
}

func (m *MockRewardRepository) GetClaimableByWallet(ctx context.Context, wallet string) ([]*reward.Record, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reward.Record), args.Error(1)
}

func (m *MockRewardRepository) GetPendingByWallet(ctx context.Context, wallet string, now time.Time) ([]*reward.Record, error) {
	args := m.Called(ctx, wallet, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reward.Record), args.Error(1)
}

func (m *MockRewardRepository) GetAllPendingByWallet(ctx context.Context, wallet string) ([]*reward.Record, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reward.Record), args.Error(1)
}

func (m *MockRewardRepository) GetHistory(ctx context.Context, wallet string, limit int) ([]*reward.Record, error) {
	args := m.Called(ctx, wallet, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reward.Record), args.Error(1)
}

func (m *MockRewardRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*reward.Record, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reward.Record), args.Error(1)
}

func (m *MockRewardRepository) GetExpiredReissued(ctx context.Context, now time.Time, limit int) ([]*reward.Record, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reward.Record), args.Error(1)
}

func (m *MockRewardRepository) MarkClaimed(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockRewardRepository) MarkRolledUp(ctx context.Context, id uuid.UUID, from reward.Status, toWallet string, at time.Time) error {
	args := m.Called(ctx, id, from, toWallet, at)
	return args.Error(0)
}

func (m *MockRewardRepository) CountPendingByWallet(ctx context.Context, wallet string) (int, error) {
	args := m.Called(ctx, wallet)
	return args.Int(0), args.Error(1)
}

func (m *MockRewardRepository) SumPendingByWallet(ctx context.Context, wallet string) (int64, error) {
	args := m.Called(ctx, wallet)
	return args.Get(0).(int64), args.Error(1)
}

// MockTraceRepository is a mock for reward.TraceRepository
type MockTraceRepository struct {
	mock.Mock
}

func (m *MockTraceRepository) Create(ctx context.Context, trace *reward.Trace) error {
	args := m.Called(ctx, trace)
	return args.Error(0)
}

func (m *MockTraceRepository) GetSince(ctx context.Context, since time.Time) ([]*reward.Trace, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reward.Trace), args.Error(1)
}

// MockMemberRepository is a mock for member.Repository
type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) GetByWallet(ctx context.Context, wallet string) (*member.Member, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*member.Member), args.Error(1)
}

func (m *MockMemberRepository) GetCurrentLevel(ctx context.Context, wallet string) (int, error) {
	args := m.Called(ctx, wallet)
	return args.Int(0), args.Error(1)
}

func (m *MockMemberRepository) Activate(ctx context.Context, wallet string, at time.Time) error {
	args := m.Called(ctx, wallet, at)
	return args.Error(0)
}

func (m *MockMemberRepository) FindQualified(ctx context.Context, minLevel, limit int) ([]*member.Member, error) {
	args := m.Called(ctx, minLevel, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*member.Member), args.Error(1)
}

// MockMatrixRepository is a mock for matrix.Repository
type MockMatrixRepository struct {
	mock.Mock
}

func (m *MockMatrixRepository) GetPosition(ctx context.Context, matrixRoot, memberWallet string) (*matrix.Position, error) {
	args := m.Called(ctx, matrixRoot, memberWallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*matrix.Position), args.Error(1)
}

func (m *MockMatrixRepository) GetLayerMembers(ctx context.Context, matrixRoot string, layer int) ([]*matrix.Position, error) {
	args := m.Called(ctx, matrixRoot, layer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*matrix.Position), args.Error(1)
}

func (m *MockMatrixRepository) GetMemberships(ctx context.Context, memberWallet string) ([]*matrix.Position, error) {
	args := m.Called(ctx, memberWallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*matrix.Position), args.Error(1)
}

func (m *MockMatrixRepository) ActivatePositions(ctx context.Context, memberWallet string, at time.Time) error {
	args := m.Called(ctx, memberWallet, at)
	return args.Error(0)
}

// MockTimerRepository is a mock for timer.Repository
type MockTimerRepository struct {
	mock.Mock
}

func (m *MockTimerRepository) Create(ctx context.Context, t *timer.Timer) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTimerRepository) GetByID(ctx context.Context, id uuid.UUID) (*timer.Timer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timer.Timer), args.Error(1)
}

func (m *MockTimerRepository) GetActiveByWallet(ctx context.Context, wallet string) ([]*timer.Timer, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*timer.Timer), args.Error(1)
}

func (m *MockTimerRepository) GetExpiredActive(ctx context.Context, now time.Time, limit int) ([]*timer.Timer, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*timer.Timer), args.Error(1)
}

func (m *MockTimerRepository) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockTimerRepository) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockTimerRepository) ExpireActiveForTarget(ctx context.Context, wallet string, targetLevel int, at time.Time) (int, error) {
	args := m.Called(ctx, wallet, targetLevel, at)
	return args.Int(0), args.Error(1)
}

// mockTx hands the fixture's shared mocks back as transaction-bound
// repositories and records how the transaction ended.
type mockTx struct {
	rewards    reward.Repository
	traces     reward.TraceRepository
	committed  bool
	rolledBack bool
}

func (t *mockTx) Rewards() reward.Repository     { return t.rewards }
func (t *mockTx) Traces() reward.TraceRepository { return t.traces }

func (t *mockTx) Commit() error {
	t.committed = true
	return nil
}

func (t *mockTx) Rollback() error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type mockDB struct {
	rewards *MockRewardRepository
	traces  *MockTraceRepository
	txs     []*mockTx
}

func (d *mockDB) BeginTx(ctx context.Context) (Tx, error) {
	tx := &mockTx{rewards: d.rewards, traces: d.traces}
	d.txs = append(d.txs, tx)
	return tx, nil
}

type noopSink struct{}

func (noopSink) Record(ctx context.Context, event reward.AuditEvent) error { return nil }

func testLogger() *logger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return &logger.Logger{SugaredLogger: zapLogger.Sugar()}
}

type fixture struct {
	db       *mockDB
	rewards  *MockRewardRepository
	traces   *MockTraceRepository
	members  *MockMemberRepository
	matrices *MockMatrixRepository
	timers   *MockTimerRepository
	clock    *clockwork.FakeClock
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		rewards:  new(MockRewardRepository),
		traces:   new(MockTraceRepository),
		members:  new(MockMemberRepository),
		matrices: new(MockMatrixRepository),
		timers:   new(MockTimerRepository),
		clock:    clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.db = &mockDB{rewards: f.rewards, traces: f.traces}

	log := testLogger()
	cfg := config.RewardsConfig{
		PendingTimeout:            72 * time.Hour,
		RollupClaimWindow:         24 * time.Hour,
		UpgradeGracePeriod:        168 * time.Hour,
		MaxLayers:                 19,
		AnalyticsWindow:           720 * time.Hour,
		CrossMatrixCandidateLimit: 10,
		SweepRatePerSecond:        1000,
		SweepLockTTL:              10 * time.Minute,
	}

	f.svc = NewService(
		f.db, f.rewards, f.traces, f.members, f.matrices, f.timers,
		nil, noopSink{}, events.NewPublisher(nil, log),
		f.clock, cfg, log,
	)
	return f
}

func activatedMember(wallet string, level int) *member.Member {
	return &member.Member{WalletAddress: wallet, CurrentLevel: level, IsActivated: true}
}

func expiredRecord(recipient, trigger, root string, layer, requires int, amount int64) *reward.Record {
	return &reward.Record{
		ID:               uuid.New(),
		RecipientWallet:  recipient,
		TriggerWallet:    trigger,
		MatrixRoot:       root,
		TriggerLevel:     requires,
		LayerNumber:      layer,
		AmountCents:      amount,
		RequiresLevel:    requires,
		Status:           reward.StatusPending,
		PendingExpiresAt: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) noTimers() {
	f.timers.On("GetExpiredActive", mock.Anything, mock.Anything, mock.Anything).
		Return([]*timer.Timer{}, nil)
}

func (f *fixture) noReissued() {
	f.rewards.On("GetExpiredReissued", mock.Anything, mock.Anything, mock.Anything).
		Return([]*reward.Record{}, nil)
}

func (f *fixture) noTraces() {
	f.traces.On("GetSince", mock.Anything, mock.Anything).
		Return([]*reward.Trace{}, nil)
}

func TestProcessAllTimeouts_SameMatrixStrategy(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	rec := expiredRecord("0xW", "0xM", "0xR", 3, 4, 5000)

	f.rewards.On("GetExpiredPending", mock.Anything, now, mock.Anything).
		Return([]*reward.Record{rec}, nil)
	f.noReissued()
	f.noTimers()
	f.noTraces()

	// Trigger member sits at layer 4. Layer 3 only holds the failed
	// recipient, who is never a candidate; layer 2 holds a qualified member.
	f.matrices.On("GetPosition", mock.Anything, "0xR", "0xM").
		Return(&matrix.Position{MatrixRoot: "0xR", MemberWallet: "0xM", Layer: 4}, nil)
	f.matrices.On("GetLayerMembers", mock.Anything, "0xR", 3).
		Return([]*matrix.Position{{MatrixRoot: "0xR", MemberWallet: "0xW", Layer: 3, IsActive: true, MemberActivated: true}}, nil)
	f.matrices.On("GetLayerMembers", mock.Anything, "0xR", 2).
		Return([]*matrix.Position{{MatrixRoot: "0xR", MemberWallet: "0xG", Layer: 2, IsActive: true, MemberActivated: true}}, nil)
	f.members.On("GetByWallet", mock.Anything, "0xG").
		Return(activatedMember("0xG", 5), nil)

	f.rewards.On("MarkRolledUp", mock.Anything, rec.ID, reward.StatusPending, "0xG", now).
		Return(nil)

	var reissued *reward.Record
	f.rewards.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			reissued = args.Get(1).(*reward.Record)
		}).Return(nil)

	var trace *reward.Trace
	f.traces.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			trace = args.Get(1).(*reward.Trace)
		}).Return(nil)

	result, err := f.svc.ProcessAllTimeouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.ExpiredProcessed)
	assert.Equal(t, 1, result.RolledUpToMember)
	assert.Equal(t, 0, result.RolledUpToPlatform)
	assert.Equal(t, 0, result.Failures)

	require.Len(t, f.db.txs, 1)
	assert.True(t, f.db.txs[0].committed)

	require.NotNil(t, reissued)
	assert.Equal(t, "0xG", reissued.RecipientWallet)
	assert.Equal(t, reward.StatusClaimable, reissued.Status)
	assert.Equal(t, int64(5000), reissued.AmountCents)
	assert.Equal(t, 2, reissued.LayerNumber)
	assert.Equal(t, now.Add(24*time.Hour), reissued.PendingExpiresAt)
	require.NotNil(t, reissued.RollupFromRewardID)
	assert.Equal(t, rec.ID, *reissued.RollupFromRewardID)

	require.NotNil(t, trace)
	assert.Equal(t, "0xW", trace.OriginalRecipient)
	assert.Equal(t, "0xG", trace.FinalRecipient)
	assert.Equal(t, reward.ReasonPendingExpired, trace.Reason)
	assert.Equal(t, 2, trace.RollupLayer)
	assert.True(t, trace.ResolvedToMember())
}

func TestProcessAllTimeouts_PlatformFallback(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	rec := expiredRecord("0xW", "0xM", "0xR", 2, 10, 5000)

	f.rewards.On("GetExpiredPending", mock.Anything, now, mock.Anything).
		Return([]*reward.Record{rec}, nil)
	f.noReissued()
	f.noTimers()
	f.noTraces()

	// Nobody anywhere qualifies.
	f.matrices.On("GetPosition", mock.Anything, "0xR", "0xM").
		Return(&matrix.Position{MatrixRoot: "0xR", MemberWallet: "0xM", Layer: 2}, nil)
	f.matrices.On("GetLayerMembers", mock.Anything, "0xR", 1).
		Return([]*matrix.Position{}, nil)
	f.members.On("GetByWallet", mock.Anything, "0xR").
		Return(activatedMember("0xR", 3), nil)
	f.matrices.On("GetMemberships", mock.Anything, "0xM").
		Return([]*matrix.Position{{MatrixRoot: "0xR", MemberWallet: "0xM", Layer: 2}}, nil)
	f.members.On("FindQualified", mock.Anything, 10, 10).
		Return([]*member.Member{}, nil)

	f.rewards.On("MarkRolledUp", mock.Anything, rec.ID, reward.StatusPending, reward.PlatformWallet, now).
		Return(nil)

	var trace *reward.Trace
	f.traces.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			trace = args.Get(1).(*reward.Trace)
		}).Return(nil)

	result, err := f.svc.ProcessAllTimeouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.RolledUpToPlatform)
	f.rewards.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	require.NotNil(t, trace)
	assert.Equal(t, reward.PlatformWallet, trace.FinalRecipient)
	assert.Equal(t, reward.ReasonNoQualifiedRecipient, trace.Reason)
	assert.Equal(t, reward.GlobalFallbackLayer, trace.RollupLayer)
	assert.False(t, trace.ResolvedToMember())
}

func TestProcessAllTimeouts_GlobalFallbackStrategy(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	rec := expiredRecord("0xW", "0xM", "0xR", 2, 5, 2500)

	f.rewards.On("GetExpiredPending", mock.Anything, now, mock.Anything).
		Return([]*reward.Record{rec}, nil)
	f.noReissued()
	f.noTimers()
	f.noTraces()

	f.matrices.On("GetPosition", mock.Anything, "0xR", "0xM").
		Return(&matrix.Position{MatrixRoot: "0xR", MemberWallet: "0xM", Layer: 2}, nil)
	f.matrices.On("GetLayerMembers", mock.Anything, "0xR", 1).
		Return([]*matrix.Position{}, nil)
	f.members.On("GetByWallet", mock.Anything, "0xR").
		Return(activatedMember("0xR", 2), nil)
	f.matrices.On("GetMemberships", mock.Anything, "0xM").
		Return([]*matrix.Position{{MatrixRoot: "0xR", MemberWallet: "0xM", Layer: 2}}, nil)
	f.members.On("FindQualified", mock.Anything, 5, 10).
		Return([]*member.Member{activatedMember("0xQ", 9)}, nil)

	f.rewards.On("MarkRolledUp", mock.Anything, rec.ID, reward.StatusPending, "0xQ", now).
		Return(nil)
	f.rewards.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.traces.On("Create", mock.Anything, mock.Anything).Return(nil)

	result, err := f.svc.ProcessAllTimeouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RolledUpToMember)
}

func TestProcessAllTimeouts_AlreadyProcessedIsSkipped(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	rec := expiredRecord("0xW", "0xM", "0xR", 2, 4, 5000)

	f.rewards.On("GetExpiredPending", mock.Anything, now, mock.Anything).
		Return([]*reward.Record{rec}, nil)
	f.noReissued()
	f.noTimers()
	f.noTraces()

	f.matrices.On("GetPosition", mock.Anything, "0xR", "0xM").
		Return(&matrix.Position{MatrixRoot: "0xR", MemberWallet: "0xM", Layer: 2}, nil)
	f.matrices.On("GetLayerMembers", mock.Anything, "0xR", 1).
		Return([]*matrix.Position{{MatrixRoot: "0xR", MemberWallet: "0xG", Layer: 1, IsActive: true, MemberActivated: true}}, nil)
	f.members.On("GetByWallet", mock.Anything, "0xG").
		Return(activatedMember("0xG", 5), nil)

	// A concurrent run settled the record first.
	f.rewards.On("MarkRolledUp", mock.Anything, rec.ID, reward.StatusPending, "0xG", now).
		Return(pkgerrors.Wrap(pkgerrors.ErrInvalidState, "reward is not pending"))

	result, err := f.svc.ProcessAllTimeouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExpiredProcessed)
	assert.Equal(t, 0, result.Failures)
	f.traces.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.rewards.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProcessAllTimeouts_TimerCompleted(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	f.rewards.On("GetExpiredPending", mock.Anything, now, mock.Anything).
		Return([]*reward.Record{}, nil)
	f.noReissued()
	f.noTraces()

	tm := &timer.Timer{
		ID:           uuid.New(),
		MemberWallet: "0xW",
		CurrentLevel: 3,
		TargetLevel:  4,
		Status:       timer.StatusActive,
		ExpiresAt:    now.Add(-time.Hour),
	}
	f.timers.On("GetExpiredActive", mock.Anything, now, mock.Anything).
		Return([]*timer.Timer{tm}, nil)
	f.members.On("GetCurrentLevel", mock.Anything, "0xW").Return(4, nil)
	f.timers.On("MarkCompleted", mock.Anything, tm.ID, now).Return(nil)

	result, err := f.svc.ProcessAllTimeouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TimersCompleted)
	assert.Equal(t, 0, result.TimersExpired)
	f.rewards.AssertNotCalled(t, "GetAllPendingByWallet", mock.Anything, mock.Anything)
}

func TestProcessAllTimeouts_TimerExpiryCascades(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	f.rewards.On("GetExpiredPending", mock.Anything, now, mock.Anything).
		Return([]*reward.Record{}, nil)
	f.noReissued()
	f.noTraces()

	tm := &timer.Timer{
		ID:           uuid.New(),
		MemberWallet: "0xW",
		CurrentLevel: 2,
		TargetLevel:  4,
		Status:       timer.StatusActive,
		ExpiresAt:    now.Add(-time.Hour),
	}
	f.timers.On("GetExpiredActive", mock.Anything, now, mock.Anything).
		Return([]*timer.Timer{tm}, nil)
	f.members.On("GetCurrentLevel", mock.Anything, "0xW").Return(2, nil)
	f.timers.On("MarkExpired", mock.Anything, tm.ID, now).Return(nil)

	pendingRec := expiredRecord("0xW", "0xM", "0xR", 2, 4, 5000)
	claimableRec := expiredRecord("0xW", "0xM", "0xR", 2, 4, 2500)
	claimableRec.Status = reward.StatusClaimable

	f.rewards.On("GetAllPendingByWallet", mock.Anything, "0xW").
		Return([]*reward.Record{pendingRec}, nil)
	f.rewards.On("GetClaimableByWallet", mock.Anything, "0xW").
		Return([]*reward.Record{claimableRec}, nil)

	// Search resolves both to the global fallback candidate.
	f.matrices.On("GetPosition", mock.Anything, "0xR", "0xM").
		Return(nil, pkgerrors.Wrap(pkgerrors.ErrNotFound, "no position"))
	f.matrices.On("GetMemberships", mock.Anything, "0xM").
		Return([]*matrix.Position{}, nil)
	f.members.On("FindQualified", mock.Anything, 4, 10).
		Return([]*member.Member{activatedMember("0xQ", 8)}, nil)

	f.rewards.On("MarkRolledUp", mock.Anything, pendingRec.ID, reward.StatusPending, "0xQ", now).
		Return(nil)
	f.rewards.On("MarkRolledUp", mock.Anything, claimableRec.ID, reward.StatusClaimable, "0xQ", now).
		Return(nil)
	f.rewards.On("Create", mock.Anything, mock.Anything).Return(nil)

	var reasons []reward.RollupReason
	f.traces.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			reasons = append(reasons, args.Get(1).(*reward.Trace).Reason)
		}).Return(nil)

	result, err := f.svc.ProcessAllTimeouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TimersExpired)
	assert.Equal(t, 2, result.CascadedRewards)
	require.Len(t, reasons, 2)
	for _, reason := range reasons {
		assert.Equal(t, reward.ReasonMemberUpgradeTimeout, reason)
	}
}

func TestProcessAllTimeouts_RecordFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	broken := expiredRecord("0xW1", "0xM", "0xR", 2, 4, 5000)
	healthy := expiredRecord("0xW2", "0xM", "0xR", 2, 4, 5000)

	f.rewards.On("GetExpiredPending", mock.Anything, now, mock.Anything).
		Return([]*reward.Record{broken, healthy}, nil)
	f.noReissued()
	f.noTimers()
	f.noTraces()

	f.matrices.On("GetPosition", mock.Anything, "0xR", "0xM").
		Return(&matrix.Position{MatrixRoot: "0xR", MemberWallet: "0xM", Layer: 2}, nil)
	f.matrices.On("GetLayerMembers", mock.Anything, "0xR", 1).
		Return([]*matrix.Position{{MatrixRoot: "0xR", MemberWallet: "0xG", Layer: 1, IsActive: true, MemberActivated: true}}, nil)
	f.members.On("GetByWallet", mock.Anything, "0xG").
		Return(activatedMember("0xG", 5), nil)

	f.rewards.On("MarkRolledUp", mock.Anything, broken.ID, reward.StatusPending, "0xG", now).
		Return(pkgerrors.New("connection reset"))
	f.rewards.On("MarkRolledUp", mock.Anything, healthy.ID, reward.StatusPending, "0xG", now).
		Return(nil)
	f.rewards.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.traces.On("Create", mock.Anything, mock.Anything).Return(nil)

	result, err := f.svc.ProcessAllTimeouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failures)
	assert.Equal(t, 1, result.ExpiredProcessed)
}

func TestProcessAllTimeouts_ReissueFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	rec := expiredRecord("0xW", "0xM", "0xR", 2, 4, 5000)

	f.rewards.On("GetExpiredPending", mock.Anything, now, mock.Anything).
		Return([]*reward.Record{rec}, nil)
	f.noReissued()
	f.noTimers()
	f.noTraces()

	f.matrices.On("GetPosition", mock.Anything, "0xR", "0xM").
		Return(&matrix.Position{MatrixRoot: "0xR", MemberWallet: "0xM", Layer: 2}, nil)
	f.matrices.On("GetLayerMembers", mock.Anything, "0xR", 1).
		Return([]*matrix.Position{{MatrixRoot: "0xR", MemberWallet: "0xG", Layer: 1, IsActive: true, MemberActivated: true}}, nil)
	f.members.On("GetByWallet", mock.Anything, "0xG").
		Return(activatedMember("0xG", 5), nil)

	// The status flip lands but the reissue insert fails. The whole
	// transaction must roll back so the record stays pending and sweepable.
	f.rewards.On("MarkRolledUp", mock.Anything, rec.ID, reward.StatusPending, "0xG", now).
		Return(nil)
	f.rewards.On("Create", mock.Anything, mock.Anything).
		Return(pkgerrors.New("connection reset"))

	result, err := f.svc.ProcessAllTimeouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExpiredProcessed)
	assert.Equal(t, 1, result.Failures)
	f.traces.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	require.Len(t, f.db.txs, 1)
	assert.True(t, f.db.txs[0].rolledBack)
	assert.False(t, f.db.txs[0].committed)
}

func TestProcessAllTimeouts_TraceFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	rec := expiredRecord("0xW", "0xM", "0xR", 2, 10, 5000)

	f.rewards.On("GetExpiredPending", mock.Anything, now, mock.Anything).
		Return([]*reward.Record{rec}, nil)
	f.noReissued()
	f.noTimers()
	f.noTraces()

	// Platform fallback: no reissue, only the flip and the trace.
	f.matrices.On("GetPosition", mock.Anything, "0xR", "0xM").
		Return(&matrix.Position{MatrixRoot: "0xR", MemberWallet: "0xM", Layer: 2}, nil)
	f.matrices.On("GetLayerMembers", mock.Anything, "0xR", 1).
		Return([]*matrix.Position{}, nil)
	f.members.On("GetByWallet", mock.Anything, "0xR").
		Return(activatedMember("0xR", 3), nil)
	f.matrices.On("GetMemberships", mock.Anything, "0xM").
		Return([]*matrix.Position{{MatrixRoot: "0xR", MemberWallet: "0xM", Layer: 2}}, nil)
	f.members.On("FindQualified", mock.Anything, 10, 10).
		Return([]*member.Member{}, nil)

	f.rewards.On("MarkRolledUp", mock.Anything, rec.ID, reward.StatusPending, reward.PlatformWallet, now).
		Return(nil)
	f.traces.On("Create", mock.Anything, mock.Anything).
		Return(pkgerrors.New("connection reset"))

	result, err := f.svc.ProcessAllTimeouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExpiredProcessed)
	assert.Equal(t, 1, result.Failures)

	require.Len(t, f.db.txs, 1)
	assert.True(t, f.db.txs[0].rolledBack)
	assert.False(t, f.db.txs[0].committed)
}

func TestProcessAllTimeouts_ReportsAnalytics(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	f.rewards.On("GetExpiredPending", mock.Anything, now, mock.Anything).
		Return([]*reward.Record{}, nil)
	f.noReissued()
	f.noTimers()

	f.traces.On("GetSince", mock.Anything, now.Add(-720*time.Hour)).
		Return([]*reward.Trace{
			{FinalRecipient: "0xA", AmountCents: 5000, RollupLayer: 3},
			{FinalRecipient: reward.PlatformWallet, AmountCents: 2500, RollupLayer: reward.GlobalFallbackLayer},
		}, nil)

	result, err := f.svc.ProcessAllTimeouts(context.Background())
	require.NoError(t, err)

	require.NotNil(t, result.Analytics)
	assert.Equal(t, 2, result.Analytics.TotalExpired)
	assert.Equal(t, 1, result.Analytics.ResolvedToMember)
	assert.Equal(t, "50", result.Analytics.EfficiencyRate.String())
}

func TestCreateUpgradeTimer(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	f.timers.On("ExpireActiveForTarget", mock.Anything, "0xW", 5, now).Return(1, nil)

	var created *timer.Timer
	f.timers.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*timer.Timer)
		}).Return(nil)

	tm, err := f.svc.CreateUpgradeTimer(context.Background(), "0xW", 3, 5, 0)
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, created.ID, tm.ID)
	assert.Equal(t, timer.StatusActive, tm.Status)
	assert.Equal(t, now.Add(168*time.Hour), tm.ExpiresAt)
}

func TestCreateUpgradeTimer_InvalidTarget(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateUpgradeTimer(context.Background(), "0xW", 5, 5, 0)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	_, err = f.svc.CreateUpgradeTimer(context.Background(), "0xW", 5, 20, 0)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
}

func TestGetUpgradeTimers(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	active := []*timer.Timer{{
		ID:           uuid.New(),
		MemberWallet: "0xW",
		CurrentLevel: 2,
		TargetLevel:  4,
		Status:       timer.StatusActive,
		ExpiresAt:    now.Add(100 * time.Hour),
	}}
	f.timers.On("GetActiveByWallet", mock.Anything, "0xW").Return(active, nil)
	f.rewards.On("CountPendingByWallet", mock.Anything, "0xW").Return(2, nil)
	f.rewards.On("SumPendingByWallet", mock.Anything, "0xW").Return(int64(7500), nil)

	status, err := f.svc.GetUpgradeTimers(context.Background(), "0xW")
	require.NoError(t, err)

	require.Len(t, status.Timers, 1)
	assert.Equal(t, 2, status.AtRiskCount)
	assert.Equal(t, int64(7500), status.AtRiskCents)
}

func TestGetRollupAnalytics(t *testing.T) {
	f := newFixture(t)
	since := f.clock.Now().Add(-720 * time.Hour)

	// 0xQ was found through the qualified-member fallback and carries the
	// sentinel layer; it must not drag the matrix-layer average down.
	traces := []*reward.Trace{
		{FinalRecipient: "0xA", AmountCents: 5000, RollupLayer: 2},
		{FinalRecipient: "0xB", AmountCents: 2500, RollupLayer: 4},
		{FinalRecipient: "0xQ", AmountCents: 1000, RollupLayer: reward.GlobalFallbackLayer},
		{FinalRecipient: reward.PlatformWallet, AmountCents: 10000, RollupLayer: reward.GlobalFallbackLayer},
	}
	f.traces.On("GetSince", mock.Anything, since).Return(traces, nil)

	a, err := f.svc.GetRollupAnalytics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, a.TotalExpired)
	assert.Equal(t, 3, a.ResolvedToMember)
	assert.Equal(t, 1, a.ResolvedToPlatform)
	assert.Equal(t, 1, a.GlobalFallbackCount)
	assert.Equal(t, int64(10000), a.PlatformAmountCents)
	assert.Equal(t, "100", a.PlatformAmountUSDT.String())
	assert.Equal(t, int64(8500), a.ReissuedAmountCents)
	assert.Equal(t, "3", a.AverageRollupLayer.String())
	assert.Equal(t, "75", a.EfficiencyRate.String())
}
