package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beehive/internal/domain/timer"
	"beehive/internal/repository/postgres"
	"beehive/internal/testsupport"
	pkgerrors "beehive/pkg/errors"
)

func seedTimer(t *testing.T, repo *postgres.TimerRepository, wallet string, target int, expiresAt time.Time) *timer.Timer {
	t.Helper()

	tm := &timer.Timer{
		ID:           uuid.New(),
		MemberWallet: wallet,
		CurrentLevel: target - 1,
		TargetLevel:  target,
		Status:       timer.StatusActive,
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    expiresAt,
	}
	require.NoError(t, repo.Create(context.Background(), tm))
	return tm
}

func TestTimerRepository_GetExpiredActive(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewTimerRepository(helper.Tx())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	due := seedTimer(t, repo, "0xA", 4, now.Add(-time.Hour))
	seedTimer(t, repo, "0xB", 4, now.Add(time.Hour))

	completed := seedTimer(t, repo, "0xC", 4, now.Add(-time.Hour))
	require.NoError(t, repo.MarkCompleted(ctx, completed.ID, now))

	expired, err := repo.GetExpiredActive(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, due.ID, expired[0].ID)
}

func TestTimerRepository_MarkCompleted_Conditional(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewTimerRepository(helper.Tx())
	ctx := context.Background()
	now := time.Now().UTC()

	tm := seedTimer(t, repo, "0xW", 4, now.Add(-time.Hour))

	require.NoError(t, repo.MarkCompleted(ctx, tm.ID, now))

	err := repo.MarkCompleted(ctx, tm.ID, now)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)

	err = repo.MarkExpired(ctx, tm.ID, now)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
}

func TestTimerRepository_ExpireActiveForTarget(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewTimerRepository(helper.Tx())
	ctx := context.Background()
	now := time.Now().UTC()

	first := seedTimer(t, repo, "0xW", 5, now.Add(time.Hour))
	seedTimer(t, repo, "0xW", 6, now.Add(time.Hour))
	seedTimer(t, repo, "0xOther", 5, now.Add(time.Hour))

	superseded, err := repo.ExpireActiveForTarget(ctx, "0xW", 5, now)
	require.NoError(t, err)
	assert.Equal(t, 1, superseded)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, timer.StatusExpired, got.Status)

	active, err := repo.GetActiveByWallet(ctx, "0xW")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 6, active[0].TargetLevel)
}
