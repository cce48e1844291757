package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beehive/internal/repository/postgres"
	"beehive/internal/testsupport"
	pkgerrors "beehive/pkg/errors"
)

func TestBalanceRepository_GetByWallet_Unknown(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewBalanceRepository(helper.Tx())

	// An unknown wallet reads as a zero balance, not an error.
	b, err := repo.GetByWallet(context.Background(), "0xNobody")
	require.NoError(t, err)
	assert.Equal(t, "0xNobody", b.WalletAddress)
	assert.Zero(t, b.TotalEarnedCents)
	assert.Zero(t, b.AvailableCents)
}

func TestBalanceRepository_CreditAccumulates(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewBalanceRepository(helper.Tx())
	ctx := context.Background()

	b, err := repo.Credit(ctx, "0xW", 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), b.TotalEarnedCents)
	assert.Equal(t, int64(5000), b.AvailableCents)

	b, err = repo.Credit(ctx, "0xW", 2500)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), b.TotalEarnedCents)
	assert.Equal(t, int64(7500), b.AvailableCents)
	assert.Zero(t, b.TotalWithdrawnCents)
}

func TestBalanceRepository_Debit(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewBalanceRepository(helper.Tx())
	ctx := context.Background()

	_, err := repo.Credit(ctx, "0xW", 5000)
	require.NoError(t, err)

	b, err := repo.Debit(ctx, "0xW", 3000)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), b.AvailableCents)
	assert.Equal(t, int64(3000), b.TotalWithdrawnCents)
	assert.Equal(t, int64(5000), b.TotalEarnedCents)

	_, err = repo.Debit(ctx, "0xW", 2001)
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientBalance)

	// The failed debit must not move anything.
	b, err = repo.GetByWallet(ctx, "0xW")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), b.AvailableCents)
}

func TestBalanceRepository_Debit_UnknownWallet(t *testing.T) {
	helper := testsupport.NewTestPostgres(t)
	repo := postgres.NewBalanceRepository(helper.Tx())

	_, err := repo.Debit(context.Background(), "0xNobody", 100)
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientBalance)
}
