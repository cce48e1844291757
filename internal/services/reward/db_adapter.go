package reward

import (
	"context"

	"github.com/jmoiron/sqlx"

	"beehive/internal/domain/balance"
	"beehive/internal/domain/reward"
	"beehive/internal/repository/postgres"
)

// DB opens transactions scoped to the claim path
type DB interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx exposes the repositories bound to one open transaction. Commit and
// Rollback end the transaction; repository handles obtained from a finished
// transaction must not be reused.
type Tx interface {
	Rewards() reward.Repository
	Balances() balance.Repository
	Commit() error
	Rollback() error
}

// DBAdapter adapts sqlx.DB to our DB interface
type DBAdapter struct {
	db *sqlx.DB
}

// NewDBAdapter creates a new DB adapter
func NewDBAdapter(db *sqlx.DB) *DBAdapter {
	return &DBAdapter{db: db}
}

// BeginTx starts a new database transaction
func (a *DBAdapter) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &TxAdapter{tx: tx}, nil
}

// TxAdapter adapts sqlx.Tx to our Tx interface
type TxAdapter struct {
	tx *sqlx.Tx
}

// Rewards returns the reward repository bound to this transaction
func (a *TxAdapter) Rewards() reward.Repository {
	return postgres.NewRewardRepository(a.tx)
}

// Balances returns the balance repository bound to this transaction
func (a *TxAdapter) Balances() balance.Repository {
	return postgres.NewBalanceRepository(a.tx)
}

// Commit commits the transaction
func (a *TxAdapter) Commit() error {
	return a.tx.Commit()
}

// Rollback rolls back the transaction
func (a *TxAdapter) Rollback() error {
	return a.tx.Rollback()
}
