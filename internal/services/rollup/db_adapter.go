package rollup

import (
	"context"

	"github.com/jmoiron/sqlx"

	"beehive/internal/domain/reward"
	"beehive/internal/repository/postgres"
)

// DB opens transactions scoped to the rollup write path
type DB interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx exposes the repositories bound to one open transaction. The status
// flip, the reissued record and the trace commit or roll back together;
// a terminal rollup status without its reissue and trace must never be
// observable.
type Tx interface {
	Rewards() reward.Repository
	Traces() reward.TraceRepository
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

// Traces returns the rollup trace repository bound to this transaction
func (a *TxAdapter) Traces() reward.TraceRepository {
	return postgres.NewRollupTraceRepository(a.tx)
}

// Commit commits the transaction
func (a *TxAdapter) Commit() error {
	return a.tx.Commit()
}

// Rollback rolls back the transaction
func (a *TxAdapter) Rollback() error {
	return a.tx.Rollback()
}
