package reward

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for reward ledger data access.
//
// Status-moving methods use conditional updates asserting the expected prior
// status; a conditional update that matches no row reports ErrInvalidState so
// two concurrent writers can never both succeed against the same record.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// GetClaimableByWallet returns claimable rewards, newest first
	GetClaimableByWallet(ctx context.Context, wallet string) ([]*Record, error)

	// GetPendingByWallet returns pending rewards not yet expired at now,
	// soonest expiring first
	GetPendingByWallet(ctx context.Context, wallet string, now time.Time) ([]*Record, error)

	// GetAllPendingByWallet returns every pending reward regardless of expiry
	GetAllPendingByWallet(ctx context.Context, wallet string) ([]*Record, error)

	// GetHistory returns the wallet's records, newest first
	GetHistory(ctx context.Context, wallet string, limit int) ([]*Record, error)

	// GetExpiredPending returns pending records whose deadline has passed at
	// now (inclusive boundary), oldest deadline first
	GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	// GetExpiredReissued returns claimable records reissued by rollup whose
	// claim window has lapsed at now, oldest deadline first
	GetExpiredReissued(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	// MarkClaimed moves a claimable record to claimed. ErrInvalidState if the
	// record is not currently claimable.
	MarkClaimed(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkRolledUp moves a record from the expected prior status to rollup,
	// recording the resolved wallet. ErrInvalidState if the record is no
	// longer in that status.
	MarkRolledUp(ctx context.Context, id uuid.UUID, from Status, toWallet string, at time.Time) error

	// CountPendingByWallet returns the number of pending rewards for a wallet
	CountPendingByWallet(ctx context.Context, wallet string) (int, error)

	// SumPendingByWallet returns the total pending amount for a wallet in cents
	SumPendingByWallet(ctx context.Context, wallet string) (int64, error)
}

// TraceRepository defines the interface for rollup audit records
type TraceRepository interface {
	Create(ctx context.Context, trace *Trace) error
	GetSince(ctx context.Context, since time.Time) ([]*Trace, error)
}

// AuditEvent is one entry of the append-only reward lifecycle audit stream
type AuditEvent struct {
	EventType       string
	RewardID        uuid.UUID
	RecipientWallet string
	TriggerWallet   string
	TriggerLevel    int
	LayerNumber     int
	AmountCents     int64
	Status          Status
	OccurredAt      time.Time
}

// AuditSink receives lifecycle audit events. Writes are best-effort: the
// ledger in Postgres stays authoritative and a sink failure never fails the
// originating operation.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}
