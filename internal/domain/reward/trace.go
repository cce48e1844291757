package reward

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"beehive/pkg/errors"
)

// RollupReason explains why a reward was reassigned
type RollupReason string

const (
	// ReasonPendingExpired marks a reward whose pending window elapsed
	ReasonPendingExpired RollupReason = "pending_expired"
	// ReasonNoQualifiedRecipient marks a reward surrendered to the platform
	ReasonNoQualifiedRecipient RollupReason = "no_qualified_recipient"
	// ReasonMemberUpgradeTimeout marks rewards cascade-expired by an upgrade timer
	ReasonMemberUpgradeTimeout RollupReason = "member_upgrade_timeout"
)

// String returns the string representation
func (r RollupReason) String() string {
	return string(r)
}

// PathStep is one hop of a rollup resolution path
type PathStep struct {
	Wallet string `json:"wallet"`
	Layer  int    `json:"layer"`
	Reason string `json:"reason"`
}

// Path is the ordered resolution path of a rollup, stored as jsonb
type Path []PathStep

// Value implements driver.Valuer
func (p Path) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner
func (p *Path) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = nil
		return nil
	}
	return errors.Newf("cannot scan rollup path from %T", src)
}

// Trace is an immutable audit record of one rollup attempt, successful or
// not. Exactly one trace is written per processed expired reward.
type Trace struct {
	ID                uuid.UUID    `db:"id"`
	OriginalRecipient string       `db:"original_recipient"`
	FinalRecipient    string       `db:"final_recipient"`
	TriggerWallet     string       `db:"trigger_wallet"`
	TriggerLevel      int          `db:"trigger_level"`
	AmountCents       int64        `db:"reward_amount_cents"`
	Reason            RollupReason `db:"rollup_reason"`
	Path              Path         `db:"rollup_path"`
	RollupLayer       int          `db:"rollup_layer"`
	ProcessedAt       time.Time    `db:"processed_at"`
}

// ResolvedToMember reports whether the rollup reached a real recipient
// rather than the platform.
func (t *Trace) ResolvedToMember() bool {
	return t.FinalRecipient != PlatformWallet
}
