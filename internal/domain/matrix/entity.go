package matrix

import (
	"time"
)

// Slot indices at layer 1 of the forced 3-ary matrix. Deeper layers use the
// same field as a plain position index within the layer.
const (
	SlotLeft   = 0
	SlotMiddle = 1
	SlotRight  = 2
)

// Position is one member's placement in one matrix. A member occupies at
// most one position per matrix root and may participate in several
// independently rooted matrices. Positions are created by the placement
// engine; the reward engine reads them and only ever flips activation.
type Position struct {
	MatrixRoot      string     `db:"matrix_root"`
	MemberWallet    string     `db:"member_wallet"`
	Layer           int        `db:"layer"`
	Slot            int        `db:"slot"`
	IsActive        bool       `db:"is_active"`
	MemberActivated bool       `db:"member_activated"`
	PlacedAt        time.Time  `db:"placed_at"`
	ActivatedAt     *time.Time `db:"activated_at"`
}
