package ledger

import (
	"time"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// DerivativeOp represents a derivative lifecycle operation
type DerivativeOp string

const (
	DerivativeOpOpen   DerivativeOp = "OPEN"
	DerivativeOpAdjust DerivativeOp = "ADJUST"
	DerivativeOpClose  DerivativeOp = "CLOSE"
)

// TokenChange is a signed quantity delta against one position key
type TokenChange struct {
	Key   types.PositionKey `json:"key"`
	Delta float64           `json:"delta"`
}

// DerivativeChange mutates a derivative position on a venue.
// OPEN creates the position, ADJUST replaces size/entry/notional for an
// existing instrument, CLOSE removes it.
type DerivativeChange struct {
	Key        types.DerivativeKey `json:"key"`
	Op         DerivativeOp        `json:"op"`
	Size       float64             `json:"size"`
	EntryPrice float64             `json:"entry_price"`
	Notional   float64             `json:"notional"`
}

// DeltaBatch is the only way ledger state changes. A batch either fully
// applies or is fully rejected.
type DeltaBatch struct {
	Timestamp         time.Time          `json:"timestamp"`
	Trigger           string             `json:"trigger"`
	TokenChanges      []TokenChange      `json:"token_changes"`
	DerivativeChanges []DerivativeChange `json:"derivative_changes"`
}

// IsEmpty reports whether the batch carries no changes at all
func (b DeltaBatch) IsEmpty() bool {
	return len(b.TokenChanges) == 0 && len(b.DerivativeChanges) == 0
}
