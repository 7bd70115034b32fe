package ledger

import (
	"fmt"
	"math"
	"sync"
	"time"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

const component = "ledger"

// balanceEpsilon absorbs float64 rounding when checking debit underflow
const balanceEpsilon = 1e-9

// DerivativePosition holds the state of one open perpetual position
type DerivativePosition struct {
	Instrument string  `json:"instrument"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
	Notional   float64 `json:"notional"`
}

// Snapshot is an immutable copy of ledger state at one point in time.
// Snapshots are safe for concurrent reads once handed out.
type Snapshot struct {
	Timestamp   time.Time                                  `json:"timestamp"`
	Tokens      map[types.PositionKey]float64              `json:"tokens"`
	Derivatives map[types.DerivativeKey]DerivativePosition `json:"derivatives"`
}

// Balance returns the raw balance for a position key (zero if absent)
func (s Snapshot) Balance(key types.PositionKey) float64 {
	return s.Tokens[key]
}

// Derivative returns the derivative position for a key, if open
func (s Snapshot) Derivative(key types.DerivativeKey) (DerivativePosition, bool) {
	pos, ok := s.Derivatives[key]
	return pos, ok
}

// Ledger is the authoritative multi-venue balance and derivative-position
// store. It is exclusively owned by one orchestration loop per run and
// mutated only through atomic delta batches. Raw balances are the source
// of truth; underlying-unit values are computed on read, never stored.
type Ledger struct {
	mu          sync.RWMutex
	tokens      map[types.PositionKey]float64
	derivatives map[types.DerivativeKey]DerivativePosition
	universe    map[types.PositionKey]bool
	venues      map[string]bool
	simulated   bool
	lastApplied time.Time
}

// Config describes the instrument universe the ledger accepts batches for
type Config struct {
	// Universe lists every position key the ledger will track; batches
	// touching keys outside it are rejected
	Universe []types.PositionKey

	// Venues lists the venues derivative positions may be opened on
	Venues []string

	// Simulated marks backtest mode, where reconciliation has no live
	// source of truth to compare against
	Simulated bool
}

// NewLedger creates an empty ledger for the configured universe
func NewLedger(cfg Config) *Ledger {
	universe := make(map[types.PositionKey]bool, len(cfg.Universe))
	for _, key := range cfg.Universe {
		universe[key] = true
	}

	venues := make(map[string]bool, len(cfg.Venues))
	for _, venue := range cfg.Venues {
		venues[venue] = true
	}

	return &Ledger{
		tokens:      make(map[types.PositionKey]float64),
		derivatives: make(map[types.DerivativeKey]DerivativePosition),
		universe:    universe,
		venues:      venues,
		simulated:   cfg.Simulated,
	}
}

// SetOpeningBalance seeds an initial balance before the run starts.
// The key must belong to the configured universe.
func (l *Ledger) SetOpeningBalance(key types.PositionKey, quantity float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.universe[key] {
		return perrors.NewValidationError(component, "SetOpeningBalance",
			fmt.Sprintf("position key %s is not in the configured universe", key))
	}

	l.tokens[key] = quantity
	return nil
}

// Apply validates and commits a delta batch atomically: the whole batch is
// staged against a copy of current state and committed only when every
// change passes. On any failure the ledger is unchanged and a validation
// error identifying the offending change is returned.
func (l *Ledger) Apply(batch DeltaBatch) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stagedTokens := copyTokens(l.tokens)
	stagedDerivatives := copyDerivatives(l.derivatives)

	for i, change := range batch.TokenChanges {
		if err := l.stageTokenChange(stagedTokens, change); err != nil {
			return Snapshot{}, perrors.Wrap(err, perrors.ErrorCategoryValidation, component, "Apply",
				fmt.Sprintf("token change %d of batch %q rejected", i, batch.Trigger))
		}
	}

	for i, change := range batch.DerivativeChanges {
		if err := l.stageDerivativeChange(stagedDerivatives, change); err != nil {
			return Snapshot{}, perrors.Wrap(err, perrors.ErrorCategoryValidation, component, "Apply",
				fmt.Sprintf("derivative change %d of batch %q rejected", i, batch.Trigger))
		}
	}

	l.tokens = stagedTokens
	l.derivatives = stagedDerivatives
	l.lastApplied = batch.Timestamp

	return l.snapshotLocked(), nil
}

// Snapshot returns a cheap immutable copy of current ledger state
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	return Snapshot{
		Timestamp:   l.lastApplied,
		Tokens:      copyTokens(l.tokens),
		Derivatives: copyDerivatives(l.derivatives),
	}
}

func (l *Ledger) stageTokenChange(staged map[types.PositionKey]float64, change TokenChange) error {
	if err := change.Key.Validate(); err != nil {
		return perrors.NewValidationError(component, "Apply", err.Error())
	}
	if !l.universe[change.Key] {
		return perrors.NewValidationError(component, "Apply",
			fmt.Sprintf("position key %s is not in the configured universe", change.Key))
	}

	next := staged[change.Key] + change.Delta
	if next < -balanceEpsilon && !change.Key.Type.IsDebtCapable() {
		return perrors.NewValidationError(component, "Apply",
			fmt.Sprintf("debit of %.8f would underflow %s (balance %.8f)",
				-change.Delta, change.Key, staged[change.Key]))
	}

	// Snap tiny residuals to zero so dust never accumulates as -0.0000000001
	if math.Abs(next) < balanceEpsilon {
		next = 0
	}
	staged[change.Key] = next
	return nil
}

func (l *Ledger) stageDerivativeChange(staged map[types.DerivativeKey]DerivativePosition, change DerivativeChange) error {
	if change.Key.Venue == "" || change.Key.Instrument == "" {
		return perrors.NewValidationError(component, "Apply",
			fmt.Sprintf("malformed derivative key %s", change.Key))
	}
	if !l.venues[change.Key.Venue] {
		return perrors.NewValidationError(component, "Apply",
			fmt.Sprintf("unknown derivative venue %q", change.Key.Venue))
	}

	_, exists := staged[change.Key]

	switch change.Op {
	case DerivativeOpOpen:
		if exists {
			return perrors.NewValidationError(component, "Apply",
				fmt.Sprintf("OPEN for %s but position already exists (use ADJUST)", change.Key))
		}
		staged[change.Key] = DerivativePosition{
			Instrument: change.Key.Instrument,
			Size:       change.Size,
			EntryPrice: change.EntryPrice,
			Notional:   change.Notional,
		}

	case DerivativeOpAdjust:
		if !exists {
			return perrors.NewValidationError(component, "Apply",
				fmt.Sprintf("ADJUST for %s but no position exists", change.Key))
		}
		staged[change.Key] = DerivativePosition{
			Instrument: change.Key.Instrument,
			Size:       change.Size,
			EntryPrice: change.EntryPrice,
			Notional:   change.Notional,
		}

	case DerivativeOpClose:
		if !exists {
			return perrors.NewValidationError(component, "Apply",
				fmt.Sprintf("CLOSE for %s but no position exists", change.Key))
		}
		delete(staged, change.Key)

	default:
		return perrors.NewValidationError(component, "Apply",
			fmt.Sprintf("unknown derivative op %q", change.Op))
	}

	return nil
}

func copyTokens(src map[types.PositionKey]float64) map[types.PositionKey]float64 {
	dst := make(map[types.PositionKey]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyDerivatives(src map[types.DerivativeKey]DerivativePosition) map[types.DerivativeKey]DerivativePosition {
	dst := make(map[types.DerivativeKey]DerivativePosition, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
