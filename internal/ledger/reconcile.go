package ledger

import (
	"math"
	"time"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// Drift is one live-vs-ledger balance mismatch beyond tolerance
type Drift struct {
	Key           types.PositionKey `json:"key"`
	LedgerBalance float64           `json:"ledger_balance"`
	LiveBalance   float64           `json:"live_balance"`
	Difference    float64           `json:"difference"`
}

// DriftReport summarizes a reconciliation pass. Drift is reported for
// operator or strategy decision and never auto-corrected.
type DriftReport struct {
	Timestamp time.Time `json:"timestamp"`
	Tolerance float64   `json:"tolerance"`
	Drifts    []Drift   `json:"drifts"`
}

// HasDrift reports whether any balance moved beyond tolerance
func (r DriftReport) HasDrift() bool {
	return len(r.Drifts) > 0
}

// ReconcileWithLive compares ledger balances against live venue balances
// and reports every difference beyond tolerance. In simulated mode there
// is no live source of truth, so the report is empty by design.
func (l *Ledger) ReconcileWithLive(live map[types.PositionKey]float64, tolerance float64) DriftReport {
	report := DriftReport{
		Timestamp: time.Now(),
		Tolerance: tolerance,
	}

	if l.simulated {
		return report
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for key, ledgerBalance := range l.tokens {
		liveBalance, ok := live[key]
		if !ok {
			// Best effort: keys the live feed does not cover are skipped
			continue
		}
		diff := liveBalance - ledgerBalance
		if math.Abs(diff) > tolerance {
			report.Drifts = append(report.Drifts, Drift{
				Key:           key,
				LedgerBalance: ledgerBalance,
				LiveBalance:   liveBalance,
				Difference:    diff,
			})
		}
	}

	return report
}
