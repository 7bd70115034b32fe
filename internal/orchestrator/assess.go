package orchestrator

import (
	"math"
	"sort"
	"time"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/exposure"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/ledger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/risk"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// assessRisk derives the tick's risk assessments from the snapshot:
// lending-protocol LTV from aToken/debtToken values, per-venue CEX margin
// from venue cash and open derivative notionals, hedge correlation from
// the exposure report, and the hypothetical liquidation stress over the
// same margins
func (o *Orchestrator) assessRisk(snapshot ledger.Snapshot, report exposure.Report, tick types.TickData) ([]risk.Assessment, risk.StressResult) {
	collateral, debt := o.lendingBookValues(snapshot, tick)
	ltv := risk.CalculateAaveLTV(collateral, debt, o.cfg.Risk, tick.Timestamp)

	margins := o.venueMargins(snapshot, tick)
	margin, _ := risk.CalculateCEXMargin(margins, o.cfg.Risk, tick.Timestamp)
	stress := risk.SimulateCEXLiquidation(margins, o.cfg.Risk, tick.Timestamp)

	correlation := o.hedgeCorrelation(report, tick.Timestamp)

	return []risk.Assessment{ltv, margin, correlation}, stress
}

// hedgeCorrelation splits the exposure report into gross long and gross
// short legs and assesses how closely they track each other
func (o *Orchestrator) hedgeCorrelation(report exposure.Report, now time.Time) risk.Assessment {
	var long, short float64
	for _, venue := range report.VenueBreakdown {
		for _, asset := range venue.Assets {
			if asset.ValueShareClass >= 0 {
				long += asset.ValueShareClass
			} else {
				short -= asset.ValueShareClass
			}
		}
	}
	return risk.CalculateHedgeCorrelation(long, short, o.cfg.Risk, now)
}

// lendingBookValues sums aToken collateral and debtToken debt in share
// class terms. Debt balances are stored positive.
func (o *Orchestrator) lendingBookValues(snapshot ledger.Snapshot, tick types.TickData) (collateral, debt float64) {
	for _, key := range sortedTokenKeys(snapshot.Tokens) {
		if key.Type != types.PositionTypeAToken && key.Type != types.PositionTypeDebtToken {
			continue
		}

		index, ok := tick.AaveIndex(key.Symbol)
		if !ok {
			continue
		}
		price, ok := o.shareClassPrice(key.Symbol, key.Venue, tick)
		if !ok {
			continue
		}

		value := snapshot.Tokens[key] * index * price
		if key.Type == types.PositionTypeAToken {
			collateral += value
		} else {
			debt += value
		}
	}
	return collateral, debt
}

// venueMargins builds the margin inputs for every exchange venue with an
// open derivative position: venue cash is the current margin, the summed
// absolute mark value of its positions is the position value
func (o *Orchestrator) venueMargins(snapshot ledger.Snapshot, tick types.TickData) []risk.VenueMargin {
	positionValue := make(map[string]float64)
	for key, pos := range snapshot.Derivatives {
		price, ok := tick.ProtocolData.PerpPrices[key.Instrument]
		if !ok {
			base := baseSymbol(key.Instrument, o.cfg.ShareClassCurrency)
			price, ok = tick.Price(base, key.Venue)
		}
		if !ok {
			continue
		}
		positionValue[key.Venue] += math.Abs(pos.Size) * price
	}

	var margins []risk.VenueMargin
	for _, venue := range o.cfg.CEXVenues {
		value, open := positionValue[venue]
		if !open {
			continue
		}
		cashKey := types.NewPositionKey(venue, types.PositionTypeBaseToken, o.cfg.ShareClassCurrency)
		margins = append(margins, risk.VenueMargin{
			Venue:         venue,
			CurrentMargin: snapshot.Balance(cashKey),
			PositionValue: value,
		})
	}
	return margins
}

func (o *Orchestrator) shareClassPrice(symbol, venue string, tick types.TickData) (float64, bool) {
	if symbol == o.cfg.ShareClassCurrency {
		return 1, true
	}
	return tick.Price(symbol, venue)
}

func baseSymbol(instrument, shareClass string) string {
	if len(instrument) > len(shareClass) && instrument[len(instrument)-len(shareClass):] == shareClass {
		return instrument[:len(instrument)-len(shareClass)]
	}
	return instrument
}

func sortedTokenKeys(tokens map[types.PositionKey]float64) []types.PositionKey {
	keys := make([]types.PositionKey, 0, len(tokens))
	for key := range tokens {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
