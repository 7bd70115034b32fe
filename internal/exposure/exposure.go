package exposure

import (
	"sort"
	"strings"
	"time"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/ledger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// AssetExposure is the per-asset detail inside a venue breakdown
type AssetExposure struct {
	Symbol            string  `json:"symbol"`
	RawBalance        float64 `json:"raw_balance"`
	ConversionRate    float64 `json:"conversion_rate"`
	UnderlyingBalance float64 `json:"underlying_balance"`
	ValueShareClass   float64 `json:"value_share_class"`
}

// VenueExposure is the aggregated exposure of one venue
type VenueExposure struct {
	Venue  string                   `json:"venue"`
	Total  float64                  `json:"total"`
	Assets map[string]AssetExposure `json:"assets"`
}

// Report is the derived, read-only exposure view of one ledger snapshot.
// It is recomputed fresh each tick and never mutated.
type Report struct {
	Timestamp          time.Time                `json:"timestamp"`
	ShareClassCurrency string                   `json:"share_class_currency"`
	NetDelta           float64                  `json:"net_delta"`
	VenueBreakdown     map[string]VenueExposure `json:"venue_breakdown"`

	// MissingData lists assets whose price or rate was unavailable this
	// tick; each contributed zero. The caller logs these.
	MissingData []string `json:"missing_data,omitempty"`
}

// Config selects the assets the aggregator tracks and the currency
// exposure is expressed in
type Config struct {
	ShareClassCurrency string
	TrackedAssets      []string
}

// Calculator converts ledger snapshots to common-currency net exposure.
// Calculate is a deterministic pure function of its inputs.
type Calculator struct {
	shareClass string
	tracked    map[string]bool
}

// NewCalculator creates an exposure calculator for the tracked asset set
func NewCalculator(cfg Config) *Calculator {
	tracked := make(map[string]bool, len(cfg.TrackedAssets))
	for _, asset := range cfg.TrackedAssets {
		tracked[asset] = true
	}
	return &Calculator{
		shareClass: cfg.ShareClassCurrency,
		tracked:    tracked,
	}
}

// Calculate derives the exposure report for one snapshot at one tick.
// Net delta is the signed sum over all venues of long spot/protocol
// holdings minus short derivative notionals, each converted to the share
// class currency. Keys are visited in sorted order so the result is
// invariant to map iteration order.
func (c *Calculator) Calculate(snapshot ledger.Snapshot, tick types.TickData) Report {
	report := Report{
		Timestamp:          tick.Timestamp,
		ShareClassCurrency: c.shareClass,
		VenueBreakdown:     make(map[string]VenueExposure),
	}

	for _, key := range sortedTokenKeys(snapshot.Tokens) {
		if !c.tracked[key.Symbol] {
			continue
		}
		// Share class cash funds margin and settlement but never moves
		// with prices, so it carries no delta
		if key.Type == types.PositionTypeBaseToken && key.Symbol == c.shareClass {
			continue
		}
		c.addTokenExposure(&report, key, snapshot.Tokens[key], tick)
	}

	for _, key := range sortedDerivativeKeys(snapshot.Derivatives) {
		base := baseSymbol(key.Instrument, c.shareClass)
		if !c.tracked[base] {
			continue
		}
		c.addDerivativeExposure(&report, key, snapshot.Derivatives[key], base, tick)
	}

	venues := make([]string, 0, len(report.VenueBreakdown))
	for venue := range report.VenueBreakdown {
		venues = append(venues, venue)
	}
	sort.Strings(venues)

	for _, venue := range venues {
		report.NetDelta += report.VenueBreakdown[venue].Total
	}

	return report
}

func (c *Calculator) addTokenExposure(report *Report, key types.PositionKey, raw float64, tick types.TickData) {
	underlyingSymbol, rate, rateKnown := c.underlyingRate(key, tick)
	if !rateKnown {
		report.MissingData = append(report.MissingData, key.String())
		return
	}

	underlying := ledger.ConvertUnderlying(raw, rate, true)

	price, ok := c.shareClassPrice(underlyingSymbol, key.Venue, tick)
	if !ok {
		report.MissingData = append(report.MissingData, key.String())
		return
	}

	value := underlying.Value * price
	if key.Type == types.PositionTypeDebtToken {
		// Borrowed balances reduce net exposure
		value = -value
	}

	c.accumulate(report, key.Venue, key.Symbol, AssetExposure{
		Symbol:            key.Symbol,
		RawBalance:        raw,
		ConversionRate:    rate,
		UnderlyingBalance: underlying.Value,
		ValueShareClass:   value,
	})
}

func (c *Calculator) addDerivativeExposure(report *Report, key types.DerivativeKey, pos ledger.DerivativePosition, base string, tick types.TickData) {
	price, ok := tick.ProtocolData.PerpPrices[key.Instrument]
	if !ok {
		price, ok = tick.Price(base, key.Venue)
	}
	if !ok {
		report.MissingData = append(report.MissingData, key.String())
		return
	}

	// Signed size: shorts carry negative size and subtract from net delta
	value := pos.Size * price

	c.accumulate(report, key.Venue, key.Instrument, AssetExposure{
		Symbol:            key.Instrument,
		RawBalance:        pos.Size,
		ConversionRate:    1,
		UnderlyingBalance: pos.Size,
		ValueShareClass:   value,
	})
}

func (c *Calculator) accumulate(report *Report, venue, symbol string, asset AssetExposure) {
	breakdown, ok := report.VenueBreakdown[venue]
	if !ok {
		breakdown = VenueExposure{
			Venue:  venue,
			Assets: make(map[string]AssetExposure),
		}
	}
	breakdown.Total += asset.ValueShareClass
	breakdown.Assets[symbol] = asset
	report.VenueBreakdown[venue] = breakdown
}

// underlyingRate resolves the raw-to-underlying conversion for a key:
// aTokens accrue via the protocol interest index, LSTs convert to ETH via
// the oracle rate, everything else is already in underlying units.
func (c *Calculator) underlyingRate(key types.PositionKey, tick types.TickData) (string, float64, bool) {
	switch key.Type {
	case types.PositionTypeAToken, types.PositionTypeDebtToken:
		index, ok := tick.AaveIndex(key.Symbol)
		return key.Symbol, index, ok
	case types.PositionTypeLST:
		rate, ok := tick.OracleRate(key.Symbol + "/ETH")
		return "ETH", rate, ok
	default:
		return key.Symbol, 1, true
	}
}

func (c *Calculator) shareClassPrice(symbol, venue string, tick types.TickData) (float64, bool) {
	if symbol == c.shareClass {
		return 1, true
	}
	return tick.Price(symbol, venue)
}

// baseSymbol strips the share class quote suffix from an instrument name
// ("BTCUSDT" -> "BTC")
func baseSymbol(instrument, shareClass string) string {
	return strings.TrimSuffix(instrument, shareClass)
}

func sortedTokenKeys(tokens map[types.PositionKey]float64) []types.PositionKey {
	keys := make([]types.PositionKey, 0, len(tokens))
	for key := range tokens {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func sortedDerivativeKeys(derivatives map[types.DerivativeKey]ledger.DerivativePosition) []types.DerivativeKey {
	keys := make([]types.DerivativeKey, 0, len(derivatives))
	for key := range derivatives {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
