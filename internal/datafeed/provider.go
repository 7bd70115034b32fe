package datafeed

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// Provider is the data collaborator: one call per tick returning the full
// market/protocol/execution payload for that timestamp. Simulated and
// replay implementations are interchangeable behind this contract.
type Provider interface {
	// GetData returns the tick payload for the given timestamp
	GetData(ctx context.Context, timestamp time.Time) (types.TickData, error)

	// GetName returns the name of the data provider
	GetName() string
}

const hoursPerYear = 24 * 365

// SimulatedConfig parameterizes the deterministic simulated feed
type SimulatedConfig struct {
	// Start anchors the simulation clock; all accruals are measured from it
	Start time.Time `json:"start"`

	// BasePrices maps asset symbols to their price at Start
	BasePrices map[string]float64 `json:"base_prices"`

	// Volatility is the fractional amplitude of the deterministic price
	// oscillation (0.02 means +/-2%)
	Volatility float64 `json:"volatility"`

	// CyclePeriod is the oscillation period; defaults to 24h
	CyclePeriod time.Duration `json:"cycle_period"`

	// FundingRates maps venue-qualified instruments to their constant
	// per-interval funding rate
	FundingRates map[string]float64 `json:"funding_rates"`

	// AaveAPY maps reserve symbols to the annual rate their interest
	// index accrues at
	AaveAPY map[string]float64 `json:"aave_apy"`

	// OracleRates maps pairs ("weETH/ETH") to their rate at Start
	OracleRates map[string]float64 `json:"oracle_rates"`

	// StakingAPY maps pairs to the annual rate their oracle rate
	// appreciates at
	StakingAPY map[string]float64 `json:"staking_apy"`

	// GasCost is the flat simulated gas cost per on-chain transaction
	GasCost float64 `json:"gas_cost"`
}

// SimulatedProvider generates a fully deterministic tick payload: the
// same timestamp always yields the same data. Prices oscillate around
// their base on a per-symbol phase, interest indexes and oracle rates
// accrue continuously from Start.
type SimulatedProvider struct {
	cfg SimulatedConfig
}

// NewSimulatedProvider creates a deterministic simulated data feed
func NewSimulatedProvider(cfg SimulatedConfig) *SimulatedProvider {
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = 24 * time.Hour
	}
	return &SimulatedProvider{cfg: cfg}
}

// GetName returns the name of the data provider
func (p *SimulatedProvider) GetName() string {
	return "Simulated Provider"
}

// GetData returns the deterministic payload for the timestamp
func (p *SimulatedProvider) GetData(ctx context.Context, timestamp time.Time) (types.TickData, error) {
	if err := ctx.Err(); err != nil {
		return types.TickData{}, err
	}

	elapsed := timestamp.Sub(p.cfg.Start)
	years := elapsed.Hours() / hoursPerYear

	prices := make(map[string]float64, len(p.cfg.BasePrices))
	for symbol, base := range p.cfg.BasePrices {
		prices[symbol] = p.priceAt(symbol, base, elapsed)
	}

	funding := make(map[string]float64, len(p.cfg.FundingRates))
	for instrument, rate := range p.cfg.FundingRates {
		funding[instrument] = rate
	}

	indexes := make(map[string]float64, len(p.cfg.AaveAPY))
	for symbol, apy := range p.cfg.AaveAPY {
		indexes[symbol] = accrue(1.0, apy, years)
	}

	oracles := make(map[string]float64, len(p.cfg.OracleRates))
	for pair, base := range p.cfg.OracleRates {
		oracles[pair] = accrue(base, p.cfg.StakingAPY[pair], years)
	}

	perpPrices := make(map[string]float64)
	for instrument := range p.cfg.FundingRates {
		if base, ok := p.cfg.BasePrices[instrument]; ok {
			perpPrices[instrument] = p.priceAt(instrument, base, elapsed)
		}
	}

	return types.TickData{
		Timestamp: timestamp,
		MarketData: types.MarketData{
			Prices:       prices,
			FundingRates: funding,
		},
		ProtocolData: types.ProtocolData{
			AaveIndexes:  indexes,
			OraclePrices: oracles,
			PerpPrices:   perpPrices,
		},
		ExecutionData: types.ExecutionData{
			GasCosts: map[string]float64{"default": p.cfg.GasCost},
		},
	}, nil
}

// priceAt oscillates the base price on a per-symbol phase so correlated
// symbols still move distinctly
func (p *SimulatedProvider) priceAt(symbol string, base float64, elapsed time.Duration) float64 {
	if p.cfg.Volatility == 0 {
		return base
	}
	cycle := elapsed.Seconds() / p.cfg.CyclePeriod.Seconds()
	return base * (1 + p.cfg.Volatility*math.Sin(2*math.Pi*cycle+phase(symbol)))
}

func accrue(base, annualRate, years float64) float64 {
	if annualRate == 0 || years <= 0 {
		return base
	}
	return base * math.Pow(1+annualRate, years)
}

// phase derives a stable per-symbol phase offset in [0, 2*pi)
func phase(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 2 * math.Pi * float64(h.Sum32()%1000) / 1000
}
