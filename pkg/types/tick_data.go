package types

import "time"

// MarketData holds exchange-side inputs for one tick.
// Price keys are either flat asset symbols ("BTC") or venue-qualified
// symbols ("BTC_binance"); funding rates are keyed per venue-qualified
// instrument.
type MarketData struct {
	Prices       map[string]float64 `json:"prices"`
	FundingRates map[string]float64 `json:"funding_rates"`
}

// ProtocolData holds on-chain protocol inputs for one tick.
// Oracle prices are keyed by pair ("weETH/USD"); AAVE indexes by
// reserve symbol.
type ProtocolData struct {
	AaveIndexes    map[string]float64 `json:"aave_indexes"`
	OraclePrices   map[string]float64 `json:"oracle_prices"`
	PerpPrices     map[string]float64 `json:"perp_prices"`
	StakingRewards map[string]float64 `json:"staking_rewards"`
}

// ExecutionData holds per-tick execution cost inputs
type ExecutionData struct {
	GasCosts       map[string]float64 `json:"gas_costs"`
	ExecutionCosts map[string]float64 `json:"execution_costs"`
}

// TickData is the full data collaborator payload for one timestamp
type TickData struct {
	Timestamp     time.Time     `json:"timestamp"`
	MarketData    MarketData    `json:"market_data"`
	ProtocolData  ProtocolData  `json:"protocol_data"`
	ExecutionData ExecutionData `json:"execution_data"`
}

// Price looks up an asset price, preferring the venue-qualified key
// ("BTC_binance") and falling back to the flat symbol ("BTC").
func (t TickData) Price(symbol, venue string) (float64, bool) {
	if venue != "" {
		if p, ok := t.MarketData.Prices[symbol+"_"+venue]; ok {
			return p, true
		}
	}
	p, ok := t.MarketData.Prices[symbol]
	return p, ok
}

// OracleRate looks up an oracle conversion rate by pair ("weETH/USD")
func (t TickData) OracleRate(pair string) (float64, bool) {
	r, ok := t.ProtocolData.OraclePrices[pair]
	return r, ok
}

// AaveIndex looks up the interest index for a reserve symbol
func (t TickData) AaveIndex(symbol string) (float64, bool) {
	i, ok := t.ProtocolData.AaveIndexes[symbol]
	return i, ok
}
