package risk

import "time"

// Level classifies the severity of a risk assessment
type Level string

const (
	LevelSafe     Level = "safe"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"

	// LevelError marks an assessment whose inputs were unusable; the
	// pipeline continues and the condition is recorded in the message
	LevelError Level = "error"
)

// Dimension names the risk dimension an assessment covers
type Dimension string

const (
	DimensionAaveLTV     Dimension = "aave_ltv"
	DimensionCEXMargin   Dimension = "cex_margin"
	DimensionCorrelation Dimension = "correlation"
	DimensionStress      Dimension = "stress"
)

// Assessment is one derived risk measurement for one dimension
type Assessment struct {
	Dimension            Dimension `json:"dimension"`
	Level                Level     `json:"level"`
	Value                float64   `json:"value"`
	HealthFactor         float64   `json:"health_factor,omitempty"`
	DynamicLTVTarget     float64   `json:"dynamic_ltv_target,omitempty"`
	LiquidationThreshold float64   `json:"liquidation_threshold,omitempty"`
	Message              string    `json:"message"`
	Timestamp            time.Time `json:"timestamp"`
}

// IsCritical reports whether this assessment forces a strategy-wide exit
func (a Assessment) IsCritical() bool {
	return a.Level == LevelCritical
}

// VenueMargin is the margin state of one derivatives venue
type VenueMargin struct {
	Venue         string  `json:"venue"`
	CurrentMargin float64 `json:"current_margin"`
	UsedMargin    float64 `json:"used_margin"`
	PositionValue float64 `json:"position_value"`
}

// VenueMarginStatus is the per-venue result of a margin check
type VenueMarginStatus struct {
	Venue       string  `json:"venue"`
	MarginRatio float64 `json:"margin_ratio"`
	Liquidated  bool    `json:"liquidated"`
}

// StressResult is the output of a hypothetical CEX liquidation simulation
type StressResult struct {
	Level           Level               `json:"level"`
	LiquidationRate float64             `json:"liquidation_rate"`
	MarginLost      float64             `json:"margin_lost"`
	MarginAtRisk    float64             `json:"margin_at_risk"`
	Venues          []VenueMarginStatus `json:"venues"`
	Timestamp       time.Time           `json:"timestamp"`
}

// Config carries the thresholds and buffers risk calculations read.
// Values are fractions, not percentages.
type Config struct {
	LiquidationThreshold float64 `json:"liquidation_threshold"`
	MaintenanceThreshold float64 `json:"maintenance_threshold"`
	SafetyBuffer         float64 `json:"safety_buffer"`
	ExpectedMaxPriceMove float64 `json:"expected_max_price_move"`
	StaticLTVTarget      float64 `json:"static_ltv_target"`
	WarningLTVHeadroom   float64 `json:"warning_ltv_headroom"`

	// Hedge coverage floors for the correlation dimension: coverage is
	// the smaller leg over the larger leg of a hedged book
	WarningHedgeCoverage  float64 `json:"warning_hedge_coverage"`
	CriticalHedgeCoverage float64 `json:"critical_hedge_coverage"`
}

// DefaultConfig returns conservative defaults for a lending-protocol book
func DefaultConfig() Config {
	return Config{
		LiquidationThreshold:  0.95,
		MaintenanceThreshold:  0.10,
		SafetyBuffer:          0.05,
		ExpectedMaxPriceMove:  0.10,
		StaticLTVTarget:       0.70,
		WarningLTVHeadroom:    0.05,
		WarningHedgeCoverage:  0.90,
		CriticalHedgeCoverage: 0.75,
	}
}
