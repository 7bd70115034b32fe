package risk

import (
	"fmt"
	"math"
	"time"
)

// maxHealthFactor is reported when there is no outstanding debt; kept
// finite so assessments stay JSON-encodable
const maxHealthFactor = 1e6

// CalculateAaveLTV derives the loan-to-value assessment for a lending
// protocol book. ltv = debt / collateral and health factor =
// collateral * liquidationThreshold / debt, so health factor < 1.0 holds
// exactly when ltv exceeds the liquidation threshold.
// Bad inputs degrade to an error-level assessment, they never panic.
func CalculateAaveLTV(collateralValue, debtValue float64, cfg Config, now time.Time) Assessment {
	if !isFinite(collateralValue) || !isFinite(debtValue) || collateralValue < 0 || debtValue < 0 {
		return Assessment{
			Dimension: DimensionAaveLTV,
			Level:     LevelError,
			Message: fmt.Sprintf("unusable LTV inputs: collateral=%v debt=%v",
				collateralValue, debtValue),
			Timestamp: now,
		}
	}

	assessment := Assessment{
		Dimension:            DimensionAaveLTV,
		LiquidationThreshold: cfg.LiquidationThreshold,
		DynamicLTVTarget:     DynamicLTVTarget(cfg, cfg.LiquidationThreshold, true),
		Timestamp:            now,
	}

	if debtValue == 0 {
		assessment.Level = LevelSafe
		assessment.Value = 0
		assessment.HealthFactor = maxHealthFactor
		assessment.Message = "no outstanding debt"
		return assessment
	}

	if collateralValue == 0 {
		assessment.Level = LevelCritical
		assessment.Value = math.MaxFloat64
		assessment.HealthFactor = 0
		assessment.Message = "debt with zero collateral"
		return assessment
	}

	ltv := debtValue / collateralValue
	healthFactor := collateralValue * cfg.LiquidationThreshold / debtValue

	assessment.Value = ltv
	assessment.HealthFactor = healthFactor

	switch {
	case ltv > cfg.LiquidationThreshold:
		assessment.Level = LevelCritical
		assessment.Message = fmt.Sprintf("LTV %.4f above liquidation threshold %.4f (health factor %.4f)",
			ltv, cfg.LiquidationThreshold, healthFactor)
	case ltv > cfg.LiquidationThreshold-cfg.WarningLTVHeadroom:
		assessment.Level = LevelWarning
		assessment.Message = fmt.Sprintf("LTV %.4f within %.4f of liquidation threshold",
			ltv, cfg.WarningLTVHeadroom)
	default:
		assessment.Level = LevelSafe
		assessment.Message = fmt.Sprintf("LTV %.4f, health factor %.4f", ltv, healthFactor)
	}

	return assessment
}

// DynamicLTVTarget derives the borrow target from live protocol risk
// parameters: liquidationThreshold - expectedMaxPriceMove - safetyBuffer,
// clamped to [0.10, liquidationThreshold - safetyBuffer]. When protocol
// parameters are unavailable it falls back to the static configured target.
func DynamicLTVTarget(cfg Config, protocolLiquidationThreshold float64, available bool) float64 {
	if !available || !isFinite(protocolLiquidationThreshold) || protocolLiquidationThreshold <= 0 {
		return cfg.StaticLTVTarget
	}

	target := protocolLiquidationThreshold - cfg.ExpectedMaxPriceMove - cfg.SafetyBuffer

	upper := protocolLiquidationThreshold - cfg.SafetyBuffer
	if target > upper {
		target = upper
	}
	if target < 0.10 {
		target = 0.10
	}
	return target
}

// CalculateHedgeCorrelation assesses how well the book's long and short
// legs offset each other. Coverage is the smaller leg over the larger leg
// in share class terms; it decays toward zero as the hedge breaks down.
// A book with only one side open has nothing hedged and nothing to assess.
func CalculateHedgeCorrelation(longValue, shortValue float64, cfg Config, now time.Time) Assessment {
	assessment := Assessment{
		Dimension: DimensionCorrelation,
		Timestamp: now,
	}

	if !isFinite(longValue) || !isFinite(shortValue) || longValue < 0 || shortValue < 0 {
		assessment.Level = LevelError
		assessment.Message = fmt.Sprintf("unusable hedge inputs: long=%v short=%v", longValue, shortValue)
		return assessment
	}

	if longValue == 0 || shortValue == 0 {
		assessment.Level = LevelSafe
		assessment.Value = 1
		assessment.Message = "no offsetting legs"
		return assessment
	}

	coverage := math.Min(longValue, shortValue) / math.Max(longValue, shortValue)
	assessment.Value = coverage

	switch {
	case coverage < cfg.CriticalHedgeCoverage:
		assessment.Level = LevelCritical
		assessment.Message = fmt.Sprintf("hedge coverage %.4f below critical floor %.4f",
			coverage, cfg.CriticalHedgeCoverage)
	case coverage < cfg.WarningHedgeCoverage:
		assessment.Level = LevelWarning
		assessment.Message = fmt.Sprintf("hedge coverage %.4f below warning floor %.4f",
			coverage, cfg.WarningHedgeCoverage)
	default:
		assessment.Level = LevelSafe
		assessment.Message = fmt.Sprintf("hedge coverage %.4f", coverage)
	}

	return assessment
}

// CalculateCEXMargin assesses margin health across derivative venues.
// Per venue, marginRatio = (currentMargin + usedMargin) / positionValue
// and the venue counts as liquidated below the maintenance threshold.
// The aggregate is critical when every venue is liquidated, warning when
// some are, safe when none are.
func CalculateCEXMargin(venues []VenueMargin, cfg Config, now time.Time) (Assessment, []VenueMarginStatus) {
	assessment := Assessment{
		Dimension: DimensionCEXMargin,
		Timestamp: now,
	}

	if len(venues) == 0 {
		assessment.Level = LevelSafe
		assessment.Message = "no derivative venues"
		return assessment, nil
	}

	statuses := make([]VenueMarginStatus, 0, len(venues))
	liquidated := 0
	lowestRatio := math.MaxFloat64

	for _, venue := range venues {
		status, err := venueMarginStatus(venue, cfg)
		if err != nil {
			assessment.Level = LevelError
			assessment.Message = err.Error()
			return assessment, statuses
		}
		statuses = append(statuses, status)
		if status.Liquidated {
			liquidated++
		}
		if venue.PositionValue > 0 && status.MarginRatio < lowestRatio {
			lowestRatio = status.MarginRatio
		}
	}

	if lowestRatio < math.MaxFloat64 {
		assessment.Value = lowestRatio
	}

	switch {
	case liquidated == len(venues):
		assessment.Level = LevelCritical
		assessment.Message = fmt.Sprintf("all %d venues below maintenance margin", len(venues))
	case liquidated > 0:
		assessment.Level = LevelWarning
		assessment.Message = fmt.Sprintf("%d of %d venues below maintenance margin", liquidated, len(venues))
	default:
		assessment.Level = LevelSafe
		assessment.Message = fmt.Sprintf("all %d venues above maintenance margin", len(venues))
	}

	return assessment, statuses
}

// SimulateCEXLiquidation applies the per-venue margin logic to a
// hypothetical exposure and reports the fraction of margin that would be
// lost. With zero venues the result is trivially safe with rate 0.0.
func SimulateCEXLiquidation(venues []VenueMargin, cfg Config, now time.Time) StressResult {
	result := StressResult{
		Level:     LevelSafe,
		Timestamp: now,
	}

	if len(venues) == 0 {
		return result
	}

	liquidated := 0
	for _, venue := range venues {
		status, err := venueMarginStatus(venue, cfg)
		if err != nil {
			result.Level = LevelError
			return result
		}
		result.Venues = append(result.Venues, status)

		margin := venue.CurrentMargin + venue.UsedMargin
		result.MarginAtRisk += margin
		if status.Liquidated {
			liquidated++
			result.MarginLost += margin
		}
	}

	if result.MarginAtRisk > 0 {
		result.LiquidationRate = result.MarginLost / result.MarginAtRisk
	}

	switch {
	case liquidated == len(venues):
		result.Level = LevelCritical
	case liquidated > 0:
		result.Level = LevelWarning
	}

	return result
}

func venueMarginStatus(venue VenueMargin, cfg Config) (VenueMarginStatus, error) {
	if !isFinite(venue.CurrentMargin) || !isFinite(venue.UsedMargin) || !isFinite(venue.PositionValue) ||
		venue.CurrentMargin < 0 || venue.UsedMargin < 0 || venue.PositionValue < 0 {
		return VenueMarginStatus{}, fmt.Errorf("unusable margin inputs for venue %s", venue.Venue)
	}

	status := VenueMarginStatus{Venue: venue.Venue}

	if venue.PositionValue == 0 {
		// No open position means nothing to liquidate
		status.MarginRatio = 1
		return status, nil
	}

	status.MarginRatio = (venue.CurrentMargin + venue.UsedMargin) / venue.PositionValue
	status.Liquidated = status.MarginRatio < cfg.MaintenanceThreshold
	return status, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
