package strategy

import (
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// MarketNeutral splits capital between a hedged spot/perp pair and a
// lending-protocol cash leg, holding net delta at zero
type MarketNeutral struct {
	*baseStrategy
	spotKey   types.PositionKey
	perpKey   types.PositionKey
	supplyKey types.PositionKey
}

// NewMarketNeutral creates a market neutral strategy instance
func NewMarketNeutral(cfg Config) (*MarketNeutral, error) {
	if err := requireFields(cfg,
		"spot_venue", cfg.SpotVenue,
		"perp_venue", cfg.PerpVenue,
		"lending_venue", cfg.LendingVenue,
		"asset", cfg.Asset,
		"instrument", cfg.Instrument,
	); err != nil {
		return nil, err
	}

	spotKey := types.NewPositionKey(cfg.SpotVenue, types.PositionTypeBaseToken, cfg.Asset)
	perpKey := types.NewPositionKey(cfg.PerpVenue, types.PositionTypePerp, cfg.Instrument)
	supplyKey := types.NewPositionKey(cfg.LendingVenue, types.PositionTypeAToken, cfg.ShareClassCurrency)
	spotCash := types.NewPositionKey(cfg.SpotVenue, types.PositionTypeBaseToken, cfg.ShareClassCurrency)
	perpCash := types.NewPositionKey(cfg.PerpVenue, types.PositionTypeBaseToken, cfg.ShareClassCurrency)

	s := &MarketNeutral{spotKey: spotKey, perpKey: perpKey, supplyKey: supplyKey}
	s.baseStrategy = newBaseStrategy(cfg, ModeMarketNeutral, s,
		[]types.PositionKey{spotKey, perpKey, supplyKey, spotCash, perpCash},
		[]types.PositionKey{spotCash, perpCash},
	)
	return s, nil
}

func (s *MarketNeutral) targetWeights(state DecisionState) (map[types.PositionKey]float64, error) {
	return map[types.PositionKey]float64{
		s.spotKey:   0.5,
		s.perpKey:   -0.5,
		s.supplyKey: 0.5,
	}, nil
}
