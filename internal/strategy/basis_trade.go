package strategy

import (
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// BasisTrade holds the asset long in spot and an equal notional short in
// the perpetual, capturing the futures-spot spread and funding payments
type BasisTrade struct {
	*baseStrategy
	spotKey types.PositionKey
	perpKey types.PositionKey
}

// NewBasisTrade creates a basis trade strategy instance
func NewBasisTrade(cfg Config) (*BasisTrade, error) {
	if err := requireFields(cfg,
		"spot_venue", cfg.SpotVenue,
		"perp_venue", cfg.PerpVenue,
		"asset", cfg.Asset,
		"instrument", cfg.Instrument,
	); err != nil {
		return nil, err
	}

	spotKey := types.NewPositionKey(cfg.SpotVenue, types.PositionTypeBaseToken, cfg.Asset)
	perpKey := types.NewPositionKey(cfg.PerpVenue, types.PositionTypePerp, cfg.Instrument)
	spotCash := types.NewPositionKey(cfg.SpotVenue, types.PositionTypeBaseToken, cfg.ShareClassCurrency)
	perpCash := types.NewPositionKey(cfg.PerpVenue, types.PositionTypeBaseToken, cfg.ShareClassCurrency)

	s := &BasisTrade{spotKey: spotKey, perpKey: perpKey}
	s.baseStrategy = newBaseStrategy(cfg, ModeBasisTrade, s,
		[]types.PositionKey{spotKey, perpKey, spotCash, perpCash},
		[]types.PositionKey{spotCash, perpCash},
	)
	return s, nil
}

func (s *BasisTrade) targetWeights(state DecisionState) (map[types.PositionKey]float64, error) {
	return map[types.PositionKey]float64{
		s.spotKey: 1.0,
		s.perpKey: -1.0,
	}, nil
}
