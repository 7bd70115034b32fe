package strategy

import (
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// PureLending supplies the full deployable capital to the lending
// protocol as interest-bearing collateral with no borrow leg
type PureLending struct {
	*baseStrategy
	supplyKey types.PositionKey
}

// NewPureLending creates a pure lending strategy instance
func NewPureLending(cfg Config) (*PureLending, error) {
	if err := requireFields(cfg, "lending_venue", cfg.LendingVenue, "share_class_currency", cfg.ShareClassCurrency); err != nil {
		return nil, err
	}

	supplyKey := types.NewPositionKey(cfg.LendingVenue, types.PositionTypeAToken, cfg.ShareClassCurrency)
	walletCash := types.NewPositionKey("wallet", types.PositionTypeBaseToken, cfg.ShareClassCurrency)

	s := &PureLending{supplyKey: supplyKey}
	s.baseStrategy = newBaseStrategy(cfg, ModePureLending, s,
		[]types.PositionKey{supplyKey, walletCash},
		[]types.PositionKey{walletCash},
	)
	return s, nil
}

func (s *PureLending) targetWeights(state DecisionState) (map[types.PositionKey]float64, error) {
	return map[types.PositionKey]float64{
		s.supplyKey: 1.0,
	}, nil
}
