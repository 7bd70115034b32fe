package strategy

import (
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// LeveragedStaking holds a liquid staking token levered up by borrowing
// the underlying against it on the lending protocol. Debt balances are
// tracked as positive quantities of debt owed.
type LeveragedStaking struct {
	*baseStrategy
	lstKey  types.PositionKey
	debtKey types.PositionKey
}

// NewLeveragedStaking creates a leveraged staking strategy instance
func NewLeveragedStaking(cfg Config) (*LeveragedStaking, error) {
	if err := requireFields(cfg,
		"staking_venue", cfg.StakingVenue,
		"lending_venue", cfg.LendingVenue,
		"asset", cfg.Asset,
	); err != nil {
		return nil, err
	}
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}

	lstKey := types.NewPositionKey(cfg.StakingVenue, types.PositionTypeLST, cfg.Asset)
	debtKey := types.NewPositionKey(cfg.LendingVenue, types.PositionTypeDebtToken, "WETH")
	walletCash := types.NewPositionKey("wallet", types.PositionTypeBaseToken, cfg.ShareClassCurrency)

	s := &LeveragedStaking{lstKey: lstKey, debtKey: debtKey}
	s.baseStrategy = newBaseStrategy(cfg, ModeLeveragedStaking, s,
		[]types.PositionKey{lstKey, debtKey, walletCash},
		[]types.PositionKey{walletCash},
	)
	return s, nil
}

func (s *LeveragedStaking) targetWeights(state DecisionState) (map[types.PositionKey]float64, error) {
	weights := map[types.PositionKey]float64{
		s.lstKey: s.cfg.Leverage,
	}
	if s.cfg.Leverage > 1 {
		weights[s.debtKey] = s.cfg.Leverage - 1
	}
	return weights, nil
}
