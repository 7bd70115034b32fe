package strategy

import (
	"math"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// MLDirectional sizes a single perpetual position from an external
// directional signal. The signal source is a collaborator; anything it
// returns outside [-1, 1] is clamped.
type MLDirectional struct {
	*baseStrategy
	perpKey types.PositionKey
}

// NewMLDirectional creates an ML directional strategy instance
func NewMLDirectional(cfg Config) (*MLDirectional, error) {
	if err := requireFields(cfg,
		"perp_venue", cfg.PerpVenue,
		"instrument", cfg.Instrument,
	); err != nil {
		return nil, err
	}
	if cfg.Signal == nil {
		return nil, perrors.NewConfigError("strategy", "NewMLDirectional",
			"ml_directional requires a signal provider")
	}

	perpKey := types.NewPositionKey(cfg.PerpVenue, types.PositionTypePerp, cfg.Instrument)
	perpCash := types.NewPositionKey(cfg.PerpVenue, types.PositionTypeBaseToken, cfg.ShareClassCurrency)

	s := &MLDirectional{perpKey: perpKey}
	s.baseStrategy = newBaseStrategy(cfg, ModeMLDirectional, s,
		[]types.PositionKey{perpKey, perpCash},
		[]types.PositionKey{perpCash},
	)
	return s, nil
}

func (s *MLDirectional) targetWeights(state DecisionState) (map[types.PositionKey]float64, error) {
	signal, err := s.cfg.Signal.Signal(state.Tick)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrorCategoryValidation, "strategy", "targetWeights",
			"signal provider failed")
	}
	signal = math.Max(-1, math.Min(1, signal))

	return map[types.PositionKey]float64{
		s.perpKey: signal,
	}, nil
}
