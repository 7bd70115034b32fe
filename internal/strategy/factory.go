package strategy

import (
	"fmt"
	"strings"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
)

// NewStrategy creates the strategy instance for the configured mode. The
// mode set is closed; an unknown mode fails fast rather than falling back
// to a default.
func NewStrategy(cfg Config) (Strategy, error) {
	if cfg.ShareClassCurrency == "" {
		return nil, perrors.NewConfigError("strategy", "NewStrategy", "share_class_currency is required")
	}

	switch cfg.Mode {
	case ModePureLending:
		return NewPureLending(cfg)
	case ModeBasisTrade:
		return NewBasisTrade(cfg)
	case ModeLeveragedStaking:
		return NewLeveragedStaking(cfg)
	case ModeMarketNeutral:
		return NewMarketNeutral(cfg)
	case ModeMLDirectional:
		return NewMLDirectional(cfg)
	default:
		return nil, perrors.NewConfigError("strategy", "NewStrategy",
			fmt.Sprintf("unknown strategy mode %q (supported: %s)", cfg.Mode, strings.Join(supportedModes(), ", ")))
	}
}

func supportedModes() []string {
	return []string{
		string(ModePureLending),
		string(ModeBasisTrade),
		string(ModeLeveragedStaking),
		string(ModeMarketNeutral),
		string(ModeMLDirectional),
	}
}

// requireFields validates that the named config fields are non-empty.
// Pairs alternate field name and field value.
func requireFields(cfg Config, pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return perrors.NewConfigError("strategy", "requireFields",
			fmt.Sprintf("mode %s missing required config fields: %s", cfg.Mode, strings.Join(missing, ", ")))
	}
	return nil
}
