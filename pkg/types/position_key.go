package types

import (
	"fmt"
	"strings"
)

// PositionType classifies what kind of holding a position key refers to
type PositionType string

const (
	PositionTypeBaseToken PositionType = "BaseToken"
	PositionTypeAToken    PositionType = "aToken"
	PositionTypeDebtToken PositionType = "debtToken"
	PositionTypePerp      PositionType = "Perp"
	PositionTypeLST       PositionType = "LST"
)

// IsValid reports whether the position type is one of the known variants
func (pt PositionType) IsValid() bool {
	switch pt {
	case PositionTypeBaseToken, PositionTypeAToken, PositionTypeDebtToken, PositionTypePerp, PositionTypeLST:
		return true
	default:
		return false
	}
}

// IsDebtCapable reports whether balances under this type may go negative
func (pt PositionType) IsDebtCapable() bool {
	return pt == PositionTypeDebtToken
}

// PositionKey identifies any trackable balance or derivative position.
// It is an immutable value type and is used as a map key throughout the
// ledger, exposure and execution packages.
type PositionKey struct {
	Venue  string       `json:"venue"`
	Type   PositionType `json:"position_type"`
	Symbol string       `json:"symbol"`
}

// NewPositionKey creates a position key from its three components
func NewPositionKey(venue string, positionType PositionType, symbol string) PositionKey {
	return PositionKey{Venue: venue, Type: positionType, Symbol: symbol}
}

// String returns the canonical wire format "venue:position_type:symbol"
// (e.g. "binance:Perp:BTCUSDT", "etherfi:LST:weETH")
func (k PositionKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Venue, k.Type, k.Symbol)
}

// Validate checks that all three components are present and the type is known
func (k PositionKey) Validate() error {
	if k.Venue == "" {
		return fmt.Errorf("position key missing venue")
	}
	if k.Symbol == "" {
		return fmt.Errorf("position key missing symbol")
	}
	if !k.Type.IsValid() {
		return fmt.Errorf("unknown position type %q", k.Type)
	}
	return nil
}

// MarshalText serializes the key in its canonical string form. Position
// keys are map keys in persisted snapshots, so they must encode as text.
func (k PositionKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the canonical string form back into the key
func (k *PositionKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePositionKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParsePositionKey parses the canonical "venue:position_type:symbol" form
func ParsePositionKey(s string) (PositionKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return PositionKey{}, fmt.Errorf("malformed position key %q: expected venue:position_type:symbol", s)
	}

	key := PositionKey{
		Venue:  parts[0],
		Type:   PositionType(parts[1]),
		Symbol: parts[2],
	}
	if err := key.Validate(); err != nil {
		return PositionKey{}, fmt.Errorf("malformed position key %q: %w", s, err)
	}

	return key, nil
}

// DerivativeKey identifies a derivative (perpetual) position on a venue
type DerivativeKey struct {
	Venue      string `json:"venue"`
	Instrument string `json:"instrument"`
}

// String returns "venue:instrument" (e.g. "binance:BTCUSDT")
func (k DerivativeKey) String() string {
	return fmt.Sprintf("%s:%s", k.Venue, k.Instrument)
}

// MarshalText serializes the key in its canonical string form
func (k DerivativeKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the canonical string form back into the key
func (k *DerivativeKey) UnmarshalText(text []byte) error {
	parsed, err := ParseDerivativeKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseDerivativeKey parses the canonical "venue:instrument" form
func ParseDerivativeKey(s string) (DerivativeKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return DerivativeKey{}, fmt.Errorf("malformed derivative key %q: expected venue:instrument", s)
	}
	return DerivativeKey{Venue: parts[0], Instrument: parts[1]}, nil
}
