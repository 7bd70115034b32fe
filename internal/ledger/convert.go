package ledger

// UnderlyingBalance is the economic quantity a wrapped or interest-bearing
// balance represents. When no rate is available for the tick, the value is
// reported unavailable rather than guessed.
type UnderlyingBalance struct {
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
}

// ConvertUnderlying converts a raw balance to underlying units at the
// given rate (aToken via interest index, LST via oracle rate). Missing
// rate data degrades the conversion to unavailable, it never fails.
func ConvertUnderlying(rawBalance, rate float64, rateKnown bool) UnderlyingBalance {
	if !rateKnown || rate <= 0 {
		return UnderlyingBalance{}
	}
	return UnderlyingBalance{
		Value:     rawBalance * rate,
		Available: true,
	}
}
