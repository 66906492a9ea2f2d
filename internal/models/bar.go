package models

// Bar is one price observation in an ordered, immutable sequence.
// Open and Close are required; Features carries optional model inputs for
// predictor-driven strategies.
type Bar struct {
	Open     float64   `json:"open"`
	Close    float64   `json:"close"`
	High     float64   `json:"high,omitempty"`
	Low      float64   `json:"low,omitempty"`
	Features []float64 `json:"features,omitempty"`
}

// Validate checks that the bar carries usable open and close prices.
func (b Bar) Validate() error {
	if b.Open <= 0 {
		return NewDataError("price bar requires a positive open price, got %v", b.Open)
	}
	if b.Close <= 0 {
		return NewDataError("price bar requires a positive close price, got %v", b.Close)
	}
	return nil
}

// Signal values a strategy may return.
const (
	SignalShort = -1
	SignalFlat  = 0
	SignalLong  = 1
)

// ValidSignal reports whether s is one of -1, 0, 1.
func ValidSignal(s int) bool {
	return s == SignalShort || s == SignalFlat || s == SignalLong
}
