package models

// Trade is an immutable record of one closed position. It is created only at
// a close event and never mutated afterward.
type Trade struct {
	Index     int     `json:"index"`
	Direction int     `json:"direction"`
	Entry     float64 `json:"entry"`
	Exit      float64 `json:"exit"`
	PnL       float64 `json:"pnl"`
}

// Win reports whether the trade closed with a positive pnl.
func (t Trade) Win() bool {
	return t.PnL > 0
}
