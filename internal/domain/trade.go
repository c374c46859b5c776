package domain

// Trade is a closed round trip reported by a strategy contract.
// The live engine never persists individual trades; only the offline
// simulator consumes them to build an equity curve.
type Trade struct {
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
}

// PnL returns the realized profit of the round trip.
func (t Trade) PnL() float64 {
	return (t.ExitPrice - t.EntryPrice) * t.Quantity
}
