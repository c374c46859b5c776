package domain

import (
	"fmt"
	"strings"
)

// Signal is the decision a strategy contract emits for the latest candle.
// It is produced fresh each cycle and never persisted.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// ParseSignal validates a raw signal string as returned by a strategy
// artifact. Anything outside BUY/SELL/HOLD is a contract violation.
func ParseSignal(s string) (Signal, error) {
	switch Signal(strings.ToUpper(strings.TrimSpace(s))) {
	case SignalBuy:
		return SignalBuy, nil
	case SignalSell:
		return SignalSell, nil
	case SignalHold:
		return SignalHold, nil
	default:
		return "", fmt.Errorf("invalid signal %q (want BUY, SELL or HOLD)", s)
	}
}
