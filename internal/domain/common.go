package domain

import (
	"fmt"
	"strings"
)

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the closing side for a position opened with this side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Mode selects the trading environment a deployment runs against.
// Sandbox uses the exchange's demo environment with the same API surface.
type Mode string

const (
	ModeLive    Mode = "live"
	ModeSandbox Mode = "sandbox"
)

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLive:
		return ModeLive, nil
	case ModeSandbox:
		return ModeSandbox, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want live or sandbox)", s)
	}
}

// RunStatus represents the lifecycle status of a deployment's ledger.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusStopped RunStatus = "stopped"
	StatusError   RunStatus = "error"
)

// CloseReason indicates why an open position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonReversal   CloseReason = "REVERSAL"
	CloseReasonSquareOff  CloseReason = "SQUARE_OFF"
)
