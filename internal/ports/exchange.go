package ports

import (
	"context"
	"time"

	"stratbot/internal/domain"
)

// Position is the exchange-reported state for a symbol: the authoritative
// source for position size and entry price.
type Position struct {
	Symbol        string
	Quantity      float64 // signed: positive long, negative short
	EntryPrice    float64
	UnrealizedPnL float64
	Leverage      int
}

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID     int64
	Symbol      string
	AvgPrice    float64 // average filled price, 0 if not reported yet
	ExecutedQty float64
	Status      string
	Side        domain.OrderSide
	ReduceOnly  bool
	Timestamp   time.Time
}

// ExchangeClient defines the abstract capability set the engine needs from
// a derivatives exchange. Sandbox variants implement the identical
// interface against the exchange's demo environment.
//
// Idempotency classes: GetPosition and GetCandles are safe to retry;
// PlaceMarketOrder is NOT idempotent (callers must re-check position state
// before retrying); SetLeverage and SetMarginIsolated are idempotent and
// issued once at startup.
type ExchangeClient interface {
	// GetPosition retrieves the current position for a symbol.
	// Returns nil, nil when the exchange reports no open position.
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	// PlaceMarketOrder places a market order. A reduce-only order may only
	// decrease an existing position, never open a new one.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64, reduceOnly bool) (*OrderResponse, error)

	// SetLeverage sets the leverage for a symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// SetMarginIsolated switches the symbol to isolated margin mode.
	SetMarginIsolated(ctx context.Context, symbol string) error

	// RoundQuantity rounds a raw quantity down to the symbol's minimum
	// tradable precision. A result of zero means the minimum lot is not met.
	RoundQuantity(ctx context.Context, symbol string, raw float64) (float64, error)

	// GetCandles retrieves the most recent OHLCV candles for the symbol,
	// ordered oldest first.
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)
}
