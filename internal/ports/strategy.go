package ports

import (
	"context"

	"stratbot/internal/domain"
)

// Strategy is the contract every user-supplied strategy artifact must
// satisfy. Evaluate receives the chronological candle history (oldest
// first) and returns the closed trades it would have produced over that
// history (consumed only by the offline simulator) plus the signal for
// the latest candle.
//
// Implementations must degrade gracefully: insufficient history returns
// an empty trade list and HOLD, not an error.
type Strategy interface {
	Evaluate(ctx context.Context, candles []*domain.Candle) ([]domain.Trade, domain.Signal, error)

	// RequiredDataPoints returns the minimum number of candles needed
	// before the strategy can emit a non-HOLD signal.
	RequiredDataPoints() int

	// Name returns the artifact's declared name.
	Name() string
}
