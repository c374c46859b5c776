package engine

import (
	"context"
	"math"
	"time"

	"stratbot/internal/domain"
	"stratbot/internal/ports"
)

// Mock implementations of the ports interfaces.

type mockLogger struct {
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type placedOrder struct {
	side       domain.OrderSide
	quantity   float64
	reduceOnly bool
}

type mockExchange struct {
	position    *ports.Position
	positionErr error

	orders   []placedOrder
	orderErr error
	avgPrice float64

	candles    []*domain.Candle
	candlesErr error

	leverageErr error
	marginErr   error

	lotStep float64 // 0 means identity rounding
}

func (m *mockExchange) GetPosition(ctx context.Context, symbol string) (*ports.Position, error) {
	return m.position, m.positionErr
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64, reduceOnly bool) (*ports.OrderResponse, error) {
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	m.orders = append(m.orders, placedOrder{side: side, quantity: quantity, reduceOnly: reduceOnly})
	return &ports.OrderResponse{
		OrderID:     int64(len(m.orders)),
		Symbol:      symbol,
		AvgPrice:    m.avgPrice,
		ExecutedQty: quantity,
		Status:      "FILLED",
		Side:        side,
		ReduceOnly:  reduceOnly,
		Timestamp:   time.Now(),
	}, nil
}

func (m *mockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return m.leverageErr
}

func (m *mockExchange) SetMarginIsolated(ctx context.Context, symbol string) error {
	return m.marginErr
}

func (m *mockExchange) RoundQuantity(ctx context.Context, symbol string, raw float64) (float64, error) {
	if m.lotStep <= 0 {
		return raw, nil
	}
	return math.Floor(raw/m.lotStep) * m.lotStep, nil
}

func (m *mockExchange) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	return m.candles, m.candlesErr
}

type mockRepo struct {
	saved      []*domain.Ledger
	saveErr    error
	loaded     *domain.Ledger
	loadErr    error
	errorMsgs  []string
	stopped    int
	markErrErr error
}

func (m *mockRepo) Load(ctx context.Context, deploymentID string, mode domain.Mode) (*domain.Ledger, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.loaded != nil {
		return m.loaded, nil
	}
	return domain.NewLedger(deploymentID, mode), nil
}

func (m *mockRepo) Save(ctx context.Context, ledger *domain.Ledger) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	snapshot := *ledger
	m.saved = append(m.saved, &snapshot)
	return nil
}

func (m *mockRepo) MarkError(ctx context.Context, deploymentID string, mode domain.Mode, msg string, at time.Time) error {
	if m.markErrErr != nil {
		return m.markErrErr
	}
	m.errorMsgs = append(m.errorMsgs, msg)
	return nil
}

func (m *mockRepo) MarkStopped(ctx context.Context, deploymentID string, mode domain.Mode) error {
	m.stopped++
	return nil
}

type mockStrategy struct {
	signal  domain.Signal
	trades  []domain.Trade
	err     error
	minData int
}

func (m *mockStrategy) Evaluate(ctx context.Context, candles []*domain.Candle) ([]domain.Trade, domain.Signal, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return m.trades, m.signal, nil
}

func (m *mockStrategy) RequiredDataPoints() int {
	if m.minData == 0 {
		return 1
	}
	return m.minData
}

func (m *mockStrategy) Name() string { return "mock" }

func testCandles(closes ...float64) []*domain.Candle {
	now := time.Now()
	candles := make([]*domain.Candle, len(closes))
	for i, c := range closes {
		candles[i] = &domain.Candle{
			OpenTime:  now.Add(time.Duration(i-len(closes)) * time.Minute),
			CloseTime: now.Add(time.Duration(i-len(closes)+1) * time.Minute),
			Symbol:    "BTCUSDT",
			Interval:  "1m",
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return candles
}
