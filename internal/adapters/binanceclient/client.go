package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"stratbot/internal/domain"
	"stratbot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLSandbox    = "https://testnet.binancefuture.com"
)

// Client implements the ports.ExchangeClient interface using the go-binance
// library. Sandbox mode targets the futures testnet with the identical API
// surface, so the engine cannot tell the environments apart.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger

	mu    sync.Mutex
	steps map[string]decimal.Decimal // symbol -> LOT_SIZE step, cached from exchange info
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey    string
	SecretKey string
	Mode      domain.Mode
	Logger    ports.Logger
}

// New creates a new Binance futures client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.Mode == domain.ModeSandbox {
		client.BaseURL = baseURLSandbox
		cfg.Logger.Info(context.Background(), "Binance client configured for sandbox", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for live trading", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		steps:         make(map[string]decimal.Decimal),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1111, -4003, -4014, -4015: // precision / qty / price / leverage out of range
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2022: // new order rejected / reduce-only rejected
			mappedErr = ports.ErrOrderRejected
		case -2014, -2015: // API-key invalid or lacking permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019, -3005, -3041: // insufficient margin / balance / position
			mappedErr = ports.ErrInsufficientMargin
		case -4044: // position not found
			mappedErr = ports.ErrPositionNotFound
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetPosition retrieves the current position for a symbol.
// Returns nil, nil when the exchange reports no open position.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*ports.Position, error) {
	op := "GetPosition"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(positions) == 0 {
		c.logger.Debug(ctx, op+": no position entry for symbol", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}

	binancePos := positions[0]
	qty, _ := strconv.ParseFloat(binancePos.PositionAmt, 64)
	if qty == 0 {
		c.logger.Debug(ctx, op+": position amount is zero", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}

	entryPrice, _ := strconv.ParseFloat(binancePos.EntryPrice, 64)
	unrealized, _ := strconv.ParseFloat(binancePos.UnRealizedProfit, 64)
	leverage, _ := strconv.Atoi(binancePos.Leverage)

	return &ports.Position{
		Symbol:        binancePos.Symbol,
		Quantity:      qty, // positionAmt is signed: negative for shorts
		EntryPrice:    entryPrice,
		UnrealizedPnL: unrealized,
		Leverage:      leverage,
	}, nil
}

// PlaceMarketOrder places a market order, optionally reduce-only.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64, reduceOnly bool) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64))
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": side, "quantity": quantity,
		"reduceOnly": reduceOnly, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice,
	})
	return resp, nil
}

// SetLeverage sets the leverage for a specific symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// SetMarginIsolated switches a symbol to isolated margin mode. The exchange
// answers -4046 when the mode is already isolated; that is not a failure.
func (c *Client) SetMarginIsolated(ctx context.Context, symbol string) error {
	op := "SetMarginIsolated"
	err := c.futuresClient.NewChangeMarginTypeService().
		Symbol(symbol).
		MarginType(futures.MarginTypeIsolated).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == -4046 {
			c.logger.Debug(ctx, op+": margin type already isolated", map[string]interface{}{"symbol": symbol})
			return nil
		}
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol})
	return nil
}

// RoundQuantity floors a raw quantity to the symbol's LOT_SIZE step.
// The step is fetched from exchange info once and cached.
func (c *Client) RoundQuantity(ctx context.Context, symbol string, raw float64) (float64, error) {
	op := "RoundQuantity"
	step, err := c.lotStep(ctx, symbol)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if raw <= 0 {
		return 0, nil
	}

	rounded := decimal.NewFromFloat(raw).Div(step).Floor().Mul(step)
	result, _ := rounded.Float64()
	return result, nil
}

func (c *Client) lotStep(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.mu.Lock()
	if step, ok := c.steps[symbol]; ok {
		c.mu.Unlock()
		return step, nil
	}
	c.mu.Unlock()

	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		lot := s.LotSizeFilter()
		if lot == nil {
			return decimal.Zero, fmt.Errorf("symbol %s has no LOT_SIZE filter", symbol)
		}
		step, err := decimal.NewFromString(lot.StepSize)
		if err != nil || step.IsZero() {
			return decimal.Zero, fmt.Errorf("invalid LOT_SIZE step %q for symbol %s", lot.StepSize, symbol)
		}
		c.mu.Lock()
		c.steps[symbol] = step
		c.mu.Unlock()
		return step, nil
	}

	return decimal.Zero, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

// GetCandles retrieves the most recent OHLCV candles, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	op := "GetCandles"
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]*domain.Candle, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		candle, err := translateKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// --- Translation Helpers ---

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResponse{
		OrderID:     order.OrderID,
		Symbol:      order.Symbol,
		AvgPrice:    avgPrice,
		ExecutedQty: execQty,
		Status:      string(order.Status),
		Side:        domain.OrderSide(order.Side),
		ReduceOnly:  order.ReduceOnly,
		Timestamp:   time.UnixMilli(order.UpdateTime),
	}
}

func translateKline(bk *futures.Kline, symbol, interval string) (*domain.Candle, error) {
	if bk == nil {
		return nil, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Candle{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
