package engine

import (
	"context"
	"math"
	"testing"

	"stratbot/internal/domain"
)

func testLedger(quantity, entry float64) *domain.Ledger {
	led := domain.NewLedger("dep-1", domain.ModeSandbox)
	led.SetPosition(quantity, entry, 0)
	return led
}

func TestRiskEngine_CheckExit(t *testing.T) {
	risk := NewRiskEngine(&mockExchange{}, "BTCUSDT", RiskConfig{
		Amount:     100,
		Leverage:   5,
		StopLoss:   0.02,
		TakeProfit: 0.05,
	})

	tests := []struct {
		name       string
		quantity   float64
		entry      float64
		price      float64
		wantClose  bool
		wantReason domain.CloseReason
	}{
		{
			// (98-100)/100 = -0.02, boundary is inclusive
			name:     "long stop loss at exact threshold",
			quantity: 1, entry: 100, price: 98,
			wantClose: true, wantReason: domain.CloseReasonStopLoss,
		},
		{
			// (100-94)/100 = 0.06 >= 0.05
			name:     "short take profit past threshold",
			quantity: -1, entry: 100, price: 94,
			wantClose: true, wantReason: domain.CloseReasonTakeProfit,
		},
		{
			name:     "long within thresholds",
			quantity: 1, entry: 100, price: 101,
			wantClose: false,
		},
		{
			name:     "short stop loss on adverse move",
			quantity: -1, entry: 100, price: 102.5,
			wantClose: true, wantReason: domain.CloseReasonStopLoss,
		},
		{
			name:     "long take profit",
			quantity: 2, entry: 100, price: 105,
			wantClose: true, wantReason: domain.CloseReasonTakeProfit,
		},
		{
			name:     "flat never breaches",
			quantity: 0, entry: 0, price: 100,
			wantClose: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			led := testLedger(tt.quantity, tt.entry)
			gotClose, gotReason := risk.CheckExit(led, tt.price)
			if gotClose != tt.wantClose {
				t.Errorf("CheckExit close = %v, want %v", gotClose, tt.wantClose)
			}
			if gotClose && gotReason != tt.wantReason {
				t.Errorf("CheckExit reason = %v, want %v", gotReason, tt.wantReason)
			}
		})
	}
}

func TestRiskEngine_FavorableMove(t *testing.T) {
	risk := NewRiskEngine(&mockExchange{}, "BTCUSDT", RiskConfig{Amount: 100, Leverage: 5, StopLoss: 0.02, TakeProfit: 0.05})

	long := testLedger(1, 100)
	if move := risk.FavorableMove(long, 103); math.Abs(move-0.03) > 1e-12 {
		t.Errorf("long favorable move = %f, want 0.03", move)
	}

	short := testLedger(-1, 100)
	if move := risk.FavorableMove(short, 103); math.Abs(move-(-0.03)) > 1e-12 {
		t.Errorf("short favorable move = %f, want -0.03", move)
	}

	flat := testLedger(0, 0)
	if move := risk.FavorableMove(flat, 103); move != 0 {
		t.Errorf("flat favorable move = %f, want 0", move)
	}
}

func TestRiskEngine_PositionSize(t *testing.T) {
	// amount=100, leverage=5, price=50000 => (100*5)/50000 = 0.01
	risk := NewRiskEngine(&mockExchange{}, "BTCUSDT", RiskConfig{Amount: 100, Leverage: 5, StopLoss: 0.02, TakeProfit: 0.05})

	qty, err := risk.PositionSize(context.Background(), 50000)
	if err != nil {
		t.Fatalf("PositionSize error: %v", err)
	}
	if math.Abs(qty-0.01) > 1e-12 {
		t.Errorf("PositionSize = %f, want 0.01", qty)
	}
}

func TestRiskEngine_PositionSizeBelowMinimumLot(t *testing.T) {
	risk := NewRiskEngine(&mockExchange{lotStep: 0.1}, "BTCUSDT", RiskConfig{Amount: 100, Leverage: 5, StopLoss: 0.02, TakeProfit: 0.05})

	// raw = 500/50000 = 0.01, rounded down to a 0.1 step => 0
	qty, err := risk.PositionSize(context.Background(), 50000)
	if err != nil {
		t.Fatalf("PositionSize error: %v", err)
	}
	if qty != 0 {
		t.Errorf("PositionSize = %f, want 0 (minimum lot not met)", qty)
	}
}
