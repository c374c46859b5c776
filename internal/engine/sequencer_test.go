package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratbot/internal/domain"
	"stratbot/internal/ports"
)

func newTestSequencer(exchange *mockExchange, repo *mockRepo) *Sequencer {
	logger := &mockLogger{}
	risk := NewRiskEngine(exchange, "BTCUSDT", RiskConfig{
		Amount:     100,
		Leverage:   5,
		StopLoss:   0.02,
		TakeProfit: 0.05,
	})
	recon := NewReconciler(exchange, logger, "BTCUSDT", time.Second)
	return NewSequencer(exchange, repo, risk, recon, logger, "BTCUSDT", 0, time.Second)
}

func TestSequencer_OpenLongFromFlat(t *testing.T) {
	exchange := &mockExchange{}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(0, 0)
	err := seq.Step(context.Background(), led, domain.SignalBuy, 50000)
	require.NoError(t, err)

	require.Len(t, exchange.orders, 1)
	assert.Equal(t, domain.Buy, exchange.orders[0].side)
	assert.Equal(t, 0.01, exchange.orders[0].quantity)
	assert.False(t, exchange.orders[0].reduceOnly)

	assert.True(t, led.IsLong())
	assert.Equal(t, 0.01, led.Quantity)
	assert.Equal(t, 50000.0, led.EntryPrice)
	require.Len(t, repo.saved, 1)
}

func TestSequencer_OpenShortFromFlat(t *testing.T) {
	exchange := &mockExchange{}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(0, 0)
	err := seq.Step(context.Background(), led, domain.SignalSell, 50000)
	require.NoError(t, err)

	require.Len(t, exchange.orders, 1)
	assert.Equal(t, domain.Sell, exchange.orders[0].side)
	assert.True(t, led.IsShort())
	assert.Equal(t, -0.01, led.Quantity)
	assert.Equal(t, 50000.0, led.EntryPrice)
}

func TestSequencer_HoldIsNoOp(t *testing.T) {
	exchange := &mockExchange{}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(0, 0)
	err := seq.Step(context.Background(), led, domain.SignalHold, 50000)
	require.NoError(t, err)

	assert.Empty(t, exchange.orders, "HOLD with flat position must not place any order")
	assert.Empty(t, repo.saved)
	assert.True(t, led.IsFlat())
}

func TestSequencer_StopLossClosesLong(t *testing.T) {
	exchange := &mockExchange{}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(1, 100)
	err := seq.Step(context.Background(), led, domain.SignalHold, 98)
	require.NoError(t, err)

	require.Len(t, exchange.orders, 1)
	assert.Equal(t, domain.Sell, exchange.orders[0].side)
	assert.Equal(t, 1.0, exchange.orders[0].quantity)
	assert.True(t, exchange.orders[0].reduceOnly)

	assert.True(t, led.IsFlat())
	assert.Zero(t, led.EntryPrice)
	assert.Equal(t, -2.0, led.RealizedPnL) // (98-100)*1
}

func TestSequencer_BreachTakesPrecedenceOverSignal(t *testing.T) {
	// A BUY signal while a long is past its stop loss must still close,
	// and must not reopen in the same cycle.
	exchange := &mockExchange{}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(1, 100)
	err := seq.Step(context.Background(), led, domain.SignalBuy, 97)
	require.NoError(t, err)

	require.Len(t, exchange.orders, 1, "only the closing order may be placed on a breach")
	assert.True(t, exchange.orders[0].reduceOnly)
	assert.True(t, led.IsFlat())
}

func TestSequencer_TakeProfitClosesShort(t *testing.T) {
	exchange := &mockExchange{}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(-2, 100)
	err := seq.Step(context.Background(), led, domain.SignalHold, 94)
	require.NoError(t, err)

	require.Len(t, exchange.orders, 1)
	assert.Equal(t, domain.Buy, exchange.orders[0].side)
	assert.Equal(t, 2.0, exchange.orders[0].quantity)
	assert.True(t, led.IsFlat())
	assert.Equal(t, 12.0, led.RealizedPnL) // (100-94)*2
}

func TestSequencer_ReversalClosesThenOpensOpposite(t *testing.T) {
	// SELL while long: close the long, confirm flat on the exchange,
	// then open a short in the same cycle.
	exchange := &mockExchange{position: nil} // post-close re-check reports flat
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(0.01, 49000)
	err := seq.Step(context.Background(), led, domain.SignalSell, 50000)
	require.NoError(t, err)

	require.Len(t, exchange.orders, 2)
	assert.Equal(t, domain.Sell, exchange.orders[0].side)
	assert.True(t, exchange.orders[0].reduceOnly)
	assert.Equal(t, domain.Sell, exchange.orders[1].side)
	assert.False(t, exchange.orders[1].reduceOnly)

	assert.True(t, led.IsShort())
	// realized pnl from the close: (50000-49000)*0.01 = 10
	assert.InDelta(t, 10.0, led.RealizedPnL, 1e-9)
	// close persisted before the reopen
	require.Len(t, repo.saved, 2)
	assert.True(t, repo.saved[0].IsFlat())
}

func TestSequencer_ReversalDefersReopenWhenNotConfirmedFlat(t *testing.T) {
	// The post-close re-check still reports residual exposure: the
	// reopen must wait for the next cycle.
	exchange := &mockExchange{
		position: &ports.Position{Symbol: "BTCUSDT", Quantity: 0.002, EntryPrice: 49000},
	}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(0.01, 49000)
	err := seq.Step(context.Background(), led, domain.SignalSell, 50000)
	require.NoError(t, err)

	require.Len(t, exchange.orders, 1, "no reopen while the exchange still reports exposure")
	assert.Equal(t, 0.002, led.Quantity, "ledger reflects the re-checked exchange truth")
}

func TestSequencer_ReversalDefersReopenWhenSyncFails(t *testing.T) {
	// The post-close re-check errors out: flat is unconfirmed even though
	// the ledger is locally flat, so the reopen must wait.
	exchange := &mockExchange{positionErr: errors.New("exchange unavailable")}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(0.01, 49000)
	err := seq.Step(context.Background(), led, domain.SignalSell, 50000)
	require.NoError(t, err)

	require.Len(t, exchange.orders, 1, "no reopen without exchange confirmation of flat")
	assert.True(t, exchange.orders[0].reduceOnly)
	assert.True(t, led.IsFlat())
	require.Len(t, repo.saved, 1, "only the close is persisted")
}

func TestSequencer_MinimumLotSkipsOpen(t *testing.T) {
	exchange := &mockExchange{lotStep: 0.1} // rounds 0.01 down to zero
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(0, 0)
	err := seq.Step(context.Background(), led, domain.SignalBuy, 50000)
	require.NoError(t, err)

	assert.Empty(t, exchange.orders)
	assert.True(t, led.IsFlat())
}

func TestSequencer_CloseUsesFilledPriceWhenAvailable(t *testing.T) {
	exchange := &mockExchange{avgPrice: 97.5}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(1, 100)
	err := seq.Step(context.Background(), led, domain.SignalHold, 98)
	require.NoError(t, err)

	assert.Equal(t, -2.5, led.RealizedPnL) // (97.5-100)*1 from the actual fill
}

func TestSequencer_OrderFailureLeavesLedgerUnchanged(t *testing.T) {
	exchange := &mockExchange{orderErr: errors.New("margin is insufficient")}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)

	led := testLedger(1, 100)
	err := seq.Step(context.Background(), led, domain.SignalHold, 98)
	require.Error(t, err)

	assert.Equal(t, 1.0, led.Quantity)
	assert.Equal(t, 100.0, led.EntryPrice)
	assert.Zero(t, led.RealizedPnL)
	assert.Empty(t, repo.saved)
}

func TestSequencer_StateSignInvariant(t *testing.T) {
	// Walk a full cycle of transitions and check the quantity-sign /
	// entry-price invariants at every step.
	exchange := &mockExchange{position: nil}
	repo := &mockRepo{}
	seq := newTestSequencer(exchange, repo)
	ctx := context.Background()

	led := testLedger(0, 0)
	checkInvariant := func() {
		t.Helper()
		assert.Equal(t, led.Quantity == 0, led.EntryPrice == 0, "entry price must be zero iff quantity is zero")
	}

	require.NoError(t, seq.Step(ctx, led, domain.SignalBuy, 100)) // FLAT -> LONG
	assert.True(t, led.IsLong())
	checkInvariant()

	require.NoError(t, seq.Step(ctx, led, domain.SignalSell, 101)) // LONG -> SHORT via reversal
	assert.True(t, led.IsShort())
	checkInvariant()

	require.NoError(t, seq.Step(ctx, led, domain.SignalBuy, 100)) // SHORT -> LONG via reversal
	assert.True(t, led.IsLong())
	checkInvariant()

	require.NoError(t, seq.Step(ctx, led, domain.SignalHold, 105.1)) // take profit -> FLAT
	assert.True(t, led.IsFlat())
	checkInvariant()
}
