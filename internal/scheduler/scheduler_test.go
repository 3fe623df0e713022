package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SwapSentinel/internal/candles"
	"SwapSentinel/internal/collector"
	"SwapSentinel/internal/model"
	"SwapSentinel/internal/state"
	"SwapSentinel/internal/strategy"
)

type scripted struct {
	strategy.Base
	buy, sell bool
	panics    bool
}

func (s *scripted) Name() string                  { return "scripted" }
func (s *scripted) ShouldBuy(strategy.Tick) bool  { return s.buy }
func (s *scripted) ShouldSell(strategy.Tick) bool { return s.sell }
func (s *scripted) State() map[string]any         { return map[string]any{"name": "scripted"} }
func (s *scripted) Restore(map[string]any)        {}
func (s *scripted) Update(strategy.Tick) {
	if s.panics {
		panic("indicator blew up")
	}
}

type fakeMarket struct {
	price   float64
	syncs   int
	startup int
}

func (m *fakeMarket) Sync(_ context.Context, _ collector.CandleStore, _ model.Timeframe, _ int, startup bool) (collector.SyncResult, error) {
	m.syncs++
	if startup {
		m.startup++
	}
	return collector.SyncResult{}, nil
}

func (m *fakeMarket) FetchCurrentPrice(context.Context) (float64, error) { return m.price, nil }

type fakeCandles struct{}

func (fakeCandles) Plan(context.Context, model.Timeframe, int) (candles.CatchUp, error) {
	return candles.CatchUp{}, nil
}
func (fakeCandles) Upsert(context.Context, []model.Candle) (int, error) { return 0, nil }
func (fakeCandles) Series(context.Context, model.Timeframe, int) (model.CandleSeries, error) {
	return nil, nil
}

type fakeAccount struct {
	healthy   bool
	sol, usdc float64
}

func (a *fakeAccount) Healthy(context.Context) bool { return a.healthy }
func (a *fakeAccount) Balances(context.Context) (float64, float64, error) {
	return a.sol, a.usdc, nil
}

type fakeExecutor struct {
	buys, sells []float64
	result      model.SwapResult
	err         error
	onBuy       func(ctx context.Context)
}

func (e *fakeExecutor) Buy(ctx context.Context, usdc float64) (model.SwapResult, error) {
	e.buys = append(e.buys, usdc)
	if e.onBuy != nil {
		e.onBuy(ctx)
	}
	return e.result, e.err
}

func (e *fakeExecutor) Sell(_ context.Context, sol float64) (model.SwapResult, error) {
	e.sells = append(e.sells, sol)
	return e.result, e.err
}

type recordingNotifier struct{ messages []string }

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.messages = append(n.messages, text)
	return nil
}

type harness struct {
	orch     *Orchestrator
	strat    *scripted
	engine   *strategy.Engine
	exec     *fakeExecutor
	account  *fakeAccount
	market   *fakeMarket
	store    *state.Store
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		strat:    &scripted{},
		exec:     &fakeExecutor{},
		account:  &fakeAccount{healthy: true, sol: 0.2, usdc: 1000},
		market:   &fakeMarket{price: 150},
		store:    state.NewStore(filepath.Join(t.TempDir(), "bot_state.json")),
		notifier: &recordingNotifier{},
	}
	h.engine = strategy.NewEngine(h.strat)
	h.orch = New(Deps{
		Market:   h.market,
		Candles:  fakeCandles{},
		Account:  h.account,
		Executor: h.exec,
		Engine:   h.engine,
		State:    h.store,
		Notifier: h.notifier,
	}, Options{
		Timeframe:           model.Timeframe1m,
		HistoryLimit:        200,
		PositionSizeUSDC:    100,
		MaxPositionSizeUSDC: 1000,
		FeeReserveSOL:       0.01,
		Tick:                cron.Every(10 * time.Second),
		ErrorPause:          time.Second,
	})
	return h
}

func TestTick_BuyFillOpensLongAndPersists(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = true
	// 100 USDC -> 0.5 SOL: fill at 200
	h.exec.result = model.SwapResult{Signature: "SIG1", Confirmed: true, InAmount: 100_000_000, OutAmount: 500_000_000}

	require.NoError(t, h.orch.Tick(context.Background()))

	assert.Equal(t, []float64{100}, h.exec.buys)
	pos := h.engine.Position()
	assert.Equal(t, model.SideLong, pos.Side)
	assert.InDelta(t, 200.0, pos.EntryPrice, 1e-9)
	assert.True(t, h.strat.Position().IsLong())

	persisted := h.store.Load()
	assert.Equal(t, model.SideLong, persisted.Position.Side)
	assert.InDelta(t, 200.0, persisted.Position.EntryPrice, 1e-9)

	require.Len(t, h.notifier.messages, 1)
	assert.Contains(t, h.notifier.messages[0], "SIG1")

	st := h.orch.Status()
	assert.Equal(t, int64(1), st.Ticks)
	assert.Equal(t, 150.0, st.LastPrice)
	assert.True(t, st.Position.IsLong())
}

func TestTick_FillWithoutAmountsUsesTickPrice(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = true
	h.exec.result = model.SwapResult{Signature: "SIG1"}

	require.NoError(t, h.orch.Tick(context.Background()))
	assert.Equal(t, 150.0, h.engine.Position().EntryPrice)
}

func TestTick_BuySizedByBalance(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = true
	h.account.usdc = 40
	h.exec.result = model.SwapResult{Signature: "SIG1"}

	require.NoError(t, h.orch.Tick(context.Background()))
	assert.Equal(t, []float64{40}, h.exec.buys)
}

func TestTick_SellSizedByPositionAndFeeReserve(t *testing.T) {
	h := newHarness(t)
	h.engine.Restore(model.BotState{Position: model.LongPosition(140, time.Now())})
	h.strat.sell = true
	h.account.sol = 1.0
	h.market.price = 200
	h.exec.result = model.SwapResult{Signature: "SIG2", InAmount: 500_000_000, OutAmount: 105_000_000}

	require.NoError(t, h.orch.Tick(context.Background()))
	require.Len(t, h.exec.sells, 1)
	assert.InDelta(t, 0.5, h.exec.sells[0], 1e-12)
	assert.Equal(t, model.SideFlat, h.engine.Position().Side)
	assert.Equal(t, model.SideFlat, h.store.Load().Position.Side)
}

func TestTick_InsufficientBalanceAbortsOrder(t *testing.T) {
	h := newHarness(t)
	h.engine.Restore(model.BotState{Position: model.LongPosition(140, time.Now())})
	h.strat.sell = true
	h.account.sol = 0.005 // below the fee reserve

	require.NoError(t, h.orch.Tick(context.Background()))
	assert.Empty(t, h.exec.sells)
	assert.True(t, h.engine.Position().IsLong())
}

func TestTick_FailedSwapStaysFlat(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = true
	h.exec.err = errors.New("buy swap: stale quote")

	require.NoError(t, h.orch.Tick(context.Background()))
	assert.Equal(t, model.SideFlat, h.engine.Position().Side)
	assert.Equal(t, model.SideFlat, h.store.Load().Position.Side)
	require.Len(t, h.notifier.messages, 1)
	assert.Contains(t, h.notifier.messages[0], "not filled")
}

func TestTick_UnhealthyNodeSkipsIteration(t *testing.T) {
	h := newHarness(t)
	h.account.healthy = false
	h.strat.buy = true

	err := h.orch.Tick(context.Background())
	assert.ErrorIs(t, err, model.ErrTransientNetwork)
	assert.Empty(t, h.exec.buys)
	assert.Equal(t, 0, h.market.syncs)
}

func TestSafeTick_RecoversPanic(t *testing.T) {
	h := newHarness(t)
	h.strat.panics = true

	var err error
	require.NotPanics(t, func() { err = h.orch.safeTick(context.Background()) })
	assert.Error(t, err)
}

func TestRun_StopsAtIterationBoundaryAndFlushes(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits []time.Duration
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		cancel()
		return ctx.Err()
	}

	require.NoError(t, h.orch.Run(ctx))
	assert.Equal(t, 1, h.market.startup)
	assert.Equal(t, int64(1), h.orch.Status().Ticks)
	require.Len(t, waits, 1)
	assert.LessOrEqual(t, waits[0], 10*time.Second)
	assert.Equal(t, model.SideFlat, h.store.Load().Position.Side)
}

func TestRun_StopDuringSwapCompletesTick(t *testing.T) {
	h := newHarness(t)
	h.strat.buy = true
	h.exec.result = model.SwapResult{Signature: "SIG1", Confirmed: true, InAmount: 100_000_000, OutAmount: 500_000_000}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the stop arrives while the swap is between quote and submit
	var swapErr error
	h.exec.onBuy = func(swapCtx context.Context) {
		cancel()
		swapErr = swapCtx.Err()
	}
	h.orch.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	require.NoError(t, h.orch.Run(ctx))

	require.Equal(t, []float64{100}, h.exec.buys)
	assert.NoError(t, swapErr)
	assert.Equal(t, int64(1), h.orch.Status().Ticks)
	assert.True(t, h.engine.Position().IsLong())

	persisted := h.store.Load()
	assert.Equal(t, model.SideLong, persisted.Position.Side)
	assert.InDelta(t, 200.0, persisted.Position.EntryPrice, 1e-9)
	require.Len(t, h.notifier.messages, 1)
	assert.Contains(t, h.notifier.messages[0], "SIG1")
}

func TestRun_RestoresPersistedPosition(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(model.BotState{Position: model.LongPosition(123, time.Now())}))

	h.orch.Start(context.Background())
	assert.True(t, h.engine.Position().IsLong())
	assert.Equal(t, 123.0, h.engine.Position().EntryPrice)
	assert.True(t, h.strat.Position().IsLong())
}

func TestHandleCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.orch.Tick(context.Background()))

	assert.Contains(t, h.orch.HandleCommand("/status"), "Position: flat")
	assert.Contains(t, h.orch.HandleCommand("/position"), "Last price: 150.0000")
	assert.Contains(t, h.orch.HandleCommand("/help"), "/status")
}
