package service

import (
	"context"
	"testing"
	"time"

	"github.com/dushixiang/copyrank/internal/engine/sizing"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/repo"
	"github.com/dushixiang/copyrank/pkg/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPaperWallet(t *testing.T) *exchange.PaperWallet {
	t.Helper()
	wallet := exchange.NewPaperWallet(nil, 100000, zap.NewNop())
	_, err := wallet.OpenPosition("BTCUSDT", "long", 0.1, 50000, 5)
	require.NoError(t, err)
	_, err = wallet.OpenPosition("ETHUSDT", "short", 1, 3000, 3)
	require.NoError(t, err)
	return wallet
}

func TestBuildAccountState(t *testing.T) {
	db := newTestDB(t)
	wallet := newPaperWallet(t)
	metrics := newTestMetrics()
	risk := NewRiskService(db, newTestConfig(), wallet, NewEventBus(metrics, zap.NewNop()), metrics, zap.NewNop())

	state, err := risk.BuildAccountState(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100000, state.AccountValue, 1e-6)
	assert.InDelta(t, 8000, state.TotalExposureUSD, 1e-6)
	assert.InDelta(t, 5000, state.LongExposureUSD, 1e-6)
	assert.InDelta(t, 3000, state.ShortExposureUSD, 1e-6)
	assert.InDelta(t, 5000, state.TokenExposureUSD["BTC"], 1e-6)
	assert.InDelta(t, 3000, state.TokenExposureUSD["ETH"], 1e-6)
}

func TestComputePositionSize(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	metrics := newTestMetrics()
	risk := NewRiskService(db, newTestConfig(), newPaperWallet(t), NewEventBus(metrics, zap.NewNop()), metrics, zap.NewNop())

	// 未提供账户状态时使用纸钱包
	res, err := risk.ComputePositionSize(ctx, sizing.Request{
		Token:          "BTC",
		Side:           models.SideLong,
		BaseSizeUSD:    1000,
		TraderLeverage: 3,
	}, nil)
	require.NoError(t, err)
	assert.False(t, res.Rejected)
	assert.InDelta(t, 800, res.FinalSizeUSD, 1e-9)
	assert.Equal(t, exchange.OrderTypeMarket, res.OrderType)
	assert.Equal(t, exchange.MarginTypeIsolated, res.MarginType)

	res, err = risk.ComputePositionSize(ctx, sizing.Request{
		Token:       "DOGE",
		Side:        models.SideLong,
		BaseSizeUSD: 5,
	}, &sizing.AccountState{AccountValue: 10000, TokenExposureUSD: map[string]float64{}})
	require.NoError(t, err)
	assert.True(t, res.Rejected)
	assert.Equal(t, 8, res.RejectStep)
	assert.Zero(t, res.FinalSizeUSD)
}

func TestCheckBuffersRespectsCooldown(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	conf := newTestConfig()
	metrics := newTestMetrics()
	bus := NewEventBus(metrics, zap.NewNop())
	var events []Event
	bus.Subscribe("test", func(_ context.Context, e Event) error {
		events = append(events, e)
		return nil
	})
	risk := NewRiskService(db, conf, newPaperWallet(t), bus, metrics, zap.NewNop())

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	risk.now = func() time.Time { return now }

	positions := repo.NewPositionRepo(db)
	require.NoError(t, positions.Create(ctx, &models.Position{
		ID:               "p1",
		Symbol:           "BTCUSDT",
		Side:             models.SideLong,
		Quantity:         0.1,
		EntryPrice:       50000,
		MarkPrice:        50000,
		LiquidationPrice: 47500,
		Leverage:         5,
		OpenedAt:         now,
		SourceTrader:     "0xa",
	}))
	require.NoError(t, positions.Create(ctx, &models.Position{
		ID:               "p2",
		Symbol:           "ETHUSDT",
		Side:             models.SideShort,
		Quantity:         1,
		EntryPrice:       3000,
		MarkPrice:        3000,
		LiquidationPrice: 4000,
		Leverage:         3,
		OpenedAt:         now,
	}))
	require.NoError(t, positions.Create(ctx, &models.Position{
		ID:               "p3",
		Symbol:           "SOLUSDT",
		Side:             models.SideShort,
		Quantity:         10,
		EntryPrice:       100,
		MarkPrice:        100,
		LiquidationPrice: 115,
		Leverage:         5,
		OpenedAt:         now,
	}))

	n, err := risk.CheckBuffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, events, 2)
	actions := map[string]string{}
	for _, e := range events {
		assert.Equal(t, EventBufferAction, e.Type)
		actions[e.Token] = e.Action
	}
	assert.Equal(t, string(sizing.BufferActionEmergency), actions["BTC"])
	assert.Equal(t, string(sizing.BufferActionReduce), actions["SOL"])

	// 冷却期内不重复发出
	now = now.Add(30 * time.Second)
	n, err = risk.CheckBuffers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(31 * time.Second)
	n, err = risk.CheckBuffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOnLiquidationClosesCopiedPositions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	metrics := newTestMetrics()
	bus := NewEventBus(metrics, zap.NewNop())
	var closes []Event
	risk := NewRiskService(db, newTestConfig(), newPaperWallet(t), bus, metrics, zap.NewNop())
	bus.Subscribe("closer", risk.OnLiquidation)
	bus.Subscribe("test", func(_ context.Context, e Event) error {
		if e.Type == EventBufferAction {
			closes = append(closes, e)
		}
		return nil
	})

	positions := repo.NewPositionRepo(db)
	require.NoError(t, positions.Create(ctx, &models.Position{
		ID:           "p1",
		Symbol:       "BTCUSDT",
		Side:         models.SideLong,
		Quantity:     0.1,
		EntryPrice:   50000,
		MarkPrice:    50000,
		Leverage:     5,
		OpenedAt:     time.Now(),
		SourceTrader: "0xa",
	}))
	require.NoError(t, positions.Create(ctx, &models.Position{
		ID:           "p2",
		Symbol:       "ETHUSDT",
		Side:         models.SideLong,
		Quantity:     1,
		EntryPrice:   3000,
		MarkPrice:    3000,
		Leverage:     5,
		OpenedAt:     time.Now(),
		SourceTrader: "0xa",
	}))

	bus.Publish(ctx, Event{Type: EventLiquidationDetected, Trader: "0xa", Token: "BTC", Side: models.SideLong})
	require.Len(t, closes, 1)
	assert.Equal(t, "BTC", closes[0].Token)
	assert.Equal(t, string(sizing.BufferActionEmergency), closes[0].Action)
}

func TestSyncPositions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	wallet := newPaperWallet(t)
	svc := NewPositionService(db, wallet, zap.NewNop())

	require.NoError(t, svc.SyncPositions(ctx))
	items, err := svc.GetAllPositions(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.NoError(t, svc.AssignSourceTrader(ctx, "BTCUSDT", "long", "0xA"))

	wallet.SetMarkPrice("BTCUSDT", 52000)
	require.NoError(t, wallet.ClosePosition(ctx, "ETHUSDT", "short"))
	require.NoError(t, svc.SyncPositions(ctx))

	items, err = svc.GetAllPositions(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "BTCUSDT", items[0].Symbol)
	assert.Equal(t, 52000.0, items[0].MarkPrice)
	assert.Equal(t, "0xa", items[0].SourceTrader)
	assert.Equal(t, string(exchange.MarginTypeIsolated), items[0].MarginType)
	assert.InDelta(t, 200, items[0].UnrealizedPnl, 1e-6)
}
