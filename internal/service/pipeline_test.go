package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/provider"
	"github.com/dushixiang/copyrank/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedTrades(address string, now time.Time, n int) []models.TradeRecord {
	trades := make([]models.TradeRecord, 0, n)
	for i := 0; i < n; i++ {
		action := models.ActionOpen
		pnl := 0.0
		if i%2 == 1 {
			action = models.ActionClose
			pnl = 50
		}
		trades = append(trades, models.TradeRecord{
			ExternalID: fmt.Sprintf("%s:%d", address, i),
			Token:      "BTC",
			Side:       models.SideLong,
			Action:     action,
			Size:       0.01,
			Price:      60000,
			ValueUSD:   600,
			ClosedPnl:  pnl,
			ExecutedAt: now.Add(-time.Duration(n-i) * time.Hour),
		})
	}
	return trades
}

func TestIngestionRefreshAndSync(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	conf := newTestConfig()
	conf.Provider.UniverseSize = 2

	now := time.Now().UTC()
	p := newStubProvider()
	p.leaderboard = []provider.LeaderboardEntry{
		{Address: "0xa", TotalPnl: 100, ROI: 5},
		{Address: "0xb", TotalPnl: 300, ROI: 15},
		{Address: "0xc", TotalPnl: 200, ROI: 10},
	}
	p.trades["0xb"] = seedTrades("0xb", now, 4)
	p.setError("0xc", provider.ErrRateLimited)

	ingestion := NewIngestionService(db, conf, p, newTestMetrics(), zap.NewNop())

	tracked, err := ingestion.RefreshUniverse(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tracked)

	traderRepo := repo.NewTraderRepo(db)
	items, err := traderRepo.FindTracked(ctx)
	require.NoError(t, err)
	var addresses []string
	for _, tr := range items {
		addresses = append(addresses, tr.Address)
	}
	assert.ElementsMatch(t, []string{"0xb", "0xc"}, addresses)

	failures, err := ingestion.SyncAll(ctx, now)
	require.NoError(t, err)
	assert.Contains(t, failures, "0xc")
	assert.NotContains(t, failures, "0xb")

	// 重复同步不会写入重复成交
	_, err = ingestion.SyncAll(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&models.TradeRecord{}).Where("trader_address = ?", "0xb").Count(&count).Error)
	assert.EqualValues(t, 4, count)

	var polls int64
	require.NoError(t, db.Model(&models.PositionPoll{}).Where("trader_address = ?", "0xb").Count(&polls).Error)
	assert.EqualValues(t, 2, polls)

	c, err := traderRepo.FindByAddress(ctx, "0xc")
	require.NoError(t, err)
	assert.NotEmpty(t, c.LastSyncError)
	b, err := traderRepo.FindByAddress(ctx, "0xb")
	require.NoError(t, err)
	require.NotNil(t, b.LastSyncedAt)
	require.NotNil(t, b.LastTradeAt)
}

func TestSyncTraderPollsPositionsBeforeTrades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now().UTC()

	p := newStubProvider()
	p.positions["0xa"] = &provider.AccountPositions{
		AccountValue: 10000,
		Positions: []models.PositionSnapshot{
			{Token: "BTC", Side: models.SideLong, USDValue: 600, Leverage: 5},
		},
	}
	// 轮询返回后立刻平仓，成交要在同一次同步中落库
	p.onPositions = func(address string) {
		p.trades[address] = append(p.trades[address], models.TradeRecord{
			ExternalID: "0xa:close",
			Token:      "BTC",
			Side:       models.SideLong,
			Action:     models.ActionClose,
			ValueUSD:   600,
			ClosedPnl:  20,
			ExecutedAt: now,
		})
	}

	ingestion := NewIngestionService(db, newTestConfig(), p, newTestMetrics(), zap.NewNop())
	require.NoError(t, ingestion.SyncTrader(ctx, models.Trader{Address: "0xa"}, now))

	assert.Equal(t, []string{"positions:0xa", "trades:0xa"}, p.calls)
	var count int64
	require.NoError(t, db.Model(&models.TradeRecord{}).Where("external_id = ?", "0xa:close").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCycleCarriesScoresForFailedTraders(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	conf := newTestConfig()
	metrics := newTestMetrics()
	logger := zap.NewNop()

	now := time.Now().UTC()
	p := newStubProvider()
	p.leaderboard = []provider.LeaderboardEntry{
		{Address: "0xb", TotalPnl: 300, ROI: 15},
		{Address: "0xc", TotalPnl: 200, ROI: 10},
	}
	p.trades["0xb"] = seedTrades("0xb", now.Add(-12*time.Hour), 6)
	p.setError("0xc", provider.ErrUnavailable)

	ingestion := NewIngestionService(db, conf, p, metrics, logger)
	scoring := NewScoringService(db, conf, logger)
	allocation := NewAllocationService(db, conf, logger)
	bus := NewEventBus(metrics, logger)
	cycles := NewCycleService(db, conf, ingestion, scoring, allocation, bus, metrics, logger)

	var completed []string
	bus.Subscribe("test", func(_ context.Context, e Event) error {
		if e.Type == EventCycleCompleted {
			completed = append(completed, e.CycleID)
		}
		return nil
	})

	first := now.Add(-6 * time.Hour)
	run, err := cycles.RunCycle(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, models.CycleStatusDone, run.Status)
	assert.Equal(t, 2, run.Traders)
	assert.Equal(t, 1, run.Scored)
	assert.Equal(t, 0, run.Carried)
	assert.Contains(t, run.Skips, "0xc")
	assert.Equal(t, 0, run.Allocated)

	// 第二个周期 0xb 同步失败，沿用上一周期评分
	p.setError("0xb", provider.ErrRateLimited)
	second, err := cycles.RunCycle(ctx, now)
	require.NoError(t, err)
	assert.NotEqual(t, run.CycleID, second.CycleID)
	assert.Equal(t, 0, second.Scored)
	assert.Equal(t, 1, second.Carried)

	cycleID, scores, err := scoring.FindScores(ctx, second.CycleID)
	require.NoError(t, err)
	assert.Equal(t, second.CycleID, cycleID)
	require.Len(t, scores, 1)
	assert.True(t, scores[0].Carried)
	assert.Equal(t, "0xb", scores[0].TraderAddress)

	latest, items, err := allocation.LatestAllocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.CycleID, latest)
	assert.Empty(t, items)
	assert.Equal(t, []string{run.CycleID, second.CycleID}, completed)

	runs, err := cycles.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func insertScores(t *testing.T, db *repo.TraderScoreRepo, cycleID string, scores map[string]float64) {
	t.Helper()
	for addr, s := range scores {
		require.NoError(t, db.ReplaceForCycle(context.Background(), &models.TraderScore{
			ID:             addr + cycleID,
			CycleID:        cycleID,
			TraderAddress:  addr,
			FinalScore:     s,
			TierMultiplier: 1,
			Eligible:       true,
		}))
	}
}

func markDone(t *testing.T, r *repo.CycleRunRepo, cycleID string) {
	t.Helper()
	finished := time.Now().UTC()
	require.NoError(t, r.Create(context.Background(), &models.CycleRun{
		ID:         "run" + cycleID,
		CycleID:    cycleID,
		Status:     models.CycleStatusDone,
		StartedAt:  finished,
		FinishedAt: &finished,
	}))
}

func TestAllocationRebalance(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	conf := newTestConfig()
	svc := NewAllocationService(db, conf, zap.NewNop())
	scoreRepo := repo.NewTraderScoreRepo(db)
	runRepo := repo.NewCycleRunRepo(db)

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	insertScores(t, scoreRepo, "20250301T00", map[string]float64{"0xa": 0.9, "0xb": 0.8, "0xc": 0.7})

	result, err := svc.Rebalance(ctx, "20250301T00", at)
	require.NoError(t, err)
	require.Len(t, result.Weights, 3)
	total := 0.0
	for _, w := range result.Weights {
		total += w.FinalWeight
		assert.LessOrEqual(t, w.FinalWeight, conf.Strategy.Allocation.MaxWeight+1e-9)
	}
	assert.InDelta(t, 1.0, total, 1e-6)

	// 周期未完成前读取的仍是上一个完成周期（此时没有）
	cycleID, items, err := svc.LatestAllocations(ctx)
	require.NoError(t, err)
	assert.Empty(t, cycleID)
	assert.Empty(t, items)

	markDone(t, runRepo, "20250301T00")
	weight, err := svc.GetAllocation(ctx, "0xa")
	require.NoError(t, err)
	assert.Greater(t, weight, 0.0)
	weight, err = svc.GetAllocation(ctx, "0xz")
	require.NoError(t, err)
	assert.Zero(t, weight)

	// 被拉黑的交易员直接退出
	blacklist := NewBlacklistService(db, conf, newTestMetrics(), zap.NewNop())
	_, err = blacklist.AddManual(ctx, "0xc", "manual review", 24*time.Hour)
	require.NoError(t, err)
	insertScores(t, scoreRepo, "20250301T06", map[string]float64{"0xa": 0.9, "0xb": 0.8})

	result, err = svc.Rebalance(ctx, "20250301T06", at.Add(6*time.Hour))
	require.NoError(t, err)
	weights := result.Map()
	assert.NotContains(t, weights, "0xc")
	assert.Contains(t, weights, "0xa")

	// 重跑同一周期覆盖而不是重复写入
	_, err = svc.Rebalance(ctx, "20250301T06", at.Add(6*time.Hour))
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&models.Allocation{}).Where("cycle_id = ?", "20250301T06").Count(&count).Error)
	assert.EqualValues(t, len(result.Weights), count)
}

func TestAllocationBlacklistEvaluatedAtCycleTime(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	conf := newTestConfig()
	svc := NewAllocationService(db, conf, zap.NewNop())
	scoreRepo := repo.NewTraderScoreRepo(db)

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	insertScores(t, scoreRepo, "20250301T00", map[string]float64{"0xa": 0.9, "0xb": 0.8, "0xc": 0.7})
	_, err := svc.Rebalance(ctx, "20250301T00", at)
	require.NoError(t, err)
	markDone(t, repo.NewCycleRunRepo(db), "20250301T00")

	// 条目在墙钟时间早已过期，但在 06:00 周期内仍然有效
	blacklist := NewBlacklistService(db, conf, newTestMetrics(), zap.NewNop())
	blacklist.now = func() time.Time { return at }
	_, err = blacklist.AddManual(ctx, "0xc", "manual review", 12*time.Hour)
	require.NoError(t, err)

	insertScores(t, scoreRepo, "20250301T06", map[string]float64{"0xa": 0.9, "0xb": 0.8})
	for i := 0; i < 2; i++ {
		result, err := svc.Rebalance(ctx, "20250301T06", at.Add(6*time.Hour))
		require.NoError(t, err)
		assert.NotContains(t, result.Map(), "0xc")
	}

	// 到期之后的周期不再视为退出，按换手限制逐步降低
	insertScores(t, scoreRepo, "20250301T18", map[string]float64{"0xa": 0.9, "0xb": 0.8})
	result, err := svc.Rebalance(ctx, "20250301T18", at.Add(18*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, result.Map(), "0xc")
}

func TestAllocationEmptyEligibleSet(t *testing.T) {
	db := newTestDB(t)
	svc := NewAllocationService(db, newTestConfig(), zap.NewNop())

	result, err := svc.Rebalance(context.Background(), "20250301T00", time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, result.Weights)
}

func TestBlacklistLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := NewBlacklistService(db, newTestConfig(), newTestMetrics(), zap.NewNop())

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.AddManual(ctx, "", "x", time.Hour)
	assert.Error(t, err)
	_, err = svc.AddManual(ctx, "0xa", "x", 0)
	assert.Error(t, err)

	entry, err := svc.AddManual(ctx, " 0xA ", "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "0xa", entry.TraderAddress)
	assert.Equal(t, "manual", entry.Reason)

	listed, active, err := svc.IsBlacklisted(ctx, "0xa")
	require.NoError(t, err)
	assert.True(t, listed)
	require.NotNil(t, active)

	// 到期时刻仍然有效
	now = now.Add(time.Hour)
	listed, _, err = svc.IsBlacklisted(ctx, "0xa")
	require.NoError(t, err)
	assert.True(t, listed)

	now = now.Add(time.Second)
	listed, _, err = svc.IsBlacklisted(ctx, "0xa")
	require.NoError(t, err)
	assert.False(t, listed)

	n, err := svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLiquidationMonitorDetectsOnce(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	conf := newTestConfig()
	metrics := newTestMetrics()
	logger := zap.NewNop()

	bus := NewEventBus(metrics, logger)
	var events []Event
	bus.Subscribe("test", func(_ context.Context, e Event) error {
		events = append(events, e)
		return nil
	})
	blacklist := NewBlacklistService(db, conf, metrics, logger)
	monitor := NewLiquidationMonitorService(db, conf, blacklist, bus, metrics, logger)

	now := time.Now().UTC()
	require.NoError(t, repo.NewTraderRepo(db).Create(ctx, &models.Trader{Address: "0xa", Tracked: true}))
	polls := repo.NewPositionPollRepo(db)
	prev := &models.PositionPoll{ID: "poll1", TraderAddress: "0xa", PositionCount: 2, CapturedAt: now.Add(-15 * time.Minute)}
	require.NoError(t, polls.CreateWithSnapshots(ctx, prev, []models.PositionSnapshot{
		{ID: "s1", PollID: "poll1", TraderAddress: "0xa", Token: "BTC", Side: models.SideLong, USDValue: 50000, LiquidationPrice: 55000, CapturedAt: prev.CapturedAt},
		{ID: "s2", PollID: "poll1", TraderAddress: "0xa", Token: "ETH", Side: models.SideShort, USDValue: 20000, CapturedAt: prev.CapturedAt},
	}))
	cur := &models.PositionPoll{ID: "poll2", TraderAddress: "0xa", CapturedAt: now}
	require.NoError(t, polls.CreateWithSnapshots(ctx, cur, nil))

	// ETH 有平仓成交，属于正常平仓
	_, err := repo.NewTradeRecordRepo(db).InsertIgnoreDuplicates(ctx, []models.TradeRecord{{
		ID:            "t1",
		ExternalID:    "x:1",
		TraderAddress: "0xa",
		Token:         "ETH",
		Side:          models.SideShort,
		Action:        models.ActionClose,
		ExecutedAt:    now.Add(-5 * time.Minute),
	}})
	require.NoError(t, err)

	detected, err := monitor.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, detected, 1)
	assert.Equal(t, "BTC", detected[0].Token)
	assert.NotEmpty(t, detected[0].BlacklistID)

	listed, entry, err := blacklist.IsBlacklisted(ctx, "0xa")
	require.NoError(t, err)
	assert.True(t, listed)
	assert.Equal(t, models.BlacklistSourceAuto, entry.Source)

	require.Len(t, events, 1)
	assert.Equal(t, EventLiquidationDetected, events[0].Type)

	// 同一次持仓消失只处理一次
	detected, err = monitor.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, detected)
	recent, err := monitor.RecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
