package metrics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func closeTrade(pnl, value float64, at time.Time) models.TradeRecord {
	return models.TradeRecord{Token: "BTC", Side: models.SideLong, Action: models.ActionClose, ClosedPnl: pnl, ValueUSD: value, ExecutedAt: at}
}

func openTrade(at time.Time) models.TradeRecord {
	return models.TradeRecord{Token: "BTC", Side: models.SideLong, Action: models.ActionOpen, ValueUSD: 1000, ExecutedAt: at}
}

func newCalc() *Calculator {
	return NewCalculator(config.DefaultStrategyConf().Metrics)
}

func TestComputeEmpty(t *testing.T) {
	m := newCalc().Compute(Window{Days: 30, AccountValueStart: 10000})
	assert.True(t, m.Empty)
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, 0.0, m.ProfitFactor)
	assert.Equal(t, 0.0, m.Sharpe)
	assert.Equal(t, 0.0, m.ROI)
}

func TestComputeNoClosingTrades(t *testing.T) {
	m := newCalc().Compute(Window{Days: 7, Trades: []models.TradeRecord{openTrade(now)}, AccountValueStart: 1000})
	assert.False(t, m.Empty)
	assert.Equal(t, 1, m.TradeCount)
	assert.Equal(t, 0, m.ClosingTrades)
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, 0.0, m.ProfitFactor)
}

func TestComputeBasic(t *testing.T) {
	trades := []models.TradeRecord{
		openTrade(now.Add(-5 * time.Hour)),
		closeTrade(300, 3000, now.Add(-4*time.Hour)),
		closeTrade(-100, 2000, now.Add(-3*time.Hour)),
		closeTrade(200, 1000, now.Add(-2*time.Hour)),
		closeTrade(-200, 4000, now.Add(-time.Hour)),
	}
	m := newCalc().Compute(Window{Days: 30, Trades: trades, AccountValueStart: 10000})

	assert.Equal(t, 5, m.TradeCount)
	assert.Equal(t, 4, m.ClosingTrades)
	assert.Equal(t, 2, m.Wins)
	assert.InDelta(t, 0.5, m.WinRate, 1e-9)
	assert.InDelta(t, 500.0/300.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 200.0, m.RealizedPnl, 1e-9)
	assert.InDelta(t, 2.0, m.ROI, 1e-9)
	assert.InDelta(t, 0.02, m.Drawdown, 1e-9)

	// 收益率 0.1, -0.05, 0.2, -0.05
	returns := []float64{0.1, -0.05, 0.2, -0.05}
	mean := (0.1 - 0.05 + 0.2 - 0.05) / 4
	acc := 0.0
	for _, r := range returns {
		acc += (r - mean) * (r - mean)
	}
	assert.InDelta(t, mean/math.Sqrt(acc/3), m.Sharpe, 1e-9)
}

func TestProfitFactorIsFiniteWithoutLosses(t *testing.T) {
	trades := []models.TradeRecord{
		closeTrade(100, 1000, now),
		closeTrade(50, 1000, now),
	}
	m := newCalc().Compute(Window{Days: 7, Trades: trades, AccountValueStart: 1000})
	assert.Equal(t, 999.0, m.ProfitFactor)
	assert.Equal(t, 1.0, m.WinRate)

	_, err := json.Marshal(m)
	require.NoError(t, err)
}

func TestSharpeNeedsTwoPoints(t *testing.T) {
	m := newCalc().Compute(Window{Days: 7, Trades: []models.TradeRecord{closeTrade(100, 1000, now)}, AccountValueStart: 1000})
	assert.Equal(t, 0.0, m.Sharpe)

	// 零方差
	m = newCalc().Compute(Window{Days: 7, Trades: []models.TradeRecord{closeTrade(100, 1000, now), closeTrade(100, 1000, now)}, AccountValueStart: 1000})
	assert.Equal(t, 0.0, m.Sharpe)
}

func TestZeroAccountValueGivesZeroROI(t *testing.T) {
	m := newCalc().Compute(Window{Days: 7, Trades: []models.TradeRecord{closeTrade(-100, 1000, now)}, AccountValueStart: 0})
	assert.Equal(t, 0.0, m.ROI)
	assert.Equal(t, 0.0, m.Drawdown)
}

func TestEstimateStartValue(t *testing.T) {
	from := now.Add(-7 * 24 * time.Hour)
	polls := []models.PositionPoll{
		{AccountValue: 12000, CapturedAt: now.Add(-2 * 24 * time.Hour)},
		{AccountValue: 11000, CapturedAt: now.Add(-6 * 24 * time.Hour)},
		{AccountValue: 9000, CapturedAt: now.Add(-10 * 24 * time.Hour)},
	}
	assert.Equal(t, 11000.0, EstimateStartValue(polls, from, now, 15000, 500))
	assert.Equal(t, 14500.0, EstimateStartValue(nil, from, now, 15000, 500))
	assert.Equal(t, 0.0, EstimateStartValue(nil, from, now, 100, 500))
}

func TestComputeAllWindows(t *testing.T) {
	trades := []models.TradeRecord{
		closeTrade(100, 1000, now.Add(-1*24*time.Hour)),
		closeTrade(-50, 1000, now.Add(-20*24*time.Hour)),
		closeTrade(400, 1000, now.Add(-60*24*time.Hour)),
	}
	all := newCalc().ComputeAll(trades, nil, 10450, now)
	require.Len(t, all, 3)

	assert.Equal(t, 1, all[7].TradeCount)
	assert.Equal(t, 2, all[30].TradeCount)
	assert.Equal(t, 3, all[90].TradeCount)
	assert.InDelta(t, 100.0/10350.0*100, all[7].ROI, 1e-9)
	assert.InDelta(t, 450.0/10000.0*100, all[90].ROI, 1e-9)
}
