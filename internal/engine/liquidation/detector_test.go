package liquidation

import (
	"testing"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func newDetector() *Detector {
	return NewDetector(config.DefaultStrategyConf().Liquidation)
}

func polls() (Poll, Poll) {
	prev := Poll{CapturedAt: t0, Positions: []models.PositionSnapshot{
		{Token: "BTC", Side: models.SideLong, USDValue: 50000, LiquidationPrice: 60000},
		{Token: "ETH", Side: models.SideShort, USDValue: 20000},
		{Token: "SOL", Side: models.SideLong, USDValue: 5000},
	}}
	curr := Poll{CapturedAt: t0.Add(15 * time.Minute), Positions: []models.PositionSnapshot{
		{Token: "SOL", Side: models.SideLong, USDValue: 5200},
	}}
	return prev, curr
}

func TestDetectVanishedWithoutClose(t *testing.T) {
	prev, curr := polls()
	trades := []models.TradeRecord{
		{Token: "ETH", Action: models.ActionClose, ExecutedAt: t0.Add(5 * time.Minute)},
	}
	got := newDetector().Detect("0xabc", prev, curr, trades)
	require.Len(t, got, 1)
	assert.Equal(t, "BTC", got[0].Token)
	assert.Equal(t, models.SideLong, got[0].Side)
	assert.Equal(t, t0, got[0].LastSeenAt)
	assert.Equal(t, curr.CapturedAt, got[0].DetectedAt)
}

func TestDetectReduceCountsAsExplanation(t *testing.T) {
	prev, curr := polls()
	trades := []models.TradeRecord{
		{Token: "BTC", Action: models.ActionReduce, ExecutedAt: t0.Add(time.Minute)},
		{Token: "ETH", Action: models.ActionClose, ExecutedAt: t0.Add(2 * time.Minute)},
	}
	assert.Empty(t, newDetector().Detect("0xabc", prev, curr, trades))
}

func TestDetectIgnoresOpensAndOutOfWindow(t *testing.T) {
	prev, curr := polls()
	trades := []models.TradeRecord{
		{Token: "BTC", Action: models.ActionOpen, ExecutedAt: t0.Add(time.Minute)},
		{Token: "ETH", Action: models.ActionClose, ExecutedAt: t0.Add(-2 * time.Hour)},
	}
	got := newDetector().Detect("0xabc", prev, curr, trades)
	require.Len(t, got, 2)
	assert.Equal(t, "BTC", got[0].Token)
	assert.Equal(t, "ETH", got[1].Token)
}

func TestDetectGraceWindow(t *testing.T) {
	prev, curr := polls()
	// 平仓成交时间略晚于本次轮询（上游延迟），仍在扩展窗口内
	trades := []models.TradeRecord{
		{Token: "BTC", Action: models.ActionClose, ExecutedAt: curr.CapturedAt.Add(10 * time.Minute)},
		{Token: "ETH", Action: models.ActionClose, ExecutedAt: t0.Add(-10 * time.Minute)},
	}
	assert.Empty(t, newDetector().Detect("0xabc", prev, curr, trades))
}

func TestDetectNoPrevious(t *testing.T) {
	_, curr := polls()
	assert.Empty(t, newDetector().Detect("0xabc", Poll{CapturedAt: t0}, curr, nil))
}
