package eligibility

import (
	"testing"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func newFilter() *Filter {
	return NewFilter(config.DefaultStrategyConf().Eligibility)
}

func goodMetrics() map[int]models.TradeMetrics {
	return map[int]models.TradeMetrics{
		7:  {WindowDays: 7, RealizedPnl: 500, ROI: 2, TradeCount: 8, WinRate: 0.6, ProfitFactor: 2},
		30: {WindowDays: 30, RealizedPnl: 3000, ROI: 12, TradeCount: 40, WinRate: 0.6, ProfitFactor: 2},
		90: {WindowDays: 90, RealizedPnl: 9000, ROI: 30, TradeCount: 120, WinRate: 0.58, ProfitFactor: 1.8},
	}
}

func TestAntiLuckPass(t *testing.T) {
	r := newFilter().AntiLuck(goodMetrics())
	assert.True(t, r.Eligible)
	assert.Empty(t, r.Reason)
}

func TestAntiLuckFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[int]models.TradeMetrics)
	}{
		{"missing window", func(m map[int]models.TradeMetrics) { delete(m, 90) }},
		{"empty window", func(m map[int]models.TradeMetrics) { m[7] = models.TradeMetrics{Empty: true} }},
		{"7d loss", func(m map[int]models.TradeMetrics) { x := m[7]; x.RealizedPnl = -1; m[7] = x }},
		{"30d roi", func(m map[int]models.TradeMetrics) { x := m[30]; x.ROI = 4; m[30] = x }},
		{"90d pnl", func(m map[int]models.TradeMetrics) { x := m[90]; x.RealizedPnl = 4000; m[90] = x }},
		{"few trades", func(m map[int]models.TradeMetrics) { x := m[30]; x.TradeCount = 19; m[30] = x }},
		{"too lucky", func(m map[int]models.TradeMetrics) { x := m[30]; x.WinRate = 0.86; m[30] = x }},
		{"too unlucky", func(m map[int]models.TradeMetrics) { x := m[30]; x.WinRate = 0.30; x.ProfitFactor = 2; m[30] = x }},
		{"low profit factor", func(m map[int]models.TradeMetrics) { x := m[30]; x.ProfitFactor = 1.5; m[30] = x }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := goodMetrics()
			tt.mutate(m)
			r := newFilter().AntiLuck(m)
			assert.False(t, r.Eligible)
			assert.Equal(t, GateAntiLuck, r.Gate)
			assert.NotEmpty(t, r.Reason)
		})
	}
}

func TestTrendTraderException(t *testing.T) {
	m := goodMetrics()
	x := m[30]
	x.WinRate = 0.25
	x.ProfitFactor = 3.1
	m[30] = x

	f := newFilter()
	assert.True(t, f.IsTrendTrader(x))
	assert.True(t, f.AntiLuck(m).Eligible)

	// 胜率过高不适用例外
	x.WinRate = 0.9
	m[30] = x
	assert.False(t, f.AntiLuck(m).Eligible)
}

func TestBlacklistGate(t *testing.T) {
	f := newFilter()
	entry := f.NewAutoEntry("0xabc", "BTC", now)
	assert.Equal(t, now.Add(14*24*time.Hour), entry.ExpiresAt)
	entries := []models.BlacklistEntry{entry}

	r := f.Check(goodMetrics(), entries, now.Add(time.Hour))
	assert.False(t, r.Eligible)
	assert.Equal(t, GateBlacklist, r.Gate)

	// 到期时刻仍不合格，严格晚于到期时间后恢复
	assert.False(t, f.Check(goodMetrics(), entries, entry.ExpiresAt).Eligible)
	assert.True(t, f.Check(goodMetrics(), entries, entry.ExpiresAt.Add(time.Second)).Eligible)
}

func TestBlacklistOverridesScore(t *testing.T) {
	f := newFilter()
	entries := []models.BlacklistEntry{NewManualEntry("0xabc", "wash trading", 48*time.Hour, now)}
	r := f.Check(goodMetrics(), entries, now)
	assert.False(t, r.Eligible)
	assert.Contains(t, r.Reason, "wash trading")
}

func TestActiveEntryPicksLatestExpiry(t *testing.T) {
	entries := []models.BlacklistEntry{
		NewManualEntry("0xabc", "a", time.Hour, now),
		NewManualEntry("0xabc", "b", 48*time.Hour, now),
		NewManualEntry("0xabc", "c", -time.Hour, now),
	}
	e := ActiveEntry(entries, now)
	if assert.NotNil(t, e) {
		assert.Equal(t, "b", e.Reason)
	}
	assert.Nil(t, ActiveEntry(entries, now.Add(72*time.Hour)))
}
