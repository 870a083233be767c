package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/pkg/ta"
)

// Calculator 把成交历史转换为窗口绩效指标
type Calculator struct {
	conf config.MetricsConf
}

func NewCalculator(conf config.MetricsConf) *Calculator {
	return &Calculator{conf: conf}
}

// Window 单个统计窗口的输入
type Window struct {
	Days              int
	Trades            []models.TradeRecord
	AccountValueStart float64
}

// Compute 计算单个窗口的指标，数据不足时返回 Empty 记录，所有字段均为有限值
func (c *Calculator) Compute(w Window) models.TradeMetrics {
	m := models.TradeMetrics{
		WindowDays:        w.Days,
		TradeCount:        len(w.Trades),
		AccountValueStart: ta.Finite(math.Max(w.AccountValueStart, 0), 0),
	}
	if len(w.Trades) == 0 {
		m.Empty = true
		return m
	}

	var (
		grossProfit float64
		grossLoss   float64
		worstLoss   float64
		returns     []float64
	)
	for _, t := range w.Trades {
		m.RealizedPnl += t.ClosedPnl
		if !t.IsClosing() || t.ClosedPnl == 0 {
			continue
		}
		m.ClosingTrades++
		if t.ClosedPnl > 0 {
			m.Wins++
			grossProfit += t.ClosedPnl
		} else {
			grossLoss += -t.ClosedPnl
			if t.ClosedPnl < worstLoss {
				worstLoss = t.ClosedPnl
			}
		}
		if t.ValueUSD > 0 {
			returns = append(returns, t.ClosedPnl/t.ValueUSD)
		}
	}

	if m.ClosingTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.ClosingTrades)
	}
	m.ProfitFactor = c.profitFactor(grossProfit, grossLoss)

	if sd := ta.SampleStdDev(returns); sd > 0 {
		m.Sharpe = ta.Finite(ta.Mean(returns)/sd, 0)
	}

	if m.AccountValueStart > 0 {
		m.ROI = ta.Finite(m.RealizedPnl/m.AccountValueStart*100, 0)
		m.Drawdown = ta.Finite(math.Abs(worstLoss)/m.AccountValueStart, 0)
	}
	return m
}

// profitFactor 无亏损时返回配置的上限值而不是 +Inf
func (c *Calculator) profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return c.conf.ProfitFactorCap
		}
		return 0
	}
	return math.Min(grossProfit/grossLoss, c.conf.ProfitFactorCap)
}

// ComputeAll 计算所有配置窗口的指标
// trades 覆盖最长窗口即可，polls 用于估算窗口起点的账户价值
func (c *Calculator) ComputeAll(trades []models.TradeRecord, polls []models.PositionPoll, currentAccountValue float64, now time.Time) map[int]models.TradeMetrics {
	result := make(map[int]models.TradeMetrics, len(c.conf.Windows))
	for _, days := range c.conf.Windows {
		from := now.Add(-time.Duration(days) * 24 * time.Hour)
		inWindow := FilterBetween(trades, from, now)
		pnl := 0.0
		for _, t := range inWindow {
			pnl += t.ClosedPnl
		}
		result[days] = c.Compute(Window{
			Days:              days,
			Trades:            inWindow,
			AccountValueStart: EstimateStartValue(polls, from, now, currentAccountValue, pnl),
		})
	}
	return result
}

// FilterBetween 返回 [from, to] 内的成交
func FilterBetween(trades []models.TradeRecord, from, to time.Time) []models.TradeRecord {
	var out []models.TradeRecord
	for _, t := range trades {
		if t.ExecutedAt.Before(from) || t.ExecutedAt.After(to) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// EstimateStartValue 优先使用窗口内最早一次轮询的账户价值，否则用 当前账户价值 - 窗口盈亏
func EstimateStartValue(polls []models.PositionPoll, from, to time.Time, currentAccountValue, windowPnl float64) float64 {
	inWindow := make([]models.PositionPoll, 0, len(polls))
	for _, p := range polls {
		if p.CapturedAt.Before(from) || p.CapturedAt.After(to) || p.AccountValue <= 0 {
			continue
		}
		inWindow = append(inWindow, p)
	}
	if len(inWindow) > 0 {
		sort.Slice(inWindow, func(i, j int) bool {
			return inWindow[i].CapturedAt.Before(inWindow[j].CapturedAt)
		})
		return inWindow[0].AccountValue
	}
	v := currentAccountValue - windowPnl
	if v <= 0 {
		return 0
	}
	return v
}
