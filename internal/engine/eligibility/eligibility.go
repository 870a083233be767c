package eligibility

import (
	"fmt"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
)

const (
	GateAntiLuck  = "anti_luck"
	GateBlacklist = "blacklist"
)

// Result 筛选结果，Reason 仅用于观测
type Result struct {
	Eligible bool   `json:"eligible"`
	Gate     string `json:"gate,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func pass() Result {
	return Result{Eligible: true}
}

func fail(gate, format string, args ...any) Result {
	return Result{Gate: gate, Reason: fmt.Sprintf(format, args...)}
}

// Filter 反运气筛选与黑名单筛选，均为无副作用的判断
type Filter struct {
	conf config.EligibilityConf
}

func NewFilter(conf config.EligibilityConf) *Filter {
	return &Filter{conf: conf}
}

// Check 两道门槛都通过才合格，黑名单优先
func (f *Filter) Check(metrics map[int]models.TradeMetrics, entries []models.BlacklistEntry, now time.Time) Result {
	if r := f.Blacklist(entries, now); !r.Eligible {
		return r
	}
	return f.AntiLuck(metrics)
}

// AntiLuck 反运气筛选
func (f *Filter) AntiLuck(metrics map[int]models.TradeMetrics) Result {
	c := f.conf
	for _, th := range c.Thresholds {
		m, ok := metrics[th.Days]
		if !ok || m.Empty {
			return fail(GateAntiLuck, "no data in %dd window", th.Days)
		}
		if m.RealizedPnl < th.MinPnl {
			return fail(GateAntiLuck, "%dd pnl %.2f below %.2f", th.Days, m.RealizedPnl, th.MinPnl)
		}
		if m.ROI < th.MinROI {
			return fail(GateAntiLuck, "%dd roi %.2f%% below %.2f%%", th.Days, m.ROI, th.MinROI)
		}
	}

	primary, ok := metrics[c.TradeCountWindow]
	if !ok || primary.TradeCount < c.MinTrades {
		return fail(GateAntiLuck, "%d trades in %dd window, need %d", primary.TradeCount, c.TradeCountWindow, c.MinTrades)
	}

	if f.IsTrendTrader(primary) {
		return pass()
	}
	if primary.WinRate < c.WinRateMin || primary.WinRate > c.WinRateMax {
		return fail(GateAntiLuck, "win rate %.2f outside [%.2f, %.2f]", primary.WinRate, c.WinRateMin, c.WinRateMax)
	}
	if primary.ProfitFactor <= c.MinProfitFactor {
		return fail(GateAntiLuck, "profit factor %.2f not above %.2f", primary.ProfitFactor, c.MinProfitFactor)
	}
	return pass()
}

// IsTrendTrader 低胜率但盈亏比很高的趋势交易员
func (f *Filter) IsTrendTrader(m models.TradeMetrics) bool {
	return m.WinRate < f.conf.WinRateMin && m.ProfitFactor > f.conf.TrendProfitFactor
}

// Blacklist 存在未过期黑名单即不合格
func (f *Filter) Blacklist(entries []models.BlacklistEntry, now time.Time) Result {
	if e := ActiveEntry(entries, now); e != nil {
		return fail(GateBlacklist, "blacklisted (%s) until %s", e.Reason, e.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return pass()
}

// ActiveEntry 返回到期最晚的有效条目
func ActiveEntry(entries []models.BlacklistEntry, now time.Time) *models.BlacklistEntry {
	var active *models.BlacklistEntry
	for i := range entries {
		e := &entries[i]
		if !e.ActiveAt(now) {
			continue
		}
		if active == nil || e.ExpiresAt.After(active.ExpiresAt) {
			active = e
		}
	}
	return active
}

// NewAutoEntry 爆仓自动拉黑条目
func (f *Filter) NewAutoEntry(address, token string, now time.Time) models.BlacklistEntry {
	return models.BlacklistEntry{
		TraderAddress: address,
		Reason:        models.BlacklistReasonLiquidation,
		Source:        models.BlacklistSourceAuto,
		Token:         token,
		CreatedAt:     now,
		ExpiresAt:     now.Add(f.conf.AutoBlacklistDuration()),
	}
}

// NewManualEntry 人工拉黑条目，时长由运维指定
func NewManualEntry(address, reason string, duration time.Duration, now time.Time) models.BlacklistEntry {
	return models.BlacklistEntry{
		TraderAddress: address,
		Reason:        reason,
		Source:        models.BlacklistSourceManual,
		CreatedAt:     now,
		ExpiresAt:     now.Add(duration),
	}
}
