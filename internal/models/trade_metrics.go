package models

import "time"

// TradeMetrics 单个窗口的绩效指标，每个周期重算
type TradeMetrics struct {
	ID                string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	CycleID           string    `gorm:"type:varchar(32);index:idx_metrics_cycle_trader" json:"cycle_id"`
	TraderAddress     string    `gorm:"type:varchar(66);index:idx_metrics_cycle_trader" json:"trader_address"`
	WindowDays        int       `json:"window_days"`
	WinRate           float64   `json:"win_rate"`
	ProfitFactor      float64   `json:"profit_factor"` // 有限值，无亏损时为上限值
	Sharpe            float64   `json:"sharpe"`
	RealizedPnl       float64   `json:"realized_pnl"`
	ROI               float64   `json:"roi"`      // 百分比
	Drawdown          float64   `json:"drawdown"` // 最大单笔亏损 / 账户价值
	TradeCount        int       `json:"trade_count"`
	ClosingTrades     int       `json:"closing_trades"`
	Wins              int       `json:"wins"`
	AccountValueStart float64   `json:"account_value_start"`
	Empty             bool      `json:"empty"` // 窗口内无数据
	ComputedAt        time.Time `json:"computed_at"`
}

func (TradeMetrics) TableName() string {
	return "trade_metrics"
}
