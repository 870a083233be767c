package models

import "time"

// TraderScore 交易员在某个周期的评分，写入后不修改，下一周期产生新行
type TraderScore struct {
	ID               string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	CycleID          string    `gorm:"type:varchar(32);uniqueIndex:uk_score_cycle_trader" json:"cycle_id"`
	TraderAddress    string    `gorm:"type:varchar(66);uniqueIndex:uk_score_cycle_trader;index" json:"trader_address"`
	ROIScore         float64   `json:"roi_score"`
	SharpeScore      float64   `json:"sharpe_score"`
	WinRateScore     float64   `json:"win_rate_score"`
	ConsistencyScore float64   `json:"consistency_score"`
	SmartMoneyScore  float64   `json:"smart_money_score"`
	RiskMgmtScore    float64   `json:"risk_mgmt_score"`
	Style            string    `gorm:"type:varchar(16)" json:"style"`
	StyleMultiplier  float64   `json:"style_multiplier"`
	TradesPerDay     float64   `json:"trades_per_day"`
	AvgHoldHours     float64   `json:"avg_hold_hours"` // -1 表示无法配对
	RecencyDecay     float64   `json:"recency_decay"`
	RawScore         float64   `json:"raw_score"`
	FinalScore       float64   `json:"final_score"`
	ROI7d            float64   `json:"roi_7d"`
	TierMultiplier   float64   `json:"tier_multiplier"`
	Eligible         bool      `gorm:"index" json:"eligible"`
	IneligibleReason string    `gorm:"type:varchar(255)" json:"ineligible_reason"`
	Carried          bool      `json:"carried"` // 本周期同步失败，沿用上一周期结果
	ComputedAt       time.Time `json:"computed_at"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TraderScore) TableName() string {
	return "trader_scores"
}
