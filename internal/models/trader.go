package models

import (
	"time"

	"gorm.io/datatypes"
)

// Trader 被追踪的交易员
type Trader struct {
	Address        string                      `gorm:"primaryKey;type:varchar(66)" json:"address"`
	Label          string                      `gorm:"type:varchar(128)" json:"label"`            // 排行榜显示名，用于聪明钱加分
	Tags           datatypes.JSONSlice[string] `json:"tags"`                                      // 运营标注
	LeaderboardPnl float64                     `gorm:"type:decimal(20,4)" json:"leaderboard_pnl"` // 排行榜窗口盈亏
	LeaderboardROI float64                     `gorm:"type:decimal(20,6)" json:"leaderboard_roi"` // 排行榜窗口ROI（%）
	AccountValue   float64                     `gorm:"type:decimal(20,4)" json:"account_value"`   // 最近账户价值
	Rank           int                         `json:"rank"`                                      // 排行榜名次
	Tracked        bool                        `gorm:"index" json:"tracked"`                      // 是否在追踪宇宙内
	LastSyncedAt   *time.Time                  `json:"last_synced_at"`                            // 最近一次成功同步成交的时间
	LastTradeAt    *time.Time                  `json:"last_trade_at"`                             // 最近一笔成交时间
	LastSyncError  string                      `gorm:"type:varchar(512)" json:"last_sync_error"`  // 最近一次同步失败原因
	CreatedAt      time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Trader) TableName() string {
	return "traders"
}

// HoursSinceLastTrade 距最近一笔成交的小时数，从未成交时返回 +Inf
func (t *Trader) HoursSinceLastTrade(now time.Time) float64 {
	if t.LastTradeAt == nil {
		return inf
	}
	h := now.Sub(*t.LastTradeAt).Hours()
	if h < 0 {
		return 0
	}
	return h
}
