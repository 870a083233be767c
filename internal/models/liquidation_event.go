package models

import "time"

// LiquidationEvent 疑似爆仓事件（对外事件日志）
type LiquidationEvent struct {
	ID               string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	TraderAddress    string    `gorm:"type:varchar(66);not null;index" json:"trader_address"`
	Token            string    `gorm:"type:varchar(32);not null" json:"token"`
	Side             string    `gorm:"type:varchar(10)" json:"side"`
	USDValue         float64   `gorm:"type:decimal(20,4)" json:"usd_value"`
	LiquidationPrice float64   `gorm:"type:decimal(28,10)" json:"liquidation_price"`
	LastSeenAt       time.Time `json:"last_seen_at"` // 最后一次看到持仓的时间
	DetectedAt       time.Time `gorm:"index" json:"detected_at"`
	BlacklistID      string    `gorm:"type:varchar(26)" json:"blacklist_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (LiquidationEvent) TableName() string {
	return "liquidation_events"
}
