package models

import "time"

const (
	LeverageTypeIsolated = "isolated"
	LeverageTypeCross    = "cross"
)

// PositionPoll 一次持仓轮询，即使没有持仓也会记录，用于判断持仓消失
type PositionPoll struct {
	ID            string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	TraderAddress string    `gorm:"type:varchar(66);not null;index:idx_poll_trader_time" json:"trader_address"`
	AccountValue  float64   `gorm:"type:decimal(20,4)" json:"account_value"`
	PositionCount int       `json:"position_count"`
	CapturedAt    time.Time `gorm:"not null;index:idx_poll_trader_time" json:"captured_at"`
}

func (PositionPoll) TableName() string {
	return "position_polls"
}

// PositionSnapshot 交易员某一时刻的持仓
type PositionSnapshot struct {
	ID               string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	PollID           string    `gorm:"type:varchar(26);not null;index" json:"poll_id"`
	TraderAddress    string    `gorm:"type:varchar(66);not null;index" json:"trader_address"`
	Token            string    `gorm:"type:varchar(32);not null" json:"token"`
	Side             string    `gorm:"type:varchar(10);not null" json:"side"`
	Size             float64   `gorm:"type:decimal(28,10)" json:"size"`
	USDValue         float64   `gorm:"type:decimal(20,4)" json:"usd_value"`
	EntryPrice       float64   `gorm:"type:decimal(28,10)" json:"entry_price"`
	MarkPrice        float64   `gorm:"type:decimal(28,10)" json:"mark_price"`
	Leverage         float64   `json:"leverage"`
	LeverageType     string    `gorm:"type:varchar(10)" json:"leverage_type"` // isolated/cross
	LiquidationPrice float64   `gorm:"type:decimal(28,10)" json:"liquidation_price"`
	MarginUsed       float64   `gorm:"type:decimal(20,4)" json:"margin_used"`
	UnrealizedPnl    float64   `gorm:"type:decimal(20,4)" json:"unrealized_pnl"`
	AccountValue     float64   `gorm:"type:decimal(20,4)" json:"account_value"`
	CapturedAt       time.Time `gorm:"not null;index" json:"captured_at"`
}

func (PositionSnapshot) TableName() string {
	return "position_snapshots"
}
