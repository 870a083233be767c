package models

import (
	"math"
	"time"
)

var inf = math.Inf(1)

const (
	SideLong  = "long"
	SideShort = "short"

	ActionOpen   = "open"
	ActionAdd    = "add"
	ActionClose  = "close"
	ActionReduce = "reduce"
)

// TradeRecord 上游成交记录，写入后不再修改
type TradeRecord struct {
	ID            string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	ExternalID    string    `gorm:"type:varchar(128);uniqueIndex" json:"external_id"` // 上游唯一ID
	TraderAddress string    `gorm:"type:varchar(66);not null;index:idx_trade_trader_time" json:"trader_address"`
	Token         string    `gorm:"type:varchar(32);not null" json:"token"`
	Side          string    `gorm:"type:varchar(10);not null" json:"side"`   // long/short
	Action        string    `gorm:"type:varchar(10);not null" json:"action"` // open/add/close/reduce
	Size          float64   `gorm:"type:decimal(28,10)" json:"size"`
	Price         float64   `gorm:"type:decimal(28,10)" json:"price"`
	ValueUSD      float64   `gorm:"type:decimal(20,4)" json:"value_usd"`
	Fee           float64   `gorm:"type:decimal(20,6)" json:"fee"`
	ClosedPnl     float64   `gorm:"type:decimal(20,6)" json:"closed_pnl"` // 已实现盈亏（仅平仓/减仓）
	ExecutedAt    time.Time `gorm:"not null;index:idx_trade_trader_time" json:"executed_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}

// IsClosing 平仓或减仓
func (t *TradeRecord) IsClosing() bool {
	return t.Action == ActionClose || t.Action == ActionReduce
}
