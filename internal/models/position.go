package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Position 本账户在交易所的持仓镜像，用于强平缓冲监控
type Position struct {
	ID                 string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Symbol             string         `gorm:"not null;index" json:"symbol"`                // 交易对,如 BTCUSDT
	Side               string         `gorm:"not null" json:"side"`                        // long/short
	Quantity           float64        `gorm:"not null" json:"quantity"`                    // 持仓数量
	EntryPrice         float64        `gorm:"not null" json:"entry_price"`                 // 开仓价格
	MarkPrice          float64        `json:"mark_price"`                                  // 标记价格
	LiquidationPrice   float64        `json:"liquidation_price"`                           // 强平价格
	UnrealizedPnl      float64        `json:"unrealized_pnl"`                              // 未实现盈亏(USDT)
	Leverage           int            `gorm:"not null" json:"leverage"`                    // 杠杆倍数
	MarginType         string         `json:"margin_type"`                                 // ISOLATED/CROSSED
	Margin             float64        `json:"margin"`                                      // 保证金(USDT)
	SourceTrader       string         `gorm:"type:varchar(66);index" json:"source_trader"` // 跟随的交易员
	LastBufferAction   string         `json:"last_buffer_action"`                          // 最近一次缓冲动作
	LastBufferActionAt *time.Time     `json:"last_buffer_action_at"`                       // 最近一次减仓类动作时间，用于冷却
	OpenedAt           time.Time      `gorm:"not null" json:"opened_at"`                   // 开仓时间
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName 指定表名
func (*Position) TableName() string {
	return "positions"
}

// Notional 名义价值（按标记价格）
func (p *Position) Notional() float64 {
	price := p.MarkPrice
	if price == 0 {
		price = p.EntryPrice
	}
	return p.Quantity * price
}

// Token 去掉计价币后缀，BTCUSDT -> BTC
func (p *Position) Token() string {
	for _, quote := range []string{"USDT", "USDC", "BUSD"} {
		if s, ok := strings.CutSuffix(p.Symbol, quote); ok && s != "" {
			return s
		}
	}
	return p.Symbol
}

// InCooldown 是否处于缓冲动作冷却期
func (p *Position) InCooldown(now time.Time, cooldown time.Duration) bool {
	if p.LastBufferActionAt == nil {
		return false
	}
	return now.Sub(*p.LastBufferActionAt) < cooldown
}

func (p *Position) CalculateHoldingStr() string {
	holding := time.Since(p.OpenedAt)
	holdingStr, _ := strings.CutSuffix(holding.Round(time.Minute).String(), "0s")
	return holdingStr
}
