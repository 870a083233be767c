package exchange

import "context"

// Exchange 本账户在交易所的只读视图，用于构建仓位计算所需的账户状态和强平缓冲监控
// 下单执行不在本系统范围内
type Exchange interface {
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)
	GetPositions(ctx context.Context) ([]*Position, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceSource 标记价格来源
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// AccountInfo 账户信息
type AccountInfo struct {
	TotalBalance     float64 // 总余额（含未实现盈亏）
	AvailableBalance float64 // 可用余额
	UnrealizedPnl    float64 // 未实现盈亏
}

// Position 持仓信息
type Position struct {
	Symbol           string
	Side             string  // long/short
	PositionAmount   float64 // 持仓数量
	EntryPrice       float64 // 开仓均价
	MarkPrice        float64 // 标记价格
	UnrealizedProfit float64 // 未实现盈亏
	Leverage         int     // 杠杆倍数
	LiquidationPrice float64 // 强平价格
	MarginType       MarginType
	Margin           float64 // 逐仓保证金，全仓时按名义价值/杠杆估算
}

// Notional 名义价值
func (p *Position) Notional() float64 {
	price := p.MarkPrice
	if price <= 0 {
		price = p.EntryPrice
	}
	return p.PositionAmount * price
}
