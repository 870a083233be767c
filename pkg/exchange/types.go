package exchange

import "strings"

// PositionSide 持仓方向
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// MarginType 保证金类型
type MarginType string

const (
	MarginTypeCrossed  MarginType = "CROSSED"  // 全仓
	MarginTypeIsolated MarginType = "ISOLATED" // 逐仓
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"  // 限价单
	OrderTypeMarket OrderType = "MARKET" // 市价单
)

// ParseMarginType 兼容交易所返回的 isolated/cross/crossed 等写法
func ParseMarginType(s string) MarginType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ISOLATED":
		return MarginTypeIsolated
	default:
		return MarginTypeCrossed
	}
}

func (s PositionSide) String() string {
	return string(s)
}

func (m MarginType) String() string {
	return string(m)
}

func (o OrderType) String() string {
	return string(o)
}
