package sizing

import (
	"fmt"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/pkg/exchange"
)

// BufferAction 强平缓冲动作
type BufferAction string

const (
	BufferActionNone      BufferAction = "none"
	BufferActionReduce    BufferAction = "reduce"
	BufferActionEmergency BufferAction = "emergency_close"
)

// BufferInput 需要检查的持仓
type BufferInput struct {
	Side             string  `json:"side" validate:"required,oneof=long short"`
	MarkPrice        float64 `json:"mark_price" validate:"gt=0"`
	LiquidationPrice float64 `json:"liquidation_price" validate:"gte=0"`
}

// BufferCheck 检查结果
type BufferCheck struct {
	Action         BufferAction       `json:"action"`
	BufferPct      float64            `json:"buffer_pct"`
	ReduceFraction float64            `json:"reduce_fraction"`
	OrderType      exchange.OrderType `json:"order_type,omitempty"`
	Reason         string             `json:"reason,omitempty"`
}

// LiquidationBuffer 计算标记价格与强平价格的距离（%），低于阈值时建议减仓或紧急平仓
// 非 none 的动作总是使用市价单
func LiquidationBuffer(conf config.LiquidationConf, in BufferInput) BufferCheck {
	if in.MarkPrice <= 0 {
		return BufferCheck{Action: BufferActionNone, Reason: "mark price unavailable"}
	}
	if in.LiquidationPrice <= 0 {
		return BufferCheck{Action: BufferActionNone, BufferPct: 100, Reason: "no liquidation price"}
	}

	var pct float64
	switch in.Side {
	case models.SideLong:
		pct = (in.MarkPrice - in.LiquidationPrice) * 100 / in.MarkPrice
	case models.SideShort:
		pct = (in.LiquidationPrice - in.MarkPrice) * 100 / in.MarkPrice
	default:
		return BufferCheck{Action: BufferActionNone, Reason: fmt.Sprintf("unknown side %q", in.Side)}
	}

	switch {
	case pct < conf.EmergencyPct:
		return BufferCheck{Action: BufferActionEmergency, BufferPct: pct, ReduceFraction: 1, OrderType: exchange.OrderTypeMarket,
			Reason: fmt.Sprintf("buffer %.2f%% below %.0f%%", pct, conf.EmergencyPct)}
	case pct < conf.ReducePct:
		return BufferCheck{Action: BufferActionReduce, BufferPct: pct, ReduceFraction: conf.ReduceFraction, OrderType: exchange.OrderTypeMarket,
			Reason: fmt.Sprintf("buffer %.2f%% below %.0f%%", pct, conf.ReducePct)}
	default:
		return BufferCheck{Action: BufferActionNone, BufferPct: pct}
	}
}
