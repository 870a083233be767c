package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/copyrank/internal/observability"
	"go.uber.org/zap"
)

const (
	EventLiquidationDetected = "liquidation_detected"
	EventBufferAction        = "buffer_action_required"
	EventCycleCompleted      = "cycle_completed"
)

// Event 对外事件，爆仓、缓冲动作和周期完成共用
type Event struct {
	Type      string    `json:"type"`
	Trader    string    `json:"trader,omitempty"`
	Token     string    `json:"token,omitempty"`
	Side      string    `json:"side,omitempty"`
	USDValue  float64   `json:"usd_value,omitempty"`
	Action    string    `json:"action,omitempty"`
	BufferPct float64   `json:"buffer_pct,omitempty"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Values 模板渲染用的字段
func (e Event) Values() map[string]any {
	return map[string]any{
		"type":       e.Type,
		"trader":     e.Trader,
		"token":      e.Token,
		"side":       e.Side,
		"usd_value":  fmt.Sprintf("%.2f", e.USDValue),
		"action":     e.Action,
		"buffer_pct": fmt.Sprintf("%.2f", e.BufferPct),
		"cycle_id":   e.CycleID,
		"message":    e.Message,
		"at":         e.At.UTC().Format(time.RFC3339),
	}
}

// Subscriber 事件处理函数，返回的错误只记录日志
type Subscriber func(ctx context.Context, event Event) error

type subscription struct {
	name string
	fn   Subscriber
}

// EventBus 进程内事件总线，按订阅顺序同步投递
type EventBus struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	mu   sync.RWMutex
	subs []subscription
}

func NewEventBus(metrics *observability.Metrics, logger *zap.Logger) *EventBus {
	return &EventBus{
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe 注册订阅者
func (b *EventBus) Subscribe(name string, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, fn: fn})
	b.logger.Info("event subscriber registered", zap.String("subscriber", name))
}

// Publish 投递事件，单个订阅者失败不影响其他订阅者
func (b *EventBus) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	b.metrics.EventsPublished.WithLabelValues(event.Type).Inc()
	for _, s := range subs {
		if err := s.fn(ctx, event); err != nil {
			b.logger.Warn("event subscriber failed",
				zap.String("subscriber", s.name),
				zap.String("type", event.Type),
				zap.Error(err))
		}
	}
}
