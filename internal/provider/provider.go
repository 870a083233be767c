package provider

import (
	"context"
	"errors"
	"time"

	"github.com/dushixiang/copyrank/internal/models"
)

var (
	// ErrRateLimited 上游限流，本周期跳过该交易员
	ErrRateLimited = errors.New("provider: rate limited")
	// ErrUnavailable 上游暂时不可用
	ErrUnavailable = errors.New("provider: unavailable")
)

// IsSkippable 限流或上游不可用时只跳过当前交易员，不中断整个批次
func IsSkippable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Address      string  `json:"address"`
	Label        string  `json:"label"`
	TotalPnl     float64 `json:"total_pnl"`
	ROI          float64 `json:"roi"` // 百分比
	AccountValue float64 `json:"account_value"`
}

// AccountPositions 交易员当前持仓
type AccountPositions struct {
	AccountValue float64                   `json:"account_value"`
	Positions    []models.PositionSnapshot `json:"positions"`
	CapturedAt   time.Time                 `json:"captured_at"`
}

// Provider 上游数据源，负责分页并把原始数据转换为本系统的记录
type Provider interface {
	FetchLeaderboard(ctx context.Context, from, to time.Time) ([]LeaderboardEntry, error)
	// FetchTrades 返回 [from, to] 内的全部成交，按时间倒序
	FetchTrades(ctx context.Context, address string, from, to time.Time) ([]models.TradeRecord, error)
	FetchPositions(ctx context.Context, address string) (*AccountPositions, error)
}
