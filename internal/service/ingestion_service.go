package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/observability"
	"github.com/dushixiang/copyrank/internal/provider"
	"github.com/dushixiang/copyrank/internal/repo"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 成交保留时长在最长统计窗口之外额外保留的天数
const tradeRetainSlackDays = 7

// IngestionService 上游数据同步：排行榜宇宙、成交增量、持仓轮询
type IngestionService struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	*orz.Service
	traderRepo *repo.TraderRepo
	tradeRepo  *repo.TradeRecordRepo
	pollRepo   *repo.PositionPollRepo

	provider     provider.Provider
	conf         config.ProviderConf
	lookbackDays int
	retainDays   int
}

func NewIngestionService(db *gorm.DB, conf *config.Config, p provider.Provider, metrics *observability.Metrics, logger *zap.Logger) *IngestionService {
	c := conf.WithDefaults()
	lookback := 0
	for _, days := range c.Strategy.Metrics.Windows {
		lookback = max(lookback, days)
	}
	return &IngestionService{
		logger:       logger,
		metrics:      metrics,
		Service:      orz.NewService(db),
		traderRepo:   repo.NewTraderRepo(db),
		tradeRepo:    repo.NewTradeRecordRepo(db),
		pollRepo:     repo.NewPositionPollRepo(db),
		provider:     p,
		conf:         c.Provider,
		lookbackDays: lookback,
		retainDays:   c.Strategy.Liquidation.SnapshotRetainDays,
	}
}

// RefreshUniverse 拉取近30天排行榜，盈亏前 N 名进入追踪宇宙
func (s *IngestionService) RefreshUniverse(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	entries, err := s.provider.FetchLeaderboard(ctx, now.AddDate(0, 0, -30), now)
	if err != nil {
		return 0, fmt.Errorf("fetch leaderboard: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalPnl > entries[j].TotalPnl
	})

	tracked := make([]string, 0, s.conf.UniverseSize)
	err = s.Transaction(ctx, func(ctx context.Context) error {
		for i, e := range entries {
			if e.Address == "" {
				continue
			}
			isTracked := len(tracked) < s.conf.UniverseSize
			trader := &models.Trader{
				Address:        e.Address,
				Label:          e.Label,
				LeaderboardPnl: e.TotalPnl,
				LeaderboardROI: e.ROI,
				AccountValue:   e.AccountValue,
				Rank:           i + 1,
				Tracked:        isTracked,
			}
			if err := s.traderRepo.UpsertLeaderboard(ctx, trader); err != nil {
				return fmt.Errorf("upsert trader %s: %w", e.Address, err)
			}
			if isTracked {
				tracked = append(tracked, e.Address)
			}
		}
		return s.traderRepo.UntrackExcept(ctx, tracked)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("universe refreshed",
		zap.Int("leaderboard_rows", len(entries)),
		zap.Int("tracked", len(tracked)))
	return len(tracked), nil
}

// SyncTrader 增量拉取成交并记录一次持仓轮询
func (s *IngestionService) SyncTrader(ctx context.Context, trader models.Trader, now time.Time) error {
	address := trader.Address
	since := now.AddDate(0, 0, -s.lookbackDays)
	if trader.LastSyncedAt != nil {
		overlap := trader.LastSyncedAt.Add(-time.Duration(s.conf.SyncOverlapMin) * time.Minute)
		if overlap.After(since) {
			since = overlap
		}
	}

	// 先轮询持仓再拉成交：两次请求之间发生的平仓一定能在成交里找到，不会被误判为爆仓
	state, err := s.provider.FetchPositions(ctx, address)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}
	until := now
	if wall := time.Now().UTC(); wall.After(until) {
		until = wall
	}
	trades, err := s.provider.FetchTrades(ctx, address, since, until)
	if err != nil {
		return fmt.Errorf("fetch trades: %w", err)
	}

	for i := range trades {
		trades[i].ID = ulid.Make().String()
		trades[i].TraderAddress = address
	}

	capturedAt := state.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = now
	}
	poll := &models.PositionPoll{
		ID:            ulid.Make().String(),
		TraderAddress: address,
		AccountValue:  state.AccountValue,
		PositionCount: len(state.Positions),
		CapturedAt:    capturedAt,
	}
	snapshots := make([]models.PositionSnapshot, 0, len(state.Positions))
	for _, p := range state.Positions {
		p.ID = ulid.Make().String()
		p.PollID = poll.ID
		p.TraderAddress = address
		p.CapturedAt = capturedAt
		if p.AccountValue == 0 {
			p.AccountValue = state.AccountValue
		}
		snapshots = append(snapshots, p)
	}

	var inserted int64
	err = s.Transaction(ctx, func(ctx context.Context) error {
		n, err := s.tradeRepo.InsertIgnoreDuplicates(ctx, trades)
		if err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}
		inserted = n
		if err := s.pollRepo.CreateWithSnapshots(ctx, poll, snapshots); err != nil {
			return fmt.Errorf("insert position poll: %w", err)
		}
		lastTradeAt, err := s.tradeRepo.LatestExecutedAt(ctx, address)
		if err != nil {
			return err
		}
		return s.traderRepo.UpdateSyncSuccess(ctx, address, now, lastTradeAt, state.AccountValue)
	})
	if err != nil {
		return err
	}

	s.metrics.TradesStored.Add(float64(inserted))
	s.metrics.PollsRecorded.Inc()
	s.logger.Debug("trader synced",
		zap.String("trader", address),
		zap.Int("fetched", len(trades)),
		zap.Int64("inserted", inserted),
		zap.Int("positions", len(snapshots)))
	return nil
}

// SyncAll 同步全部追踪中的交易员，返回失败的交易员及原因；单个失败不会中断整批
func (s *IngestionService) SyncAll(ctx context.Context, now time.Time) (map[string]string, error) {
	traders, err := s.traderRepo.FindTracked(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tracked traders: %w", err)
	}

	failures := make(map[string]string)
	for _, trader := range traders {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		err := s.SyncTrader(ctx, trader, now)
		if err == nil {
			continue
		}

		failures[trader.Address] = err.Error()
		kind := "error"
		switch {
		case errors.Is(err, provider.ErrRateLimited):
			kind = "rate_limited"
		case provider.IsSkippable(err):
			kind = "unavailable"
		}
		s.metrics.SyncFailures.WithLabelValues(kind).Inc()
		s.logger.Warn("trader sync failed, skipped for this cycle",
			zap.String("trader", trader.Address),
			zap.String("kind", kind),
			zap.Error(err))
		if err := s.traderRepo.UpdateSyncError(ctx, trader.Address, err.Error()); err != nil {
			s.logger.Error("failed to record sync error", zap.String("trader", trader.Address), zap.Error(err))
		}
	}

	s.logger.Info("tracked traders synced",
		zap.Int("traders", len(traders)),
		zap.Int("failed", len(failures)))
	return failures, nil
}

// Prune 清理超过保留期的轮询与成交
func (s *IngestionService) Prune(ctx context.Context, now time.Time) error {
	polls, err := s.pollRepo.DeleteBefore(ctx, now.AddDate(0, 0, -s.retainDays))
	if err != nil {
		return fmt.Errorf("prune position polls: %w", err)
	}
	trades, err := s.tradeRepo.DeleteBefore(ctx, now.AddDate(0, 0, -(s.lookbackDays+tradeRetainSlackDays)))
	if err != nil {
		return fmt.Errorf("prune trade records: %w", err)
	}
	s.logger.Info("retention pruned",
		zap.Int64("polls", polls),
		zap.Int64("trades", trades))
	return nil
}
