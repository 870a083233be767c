package service

import (
	"context"
	"fmt"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/engine/liquidation"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/observability"
	"github.com/dushixiang/copyrank/internal/repo"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LiquidationMonitorService 比较最近两次持仓轮询，持仓消失且无平仓成交时视为爆仓
type LiquidationMonitorService struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	*orz.Service
	traderRepo *repo.TraderRepo
	tradeRepo  *repo.TradeRecordRepo
	pollRepo   *repo.PositionPollRepo
	eventRepo  *repo.LiquidationEventRepo

	detector  *liquidation.Detector
	blacklist *BlacklistService
	bus       *EventBus
}

func NewLiquidationMonitorService(
	db *gorm.DB,
	conf *config.Config,
	blacklist *BlacklistService,
	bus *EventBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LiquidationMonitorService {
	return &LiquidationMonitorService{
		logger:     logger,
		metrics:    metrics,
		Service:    orz.NewService(db),
		traderRepo: repo.NewTraderRepo(db),
		tradeRepo:  repo.NewTradeRecordRepo(db),
		pollRepo:   repo.NewPositionPollRepo(db),
		eventRepo:  repo.NewLiquidationEventRepo(db),
		detector:   liquidation.NewDetector(conf.Strategy.WithDefaults().Liquidation),
		blacklist:  blacklist,
		bus:        bus,
	}
}

// Scan 检查所有追踪中的交易员，单个失败只记录日志
func (s *LiquidationMonitorService) Scan(ctx context.Context) ([]models.LiquidationEvent, error) {
	traders, err := s.traderRepo.FindTracked(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tracked traders: %w", err)
	}

	var all []models.LiquidationEvent
	for _, trader := range traders {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		events, err := s.CheckTrader(ctx, trader.Address)
		if err != nil {
			s.logger.Warn("liquidation check failed",
				zap.String("trader", trader.Address),
				zap.Error(err))
			continue
		}
		all = append(all, events...)
	}

	s.logger.Info("liquidation scan finished",
		zap.Int("traders", len(traders)),
		zap.Int("detected", len(all)))
	return all, nil
}

// CheckTrader 检查单个交易员，同一持仓消失只处理一次
func (s *LiquidationMonitorService) CheckTrader(ctx context.Context, address string) ([]models.LiquidationEvent, error) {
	polls, err := s.pollRepo.FindLatest(ctx, address, 2)
	if err != nil {
		return nil, err
	}
	if len(polls) < 2 {
		return nil, nil
	}
	current, err := s.loadPoll(ctx, polls[0])
	if err != nil {
		return nil, err
	}
	previous, err := s.loadPoll(ctx, polls[1])
	if err != nil {
		return nil, err
	}

	from, to := s.detector.MatchWindow(previous, current)
	trades, err := s.tradeRepo.FindByTraderBetween(ctx, address, from, to)
	if err != nil {
		return nil, err
	}

	var events []models.LiquidationEvent
	for _, d := range s.detector.Detect(address, previous, current, trades) {
		exists, err := s.eventRepo.Exists(ctx, address, d.Token, d.LastSeenAt)
		if err != nil {
			return events, err
		}
		if exists {
			continue
		}

		event, err := s.record(ctx, d)
		if err != nil {
			return events, err
		}
		events = append(events, *event)

		s.metrics.LiquidationsDetected.Inc()
		s.logger.Warn("probable liquidation detected, trader blacklisted",
			zap.String("trader", address),
			zap.String("token", d.Token),
			zap.String("side", d.Side),
			zap.Float64("usd_value", d.USDValue),
			zap.Time("last_seen_at", d.LastSeenAt))

		s.bus.Publish(ctx, Event{
			Type:     EventLiquidationDetected,
			Trader:   address,
			Token:    d.Token,
			Side:     d.Side,
			USDValue: d.USDValue,
			At:       d.DetectedAt,
		})
	}
	return events, nil
}

// record 黑名单与事件日志在同一事务中写入，保证下一次合格性检查立即可见
func (s *LiquidationMonitorService) record(ctx context.Context, d liquidation.Detected) (*models.LiquidationEvent, error) {
	event := &models.LiquidationEvent{
		ID:               ulid.Make().String(),
		TraderAddress:    d.TraderAddress,
		Token:            d.Token,
		Side:             d.Side,
		USDValue:         d.USDValue,
		LiquidationPrice: d.LiquidationPrice,
		LastSeenAt:       d.LastSeenAt,
		DetectedAt:       d.DetectedAt,
	}
	err := s.Transaction(ctx, func(ctx context.Context) error {
		entry, err := s.blacklist.AddAuto(ctx, d.TraderAddress, d.Token, d.DetectedAt)
		if err != nil {
			return fmt.Errorf("blacklist trader: %w", err)
		}
		event.BlacklistID = entry.ID
		return s.eventRepo.Create(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *LiquidationMonitorService) loadPoll(ctx context.Context, poll models.PositionPoll) (liquidation.Poll, error) {
	snapshots, err := s.pollRepo.FindSnapshots(ctx, poll.ID)
	if err != nil {
		return liquidation.Poll{}, err
	}
	return liquidation.Poll{CapturedAt: poll.CapturedAt, Positions: snapshots}, nil
}

// RecentEvents 最近的爆仓事件
func (s *LiquidationMonitorService) RecentEvents(ctx context.Context, limit int) ([]models.LiquidationEvent, error) {
	return s.eventRepo.FindRecent(ctx, limit)
}
