package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/repo"
	"github.com/dushixiang/copyrank/pkg/exchange"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PositionService 本账户持仓镜像
type PositionService struct {
	logger *zap.Logger

	*orz.Service
	*repo.PositionRepo

	exchange exchange.Exchange

	syncMutex sync.Mutex
	stopChan  chan struct{}
	stopped   bool
}

// NewPositionService 创建持仓服务
func NewPositionService(db *gorm.DB, exchange exchange.Exchange, logger *zap.Logger) *PositionService {
	return &PositionService{
		logger:       logger,
		Service:      orz.NewService(db),
		PositionRepo: repo.NewPositionRepo(db),
		exchange:     exchange,
	}
}

func positionKey(symbol, side string) string {
	return strings.ToUpper(symbol) + "|" + strings.ToLower(side)
}

// SyncPositions 用交易所实时持仓覆盖本地镜像，保留开仓时间、跟随交易员与缓冲动作冷却信息
func (s *PositionService) SyncPositions(ctx context.Context) error {
	s.syncMutex.Lock()
	defer s.syncMutex.Unlock()

	positions, err := s.exchange.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get positions from exchange: %w", err)
	}

	existingPositions, err := s.PositionRepo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load existing positions: %w", err)
	}
	existingMap := make(map[string]*models.Position, len(existingPositions))
	for i := range existingPositions {
		pos := &existingPositions[i]
		existingMap[positionKey(pos.Symbol, pos.Side)] = pos
	}

	return s.Transaction(ctx, func(ctx context.Context) error {
		seen := make(map[string]struct{}, len(positions))

		for _, p := range positions {
			margin := p.Margin
			if margin == 0 && p.Leverage != 0 {
				margin = p.Notional() / float64(p.Leverage)
			}

			key := positionKey(p.Symbol, p.Side)
			if existingPos, ok := existingMap[key]; ok {
				existingPos.Quantity = p.PositionAmount
				existingPos.EntryPrice = p.EntryPrice
				existingPos.MarkPrice = p.MarkPrice
				existingPos.LiquidationPrice = p.LiquidationPrice
				existingPos.UnrealizedPnl = p.UnrealizedProfit
				existingPos.Leverage = p.Leverage
				existingPos.MarginType = string(p.MarginType)
				existingPos.Margin = margin

				if err := s.PositionRepo.Save(ctx, existingPos); err != nil {
					return fmt.Errorf("failed to update position %s %s: %w", p.Symbol, p.Side, err)
				}
			} else {
				position := &models.Position{
					ID:               ulid.Make().String(),
					Symbol:           p.Symbol,
					Side:             p.Side,
					Quantity:         p.PositionAmount,
					EntryPrice:       p.EntryPrice,
					MarkPrice:        p.MarkPrice,
					LiquidationPrice: p.LiquidationPrice,
					UnrealizedPnl:    p.UnrealizedProfit,
					Leverage:         p.Leverage,
					MarginType:       string(p.MarginType),
					Margin:           margin,
					OpenedAt:         time.Now().UTC(),
				}
				if err := s.PositionRepo.Create(ctx, position); err != nil {
					return fmt.Errorf("failed to create position: %w", err)
				}
				existingMap[key] = position
			}

			seen[key] = struct{}{}
		}

		// 删除已经不存在的持仓
		for key, pos := range existingMap {
			if _, ok := seen[key]; !ok {
				if err := s.PositionRepo.DeleteById(ctx, pos.ID); err != nil {
					return fmt.Errorf("failed to delete stale position %s %s: %w", pos.Symbol, pos.Side, err)
				}
			}
		}

		return nil
	})
}

// GetAllPositions 获取所有持仓
func (s *PositionService) GetAllPositions(ctx context.Context) ([]*models.Position, error) {
	positions, err := s.PositionRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*models.Position, len(positions))
	for i := range positions {
		result[i] = &positions[i]
	}

	return result, nil
}

// AssignSourceTrader 记录持仓跟随的交易员，爆仓事件据此找到需要退出的镜像持仓
func (s *PositionService) AssignSourceTrader(ctx context.Context, symbol, side, trader string) error {
	pos, err := s.PositionRepo.FindBySymbolAndSide(ctx, symbol, side)
	if err != nil {
		return err
	}
	if pos.DeletedAt.Valid {
		return gorm.ErrRecordNotFound
	}
	pos.SourceTrader = strings.ToLower(trader)
	return s.PositionRepo.Save(ctx, &pos)
}

// StartSyncWorker 启动后台持仓同步worker
func (s *PositionService) StartSyncWorker(ctx context.Context, interval time.Duration) {
	s.stopChan = make(chan struct{})
	s.stopped = false

	s.logger.Info("starting position sync worker", zap.Duration("interval", interval))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if err := s.SyncPositions(ctx); err != nil {
			s.logger.Error("failed to sync positions on startup", zap.Error(err))
		}

		for {
			select {
			case <-ticker.C:
				if err := s.SyncPositions(ctx); err != nil {
					s.logger.Error("failed to sync positions", zap.Error(err))
				}
			case <-s.stopChan:
				s.logger.Info("position sync worker stopped")
				return
			case <-ctx.Done():
				s.logger.Info("position sync worker stopped by context")
				return
			}
		}
	}()
}

// StopSyncWorker 停止后台持仓同步worker
func (s *PositionService) StopSyncWorker() {
	if !s.stopped && s.stopChan != nil {
		close(s.stopChan)
		s.stopped = true
		s.logger.Info("position sync worker stop signal sent")
	}
}
