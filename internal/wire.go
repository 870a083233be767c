//go:build wireinject
// +build wireinject

package internal

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/handler"
	"github.com/dushixiang/copyrank/internal/service"
)

var (
	handlerSet = wire.NewSet(
		handler.NewStrategyHandler,
	)

	rankingSet = wire.NewSet(
		provideMetrics,
		provideProvider,
		service.NewEventBus,
		service.NewIngestionService,
		service.NewScoringService,
		service.NewAllocationService,
		service.NewCycleService,
		service.NewBlacklistService,
		service.NewLiquidationMonitorService,
		service.NewConsensusService,
	)

	riskSet = wire.NewSet(
		provideExchange,
		service.NewPositionService,
		service.NewRiskService,
		service.NewScheduler,
	)
)

// InitializeApp 初始化应用
func InitializeApp(logger *zap.Logger, db *gorm.DB, conf *config.Config) (*AppComponents, error) {
	wire.Build(
		handlerSet,
		rankingSet,
		riskSet,
		provideTelegram,
		provideRedisSink,
		wire.Struct(new(AppComponents), "*"),
	)
	return nil, nil
}
