package repo

import (
	"context"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewTradeMetricsRepo(db *gorm.DB) *TradeMetricsRepo {
	return &TradeMetricsRepo{
		Repository: orz.NewRepository[models.TradeMetrics, string](db),
	}
}

type TradeMetricsRepo struct {
	orz.Repository[models.TradeMetrics, string]
}

// ReplaceForCycle 覆盖写入某交易员在某周期的指标
func (r TradeMetricsRepo) ReplaceForCycle(ctx context.Context, cycleID, address string, items []models.TradeMetrics) error {
	db := r.GetDB(ctx)
	if err := db.Where("cycle_id = ? AND trader_address = ?", cycleID, address).Delete(&models.TradeMetrics{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.Create(&items).Error
}

// FindByCycleAndTrader 获取某周期某交易员的各窗口指标
func (r TradeMetricsRepo) FindByCycleAndTrader(ctx context.Context, cycleID, address string) ([]models.TradeMetrics, error) {
	var items []models.TradeMetrics
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("cycle_id = ? AND trader_address = ?", cycleID, address).
		Order("window_days ASC").
		Find(&items).Error
	return items, err
}
