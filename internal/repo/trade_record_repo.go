package repo

import (
	"context"
	"time"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewTradeRecordRepo(db *gorm.DB) *TradeRecordRepo {
	return &TradeRecordRepo{
		Repository: orz.NewRepository[models.TradeRecord, string](db),
	}
}

type TradeRecordRepo struct {
	orz.Repository[models.TradeRecord, string]
}

// InsertIgnoreDuplicates 批量写入成交，外部ID重复的跳过，返回实际写入条数
func (r TradeRecordRepo) InsertIgnoreDuplicates(ctx context.Context, items []models.TradeRecord) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	result := r.GetDB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		CreateInBatches(items, 200)
	return result.RowsAffected, result.Error
}

// FindByTraderBetween 获取 [from, to] 区间内的成交，按时间升序
func (r TradeRecordRepo) FindByTraderBetween(ctx context.Context, address string, from, to time.Time) ([]models.TradeRecord, error) {
	var items []models.TradeRecord
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("trader_address = ? AND executed_at >= ? AND executed_at <= ?", address, from, to).
		Order("executed_at ASC, external_id ASC").
		Find(&items).Error
	return items, err
}

// LatestExecutedAt 最近一笔成交时间
func (r TradeRecordRepo) LatestExecutedAt(ctx context.Context, address string) (*time.Time, error) {
	var m models.TradeRecord
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("trader_address = ?", address).
		Order("executed_at DESC").
		Limit(1).
		Find(&m).Error
	if err != nil || m.ID == "" {
		return nil, err
	}
	return &m.ExecutedAt, nil
}

// DeleteBefore 清理超过回看窗口的成交
func (r TradeRecordRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.GetDB(ctx).Where("executed_at < ?", before).Delete(&models.TradeRecord{})
	return result.RowsAffected, result.Error
}
