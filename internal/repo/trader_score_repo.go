package repo

import (
	"context"
	"database/sql"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewTraderScoreRepo(db *gorm.DB) *TraderScoreRepo {
	return &TraderScoreRepo{
		Repository: orz.NewRepository[models.TraderScore, string](db),
	}
}

type TraderScoreRepo struct {
	orz.Repository[models.TraderScore, string]
}

// ReplaceForCycle 覆盖写入某交易员在某周期的评分，重跑同一周期不会产生重复行
func (r TraderScoreRepo) ReplaceForCycle(ctx context.Context, score *models.TraderScore) error {
	db := r.GetDB(ctx)
	if err := db.Where("cycle_id = ? AND trader_address = ?", score.CycleID, score.TraderAddress).
		Delete(&models.TraderScore{}).Error; err != nil {
		return err
	}
	return db.Create(score).Error
}

// FindByCycle 获取某周期全部评分，按地址排序
func (r TraderScoreRepo) FindByCycle(ctx context.Context, cycleID string) ([]models.TraderScore, error) {
	var items []models.TraderScore
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("cycle_id = ?", cycleID).
		Order("trader_address ASC").
		Find(&items).Error
	return items, err
}

// FindLastBefore 获取交易员在指定周期之前的最近一条评分
func (r TraderScoreRepo) FindLastBefore(ctx context.Context, address, cycleID string) (m models.TraderScore, err error) {
	err = r.GetDB(ctx).Table(r.GetTableName()).
		Where("trader_address = ? AND cycle_id < ?", address, cycleID).
		Order("cycle_id DESC").
		First(&m).Error
	return m, err
}

// LatestCycleIDBefore 指定周期之前最近一个有评分的周期，cycleID 为空时返回最新周期
func (r TraderScoreRepo) LatestCycleIDBefore(ctx context.Context, cycleID string) (string, error) {
	var latest sql.NullString
	db := r.GetDB(ctx).Table(r.GetTableName()).Select("MAX(cycle_id)")
	if cycleID != "" {
		db = db.Where("cycle_id < ?", cycleID)
	}
	err := db.Scan(&latest).Error
	return latest.String, err
}
