package repo

import (
	"context"
	"time"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewBlacklistRepo(db *gorm.DB) *BlacklistRepo {
	return &BlacklistRepo{
		Repository: orz.NewRepository[models.BlacklistEntry, string](db),
	}
}

type BlacklistRepo struct {
	orz.Repository[models.BlacklistEntry, string]
}

// FindActive 获取所有未过期的黑名单
func (r BlacklistRepo) FindActive(ctx context.Context, now time.Time) ([]models.BlacklistEntry, error) {
	var items []models.BlacklistEntry
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("expires_at >= ?", now).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

// FindActiveByTrader 获取某交易员未过期的黑名单
func (r BlacklistRepo) FindActiveByTrader(ctx context.Context, address string, now time.Time) ([]models.BlacklistEntry, error) {
	var items []models.BlacklistEntry
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("trader_address = ? AND expires_at >= ?", address, now).
		Order("expires_at DESC").
		Find(&items).Error
	return items, err
}

// DeleteExpired 删除已过期的黑名单
func (r BlacklistRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.GetDB(ctx).Where("expires_at < ?", now).Delete(&models.BlacklistEntry{})
	return result.RowsAffected, result.Error
}
