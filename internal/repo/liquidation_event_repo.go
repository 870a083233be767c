package repo

import (
	"context"
	"time"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewLiquidationEventRepo(db *gorm.DB) *LiquidationEventRepo {
	return &LiquidationEventRepo{
		Repository: orz.NewRepository[models.LiquidationEvent, string](db),
	}
}

type LiquidationEventRepo struct {
	orz.Repository[models.LiquidationEvent, string]
}

// Exists 同一持仓消失只记录一次
func (r LiquidationEventRepo) Exists(ctx context.Context, address, token string, lastSeenAt time.Time) (bool, error) {
	var count int64
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("trader_address = ? AND token = ? AND last_seen_at = ?", address, token, lastSeenAt).
		Count(&count).Error
	return count > 0, err
}

// FindRecent 最近的爆仓事件
func (r LiquidationEventRepo) FindRecent(ctx context.Context, limit int) ([]models.LiquidationEvent, error) {
	var items []models.LiquidationEvent
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Order("detected_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
