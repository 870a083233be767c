package repo

import (
	"context"
	"time"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewPositionRepo(db *gorm.DB) *PositionRepo {
	return &PositionRepo{
		Repository: orz.NewRepository[models.Position, string](db),
	}
}

type PositionRepo struct {
	orz.Repository[models.Position, string]
}

// FindBySymbolAndSide 根据交易对和方向查找最近的持仓记录（包括已删除）
func (r PositionRepo) FindBySymbolAndSide(ctx context.Context, symbol, side string) (m models.Position, err error) {
	db := r.GetDB(ctx)
	err = db.Unscoped().
		Table(r.GetTableName()).
		Where("symbol = ? AND side = ?", symbol, side).
		Order("created_at DESC").
		First(&m).Error
	return m, err
}

// UpdateBufferAction 记录缓冲动作及时间，用于冷却
func (r PositionRepo) UpdateBufferAction(ctx context.Context, id string, action string, at time.Time) error {
	db := r.GetDB(ctx)
	return db.Table(r.GetTableName()).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_buffer_action":    action,
			"last_buffer_action_at": at,
		}).Error
}

// FindBySourceTrader 跟随某个交易员开出的持仓
func (r PositionRepo) FindBySourceTrader(ctx context.Context, trader string) (items []models.Position, err error) {
	db := r.GetDB(ctx)
	err = db.Table(r.GetTableName()).
		Where("source_trader = ?", trader).
		Find(&items).Error
	return items, err
}
