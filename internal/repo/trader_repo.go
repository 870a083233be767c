package repo

import (
	"context"
	"time"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewTraderRepo(db *gorm.DB) *TraderRepo {
	return &TraderRepo{
		Repository: orz.NewRepository[models.Trader, string](db),
	}
}

type TraderRepo struct {
	orz.Repository[models.Trader, string]
}

// FindByAddress 根据地址查找交易员
func (r TraderRepo) FindByAddress(ctx context.Context, address string) (m models.Trader, err error) {
	err = r.GetDB(ctx).Table(r.GetTableName()).Where("address = ?", address).First(&m).Error
	return m, err
}

// UpsertLeaderboard 写入或更新排行榜字段，不覆盖同步状态
func (r TraderRepo) UpsertLeaderboard(ctx context.Context, t *models.Trader) error {
	return r.GetDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "leaderboard_pnl", "leaderboard_roi", "account_value", "rank", "tracked", "updated_at"}),
	}).Create(t).Error
}

// FindTracked 获取追踪中的交易员，按地址排序保证处理顺序确定
func (r TraderRepo) FindTracked(ctx context.Context) ([]models.Trader, error) {
	var items []models.Trader
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("tracked = ?", true).
		Order("address ASC").
		Find(&items).Error
	return items, err
}

// UntrackExcept 将不在列表中的交易员移出追踪宇宙
func (r TraderRepo) UntrackExcept(ctx context.Context, addresses []string) error {
	db := r.GetDB(ctx).Table(r.GetTableName()).Where("tracked = ?", true)
	if len(addresses) > 0 {
		db = db.Where("address NOT IN ?", addresses)
	}
	return db.Update("tracked", false).Error
}

// UpdateSyncSuccess 记录一次成功同步
func (r TraderRepo) UpdateSyncSuccess(ctx context.Context, address string, syncedAt time.Time, lastTradeAt *time.Time, accountValue float64) error {
	updates := map[string]any{
		"last_synced_at":  syncedAt,
		"last_sync_error": "",
	}
	if lastTradeAt != nil {
		updates["last_trade_at"] = *lastTradeAt
	}
	if accountValue > 0 {
		updates["account_value"] = accountValue
	}
	return r.GetDB(ctx).Table(r.GetTableName()).Where("address = ?", address).Updates(updates).Error
}

// UpdateSyncError 记录同步失败原因
func (r TraderRepo) UpdateSyncError(ctx context.Context, address string, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return r.GetDB(ctx).Table(r.GetTableName()).Where("address = ?", address).Update("last_sync_error", reason).Error
}
