package repo

import (
	"context"
	"time"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewPositionPollRepo(db *gorm.DB) *PositionPollRepo {
	return &PositionPollRepo{
		Repository:   orz.NewRepository[models.PositionPoll, string](db),
		snapshotRepo: orz.NewRepository[models.PositionSnapshot, string](db),
	}
}

// PositionPollRepo 持仓轮询及其快照
type PositionPollRepo struct {
	orz.Repository[models.PositionPoll, string]
	snapshotRepo orz.Repository[models.PositionSnapshot, string]
}

// CreateWithSnapshots 写入一次轮询及其持仓快照
func (r PositionPollRepo) CreateWithSnapshots(ctx context.Context, poll *models.PositionPoll, snapshots []models.PositionSnapshot) error {
	db := r.GetDB(ctx)
	if err := db.Create(poll).Error; err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}
	return db.Create(&snapshots).Error
}

// FindLatest 获取交易员最近 n 次轮询，时间降序
func (r PositionPollRepo) FindLatest(ctx context.Context, address string, n int) ([]models.PositionPoll, error) {
	var items []models.PositionPoll
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("trader_address = ?", address).
		Order("captured_at DESC").
		Limit(n).
		Find(&items).Error
	return items, err
}

// FindBetween 获取区间内的轮询，时间升序
func (r PositionPollRepo) FindBetween(ctx context.Context, address string, from, to time.Time) ([]models.PositionPoll, error) {
	var items []models.PositionPoll
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("trader_address = ? AND captured_at >= ? AND captured_at <= ?", address, from, to).
		Order("captured_at ASC").
		Find(&items).Error
	return items, err
}

// FindSnapshots 获取某次轮询的持仓快照
func (r PositionPollRepo) FindSnapshots(ctx context.Context, pollID string) ([]models.PositionSnapshot, error) {
	var items []models.PositionSnapshot
	err := r.snapshotRepo.GetDB(ctx).Table(r.snapshotRepo.GetTableName()).
		Where("poll_id = ?", pollID).
		Order("token ASC").
		Find(&items).Error
	return items, err
}

// FindLatestSnapshots 获取所有交易员最近一次轮询的持仓
func (r PositionPollRepo) FindLatestSnapshots(ctx context.Context, addresses []string) ([]models.PositionSnapshot, error) {
	var items []models.PositionSnapshot
	for _, address := range addresses {
		polls, err := r.FindLatest(ctx, address, 1)
		if err != nil {
			return nil, err
		}
		if len(polls) == 0 {
			continue
		}
		snapshots, err := r.FindSnapshots(ctx, polls[0].ID)
		if err != nil {
			return nil, err
		}
		items = append(items, snapshots...)
	}
	return items, nil
}

// DeleteBefore 清理过期的轮询与快照
func (r PositionPollRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	db := r.GetDB(ctx)
	if err := db.Where("captured_at < ?", before).Delete(&models.PositionSnapshot{}).Error; err != nil {
		return 0, err
	}
	result := db.Where("captured_at < ?", before).Delete(&models.PositionPoll{})
	return result.RowsAffected, result.Error
}
