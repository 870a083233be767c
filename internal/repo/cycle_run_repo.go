package repo

import (
	"context"
	"database/sql"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewCycleRunRepo(db *gorm.DB) *CycleRunRepo {
	return &CycleRunRepo{
		Repository: orz.NewRepository[models.CycleRun, string](db),
	}
}

type CycleRunRepo struct {
	orz.Repository[models.CycleRun, string]
}

// FindByCycleID 根据周期ID查找
func (r CycleRunRepo) FindByCycleID(ctx context.Context, cycleID string) (m models.CycleRun, err error) {
	err = r.GetDB(ctx).Table(r.GetTableName()).Where("cycle_id = ?", cycleID).First(&m).Error
	return m, err
}

// FindRecent 最近的周期记录
func (r CycleRunRepo) FindRecent(ctx context.Context, limit int) ([]models.CycleRun, error) {
	var items []models.CycleRun
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Order("cycle_id DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// LatestDoneBefore 指定周期之前最近一个已完成的周期，cycleID 为空时返回最新完成的周期
func (r CycleRunRepo) LatestDoneBefore(ctx context.Context, cycleID string) (string, error) {
	var latest sql.NullString
	db := r.GetDB(ctx).Table(r.GetTableName()).
		Select("MAX(cycle_id)").
		Where("status = ?", models.CycleStatusDone)
	if cycleID != "" {
		db = db.Where("cycle_id < ?", cycleID)
	}
	err := db.Scan(&latest).Error
	return latest.String, err
}
