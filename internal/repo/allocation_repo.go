package repo

import (
	"context"

	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

func NewAllocationRepo(db *gorm.DB) *AllocationRepo {
	return &AllocationRepo{
		Repository: orz.NewRepository[models.Allocation, string](db),
	}
}

type AllocationRepo struct {
	orz.Repository[models.Allocation, string]
}

// ReplaceForCycle 覆盖写入某周期的分配结果
func (r AllocationRepo) ReplaceForCycle(ctx context.Context, cycleID string, items []models.Allocation) error {
	db := r.GetDB(ctx)
	if err := db.Where("cycle_id = ?", cycleID).Delete(&models.Allocation{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.Create(&items).Error
}

// FindByCycle 获取某周期的分配，按权重降序
func (r AllocationRepo) FindByCycle(ctx context.Context, cycleID string) ([]models.Allocation, error) {
	var items []models.Allocation
	err := r.GetDB(ctx).Table(r.GetTableName()).
		Where("cycle_id = ?", cycleID).
		Order("final_weight DESC, trader_address ASC").
		Find(&items).Error
	return items, err
}
