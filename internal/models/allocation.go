package models

import "time"

// Allocation 某个周期的资金分配权重
type Allocation struct {
	ID             string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	CycleID        string    `gorm:"type:varchar(32);uniqueIndex:uk_alloc_cycle_trader" json:"cycle_id"`
	TraderAddress  string    `gorm:"type:varchar(66);uniqueIndex:uk_alloc_cycle_trader" json:"trader_address"`
	Score          float64   `json:"score"`
	TierMultiplier float64   `json:"tier_multiplier"`
	RawWeight      float64   `json:"raw_weight"`    // softmax 结果
	CappedWeight   float64   `json:"capped_weight"` // 档位调整、TopK、单人上限之后
	FinalWeight    float64   `json:"final_weight"`  // 换手限制之后
	CycleAt        time.Time `gorm:"index" json:"cycle_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Allocation) TableName() string {
	return "allocations"
}
