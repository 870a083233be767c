package models

import "time"

const (
	BlacklistSourceAuto   = "auto"
	BlacklistSourceManual = "manual"

	BlacklistReasonLiquidation = "liquidation"
)

// BlacklistEntry 黑名单，到期后自然失效
type BlacklistEntry struct {
	ID            string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	TraderAddress string    `gorm:"type:varchar(66);not null;index" json:"trader_address"`
	Reason        string    `gorm:"type:varchar(255);not null" json:"reason"`
	Source        string    `gorm:"type:varchar(10);not null" json:"source"` // auto/manual
	Token         string    `gorm:"type:varchar(32)" json:"token"`           // 触发的币种（自动拉黑时）
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt     time.Time `gorm:"not null;index" json:"expires_at"`
}

func (BlacklistEntry) TableName() string {
	return "blacklist_entries"
}

// ActiveAt 到期时刻本身仍然有效，严格晚于到期时间后失效
func (b *BlacklistEntry) ActiveAt(now time.Time) bool {
	return !now.After(b.ExpiresAt)
}
