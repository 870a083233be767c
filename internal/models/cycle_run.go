package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CycleStatusRunning = "running"
	CycleStatusDone    = "done"
	CycleStatusFailed  = "failed"
)

// CycleRun 一次重算周期的审计记录
type CycleRun struct {
	ID         string            `gorm:"primaryKey;type:varchar(26)" json:"id"`
	CycleID    string            `gorm:"type:varchar(32);uniqueIndex" json:"cycle_id"`
	Status     string            `gorm:"type:varchar(16)" json:"status"`
	Traders    int               `json:"traders"`
	Scored     int               `json:"scored"`
	Carried    int               `json:"carried"`
	Eligible   int               `json:"eligible"`
	Allocated  int               `json:"allocated"`
	Skips      datatypes.JSONMap `json:"skips"` // trader -> 原因
	Error      string            `gorm:"type:varchar(1024)" json:"error"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at"`
}

func (CycleRun) TableName() string {
	return "cycle_runs"
}

// CycleIDAt 周期ID：按周期长度截断后的 UTC 时间，重跑同一周期得到同一ID
func CycleIDAt(t time.Time, interval time.Duration) string {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return t.UTC().Truncate(interval).Format("20060102T15")
}
