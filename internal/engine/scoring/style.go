package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/dushixiang/copyrank/internal/models"
)

// Style 交易风格，取值固定
type Style string

const (
	StyleHFT      Style = "HFT"
	StyleSwing    Style = "SWING"
	StylePosition Style = "POSITION"
)

var defaultStyleMultipliers = map[Style]float64{
	StyleHFT:      0.4,
	StyleSwing:    1.0,
	StylePosition: 0.85,
}

// Multiplier 从配置表中取风格乘数，缺失时使用默认表
func (s Style) Multiplier(table map[string]float64) float64 {
	if v, ok := table[string(s)]; ok {
		return v
	}
	return defaultStyleMultipliers[s]
}

// StyleStats 风格判定依据
type StyleStats struct {
	Style        Style
	TradesPerDay float64
	AvgHoldHours float64 // 无法配对时为 -1
}

// ClassifyStyle 根据日均成交笔数和平均持仓时长判定风格
func (s *Scorer) ClassifyStyle(trades []models.TradeRecord, windowDays int) StyleStats {
	stats := StyleStats{AvgHoldHours: -1}
	if windowDays > 0 {
		stats.TradesPerDay = float64(len(trades)) / float64(windowDays)
	}
	hold, ok := AverageHoldHours(trades)
	if ok {
		stats.AvgHoldHours = hold
	}

	c := s.conf
	switch {
	case ok && stats.TradesPerDay > c.HFTTradesDay && hold < c.HFTHoldHours:
		stats.Style = StyleHFT
	case ok && stats.TradesPerDay >= c.SwingTradesDay && hold < c.SwingHoldHours:
		stats.Style = StyleSwing
	default:
		stats.Style = StylePosition
	}
	return stats
}

// AverageHoldHours 同币种同方向按先进先出把 open 与随后的 close 配对，返回平均持仓小时数
func AverageHoldHours(trades []models.TradeRecord) (float64, bool) {
	sorted := make([]models.TradeRecord, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExecutedAt.Before(sorted[j].ExecutedAt)
	})

	opens := make(map[string][]time.Time)
	var total float64
	var pairs int
	for _, t := range sorted {
		key := t.Token + "|" + t.Side
		switch t.Action {
		case models.ActionOpen:
			opens[key] = append(opens[key], t.ExecutedAt)
		case models.ActionClose:
			queue := opens[key]
			if len(queue) == 0 {
				continue
			}
			total += t.ExecutedAt.Sub(queue[0]).Hours()
			opens[key] = queue[1:]
			pairs++
		}
	}
	if pairs == 0 {
		return 0, false
	}
	return math.Max(total/float64(pairs), 0), true
}
