package liquidation

import (
	"sort"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
)

// Poll 一次持仓轮询及其持仓
type Poll struct {
	CapturedAt time.Time
	Positions  []models.PositionSnapshot
}

// Detected 疑似爆仓：持仓消失且期间没有平仓/减仓成交
type Detected struct {
	TraderAddress    string    `json:"trader_address"`
	Token            string    `json:"token"`
	Side             string    `json:"side"`
	USDValue         float64   `json:"usd_value"`
	LiquidationPrice float64   `json:"liquidation_price"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	DetectedAt       time.Time `json:"detected_at"`
}

// Detector 比较前后两次轮询
type Detector struct {
	conf config.LiquidationConf
}

func NewDetector(conf config.LiquidationConf) *Detector {
	return &Detector{conf: conf}
}

// MatchWindow 查找解释性平仓成交的时间范围，两端各扩展配置的时长以覆盖轮询延迟
func (d *Detector) MatchWindow(previous, current Poll) (time.Time, time.Time) {
	w := d.conf.CloseMatchWindow()
	return previous.CapturedAt.Add(-w), current.CapturedAt.Add(w)
}

// Detect trades 为该交易员在匹配窗口内的成交
func (d *Detector) Detect(address string, previous, current Poll, trades []models.TradeRecord) []Detected {
	present := make(map[string]struct{}, len(current.Positions))
	for _, p := range current.Positions {
		present[p.Token] = struct{}{}
	}

	from, to := d.MatchWindow(previous, current)
	explained := make(map[string]struct{})
	for _, t := range trades {
		if !t.IsClosing() || t.ExecutedAt.Before(from) || t.ExecutedAt.After(to) {
			continue
		}
		explained[t.Token] = struct{}{}
	}

	var out []Detected
	for _, p := range previous.Positions {
		if _, ok := present[p.Token]; ok {
			continue
		}
		if _, ok := explained[p.Token]; ok {
			continue
		}
		out = append(out, Detected{
			TraderAddress:    address,
			Token:            p.Token,
			Side:             p.Side,
			USDValue:         p.USDValue,
			LiquidationPrice: p.LiquidationPrice,
			LastSeenAt:       previous.CapturedAt,
			DetectedAt:       current.CapturedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Token < out[j].Token
	})
	return out
}
