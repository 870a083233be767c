package scoring

import (
	"math"
	"strings"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/pkg/ta"
)

// Scorer 计算交易员综合评分
type Scorer struct {
	conf config.ScoringConf
}

func NewScorer(conf config.ScoringConf) *Scorer {
	return &Scorer{conf: conf}
}

// Input 评分输入，Metrics 以窗口天数为键
type Input struct {
	TraderAddress       string
	Label               string
	Metrics             map[int]models.TradeMetrics
	Positions           []models.PositionSnapshot
	Trades              []models.TradeRecord // 主窗口内的成交，用于风格判定
	HoursSinceLastTrade float64
}

// Score 计算评分。档位乘数单独保存，在分配阶段才使用
func (s *Scorer) Score(in Input) models.TraderScore {
	c := s.conf
	primary := in.Metrics[c.PrimaryWindow]

	score := models.TraderScore{
		TraderAddress:    in.TraderAddress,
		ROIScore:         s.NormalizedROI(primary.ROI),
		SharpeScore:      s.NormalizedSharpe(primary.Sharpe),
		WinRateScore:     s.NormalizedWinRate(primary.WinRate),
		ConsistencyScore: s.Consistency(in.Metrics[7].ROI, in.Metrics[30].ROI, in.Metrics[90].ROI),
		SmartMoneyScore:  SmartMoney(in.Label),
		RiskMgmtScore:    s.RiskManagement(in.Positions, primary.Drawdown),
	}

	style := s.ClassifyStyle(in.Trades, c.PrimaryWindow)
	score.Style = string(style.Style)
	score.StyleMultiplier = style.Style.Multiplier(c.StyleMultipliers)
	score.TradesPerDay = style.TradesPerDay
	score.AvgHoldHours = style.AvgHoldHours

	score.RecencyDecay = s.RecencyDecay(in.HoursSinceLastTrade)
	score.RawScore = c.WeightROI*score.ROIScore +
		c.WeightSharpe*score.SharpeScore +
		c.WeightWinRate*score.WinRateScore +
		c.WeightConsistency*score.ConsistencyScore +
		c.WeightSmartMoney*score.SmartMoneyScore +
		c.WeightRiskMgmt*score.RiskMgmtScore
	score.FinalScore = ta.Finite(score.RawScore*score.StyleMultiplier*score.RecencyDecay, 0)

	score.ROI7d = in.Metrics[7].ROI
	score.TierMultiplier = s.TierMultiplier(score.ROI7d)
	return score
}

func (s *Scorer) NormalizedROI(roi float64) float64 {
	return ta.Clamp(ta.Finite(roi/100, 0), 0, 1)
}

func (s *Scorer) NormalizedSharpe(sharpe float64) float64 {
	return ta.Clamp(ta.Finite(sharpe/s.conf.SharpeCeiling, 0), 0, 1)
}

// NormalizedWinRate 区间外（过高或过低）均为0，区间内线性映射到 [0,1]
func (s *Scorer) NormalizedWinRate(winRate float64) float64 {
	lo, hi := s.conf.WinRateMin, s.conf.WinRateMax
	if winRate < lo || winRate > hi || hi <= lo {
		return 0
	}
	return (winRate - lo) / (hi - lo)
}

// Consistency 三个窗口ROI的一致性
// 30日与90日ROI按周折算（/4、/12）后计算总体方差
func (s *Scorer) Consistency(roi7, roi30, roi90 float64) float64 {
	positive := 0
	for _, r := range []float64{roi7, roi30, roi90} {
		if r > 0 {
			positive++
		}
	}
	switch positive {
	case 3:
		variance := ta.Variance([]float64{roi7, roi30 / 4, roi90 / 12})
		return 0.7 + math.Max(0, 0.3-variance/100)
	case 2:
		return 0.5
	default:
		return 0.2
	}
}

// SmartMoney 标签加分
func SmartMoney(label string) float64 {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.Contains(l, "fund"):
		return 1.0
	case strings.Contains(l, "smart"):
		return 0.8
	case l != "":
		return 0.5
	default:
		return 0
	}
}

// RiskManagement 杠杆纪律、保证金模式、回撤纪律的加权
// 没有持仓时杠杆与保证金子项取中性值0.5
func (s *Scorer) RiskManagement(positions []models.PositionSnapshot, drawdown float64) float64 {
	c := s.conf
	leverageScore, marginScore := 0.5, 0.5

	var levSum float64
	var levCount, isolated int
	for _, p := range positions {
		if p.Leverage > 0 {
			levSum += p.Leverage
			levCount++
		}
		if p.LeverageType == models.LeverageTypeIsolated {
			isolated++
		}
	}
	if levCount > 0 {
		leverageScore = math.Max(0, 1-(levSum/float64(levCount))/c.LeverageCeil)
	}
	if len(positions) > 0 {
		marginScore = 0.5 + 0.5*float64(isolated)/float64(len(positions))
	}
	drawdownScore := math.Max(0, 1-drawdown/c.DrawdownCeil)

	totalW := c.RiskLeverageW + c.RiskMarginW + c.RiskDrawdownW
	if totalW <= 0 {
		return 0
	}
	return (c.RiskLeverageW*leverageScore + c.RiskMarginW*marginScore + c.RiskDrawdownW*drawdownScore) / totalW
}

// RecencyDecay exp(-ln2 × h / halfLife)，从未成交（+Inf）时为0
func (s *Scorer) RecencyDecay(hoursSinceLastTrade float64) float64 {
	if math.IsNaN(hoursSinceLastTrade) || hoursSinceLastTrade < 0 {
		hoursSinceLastTrade = 0
	}
	return math.Exp(-math.Ln2 * hoursSinceLastTrade / s.conf.HalfLifeHours)
}

// TierMultiplier 7日ROI档位：>高档阈值、[0, 高档阈值]、<0
func (s *Scorer) TierMultiplier(roi7 float64) float64 {
	c := s.conf
	switch {
	case roi7 > c.TierHighROI:
		return c.TierHighMult
	case roi7 >= 0:
		return c.TierMidMult
	default:
		return c.TierLowMult
	}
}
