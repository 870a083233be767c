package config

import "time"

// StrategyConf 评分、筛选、分配、风控的全部参数，启动后不可变，按值传入各引擎
type StrategyConf struct {
	Metrics     MetricsConf     `json:"metrics"`
	Scoring     ScoringConf     `json:"scoring"`
	Eligibility EligibilityConf `json:"eligibility"`
	Allocation  AllocationConf  `json:"allocation"`
	Liquidation LiquidationConf `json:"liquidation"`
	Sizing      SizingConf      `json:"sizing"`
	Consensus   ConsensusConf   `json:"consensus"`
}

type MetricsConf struct {
	Windows         []int   `json:"windows"`           // 统计窗口（天），默认 7/30/90
	ProfitFactorCap float64 `json:"profit_factor_cap"` // 无亏损时盈亏比的有限上限，默认999
}

type ScoringConf struct {
	WeightROI         float64 `json:"weight_roi"`
	WeightSharpe      float64 `json:"weight_sharpe"`
	WeightWinRate     float64 `json:"weight_win_rate"`
	WeightConsistency float64 `json:"weight_consistency"`
	WeightSmartMoney  float64 `json:"weight_smart_money"`
	WeightRiskMgmt    float64 `json:"weight_risk_mgmt"`

	SharpeCeiling  float64 `json:"sharpe_ceiling"`   // 默认3
	WinRateMin     float64 `json:"win_rate_min"`     // 默认0.35
	WinRateMax     float64 `json:"win_rate_max"`     // 默认0.85
	LeverageCeil   float64 `json:"leverage_ceil"`    // 杠杆纪律归零点，默认20
	DrawdownCeil   float64 `json:"drawdown_ceil"`    // 回撤纪律归零点，默认0.20
	RiskLeverageW  float64 `json:"risk_leverage_w"`  // 风控子项权重，默认0.4
	RiskMarginW    float64 `json:"risk_margin_w"`    // 默认0.2
	RiskDrawdownW  float64 `json:"risk_drawdown_w"`  // 默认0.4
	HalfLifeHours  float64 `json:"half_life_hours"`  // 默认168
	PrimaryWindow  int     `json:"primary_window"`   // 评分主窗口（天），默认30
	HFTTradesDay   float64 `json:"hft_trades_day"`   // 默认5
	HFTHoldHours   float64 `json:"hft_hold_hours"`   // 默认4
	SwingTradesDay float64 `json:"swing_trades_day"` // 默认0.3
	SwingHoldHours float64 `json:"swing_hold_hours"` // 默认336

	StyleMultipliers map[string]float64 `json:"style_multipliers"` // HFT/SWING/POSITION

	TierHighROI  float64 `json:"tier_high_roi"`  // 7日ROI高档阈值（%），默认10
	TierHighMult float64 `json:"tier_high_mult"` // 默认1.0
	TierMidMult  float64 `json:"tier_mid_mult"`  // 默认0.75
	TierLowMult  float64 `json:"tier_low_mult"`  // 默认0.5，配置为0即跳过该档
}

// WindowThreshold 单个窗口的最低盈亏/ROI要求
type WindowThreshold struct {
	Days   int     `json:"days"`
	MinPnl float64 `json:"min_pnl"`
	MinROI float64 `json:"min_roi"`
}

type EligibilityConf struct {
	Thresholds         []WindowThreshold `json:"thresholds"`
	WinRateMin         float64           `json:"win_rate_min"`         // 默认0.35
	WinRateMax         float64           `json:"win_rate_max"`         // 默认0.85
	MinProfitFactor    float64           `json:"min_profit_factor"`    // 默认1.5
	TrendProfitFactor  float64           `json:"trend_profit_factor"`  // 趋势交易员例外，默认2.5
	MinTrades          int               `json:"min_trades"`           // 30日最少成交笔数，默认20
	TradeCountWindow   int               `json:"trade_count_window"`   // 默认30
	AutoBlacklistHours int               `json:"auto_blacklist_hours"` // 爆仓自动拉黑时长，默认336（14天）
}

type AllocationConf struct {
	Temperature    float64 `json:"temperature"`     // 默认2.0
	TopK           int     `json:"top_k"`           // 默认5
	MaxWeight      float64 `json:"max_weight"`      // 默认0.40
	TurnoverLimit  float64 `json:"turnover_limit"`  // 默认0.15
	DustWeight     float64 `json:"dust_weight"`     // 默认0.001
	RecomputeHours int     `json:"recompute_hours"` // 周期长度，用于计算周期ID，默认6
}

type LiquidationConf struct {
	CloseMatchMinutes  int     `json:"close_match_minutes"`  // 匹配平仓成交的时间窗口扩展，默认30
	ReducePct          float64 `json:"reduce_pct"`           // 缓冲低于该值减仓，默认20
	EmergencyPct       float64 `json:"emergency_pct"`        // 缓冲低于该值紧急平仓，默认10
	ReduceFraction     float64 `json:"reduce_fraction"`      // 默认0.5
	CooldownSeconds    int     `json:"cooldown_seconds"`     // 默认60
	SnapshotRetainDays int     `json:"snapshot_retain_days"` // 默认90
}

// LeverageStep 杠杆惩罚阶梯：杠杆不超过 MaxLeverage 时乘以 Multiplier
type LeverageStep struct {
	MaxLeverage float64 `json:"max_leverage"`
	Multiplier  float64 `json:"multiplier"`
}

type SizingConf struct {
	DefaultTraderLeverage float64            `json:"default_trader_leverage"` // 无法获知时的保守假设，默认10
	MaxLeverage           float64            `json:"max_leverage"`            // 执行杠杆上限，默认5
	PenaltySteps          []LeverageStep     `json:"penalty_steps"`
	PenaltyUnmapped       float64            `json:"penalty_unmapped"`       // 默认0.10
	MaxPositionPct        float64            `json:"max_position_pct"`       // 默认0.10
	MaxPositionUSD        float64            `json:"max_position_usd"`       // 默认50000
	MaxTotalExposurePct   float64            `json:"max_total_exposure_pct"` // 默认0.50
	MaxTokenExposurePct   float64            `json:"max_token_exposure_pct"` // 默认0.20
	MaxSideExposurePct    float64            `json:"max_side_exposure_pct"`  // 默认0.35
	MinOrderUSD           float64            `json:"min_order_usd"`          // 默认10
	MajorTokens           []string           `json:"major_tokens"`           // 默认 BTC/ETH
	LargeCapTokens        []string           `json:"large_cap_tokens"`
	SlippageBps           map[string]float64 `json:"slippage_bps"` // MAJOR/LARGE_CAP/ALT
}

type ConsensusConf struct {
	CoTradeWindowSeconds int     `json:"co_trade_window_seconds"` // 默认300
	CorrelationThreshold float64 `json:"correlation_threshold"`   // 默认0.6
	MinSharedTrades      int     `json:"min_shared_trades"`       // 默认5
	StrongRatio          float64 `json:"strong_ratio"`            // 默认2.0
	LeanRatio            float64 `json:"lean_ratio"`              // 默认1.5
	MinIndependent       int     `json:"min_independent"`         // 默认3
}

// DefaultStrategyConf 默认参数
func DefaultStrategyConf() StrategyConf {
	return StrategyConf{
		Metrics: MetricsConf{
			Windows:         []int{7, 30, 90},
			ProfitFactorCap: 999,
		},
		Scoring: ScoringConf{
			WeightROI:         0.25,
			WeightSharpe:      0.20,
			WeightWinRate:     0.15,
			WeightConsistency: 0.20,
			WeightSmartMoney:  0.10,
			WeightRiskMgmt:    0.10,
			SharpeCeiling:     3,
			WinRateMin:        0.35,
			WinRateMax:        0.85,
			LeverageCeil:      20,
			DrawdownCeil:      0.20,
			RiskLeverageW:     0.4,
			RiskMarginW:       0.2,
			RiskDrawdownW:     0.4,
			HalfLifeHours:     168,
			PrimaryWindow:     30,
			HFTTradesDay:      5,
			HFTHoldHours:      4,
			SwingTradesDay:    0.3,
			SwingHoldHours:    336,
			StyleMultipliers: map[string]float64{
				"HFT":      0.4,
				"SWING":    1.0,
				"POSITION": 0.85,
			},
			TierHighROI:  10,
			TierHighMult: 1.0,
			TierMidMult:  0.75,
			TierLowMult:  0.5,
		},
		Eligibility: EligibilityConf{
			Thresholds: []WindowThreshold{
				{Days: 7, MinPnl: 0, MinROI: 0},
				{Days: 30, MinPnl: 1000, MinROI: 5},
				{Days: 90, MinPnl: 5000, MinROI: 10},
			},
			WinRateMin:         0.35,
			WinRateMax:         0.85,
			MinProfitFactor:    1.5,
			TrendProfitFactor:  2.5,
			MinTrades:          20,
			TradeCountWindow:   30,
			AutoBlacklistHours: 14 * 24,
		},
		Allocation: AllocationConf{
			Temperature:    2.0,
			TopK:           5,
			MaxWeight:      0.40,
			TurnoverLimit:  0.15,
			DustWeight:     0.001,
			RecomputeHours: 6,
		},
		Liquidation: LiquidationConf{
			CloseMatchMinutes:  30,
			ReducePct:          20,
			EmergencyPct:       10,
			ReduceFraction:     0.5,
			CooldownSeconds:    60,
			SnapshotRetainDays: 90,
		},
		Sizing: SizingConf{
			DefaultTraderLeverage: 10,
			MaxLeverage:           5,
			PenaltySteps: []LeverageStep{
				{MaxLeverage: 1, Multiplier: 1.00},
				{MaxLeverage: 2, Multiplier: 0.90},
				{MaxLeverage: 3, Multiplier: 0.80},
				{MaxLeverage: 5, Multiplier: 0.65},
				{MaxLeverage: 10, Multiplier: 0.45},
				{MaxLeverage: 15, Multiplier: 0.30},
				{MaxLeverage: 20, Multiplier: 0.20},
			},
			PenaltyUnmapped:     0.10,
			MaxPositionPct:      0.10,
			MaxPositionUSD:      50000,
			MaxTotalExposurePct: 0.50,
			MaxTokenExposurePct: 0.20,
			MaxSideExposurePct:  0.35,
			MinOrderUSD:         10,
			MajorTokens:         []string{"BTC", "ETH"},
			LargeCapTokens:      []string{"SOL", "BNB", "XRP", "DOGE", "AVAX", "LINK", "HYPE"},
			SlippageBps: map[string]float64{
				"MAJOR":     5,
				"LARGE_CAP": 10,
				"ALT":       30,
			},
		},
		Consensus: ConsensusConf{
			CoTradeWindowSeconds: 300,
			CorrelationThreshold: 0.6,
			MinSharedTrades:      5,
			StrongRatio:          2.0,
			LeanRatio:            1.5,
			MinIndependent:       3,
		},
	}
}

// WithDefaults 用默认值填充未配置（零值）的字段
func (c StrategyConf) WithDefaults() StrategyConf {
	d := DefaultStrategyConf()

	if len(c.Metrics.Windows) == 0 {
		c.Metrics.Windows = d.Metrics.Windows
	}
	fillFloat(&c.Metrics.ProfitFactorCap, d.Metrics.ProfitFactorCap)

	s, ds := &c.Scoring, d.Scoring
	if s.WeightROI+s.WeightSharpe+s.WeightWinRate+s.WeightConsistency+s.WeightSmartMoney+s.WeightRiskMgmt == 0 {
		s.WeightROI, s.WeightSharpe, s.WeightWinRate = ds.WeightROI, ds.WeightSharpe, ds.WeightWinRate
		s.WeightConsistency, s.WeightSmartMoney, s.WeightRiskMgmt = ds.WeightConsistency, ds.WeightSmartMoney, ds.WeightRiskMgmt
	}
	fillFloat(&s.SharpeCeiling, ds.SharpeCeiling)
	fillFloat(&s.WinRateMin, ds.WinRateMin)
	fillFloat(&s.WinRateMax, ds.WinRateMax)
	fillFloat(&s.LeverageCeil, ds.LeverageCeil)
	fillFloat(&s.DrawdownCeil, ds.DrawdownCeil)
	if s.RiskLeverageW+s.RiskMarginW+s.RiskDrawdownW == 0 {
		s.RiskLeverageW, s.RiskMarginW, s.RiskDrawdownW = ds.RiskLeverageW, ds.RiskMarginW, ds.RiskDrawdownW
	}
	fillFloat(&s.HalfLifeHours, ds.HalfLifeHours)
	fillInt(&s.PrimaryWindow, ds.PrimaryWindow)
	fillFloat(&s.HFTTradesDay, ds.HFTTradesDay)
	fillFloat(&s.HFTHoldHours, ds.HFTHoldHours)
	fillFloat(&s.SwingTradesDay, ds.SwingTradesDay)
	fillFloat(&s.SwingHoldHours, ds.SwingHoldHours)
	if len(s.StyleMultipliers) == 0 {
		s.StyleMultipliers = ds.StyleMultipliers
	}
	fillFloat(&s.TierHighROI, ds.TierHighROI)
	// 档位乘数允许显式配置为0（跳过该档），仅在三档均未配置时使用默认值
	if s.TierHighMult == 0 && s.TierMidMult == 0 && s.TierLowMult == 0 {
		s.TierHighMult, s.TierMidMult, s.TierLowMult = ds.TierHighMult, ds.TierMidMult, ds.TierLowMult
	}

	e, de := &c.Eligibility, d.Eligibility
	if len(e.Thresholds) == 0 {
		e.Thresholds = de.Thresholds
	}
	fillFloat(&e.WinRateMin, de.WinRateMin)
	fillFloat(&e.WinRateMax, de.WinRateMax)
	fillFloat(&e.MinProfitFactor, de.MinProfitFactor)
	fillFloat(&e.TrendProfitFactor, de.TrendProfitFactor)
	fillInt(&e.MinTrades, de.MinTrades)
	fillInt(&e.TradeCountWindow, de.TradeCountWindow)
	fillInt(&e.AutoBlacklistHours, de.AutoBlacklistHours)

	a, da := &c.Allocation, d.Allocation
	fillFloat(&a.Temperature, da.Temperature)
	fillInt(&a.TopK, da.TopK)
	fillFloat(&a.MaxWeight, da.MaxWeight)
	fillFloat(&a.TurnoverLimit, da.TurnoverLimit)
	fillFloat(&a.DustWeight, da.DustWeight)
	fillInt(&a.RecomputeHours, da.RecomputeHours)

	l, dl := &c.Liquidation, d.Liquidation
	fillInt(&l.CloseMatchMinutes, dl.CloseMatchMinutes)
	fillFloat(&l.ReducePct, dl.ReducePct)
	fillFloat(&l.EmergencyPct, dl.EmergencyPct)
	fillFloat(&l.ReduceFraction, dl.ReduceFraction)
	fillInt(&l.CooldownSeconds, dl.CooldownSeconds)
	fillInt(&l.SnapshotRetainDays, dl.SnapshotRetainDays)

	z, dz := &c.Sizing, d.Sizing
	fillFloat(&z.DefaultTraderLeverage, dz.DefaultTraderLeverage)
	fillFloat(&z.MaxLeverage, dz.MaxLeverage)
	if len(z.PenaltySteps) == 0 {
		z.PenaltySteps = dz.PenaltySteps
	}
	fillFloat(&z.PenaltyUnmapped, dz.PenaltyUnmapped)
	fillFloat(&z.MaxPositionPct, dz.MaxPositionPct)
	fillFloat(&z.MaxPositionUSD, dz.MaxPositionUSD)
	fillFloat(&z.MaxTotalExposurePct, dz.MaxTotalExposurePct)
	fillFloat(&z.MaxTokenExposurePct, dz.MaxTokenExposurePct)
	fillFloat(&z.MaxSideExposurePct, dz.MaxSideExposurePct)
	fillFloat(&z.MinOrderUSD, dz.MinOrderUSD)
	if len(z.MajorTokens) == 0 {
		z.MajorTokens = dz.MajorTokens
	}
	if len(z.LargeCapTokens) == 0 {
		z.LargeCapTokens = dz.LargeCapTokens
	}
	if len(z.SlippageBps) == 0 {
		z.SlippageBps = dz.SlippageBps
	}

	k, dk := &c.Consensus, d.Consensus
	fillInt(&k.CoTradeWindowSeconds, dk.CoTradeWindowSeconds)
	fillFloat(&k.CorrelationThreshold, dk.CorrelationThreshold)
	fillInt(&k.MinSharedTrades, dk.MinSharedTrades)
	fillFloat(&k.StrongRatio, dk.StrongRatio)
	fillFloat(&k.LeanRatio, dk.LeanRatio)
	fillInt(&k.MinIndependent, dk.MinIndependent)

	return c
}

// AutoBlacklistDuration 爆仓自动拉黑时长
func (c EligibilityConf) AutoBlacklistDuration() time.Duration {
	return time.Duration(c.AutoBlacklistHours) * time.Hour
}

// CycleInterval 重算周期
func (c AllocationConf) CycleInterval() time.Duration {
	return time.Duration(c.RecomputeHours) * time.Hour
}

func (c LiquidationConf) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c LiquidationConf) CloseMatchWindow() time.Duration {
	return time.Duration(c.CloseMatchMinutes) * time.Minute
}

func fillFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func fillInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
