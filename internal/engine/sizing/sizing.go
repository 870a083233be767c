package sizing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/pkg/exchange"
	"github.com/shopspring/decimal"
)

const (
	LeverageSourceExplicit = "explicit"
	LeverageSourceInferred = "inferred"
	LeverageSourceDefault  = "default"

	AssetClassMajor    = "MAJOR"
	AssetClassLargeCap = "LARGE_CAP"
	AssetClassAlt      = "ALT"
)

// Request 上游策略提出的下单请求
type Request struct {
	TraderAddress     string  `json:"trader_address"`
	Token             string  `json:"token" validate:"required"`
	Side              string  `json:"side" validate:"required,oneof=long short"`
	BaseSizeUSD       float64 `json:"base_size_usd"`
	TraderLeverage    float64 `json:"trader_leverage" validate:"gte=0"`
	TraderNotionalUSD float64 `json:"trader_notional_usd" validate:"gte=0"`
	TraderMarginUSD   float64 `json:"trader_margin_usd" validate:"gte=0"`
}

// AccountState 本账户当前状态
type AccountState struct {
	AccountValue     float64            `json:"account_value"`
	TotalExposureUSD float64            `json:"total_exposure_usd"`
	TokenExposureUSD map[string]float64 `json:"token_exposure_usd"`
	LongExposureUSD  float64            `json:"long_exposure_usd"`
	ShortExposureUSD float64            `json:"short_exposure_usd"`
}

// Step 审计记录中的一步
type Step struct {
	Index  int     `json:"index"`
	Name   string  `json:"name"`
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Limit  float64 `json:"limit,omitempty"`
	Note   string  `json:"note,omitempty"`
}

// Result 计算结果；被拒绝时 FinalSizeUSD 为0，审计记录止于拒绝的步骤
type Result struct {
	Rejected          bool                `json:"rejected"`
	RejectStep        int                 `json:"reject_step,omitempty"`
	RejectReason      string              `json:"reject_reason,omitempty"`
	FinalSizeUSD      float64             `json:"final_size_usd"`
	MarginUSD         float64             `json:"margin_usd"`
	TraderLeverage    float64             `json:"trader_leverage"`
	LeverageSource    string              `json:"leverage_source"`
	EffectiveLeverage float64             `json:"effective_leverage"`
	LeveragePenalty   float64             `json:"leverage_penalty"`
	MarginType        exchange.MarginType `json:"margin_type"`
	OrderType         exchange.OrderType  `json:"order_type"`
	AssetClass        string              `json:"asset_class"`
	SlippageBps       float64             `json:"slippage_bps"`
	Breakdown         []Step              `json:"sizing_breakdown"`
}

// Sizer 杠杆感知的仓位计算，无状态，可并发调用
type Sizer struct {
	conf config.SizingConf
}

func NewSizer(conf config.SizingConf) *Sizer {
	steps := make([]config.LeverageStep, len(conf.PenaltySteps))
	copy(steps, conf.PenaltySteps)
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].MaxLeverage < steps[j].MaxLeverage
	})
	conf.PenaltySteps = steps
	return &Sizer{conf: conf}
}

func (r *Result) record(step Step) {
	r.Breakdown = append(r.Breakdown, step)
}

func (r *Result) reject(index int, reason string) Result {
	r.Rejected = true
	r.RejectStep = index
	r.RejectReason = reason
	r.FinalSizeUSD = 0
	r.MarginUSD = 0
	return *r
}

// Size 九步计算，任意一步都可能直接拒绝
func (s *Sizer) Size(req Request, acct AccountState) Result {
	c := s.conf
	res := Result{MarginType: exchange.MarginTypeIsolated}
	token := strings.ToUpper(strings.TrimSpace(req.Token))

	if req.BaseSizeUSD <= 0 || math.IsNaN(req.BaseSizeUSD) || math.IsInf(req.BaseSizeUSD, 0) {
		return res.reject(0, "base size must be positive")
	}
	if req.Side != models.SideLong && req.Side != models.SideShort {
		return res.reject(0, fmt.Sprintf("unknown side %q", req.Side))
	}

	// 1. 交易员杠杆
	leverage, source := s.ResolveLeverage(req)
	res.TraderLeverage, res.LeverageSource = leverage, source
	res.record(Step{Index: 1, Name: "resolve_leverage", Input: req.BaseSizeUSD, Output: req.BaseSizeUSD, Note: fmt.Sprintf("%.2fx (%s)", leverage, source)})

	// 2. 执行杠杆上限，与第3步相互独立
	effective := math.Max(1, math.Min(leverage, c.MaxLeverage))
	res.EffectiveLeverage = effective
	res.record(Step{Index: 2, Name: "cap_leverage", Input: req.BaseSizeUSD, Output: req.BaseSizeUSD, Limit: c.MaxLeverage, Note: fmt.Sprintf("%.2fx -> %.2fx", leverage, effective)})

	// 3. 按原始杠杆惩罚
	penalty := s.Penalty(leverage)
	res.LeveragePenalty = penalty
	size := req.BaseSizeUSD * penalty
	res.record(Step{Index: 3, Name: "leverage_penalty", Input: req.BaseSizeUSD, Output: size, Note: fmt.Sprintf("x%.2f", penalty)})

	// 4. 单仓上限
	if acct.AccountValue <= 0 {
		return res.reject(4, "account value unavailable")
	}
	positionCap := math.Min(acct.AccountValue*c.MaxPositionPct, c.MaxPositionUSD)
	size = s.capStep(&res, 4, "position_cap", size, positionCap)

	// 5. 总敞口
	headroom := acct.AccountValue*c.MaxTotalExposurePct - acct.TotalExposureUSD
	if headroom <= 0 {
		res.record(Step{Index: 5, Name: "total_exposure", Input: size, Limit: headroom})
		return res.reject(5, fmt.Sprintf("total exposure %.2f at limit %.2f", acct.TotalExposureUSD, acct.AccountValue*c.MaxTotalExposurePct))
	}
	size = s.capStep(&res, 5, "total_exposure", size, headroom)

	// 6. 单币种敞口
	tokenExposure := acct.TokenExposureUSD[token]
	headroom = acct.AccountValue*c.MaxTokenExposurePct - tokenExposure
	if headroom <= 0 {
		res.record(Step{Index: 6, Name: "token_exposure", Input: size, Limit: headroom})
		return res.reject(6, fmt.Sprintf("%s exposure %.2f at limit %.2f", token, tokenExposure, acct.AccountValue*c.MaxTokenExposurePct))
	}
	size = s.capStep(&res, 6, "token_exposure", size, headroom)

	// 7. 方向敞口
	sideExposure := acct.LongExposureUSD
	if req.Side == models.SideShort {
		sideExposure = acct.ShortExposureUSD
	}
	headroom = acct.AccountValue*c.MaxSideExposurePct - sideExposure
	if headroom <= 0 {
		res.record(Step{Index: 7, Name: "side_exposure", Input: size, Limit: headroom})
		return res.reject(7, fmt.Sprintf("%s exposure %.2f at limit %.2f", req.Side, sideExposure, acct.AccountValue*c.MaxSideExposurePct))
	}
	size = s.capStep(&res, 7, "side_exposure", size, headroom)

	// 8. 最小下单金额
	size = decimal.NewFromFloat(size).Truncate(2).InexactFloat64()
	if size < c.MinOrderUSD {
		res.record(Step{Index: 8, Name: "dust_floor", Input: size, Limit: c.MinOrderUSD})
		return res.reject(8, fmt.Sprintf("size %.2f below minimum %.2f", size, c.MinOrderUSD))
	}
	res.record(Step{Index: 8, Name: "dust_floor", Input: size, Output: size, Limit: c.MinOrderUSD})

	// 9. 输出
	res.FinalSizeUSD = size
	res.MarginUSD = decimal.NewFromFloat(size / effective).Round(2).InexactFloat64()
	res.AssetClass = s.AssetClass(token)
	res.SlippageBps = c.SlippageBps[res.AssetClass]
	res.OrderType = exchange.OrderTypeLimit
	if res.AssetClass == AssetClassMajor {
		res.OrderType = exchange.OrderTypeMarket
	}
	res.record(Step{Index: 9, Name: "finalize", Input: size, Output: size, Note: fmt.Sprintf("%s %s %s %.0fbps", res.MarginType, res.OrderType, res.AssetClass, res.SlippageBps)})
	return res
}

func (s *Sizer) capStep(res *Result, index int, name string, size, limit float64) float64 {
	out := math.Min(size, limit)
	step := Step{Index: index, Name: name, Input: size, Output: out, Limit: limit}
	if out < size {
		step.Note = "capped"
	}
	res.record(step)
	return out
}

// ResolveLeverage 显式杠杆 > 名义价值/保证金推断 > 保守默认值
func (s *Sizer) ResolveLeverage(req Request) (float64, string) {
	if req.TraderLeverage > 0 {
		return req.TraderLeverage, LeverageSourceExplicit
	}
	if req.TraderNotionalUSD > 0 && req.TraderMarginUSD > 0 {
		return req.TraderNotionalUSD / req.TraderMarginUSD, LeverageSourceInferred
	}
	return s.conf.DefaultTraderLeverage, LeverageSourceDefault
}

// Penalty 按原始杠杆的阶梯惩罚，超出映射范围时使用 PenaltyUnmapped
func (s *Sizer) Penalty(leverage float64) float64 {
	for _, step := range s.conf.PenaltySteps {
		if leverage <= step.MaxLeverage {
			return step.Multiplier
		}
	}
	return s.conf.PenaltyUnmapped
}

// AssetClass 币种分级，决定滑点假设与订单类型
func (s *Sizer) AssetClass(token string) string {
	token = strings.ToUpper(token)
	for _, t := range s.conf.MajorTokens {
		if strings.EqualFold(t, token) {
			return AssetClassMajor
		}
	}
	for _, t := range s.conf.LargeCapTokens {
		if strings.EqualFold(t, token) {
			return AssetClassLargeCap
		}
	}
	return AssetClassAlt
}
