package allocation

import (
	"math"
	"sort"

	"github.com/dushixiang/copyrank/internal/config"
)

const weightEpsilon = 1e-12

// Candidate 合格交易员
type Candidate struct {
	TraderAddress  string
	Score          float64
	TierMultiplier float64
}

// Weight 单个交易员各阶段的权重
type Weight struct {
	TraderAddress  string  `json:"trader_address"`
	Score          float64 `json:"score"`
	TierMultiplier float64 `json:"tier_multiplier"`
	RawWeight      float64 `json:"raw_weight"`
	CappedWeight   float64 `json:"capped_weight"`
	FinalWeight    float64 `json:"final_weight"`
}

// Result 分配结果，Weights 按最终权重降序
type Result struct {
	Weights []Weight          `json:"weights"`
	Dropped map[string]string `json:"dropped"` // trader -> 被剔除的阶段
}

// Map 最终权重
func (r Result) Map() map[string]float64 {
	m := make(map[string]float64, len(r.Weights))
	for _, w := range r.Weights {
		m[w.TraderAddress] = w.FinalWeight
	}
	return m
}

// Allocator 分数到权重的转换
type Allocator struct {
	conf config.AllocationConf
}

func NewAllocator(conf config.AllocationConf) *Allocator {
	return &Allocator{conf: conf}
}

// Allocate 依次执行 softmax、档位调整、TopK 与单人上限、换手限制，最终人数不超过 K
// 人数 × 上限 < 1 时单人上限优先，权重总和小于1
// previous 为空时视为首个周期，不做换手限制；exits 中的交易员直接清零，不受换手限制
func (a *Allocator) Allocate(candidates []Candidate, previous map[string]float64, exits map[string]bool) Result {
	result := Result{Dropped: make(map[string]string)}
	if len(candidates) == 0 {
		return result
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TraderAddress < sorted[j].TraderAddress
	})

	byTrader := make(map[string]*Weight, len(sorted))
	scores := make([]float64, len(sorted))
	for i, c := range sorted {
		scores[i] = c.Score
	}
	raw := Softmax(scores, a.conf.Temperature)
	rawMap := make(map[string]float64, len(sorted))
	tiers := make(map[string]float64, len(sorted))
	for i, c := range sorted {
		byTrader[c.TraderAddress] = &Weight{
			TraderAddress:  c.TraderAddress,
			Score:          c.Score,
			TierMultiplier: c.TierMultiplier,
			RawWeight:      raw[i],
		}
		rawMap[c.TraderAddress] = raw[i]
		tiers[c.TraderAddress] = c.TierMultiplier
	}

	tiered := ApplyTier(rawMap, tiers)
	for addr := range rawMap {
		if _, ok := tiered[addr]; !ok {
			result.Dropped[addr] = "tier"
		}
	}

	capped := CapTopK(tiered, a.conf.TopK, a.conf.MaxWeight)
	for addr := range tiered {
		if _, ok := capped[addr]; !ok {
			result.Dropped[addr] = "top_k"
		}
	}
	for addr, w := range capped {
		byTrader[addr].CappedWeight = w
	}

	final := capped
	if len(previous) > 0 {
		final = LimitTurnover(capped, previous, exits, a.conf.TurnoverLimit, a.conf.DustWeight, a.conf.MaxWeight)
		// 逐步退出的旧交易员会让人数超过 K，再按权重截断一次
		if a.conf.TopK > 0 && len(final) > a.conf.TopK {
			trimmed := CapTopK(final, a.conf.TopK, a.conf.MaxWeight)
			for addr := range final {
				if _, ok := trimmed[addr]; !ok {
					result.Dropped[addr] = "top_k"
				}
			}
			final = trimmed
		}
	}

	for addr, w := range final {
		item, ok := byTrader[addr]
		if !ok {
			// 上一周期的交易员，本周期已不合格，按换手限制逐步退出
			item = &Weight{TraderAddress: addr}
			byTrader[addr] = item
		}
		item.FinalWeight = w
		result.Weights = append(result.Weights, *item)
	}
	for addr := range capped {
		if _, ok := final[addr]; !ok {
			if _, ok := result.Dropped[addr]; !ok {
				result.Dropped[addr] = "dust"
			}
		}
	}

	sort.Slice(result.Weights, func(i, j int) bool {
		if result.Weights[i].FinalWeight != result.Weights[j].FinalWeight {
			return result.Weights[i].FinalWeight > result.Weights[j].FinalWeight
		}
		return result.Weights[i].TraderAddress < result.Weights[j].TraderAddress
	})
	return result
}

// Softmax 温度缩放的 softmax，先减去最大值保证数值稳定
func Softmax(scores []float64, temperature float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	if temperature <= 0 {
		temperature = 1
	}
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp((s - maxScore) / temperature)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ApplyTier 乘以档位乘数，乘数为0的剔除，再归一化
func ApplyTier(weights map[string]float64, tiers map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for addr, w := range weights {
		m := tiers[addr]
		if m == 0 {
			continue
		}
		out[addr] = w * m
	}
	return normalize(out)
}

// CapTopK 保留权重最高的 K 个，单人不超过 maxWeight 并归一化
func CapTopK(weights map[string]float64, k int, maxWeight float64) map[string]float64 {
	ranked := rank(weights)
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	kept := make(map[string]float64, len(ranked))
	for _, addr := range ranked {
		kept[addr] = weights[addr]
	}
	return NormalizeCapped(kept, maxWeight)
}

// LimitTurnover 每个交易员本周期权重变化不超过 limit，低于 dust 的剔除，最后归一化
func LimitTurnover(next, previous map[string]float64, exits map[string]bool, limit, dust, maxWeight float64) map[string]float64 {
	out := make(map[string]float64, len(next)+len(previous))
	seen := make(map[string]float64, len(next)+len(previous))
	for addr := range next {
		seen[addr] = 0
	}
	for addr := range previous {
		seen[addr] = 0
	}
	for _, addr := range sortedAddrs(seen) {
		if exits[addr] {
			continue
		}
		old := previous[addr]
		delta := next[addr] - old
		if delta > limit {
			delta = limit
		} else if delta < -limit {
			delta = -limit
		}
		w := old + delta
		if w < dust {
			continue
		}
		out[addr] = w
	}
	return NormalizeCapped(out, maxWeight)
}

// NormalizeCapped 归一化并保证单人不超过上限，超出部分按比例分给未封顶的交易员
// 人数 × 上限 < 1 时上限优先，总和小于1
func NormalizeCapped(weights map[string]float64, maxWeight float64) map[string]float64 {
	out := normalize(weights)
	if len(out) == 0 || maxWeight <= 0 || maxWeight >= 1 {
		return out
	}

	addrs := sortedAddrs(out)
	fixed := make(map[string]bool, len(out))
	for {
		remaining := 1 - float64(len(fixed))*maxWeight
		freeSum := 0.0
		for _, addr := range addrs {
			if !fixed[addr] {
				freeSum += out[addr]
			}
		}
		if remaining <= weightEpsilon {
			for _, addr := range addrs {
				if !fixed[addr] {
					out[addr] = math.Min(out[addr], maxWeight)
				}
			}
			return out
		}
		if freeSum <= 0 {
			// 未封顶的交易员权重均为0（softmax 下溢），剩余部分平均分配
			free := len(out) - len(fixed)
			share := math.Min(remaining/float64(free), maxWeight)
			for _, addr := range addrs {
				if !fixed[addr] {
					out[addr] = share
				}
			}
			return out
		}

		overflow := false
		for _, addr := range addrs {
			if fixed[addr] {
				continue
			}
			scaled := out[addr] / freeSum * remaining
			if scaled > maxWeight+weightEpsilon {
				fixed[addr] = true
				out[addr] = maxWeight
				overflow = true
			} else {
				out[addr] = scaled
			}
		}
		if !overflow {
			return out
		}
	}
}

// normalize 按地址顺序求和，浮点结果与 map 遍历顺序无关
func normalize(weights map[string]float64) map[string]float64 {
	addrs := sortedAddrs(weights)
	sum := 0.0
	for _, addr := range addrs {
		sum += weights[addr]
	}
	out := make(map[string]float64, len(weights))
	if sum <= 0 {
		return out
	}
	for _, addr := range addrs {
		out[addr] = weights[addr] / sum
	}
	return out
}

func sortedAddrs(weights map[string]float64) []string {
	addrs := make([]string, 0, len(weights))
	for addr := range weights {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// rank 按权重降序，权重相同时按地址升序
func rank(weights map[string]float64) []string {
	addrs := make([]string, 0, len(weights))
	for addr := range weights {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		wi, wj := weights[addrs[i]], weights[addrs[j]]
		if wi != wj {
			return wi > wj
		}
		return addrs[i] < addrs[j]
	})
	return addrs
}
