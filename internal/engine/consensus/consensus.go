package consensus

import (
	"math"
	"sort"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
)

// Classification 单币种多空共识
type Classification string

const (
	StrongLong  Classification = "STRONG_LONG"
	Long        Classification = "LONG"
	Neutral     Classification = "NEUTRAL"
	Short       Classification = "SHORT"
	StrongShort Classification = "STRONG_SHORT"
)

const maxRatio = 999

// Vote 某交易员在某币种上的当前持仓
type Vote struct {
	TraderAddress string  `json:"trader_address"`
	Side          string  `json:"side"`
	USDValue      float64 `json:"usd_value"`
	Weight        float64 `json:"weight"` // 通常为最新得分，<=0 时按1计
}

// Signal 共识结果
type Signal struct {
	Token            string         `json:"token"`
	Classification   Classification `json:"classification"`
	LongVolume       float64        `json:"long_volume"`
	ShortVolume      float64        `json:"short_volume"`
	Ratio            float64        `json:"ratio"` // 优势方 / 劣势方
	LongTraders      int            `json:"long_traders"`
	ShortTraders     int            `json:"short_traders"`
	LongIndependent  int            `json:"long_independent"`
	ShortIndependent int            `json:"short_independent"`
	LongClusters     []string       `json:"long_clusters"`
	ShortClusters    []string       `json:"short_clusters"`
}

type Engine struct {
	conf config.ConsensusConf
}

func NewEngine(conf config.ConsensusConf) *Engine {
	return &Engine{conf: conf}
}

// Classify 按加权持仓价值计算多空比，强信号还要求足够多的独立集群
func (e *Engine) Classify(token string, votes []Vote, clusters Clusters) Signal {
	sig := Signal{Token: token, Classification: Neutral}
	longSet := map[string]struct{}{}
	shortSet := map[string]struct{}{}

	for _, v := range votes {
		if v.USDValue <= 0 {
			continue
		}
		w := v.Weight
		if w <= 0 {
			w = 1
		}
		cluster := clusters.ClusterOf(v.TraderAddress)
		switch v.Side {
		case models.SideLong:
			sig.LongVolume += v.USDValue * w
			sig.LongTraders++
			longSet[cluster] = struct{}{}
		case models.SideShort:
			sig.ShortVolume += v.USDValue * w
			sig.ShortTraders++
			shortSet[cluster] = struct{}{}
		}
	}
	sig.LongClusters = sortedKeys(longSet)
	sig.ShortClusters = sortedKeys(shortSet)
	sig.LongIndependent = len(sig.LongClusters)
	sig.ShortIndependent = len(sig.ShortClusters)

	switch {
	case sig.LongVolume > sig.ShortVolume:
		sig.Ratio = ratio(sig.LongVolume, sig.ShortVolume)
		sig.Classification = e.grade(sig.Ratio, sig.LongIndependent, StrongLong, Long)
	case sig.ShortVolume > sig.LongVolume:
		sig.Ratio = ratio(sig.ShortVolume, sig.LongVolume)
		sig.Classification = e.grade(sig.Ratio, sig.ShortIndependent, StrongShort, Short)
	default:
		if sig.LongVolume > 0 {
			sig.Ratio = 1
		}
	}
	return sig
}

func (e *Engine) grade(r float64, independent int, strong, lean Classification) Classification {
	switch {
	case r >= e.conf.StrongRatio && independent >= e.conf.MinIndependent:
		return strong
	case r >= e.conf.LeanRatio:
		return lean
	default:
		return Neutral
	}
}

func ratio(major, minor float64) float64 {
	if minor <= 0 {
		return maxRatio
	}
	return math.Min(major/minor, maxRatio)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
