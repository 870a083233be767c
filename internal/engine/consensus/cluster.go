package consensus

import (
	"sort"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
)

// UnionFind 交易员地址上的并查集
type UnionFind struct {
	parent map[string]string
	rank   map[string]int
}

func NewUnionFind() *UnionFind {
	return &UnionFind{parent: map[string]string{}, rank: map[string]int{}}
}

func (u *UnionFind) Add(x string) {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
}

func (u *UnionFind) Find(x string) string {
	u.Add(x)
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// 路径压缩
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

func (u *UnionFind) Union(a, b string) {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}

// Clusters 跟单集群划分结果，集群ID为代表成员地址
type Clusters struct {
	ByTrader map[string]string   `json:"by_trader"`
	Members  map[string][]string `json:"members"`
}

// ClusterOf 未参与聚类的交易员自成一个集群
func (c Clusters) ClusterOf(address string) string {
	if id, ok := c.ByTrader[address]; ok {
		return id
	}
	return address
}

// CoTradeRatio 两个交易员在同一币种同一方向、时间窗口内的共同成交占比（以成交较少的一方为分母）
// 返回占比和共同成交笔数
func CoTradeRatio(a, b []models.TradeRecord, window time.Duration) (float64, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	byKey := make(map[string][]time.Time)
	for _, t := range large {
		key := t.Token + "|" + t.Side
		byKey[key] = append(byKey[key], t.ExecutedAt)
	}
	for _, times := range byKey {
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	}

	shared := 0
	for _, t := range small {
		times := byKey[t.Token+"|"+t.Side]
		if len(times) == 0 {
			continue
		}
		from := t.ExecutedAt.Add(-window)
		i := sort.Search(len(times), func(i int) bool { return !times[i].Before(from) })
		if i < len(times) && !times[i].After(t.ExecutedAt.Add(window)) {
			shared++
		}
	}
	return float64(shared) / float64(len(small)), shared
}

// Clusterer 基于共同成交的跟单集群识别
type Clusterer struct {
	conf config.ConsensusConf
}

func NewClusterer(conf config.ConsensusConf) *Clusterer {
	return &Clusterer{conf: conf}
}

// Build 对所有交易员两两比较，超过相关阈值的合并为一个集群；
// 代表成员为集群内得分最高者，同分时取地址较小者
func (c *Clusterer) Build(trades map[string][]models.TradeRecord, scores map[string]float64) Clusters {
	addresses := make([]string, 0, len(trades))
	for addr := range trades {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	window := time.Duration(c.conf.CoTradeWindowSeconds) * time.Second
	uf := NewUnionFind()
	for i, a := range addresses {
		uf.Add(a)
		for _, b := range addresses[i+1:] {
			ratio, shared := CoTradeRatio(trades[a], trades[b], window)
			if shared >= c.conf.MinSharedTrades && ratio >= c.conf.CorrelationThreshold {
				uf.Union(a, b)
			}
		}
	}

	groups := make(map[string][]string)
	for _, addr := range addresses {
		root := uf.Find(addr)
		groups[root] = append(groups[root], addr)
	}

	out := Clusters{ByTrader: make(map[string]string, len(addresses)), Members: make(map[string][]string, len(groups))}
	for _, members := range groups {
		rep := members[0]
		for _, m := range members[1:] {
			if scores[m] > scores[rep] || (scores[m] == scores[rep] && m < rep) {
				rep = m
			}
		}
		out.Members[rep] = members
		for _, m := range members {
			out.ByTrader[m] = rep
		}
	}
	return out
}
