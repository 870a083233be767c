package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// 单次 userFillsByTime 最多返回的条数，满页时继续翻页
const fillsPageSize = 2000

// HyperliquidClient 基于 Hyperliquid 公共 info 接口的数据源
type HyperliquidClient struct {
	client         *resty.Client
	limiter        *rate.Limiter
	leaderboardURL string
	logger         *zap.Logger
}

func NewHyperliquidClient(conf config.ProviderConf, logger *zap.Logger) *HyperliquidClient {
	conf = conf.WithDefaults()
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(conf.BaseURL, "/")).
		SetTimeout(time.Duration(conf.TimeoutSeconds)*time.Second).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
		})
	if conf.ProxyURL != "" {
		client.SetProxy(conf.ProxyURL)
	}

	return &HyperliquidClient{
		client:         client,
		limiter:        rate.NewLimiter(rate.Limit(conf.RatePerSecond), conf.Burst),
		leaderboardURL: conf.LeaderboardURL,
		logger:         logger,
	}
}

func (c *HyperliquidClient) do(ctx context.Context, method, url string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req := c.client.R().SetContext(ctx).SetResult(out)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: http %d", ErrUnavailable, code)
	case resp.IsError():
		return fmt.Errorf("provider: http %d: %s", code, resp.String())
	}
	return nil
}

// hlWindow 排行榜窗口表现，原始格式为 ["month", {"pnl": "...", "roi": "...", "vlm": "..."}]
type hlWindow struct {
	Name string
	Pnl  float64
	ROI  float64
	Vlm  float64
}

func (w *hlWindow) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("unexpected window performance: %s", data)
	}
	if err := json.Unmarshal(pair[0], &w.Name); err != nil {
		return err
	}
	var perf struct {
		Pnl any `json:"pnl"`
		ROI any `json:"roi"`
		Vlm any `json:"vlm"`
	}
	if err := json.Unmarshal(pair[1], &perf); err != nil {
		return err
	}
	w.Pnl = cast.ToFloat64(perf.Pnl)
	w.ROI = cast.ToFloat64(perf.ROI)
	w.Vlm = cast.ToFloat64(perf.Vlm)
	return nil
}

type hlLeaderboard struct {
	LeaderboardRows []struct {
		EthAddress         string     `json:"ethAddress"`
		AccountValue       any        `json:"accountValue"`
		DisplayName        *string    `json:"displayName"`
		WindowPerformances []hlWindow `json:"windowPerformances"`
	} `json:"leaderboardRows"`
}

// leaderboardWindow 按查询区间选择最接近的排行榜窗口
func leaderboardWindow(from, to time.Time) string {
	span := to.Sub(from)
	switch {
	case span <= 24*time.Hour:
		return "day"
	case span <= 7*24*time.Hour:
		return "week"
	case span <= 31*24*time.Hour:
		return "month"
	default:
		return "allTime"
	}
}

// FetchLeaderboard 拉取完整排行榜，按窗口盈亏降序
func (c *HyperliquidClient) FetchLeaderboard(ctx context.Context, from, to time.Time) ([]LeaderboardEntry, error) {
	var result hlLeaderboard
	if err := c.do(ctx, resty.MethodGet, c.leaderboardURL, nil, &result); err != nil {
		return nil, err
	}

	window := leaderboardWindow(from, to)
	entries := make([]LeaderboardEntry, 0, len(result.LeaderboardRows))
	for _, row := range result.LeaderboardRows {
		entry := LeaderboardEntry{
			Address:      strings.ToLower(row.EthAddress),
			AccountValue: cast.ToFloat64(row.AccountValue),
		}
		if row.DisplayName != nil {
			entry.Label = *row.DisplayName
		}
		for _, w := range row.WindowPerformances {
			if w.Name == window {
				entry.TotalPnl = w.Pnl
				entry.ROI = w.ROI * 100
			}
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalPnl > entries[j].TotalPnl
	})

	c.logger.Debug("leaderboard fetched",
		zap.String("window", window),
		zap.Int("rows", len(entries)))
	return entries, nil
}

type hlFill struct {
	Coin          string `json:"coin"`
	Px            any    `json:"px"`
	Sz            any    `json:"sz"`
	Side          string `json:"side"`
	Time          int64  `json:"time"`
	StartPosition any    `json:"startPosition"`
	Dir           string `json:"dir"`
	ClosedPnl     any    `json:"closedPnl"`
	Hash          string `json:"hash"`
	Tid           int64  `json:"tid"`
	Fee           any    `json:"fee"`
}

// toTradeRecord 把成交方向（dir）映射为持仓方向与开/加/减/平动作，现货等无法识别的成交返回 false
func toTradeRecord(address string, f hlFill) (models.TradeRecord, bool) {
	size := cast.ToFloat64(f.Sz)
	price := cast.ToFloat64(f.Px)
	start := cast.ToFloat64(f.StartPosition)

	var side, action string
	switch f.Dir {
	case "Open Long":
		side, action = models.SideLong, models.ActionOpen
		if start > 0 {
			action = models.ActionAdd
		}
	case "Open Short":
		side, action = models.SideShort, models.ActionOpen
		if start < 0 {
			action = models.ActionAdd
		}
	case "Close Long", "Long > Short":
		side, action = models.SideLong, models.ActionClose
		if f.Dir == "Close Long" && start-size > 1e-9 {
			action = models.ActionReduce
		}
	case "Close Short", "Short > Long":
		side, action = models.SideShort, models.ActionClose
		if f.Dir == "Close Short" && math.Abs(start)-size > 1e-9 {
			action = models.ActionReduce
		}
	default:
		return models.TradeRecord{}, false
	}

	return models.TradeRecord{
		ExternalID:    f.Hash + ":" + strconv.FormatInt(f.Tid, 10),
		TraderAddress: address,
		Token:         f.Coin,
		Side:          side,
		Action:        action,
		Size:          size,
		Price:         price,
		ValueUSD:      size * price,
		Fee:           cast.ToFloat64(f.Fee),
		ClosedPnl:     cast.ToFloat64(f.ClosedPnl),
		ExecutedAt:    time.UnixMilli(f.Time).UTC(),
	}, true
}

// FetchTrades 按时间翻页拉取成交，结果按时间倒序
func (c *HyperliquidClient) FetchTrades(ctx context.Context, address string, from, to time.Time) ([]models.TradeRecord, error) {
	address = strings.ToLower(address)
	seen := make(map[string]struct{})
	trades := make([]models.TradeRecord, 0)

	start := from.UnixMilli()
	end := to.UnixMilli()
	for start <= end {
		var fills []hlFill
		body := map[string]any{
			"type":      "userFillsByTime",
			"user":      address,
			"startTime": start,
			"endTime":   end,
		}
		if err := c.do(ctx, resty.MethodPost, "/info", body, &fills); err != nil {
			return nil, err
		}
		if len(fills) == 0 {
			break
		}

		last := start
		for _, f := range fills {
			if f.Time > last {
				last = f.Time
			}
			t, ok := toTradeRecord(address, f)
			if !ok {
				continue
			}
			if _, dup := seen[t.ExternalID]; dup {
				continue
			}
			seen[t.ExternalID] = struct{}{}
			trades = append(trades, t)
		}
		if len(fills) < fillsPageSize {
			break
		}
		start = last + 1
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExecutedAt.After(trades[j].ExecutedAt)
	})
	return trades, nil
}

type hlClearinghouse struct {
	MarginSummary struct {
		AccountValue any `json:"accountValue"`
	} `json:"marginSummary"`
	AssetPositions []struct {
		Position struct {
			Coin          string `json:"coin"`
			Szi           any    `json:"szi"`
			EntryPx       any    `json:"entryPx"`
			PositionValue any    `json:"positionValue"`
			UnrealizedPnl any    `json:"unrealizedPnl"`
			Leverage      struct {
				Type  string `json:"type"`
				Value any    `json:"value"`
			} `json:"leverage"`
			LiquidationPx any `json:"liquidationPx"`
			MarginUsed    any `json:"marginUsed"`
		} `json:"position"`
	} `json:"assetPositions"`
}

// FetchPositions 拉取交易员当前持仓与账户价值
func (c *HyperliquidClient) FetchPositions(ctx context.Context, address string) (*AccountPositions, error) {
	address = strings.ToLower(address)
	var state hlClearinghouse
	body := map[string]any{"type": "clearinghouseState", "user": address}
	if err := c.do(ctx, resty.MethodPost, "/info", body, &state); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	accountValue := cast.ToFloat64(state.MarginSummary.AccountValue)
	out := &AccountPositions{AccountValue: accountValue, CapturedAt: now}
	for _, ap := range state.AssetPositions {
		p := ap.Position
		szi := cast.ToFloat64(p.Szi)
		if szi == 0 {
			continue
		}
		side := models.SideLong
		if szi < 0 {
			side = models.SideShort
		}
		size := math.Abs(szi)
		value := cast.ToFloat64(p.PositionValue)
		leverageType := models.LeverageTypeCross
		if p.Leverage.Type == "isolated" {
			leverageType = models.LeverageTypeIsolated
		}
		out.Positions = append(out.Positions, models.PositionSnapshot{
			TraderAddress:    address,
			Token:            p.Coin,
			Side:             side,
			Size:             size,
			USDValue:         value,
			EntryPrice:       cast.ToFloat64(p.EntryPx),
			MarkPrice:        value / size,
			Leverage:         cast.ToFloat64(p.Leverage.Value),
			LeverageType:     leverageType,
			LiquidationPrice: cast.ToFloat64(p.LiquidationPx),
			MarginUsed:       cast.ToFloat64(p.MarginUsed),
			UnrealizedPnl:    cast.ToFloat64(p.UnrealizedPnl),
			AccountValue:     accountValue,
			CapturedAt:       now,
		})
	}
	return out, nil
}
