package exchange

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"
)

// BinanceClient Binance期货API客户端（只读）
type BinanceClient struct {
	client *futures.Client
}

// NewBinanceClient 创建Binance客户端
func NewBinanceClient(apiKey, secretKey, proxyURL string, testnet bool) *BinanceClient {
	var client *futures.Client
	if proxyURL != "" {
		client = futures.NewProxiedClient(apiKey, secretKey, proxyURL)
	} else {
		client = futures.NewClient(apiKey, secretKey)
	}

	if testnet {
		futures.UseTestnet = true
	}

	return &BinanceClient{client: client}
}

// GetAccountInfo 获取账户信息
func (b *BinanceClient) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}

	walletBalance, _ := strconv.ParseFloat(account.TotalWalletBalance, 64)
	availableBalance, _ := strconv.ParseFloat(account.AvailableBalance, 64)
	unrealizedPnl, _ := strconv.ParseFloat(account.TotalUnrealizedProfit, 64)

	return &AccountInfo{
		TotalBalance:     walletBalance + unrealizedPnl,
		AvailableBalance: availableBalance,
		UnrealizedPnl:    unrealizedPnl,
	}, nil
}

// GetPositions 获取当前持仓
func (b *BinanceClient) GetPositions(ctx context.Context) ([]*Position, error) {
	positions, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	result := make([]*Position, 0)
	for _, p := range positions {
		positionAmt, _ := strconv.ParseFloat(p.PositionAmt, 64)

		// 过滤掉空仓位
		if positionAmt == 0 {
			continue
		}

		entryPrice, _ := strconv.ParseFloat(p.EntryPrice, 64)
		markPrice, _ := strconv.ParseFloat(p.MarkPrice, 64)
		unrealizedProfit, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
		leverage, _ := strconv.Atoi(p.Leverage)
		liquidationPrice, _ := strconv.ParseFloat(p.LiquidationPrice, 64)
		isolatedMargin, _ := strconv.ParseFloat(p.IsolatedMargin, 64)

		side := "long"
		if positionAmt < 0 {
			side = "short"
			positionAmt = -positionAmt
		}

		pos := &Position{
			Symbol:           p.Symbol,
			Side:             side,
			PositionAmount:   positionAmt,
			EntryPrice:       entryPrice,
			MarkPrice:        markPrice,
			UnrealizedProfit: unrealizedProfit,
			Leverage:         leverage,
			LiquidationPrice: liquidationPrice,
			MarginType:       ParseMarginType(p.MarginType),
			Margin:           isolatedMargin,
		}
		if pos.MarginType != MarginTypeIsolated && leverage > 0 {
			pos.Margin = pos.Notional() / float64(leverage)
		}
		result = append(result, pos)
	}

	return result, nil
}

// GetCurrentPrice 获取当前价格
func (b *BinanceClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current price: %w", err)
	}

	if len(prices) == 0 {
		return 0, fmt.Errorf("no price data for symbol %s", symbol)
	}

	price, _ := strconv.ParseFloat(prices[0].Price, 64)
	return price, nil
}
