package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// PaperWallet 纸钱包：未接入真实账户时的内存账户，标记价格可来自真实行情
type PaperWallet struct {
	prices PriceSource // 为空时使用最后一次设置的标记价格
	logger *zap.Logger

	balance   float64              // 账户余额
	positions map[string]*Position // symbol|side -> position
	marks     map[string]float64   // symbol -> 最近标记价格
	mu        sync.RWMutex
}

// NewPaperWallet 创建纸钱包
func NewPaperWallet(prices PriceSource, initialBalance float64, logger *zap.Logger) *PaperWallet {
	return &PaperWallet{
		prices:    prices,
		logger:    logger,
		balance:   initialBalance,
		positions: make(map[string]*Position),
		marks:     make(map[string]float64),
	}
}

func positionKey(symbol, side string) string {
	return symbol + "|" + side
}

// SetMarkPrice 设置标记价格
func (p *PaperWallet) SetMarkPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
}

// OpenPosition 记录一笔模拟持仓，强平价格按逐仓近似估算
func (p *PaperWallet) OpenPosition(symbol, side string, quantity, entryPrice float64, leverage int) (*Position, error) {
	if quantity <= 0 || entryPrice <= 0 {
		return nil, fmt.Errorf("invalid paper position %s %s qty=%.8f price=%.8f", symbol, side, quantity, entryPrice)
	}
	if side != string(PositionSideLong) && side != string(PositionSideShort) {
		return nil, fmt.Errorf("invalid side %s", side)
	}
	if leverage <= 0 {
		leverage = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	liq := entryPrice * (1 - 1/float64(leverage))
	if side == string(PositionSideShort) {
		liq = entryPrice * (1 + 1/float64(leverage))
	}
	pos := &Position{
		Symbol:           symbol,
		Side:             side,
		PositionAmount:   quantity,
		EntryPrice:       entryPrice,
		MarkPrice:        entryPrice,
		Leverage:         leverage,
		LiquidationPrice: liq,
		MarginType:       MarginTypeIsolated,
		Margin:           quantity * entryPrice / float64(leverage),
	}
	p.positions[positionKey(symbol, side)] = pos
	if _, ok := p.marks[symbol]; !ok {
		p.marks[symbol] = entryPrice
	}

	p.logger.Info("paper wallet: position opened",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("quantity", quantity),
		zap.Float64("entry_price", entryPrice),
		zap.Int("leverage", leverage))

	copied := *pos
	return &copied, nil
}

// ClosePosition 按当前标记价格平掉模拟持仓并结算盈亏
func (p *PaperWallet) ClosePosition(ctx context.Context, symbol, side string) error {
	price, err := p.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := positionKey(symbol, side)
	pos, ok := p.positions[key]
	if !ok {
		return fmt.Errorf("no position to close for %s %s", symbol, side)
	}
	pnl := (price - pos.EntryPrice) * pos.PositionAmount
	if side == string(PositionSideShort) {
		pnl = -pnl
	}
	p.balance += pnl
	delete(p.positions, key)

	p.logger.Info("paper wallet: position closed",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("price", price),
		zap.Float64("pnl", pnl),
		zap.Float64("balance", p.balance))
	return nil
}

// GetCurrentPrice 优先使用行情源，失败时退回最近标记价格
func (p *PaperWallet) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if p.prices != nil {
		price, err := p.prices.GetCurrentPrice(ctx, symbol)
		if err == nil && price > 0 {
			p.SetMarkPrice(symbol, price)
			return price, nil
		}
		p.logger.Warn("paper wallet: price source failed, using last mark",
			zap.String("symbol", symbol),
			zap.Error(err))
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.marks[symbol]
	if !ok {
		return 0, fmt.Errorf("no price data for symbol %s", symbol)
	}
	return price, nil
}

// GetPositions 获取模拟持仓，按标记价格重算未实现盈亏
func (p *PaperWallet) GetPositions(ctx context.Context) ([]*Position, error) {
	p.mu.RLock()
	symbols := make(map[string]struct{}, len(p.positions))
	for _, pos := range p.positions {
		symbols[pos.Symbol] = struct{}{}
	}
	p.mu.RUnlock()

	marks := make(map[string]float64, len(symbols))
	for symbol := range symbols {
		price, err := p.GetCurrentPrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
		marks[symbol] = price
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*Position, 0, len(p.positions))
	for _, pos := range p.positions {
		updated := *pos
		if price, ok := marks[pos.Symbol]; ok {
			updated.MarkPrice = price
		}
		pnl := (updated.MarkPrice - pos.EntryPrice) * pos.PositionAmount
		if pos.Side == string(PositionSideShort) {
			pnl = -pnl
		}
		updated.UnrealizedProfit = pnl
		result = append(result, &updated)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Side < result[j].Side
	})
	return result, nil
}

// GetAccountInfo 获取模拟账户信息
func (p *PaperWallet) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	positions, err := p.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	unrealizedPnl := 0.0
	usedMargin := 0.0
	for _, pos := range positions {
		unrealizedPnl += pos.UnrealizedProfit
		usedMargin += pos.Margin
	}

	p.mu.RLock()
	balance := p.balance
	p.mu.RUnlock()

	totalBalance := balance + unrealizedPnl

	p.logger.Debug("paper wallet account info",
		zap.Float64("balance", balance),
		zap.Float64("unrealized_pnl", unrealizedPnl),
		zap.Float64("total_balance", totalBalance),
		zap.Float64("used_margin", usedMargin))

	return &AccountInfo{
		TotalBalance:     totalBalance,
		AvailableBalance: totalBalance - usedMargin,
		UnrealizedPnl:    unrealizedPnl,
	}, nil
}
