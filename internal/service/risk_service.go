package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/engine/sizing"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/observability"
	"github.com/dushixiang/copyrank/internal/repo"
	"github.com/dushixiang/copyrank/pkg/exchange"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RiskService 风控系统服务：仓位计算与强平缓冲监控
type RiskService struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	exchange     exchange.Exchange
	positionRepo *repo.PositionRepo
	bus          *EventBus

	sizer       *sizing.Sizer
	liquidation config.LiquidationConf
	now         func() time.Time
}

// NewRiskService 创建风控服务
func NewRiskService(
	db *gorm.DB,
	conf *config.Config,
	exchange exchange.Exchange,
	bus *EventBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RiskService {
	strategy := conf.Strategy.WithDefaults()
	return &RiskService{
		logger:       logger,
		metrics:      metrics,
		exchange:     exchange,
		positionRepo: repo.NewPositionRepo(db),
		bus:          bus,
		sizer:        sizing.NewSizer(strategy.Sizing),
		liquidation:  strategy.Liquidation,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ComputePositionSize 计算下单金额，acct 为空时使用交易所实时账户状态
func (s *RiskService) ComputePositionSize(ctx context.Context, req sizing.Request, acct *sizing.AccountState) (sizing.Result, error) {
	if acct == nil {
		state, err := s.BuildAccountState(ctx)
		if err != nil {
			return sizing.Result{}, err
		}
		acct = state
	}

	res := s.sizer.Size(req, *acct)
	if res.Rejected {
		s.metrics.SizingRejections.WithLabelValues(fmt.Sprintf("%d", res.RejectStep)).Inc()
		s.logger.Info("sizing request rejected",
			zap.String("trader", req.TraderAddress),
			zap.String("token", req.Token),
			zap.String("side", req.Side),
			zap.Int("step", res.RejectStep),
			zap.String("reason", res.RejectReason))
		return res, nil
	}

	for _, step := range res.Breakdown {
		if step.Note == "capped" {
			s.logger.Debug("sizing step clamped",
				zap.String("token", req.Token),
				zap.String("step", step.Name),
				zap.Float64("input", step.Input),
				zap.Float64("output", step.Output))
		}
	}
	s.logger.Info("position size computed",
		zap.String("trader", req.TraderAddress),
		zap.String("token", req.Token),
		zap.String("side", req.Side),
		zap.Float64("base_usd", req.BaseSizeUSD),
		zap.Float64("final_usd", res.FinalSizeUSD),
		zap.Float64("trader_leverage", res.TraderLeverage),
		zap.String("leverage_source", res.LeverageSource))
	return res, nil
}

// BuildAccountState 汇总账户价值与按币种、方向的敞口
func (s *RiskService) BuildAccountState(ctx context.Context) (*sizing.AccountState, error) {
	account, err := s.exchange.GetAccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	positions, err := s.exchange.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	total := decimal.Zero
	long := decimal.Zero
	short := decimal.Zero
	tokens := make(map[string]decimal.Decimal)
	for _, p := range positions {
		notional := decimal.NewFromFloat(p.Notional()).Abs()
		total = total.Add(notional)
		if p.Side == models.SideShort {
			short = short.Add(notional)
		} else {
			long = long.Add(notional)
		}
		token := (&models.Position{Symbol: strings.ToUpper(p.Symbol)}).Token()
		tokens[token] = tokens[token].Add(notional)
	}

	state := &sizing.AccountState{
		AccountValue:     account.TotalBalance,
		TotalExposureUSD: total.InexactFloat64(),
		LongExposureUSD:  long.InexactFloat64(),
		ShortExposureUSD: short.InexactFloat64(),
		TokenExposureUSD: make(map[string]float64, len(tokens)),
	}
	for token, v := range tokens {
		state.TokenExposureUSD[token] = v.InexactFloat64()
	}
	return state, nil
}

// CheckLiquidationBuffer 单个持仓的强平缓冲检查
func (s *RiskService) CheckLiquidationBuffer(in sizing.BufferInput) sizing.BufferCheck {
	return sizing.LiquidationBuffer(s.liquidation, in)
}

// CheckBuffers 检查所有持仓的强平缓冲，减仓类动作在冷却期内不会重复发出
func (s *RiskService) CheckBuffers(ctx context.Context) (int, error) {
	positions, err := s.positionRepo.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load positions: %w", err)
	}

	now := s.now()
	cooldown := s.liquidation.Cooldown()
	actions := 0
	for i := range positions {
		pos := &positions[i]
		check := s.CheckLiquidationBuffer(sizing.BufferInput{
			Side:             pos.Side,
			MarkPrice:        pos.MarkPrice,
			LiquidationPrice: pos.LiquidationPrice,
		})
		if check.Action == sizing.BufferActionNone {
			continue
		}
		if pos.InCooldown(now, cooldown) {
			s.logger.Debug("buffer action suppressed by cooldown",
				zap.String("symbol", pos.Symbol),
				zap.String("side", pos.Side),
				zap.String("action", string(check.Action)))
			continue
		}

		if err := s.positionRepo.UpdateBufferAction(ctx, pos.ID, string(check.Action), now); err != nil {
			return actions, fmt.Errorf("failed to record buffer action for %s: %w", pos.Symbol, err)
		}
		actions++
		s.metrics.BufferActions.WithLabelValues(string(check.Action)).Inc()
		s.logger.Warn("liquidation buffer action required",
			zap.String("symbol", pos.Symbol),
			zap.String("side", pos.Side),
			zap.Float64("buffer_pct", check.BufferPct),
			zap.String("action", string(check.Action)),
			zap.String("reason", check.Reason))

		s.bus.Publish(ctx, Event{
			Type:      EventBufferAction,
			Trader:    pos.SourceTrader,
			Token:     pos.Token(),
			Side:      pos.Side,
			USDValue:  pos.Notional(),
			Action:    string(check.Action),
			BufferPct: check.BufferPct,
			Message:   check.Reason,
			At:        now,
		})
	}
	return actions, nil
}

// OnLiquidation 跟随的交易员疑似爆仓时，要求平掉对应的镜像持仓
func (s *RiskService) OnLiquidation(ctx context.Context, event Event) error {
	if event.Type != EventLiquidationDetected {
		return nil
	}
	positions, err := s.positionRepo.FindBySourceTrader(ctx, event.Trader)
	if err != nil {
		return err
	}
	for i := range positions {
		pos := &positions[i]
		if !strings.EqualFold(pos.Token(), event.Token) {
			continue
		}
		s.logger.Warn("closing position copied from liquidated trader",
			zap.String("trader", event.Trader),
			zap.String("symbol", pos.Symbol),
			zap.String("side", pos.Side))
		s.metrics.BufferActions.WithLabelValues(string(sizing.BufferActionEmergency)).Inc()
		s.bus.Publish(ctx, Event{
			Type:     EventBufferAction,
			Trader:   event.Trader,
			Token:    pos.Token(),
			Side:     pos.Side,
			USDValue: pos.Notional(),
			Action:   string(sizing.BufferActionEmergency),
			Message:  "source trader liquidated",
			At:       event.At,
		})
	}
	return nil
}
