package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dushixiang/copyrank/internal/engine/sizing"
	"github.com/dushixiang/copyrank/internal/service"
	"github.com/dushixiang/copyrank/internal/xe"
	"github.com/go-orz/orz"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// StrategyHandler 下游策略使用的HTTP接口
type StrategyHandler struct {
	allocationService  *service.AllocationService
	scoringService     *service.ScoringService
	riskService        *service.RiskService
	blacklistService   *service.BlacklistService
	cycleService       *service.CycleService
	consensusService   *service.ConsensusService
	positionService    *service.PositionService
	liquidationService *service.LiquidationMonitorService
	logger             *zap.Logger
}

// NewStrategyHandler 创建策略接口处理器
func NewStrategyHandler(
	allocationService *service.AllocationService,
	scoringService *service.ScoringService,
	riskService *service.RiskService,
	blacklistService *service.BlacklistService,
	cycleService *service.CycleService,
	consensusService *service.ConsensusService,
	positionService *service.PositionService,
	liquidationService *service.LiquidationMonitorService,
	logger *zap.Logger,
) *StrategyHandler {
	return &StrategyHandler{
		allocationService:  allocationService,
		scoringService:     scoringService,
		riskService:        riskService,
		blacklistService:   blacklistService,
		cycleService:       cycleService,
		consensusService:   consensusService,
		positionService:    positionService,
		liquidationService: liquidationService,
		logger:             logger,
	}
}

// GetAllAllocations 当前全部资金权重
// GET /api/allocations
func (h *StrategyHandler) GetAllAllocations(c echo.Context) error {
	cycleID, items, err := h.allocationService.LatestAllocations(c.Request().Context())
	if err != nil {
		return err
	}
	weights := make(map[string]float64, len(items))
	for _, a := range items {
		weights[a.TraderAddress] = a.FinalWeight
	}
	return c.JSON(http.StatusOK, orz.Map{
		"cycle_id": cycleID,
		"weights":  weights,
		"items":    items,
	})
}

// GetAllocation 单个交易员的权重，未分配时为0
// GET /api/allocations/:trader
func (h *StrategyHandler) GetAllocation(c echo.Context) error {
	trader := strings.ToLower(strings.TrimSpace(c.Param("trader")))
	if trader == "" {
		return xe.ErrTraderMissing
	}
	weight, err := h.allocationService.GetAllocation(c.Request().Context(), trader)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orz.Map{
		"trader_address": trader,
		"weight":         weight,
	})
}

type sizingRequest struct {
	sizing.Request
	Account *sizing.AccountState `json:"account"`
}

// ComputePositionSize 计算下单金额，未提供账户状态时读取交易所实时账户
// POST /api/sizing
func (h *StrategyHandler) ComputePositionSize(c echo.Context) error {
	var req sizingRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.riskService.ComputePositionSize(c.Request().Context(), req.Request, req.Account)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// CheckLiquidationBuffer 单个持仓的强平缓冲检查
// POST /api/liquidation-buffer
func (h *StrategyHandler) CheckLiquidationBuffer(c echo.Context) error {
	var in sizing.BufferInput
	if err := c.Bind(&in); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.riskService.CheckLiquidationBuffer(in))
}

// GetScores 某周期的评分，默认最新周期
// GET /api/scores?cycle_id=
func (h *StrategyHandler) GetScores(c echo.Context) error {
	cycleID, scores, err := h.scoringService.FindScores(c.Request().Context(), c.QueryParam("cycle_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orz.Map{
		"cycle_id": cycleID,
		"items":    scores,
	})
}

// GetTraderMetrics 某交易员在某周期各窗口的指标
// GET /api/scores/:trader/metrics?cycle_id=
func (h *StrategyHandler) GetTraderMetrics(c echo.Context) error {
	ctx := c.Request().Context()
	trader := strings.ToLower(strings.TrimSpace(c.Param("trader")))
	if trader == "" {
		return xe.ErrTraderMissing
	}
	cycleID := c.QueryParam("cycle_id")
	if cycleID == "" {
		latest, _, err := h.scoringService.FindScores(ctx, "")
		if err != nil {
			return err
		}
		cycleID = latest
	}
	items, err := h.scoringService.FindMetrics(ctx, cycleID, trader)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orz.Map{
		"cycle_id":       cycleID,
		"trader_address": trader,
		"items":          items,
	})
}

// GetBlacklist 当前生效的黑名单
// GET /api/blacklist
func (h *StrategyHandler) GetBlacklist(c echo.Context) error {
	items, err := h.blacklistService.ListActive(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orz.Map{"items": items})
}

type blacklistRequest struct {
	TraderAddress string `json:"trader_address" validate:"required"`
	Reason        string `json:"reason"`
	DurationHours int    `json:"duration_hours" validate:"gt=0"`
}

// AddBlacklist 人工拉黑（运维）
// POST /api/blacklist
func (h *StrategyHandler) AddBlacklist(c echo.Context) error {
	var req blacklistRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	entry, err := h.blacklistService.AddManual(c.Request().Context(), req.TraderAddress, req.Reason, time.Duration(req.DurationHours)*time.Hour)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, entry)
}

// RunCycle 立即执行一次重算（运维）
// POST /api/cycle
func (h *StrategyHandler) RunCycle(c echo.Context) error {
	run, err := h.cycleService.RunCycle(c.Request().Context(), time.Now().UTC())
	if errors.Is(err, service.ErrCycleRunning) {
		return xe.ErrCycleRunning
	}
	if err != nil {
		h.logger.Error("manual recompute failed", zap.Error(err))
		if run == nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, run)
}

// GetStatus 系统状态
// GET /api/status
func (h *StrategyHandler) GetStatus(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 5
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}

	runs, err := h.cycleService.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	blacklist, err := h.blacklistService.ListActive(ctx)
	if err != nil {
		return err
	}
	events, err := h.liquidationService.RecentEvents(ctx, limit)
	if err != nil {
		return err
	}

	positions, err := h.positionService.GetAllPositions(ctx)
	if err != nil {
		h.logger.Error("failed to get positions", zap.Error(err))
	}
	positionsData := make([]orz.Map, 0, len(positions))
	for _, pos := range positions {
		check := h.riskService.CheckLiquidationBuffer(sizing.BufferInput{
			Side:             pos.Side,
			MarkPrice:        pos.MarkPrice,
			LiquidationPrice: pos.LiquidationPrice,
		})
		positionsData = append(positionsData, orz.Map{
			"symbol":             pos.Symbol,
			"side":               pos.Side,
			"quantity":           pos.Quantity,
			"entry_price":        pos.EntryPrice,
			"mark_price":         pos.MarkPrice,
			"liquidation_price":  pos.LiquidationPrice,
			"unrealized_pnl":     pos.UnrealizedPnl,
			"leverage":           pos.Leverage,
			"margin_type":        pos.MarginType,
			"source_trader":      pos.SourceTrader,
			"buffer_pct":         check.BufferPct,
			"last_buffer_action": pos.LastBufferAction,
			"holding":            pos.CalculateHoldingStr(),
		})
	}

	return c.JSON(http.StatusOK, orz.Map{
		"cycles":              runs,
		"blacklisted":         len(blacklist),
		"recent_liquidations": events,
		"positions":           positionsData,
	})
}

// GetConsensus 单币种多空共识
// GET /api/consensus/:token
func (h *StrategyHandler) GetConsensus(c echo.Context) error {
	signal, err := h.consensusService.Classify(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, signal)
}

// RegisterRoutes 注册路由，operator 中间件保护写操作
func (h *StrategyHandler) RegisterRoutes(api *echo.Group, operator echo.MiddlewareFunc) {
	api.GET("/allocations", h.GetAllAllocations)
	api.GET("/allocations/:trader", h.GetAllocation)
	api.POST("/sizing", h.ComputePositionSize)
	api.POST("/liquidation-buffer", h.CheckLiquidationBuffer)
	api.GET("/scores", h.GetScores)
	api.GET("/scores/:trader/metrics", h.GetTraderMetrics)
	api.GET("/blacklist", h.GetBlacklist)
	api.GET("/status", h.GetStatus)
	api.GET("/consensus/:token", h.GetConsensus)

	api.POST("/blacklist", h.AddBlacklist, operator)
	api.POST("/cycle", h.RunCycle, operator)
}
