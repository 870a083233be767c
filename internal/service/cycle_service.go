package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/observability"
	"github.com/dushixiang/copyrank/internal/repo"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrCycleRunning = errors.New("recompute cycle is already running")

// CycleService 重算周期：同步成交与持仓 → 逐个评分 → 分配权重 → 审计记录
type CycleService struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	cycleRunRepo *repo.CycleRunRepo
	traderRepo   *repo.TraderRepo

	ingestion  *IngestionService
	scoring    *ScoringService
	allocation *AllocationService
	bus        *EventBus

	interval time.Duration
	mu       sync.Mutex
}

func NewCycleService(
	db *gorm.DB,
	conf *config.Config,
	ingestion *IngestionService,
	scoring *ScoringService,
	allocation *AllocationService,
	bus *EventBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CycleService {
	return &CycleService{
		logger:       logger,
		metrics:      metrics,
		cycleRunRepo: repo.NewCycleRunRepo(db),
		traderRepo:   repo.NewTraderRepo(db),
		ingestion:    ingestion,
		scoring:      scoring,
		allocation:   allocation,
		bus:          bus,
		interval:     conf.Strategy.WithDefaults().Allocation.CycleInterval(),
	}
}

// RunCycle 执行 cycleAt 所在周期的重算，重跑同一周期会覆盖该周期的评分与分配
func (s *CycleService) RunCycle(ctx context.Context, cycleAt time.Time) (*models.CycleRun, error) {
	if !s.mu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer s.mu.Unlock()

	cycleStart := cycleAt.UTC().Truncate(s.interval)
	cycleID := models.CycleIDAt(cycleStart, s.interval)
	started := time.Now()

	run, err := s.cycleRunRepo.FindByCycleID(ctx, cycleID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}
	run = models.CycleRun{
		ID:        run.ID,
		CycleID:   cycleID,
		Status:    models.CycleStatusRunning,
		StartedAt: started.UTC(),
	}
	if err := s.cycleRunRepo.Save(ctx, &run); err != nil {
		return nil, fmt.Errorf("save cycle run: %w", err)
	}

	s.logger.Info("========== RECOMPUTE CYCLE START ==========",
		zap.String("cycle_id", cycleID),
		zap.Time("cycle_at", cycleStart))

	runErr := s.execute(ctx, &run, cycleStart)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Status = models.CycleStatusDone
	if runErr != nil {
		run.Status = models.CycleStatusFailed
		run.Error = truncate(runErr.Error(), 1000)
	}
	if err := s.cycleRunRepo.Save(ctx, &run); err != nil {
		s.logger.Error("failed to save cycle run", zap.String("cycle_id", cycleID), zap.Error(err))
	}

	elapsed := time.Since(started)
	s.metrics.CycleDuration.Observe(elapsed.Seconds())
	s.metrics.CycleRuns.WithLabelValues(run.Status).Inc()

	if runErr != nil {
		s.logger.Error("========== RECOMPUTE CYCLE FAILED ==========",
			zap.String("cycle_id", cycleID),
			zap.Duration("elapsed", elapsed),
			zap.Error(runErr))
		return &run, runErr
	}

	s.bus.Publish(ctx, Event{
		Type:    EventCycleCompleted,
		CycleID: cycleID,
		Message: fmt.Sprintf("scored=%d carried=%d eligible=%d allocated=%d", run.Scored, run.Carried, run.Eligible, run.Allocated),
	})
	s.logger.Info("========== RECOMPUTE CYCLE END ==========",
		zap.String("cycle_id", cycleID),
		zap.Duration("elapsed", elapsed),
		zap.Int("allocated", run.Allocated))
	return &run, nil
}

func (s *CycleService) execute(ctx context.Context, run *models.CycleRun, cycleAt time.Time) error {
	// ========== Step 1: 同步上游数据 ==========
	s.logger.Info("[STEP 1/3] Syncing tracked traders...")
	tracked, err := s.traderRepo.FindTracked(ctx)
	if err != nil {
		return fmt.Errorf("step 1 failed - load tracked traders: %w", err)
	}
	if len(tracked) == 0 {
		s.logger.Info("[STEP 1/3] Universe empty, refreshing leaderboard first")
		if _, err := s.ingestion.RefreshUniverse(ctx); err != nil {
			return fmt.Errorf("step 1 failed - refresh universe: %w", err)
		}
	}
	failures, err := s.ingestion.SyncAll(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("step 1 failed - sync traders: %w", err)
	}
	s.logger.Info("[STEP 1/3] Traders synced", zap.Int("failed", len(failures)))

	// ========== Step 2: 指标、评分与合格性 ==========
	s.logger.Info("[STEP 2/3] Scoring traders...")
	summary, err := s.scoring.ScoreCycle(ctx, run.CycleID, cycleAt, failures)
	if err != nil {
		return fmt.Errorf("step 2 failed - score traders: %w", err)
	}
	run.Traders = summary.Traders
	run.Scored = summary.Scored
	run.Carried = summary.Carried
	run.Eligible = summary.Eligible
	run.Skips = datatypes.JSONMap{}
	for addr, reason := range summary.Skips {
		run.Skips[addr] = reason
	}
	s.metrics.TradersScored.Set(float64(summary.Scored))
	s.metrics.TradersCarried.Set(float64(summary.Carried))
	s.metrics.TradersElig.Set(float64(summary.Eligible))
	s.logger.Info("[STEP 2/3] Traders scored",
		zap.Int("scored", summary.Scored),
		zap.Int("carried", summary.Carried),
		zap.Int("eligible", summary.Eligible))

	// ========== Step 3: 分配权重（依赖全部评分写入完成） ==========
	s.logger.Info("[STEP 3/3] Rebalancing allocations...")
	result, err := s.allocation.Rebalance(ctx, run.CycleID, cycleAt)
	if err != nil {
		return fmt.Errorf("step 3 failed - rebalance: %w", err)
	}
	run.Allocated = len(result.Weights)
	s.metrics.Allocations.Set(float64(run.Allocated))
	s.logger.Info("[STEP 3/3] Allocations written", zap.Int("allocated", run.Allocated))
	return nil
}

// RecentRuns 最近的周期记录
func (s *CycleService) RecentRuns(ctx context.Context, limit int) ([]models.CycleRun, error) {
	return s.cycleRunRepo.FindRecent(ctx, limit)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
