package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/engine/allocation"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/repo"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AllocationService 把本周期合格交易员的评分转换为资金权重
type AllocationService struct {
	logger *zap.Logger

	*orz.Service
	allocationRepo *repo.AllocationRepo
	scoreRepo      *repo.TraderScoreRepo
	blacklistRepo  *repo.BlacklistRepo
	cycleRunRepo   *repo.CycleRunRepo

	allocator *allocation.Allocator
}

func NewAllocationService(db *gorm.DB, conf *config.Config, logger *zap.Logger) *AllocationService {
	return &AllocationService{
		logger:         logger,
		Service:        orz.NewService(db),
		allocationRepo: repo.NewAllocationRepo(db),
		scoreRepo:      repo.NewTraderScoreRepo(db),
		blacklistRepo:  repo.NewBlacklistRepo(db),
		cycleRunRepo:   repo.NewCycleRunRepo(db),
		allocator:      allocation.NewAllocator(conf.Strategy.WithDefaults().Allocation),
	}
}

// Rebalance 必须在本周期全部评分写入之后调用
// 上一个完成周期的权重作为换手限制的输入；已被拉黑的交易员直接退出，不受换手限制
func (s *AllocationService) Rebalance(ctx context.Context, cycleID string, cycleAt time.Time) (*allocation.Result, error) {
	scores, err := s.scoreRepo.FindByCycle(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	candidates := make([]allocation.Candidate, 0, len(scores))
	for _, sc := range scores {
		if !sc.Eligible {
			continue
		}
		candidates = append(candidates, allocation.Candidate{
			TraderAddress:  sc.TraderAddress,
			Score:          sc.FinalScore,
			TierMultiplier: sc.TierMultiplier,
		})
	}

	previous, err := s.previousWeights(ctx, cycleID)
	if err != nil {
		return nil, err
	}

	// 按周期时间判定，周期开始后新增的条目同样生效
	active, err := s.blacklistRepo.FindActive(ctx, cycleAt)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	exits := make(map[string]bool)
	for _, e := range active {
		if _, ok := previous[e.TraderAddress]; ok {
			exits[e.TraderAddress] = true
		}
	}

	result := s.allocator.Allocate(candidates, previous, exits)

	rows := make([]models.Allocation, 0, len(result.Weights))
	for _, w := range result.Weights {
		rows = append(rows, models.Allocation{
			ID:             ulid.Make().String(),
			CycleID:        cycleID,
			TraderAddress:  w.TraderAddress,
			Score:          w.Score,
			TierMultiplier: w.TierMultiplier,
			RawWeight:      w.RawWeight,
			CappedWeight:   w.CappedWeight,
			FinalWeight:    w.FinalWeight,
			CycleAt:        cycleAt,
		})
	}
	err = s.Transaction(ctx, func(ctx context.Context) error {
		return s.allocationRepo.ReplaceForCycle(ctx, cycleID, rows)
	})
	if err != nil {
		return nil, fmt.Errorf("write allocations: %w", err)
	}

	for addr, stage := range result.Dropped {
		s.logger.Debug("trader dropped from allocation",
			zap.String("trader", addr),
			zap.String("stage", stage))
	}
	s.logger.Info("allocation rebalanced",
		zap.String("cycle_id", cycleID),
		zap.Int("candidates", len(candidates)),
		zap.Int("previous", len(previous)),
		zap.Int("exits", len(exits)),
		zap.Int("allocated", len(rows)))
	return &result, nil
}

func (s *AllocationService) previousWeights(ctx context.Context, cycleID string) (map[string]float64, error) {
	prevCycle, err := s.cycleRunRepo.LatestDoneBefore(ctx, cycleID)
	if err != nil {
		return nil, fmt.Errorf("find previous cycle: %w", err)
	}
	previous := make(map[string]float64)
	if prevCycle == "" {
		return previous, nil
	}
	items, err := s.allocationRepo.FindByCycle(ctx, prevCycle)
	if err != nil {
		return nil, fmt.Errorf("load previous allocations: %w", err)
	}
	for _, a := range items {
		if a.FinalWeight > 0 {
			previous[a.TraderAddress] = a.FinalWeight
		}
	}
	return previous, nil
}

// GetAllAllocations 最新周期的全部权重
func (s *AllocationService) GetAllAllocations(ctx context.Context) (map[string]float64, error) {
	_, items, err := s.LatestAllocations(ctx)
	if err != nil {
		return nil, err
	}
	weights := make(map[string]float64, len(items))
	for _, a := range items {
		weights[a.TraderAddress] = a.FinalWeight
	}
	return weights, nil
}

// GetAllocation 交易员在最新周期的权重，不存在时为0
func (s *AllocationService) GetAllocation(ctx context.Context, address string) (float64, error) {
	weights, err := s.GetAllAllocations(ctx)
	if err != nil {
		return 0, err
	}
	return weights[address], nil
}

// LatestAllocations 最近一个完成周期的分配明细，该周期无人合格时为空
func (s *AllocationService) LatestAllocations(ctx context.Context) (string, []models.Allocation, error) {
	cycleID, err := s.cycleRunRepo.LatestDoneBefore(ctx, "")
	if err != nil {
		return "", nil, err
	}
	if cycleID == "" {
		return "", []models.Allocation{}, nil
	}
	items, err := s.allocationRepo.FindByCycle(ctx, cycleID)
	return cycleID, items, err
}
