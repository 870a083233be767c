package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/engine/eligibility"
	"github.com/dushixiang/copyrank/internal/engine/metrics"
	"github.com/dushixiang/copyrank/internal/engine/scoring"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/repo"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ScoreSummary 一次评分过程的统计
type ScoreSummary struct {
	Traders  int               `json:"traders"`
	Scored   int               `json:"scored"`
	Carried  int               `json:"carried"`
	Eligible int               `json:"eligible"`
	Skips    map[string]string `json:"skips"` // trader -> 原因
}

// ScoringService 逐个交易员计算指标、评分与合格性
type ScoringService struct {
	logger *zap.Logger

	*orz.Service
	traderRepo    *repo.TraderRepo
	tradeRepo     *repo.TradeRecordRepo
	pollRepo      *repo.PositionPollRepo
	metricsRepo   *repo.TradeMetricsRepo
	scoreRepo     *repo.TraderScoreRepo
	blacklistRepo *repo.BlacklistRepo

	calculator   *metrics.Calculator
	scorer       *scoring.Scorer
	filter       *eligibility.Filter
	primary      int
	lookbackDays int
}

func NewScoringService(db *gorm.DB, conf *config.Config, logger *zap.Logger) *ScoringService {
	strategy := conf.Strategy.WithDefaults()
	lookback := 0
	for _, days := range strategy.Metrics.Windows {
		lookback = max(lookback, days)
	}
	return &ScoringService{
		logger:        logger,
		Service:       orz.NewService(db),
		traderRepo:    repo.NewTraderRepo(db),
		tradeRepo:     repo.NewTradeRecordRepo(db),
		pollRepo:      repo.NewPositionPollRepo(db),
		metricsRepo:   repo.NewTradeMetricsRepo(db),
		scoreRepo:     repo.NewTraderScoreRepo(db),
		blacklistRepo: repo.NewBlacklistRepo(db),
		calculator:    metrics.NewCalculator(strategy.Metrics),
		scorer:        scoring.NewScorer(strategy.Scoring),
		filter:        eligibility.NewFilter(strategy.Eligibility),
		primary:       strategy.Scoring.PrimaryWindow,
		lookbackDays:  lookback,
	}
}

// ScoreCycle 为所有追踪中的交易员写入本周期评分
// failures 中的交易员本周期同步失败，沿用上一周期的评分，但黑名单仍按当前状态重新判断
func (s *ScoringService) ScoreCycle(ctx context.Context, cycleID string, cycleAt time.Time, failures map[string]string) (*ScoreSummary, error) {
	traders, err := s.traderRepo.FindTracked(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tracked traders: %w", err)
	}

	summary := &ScoreSummary{Traders: len(traders), Skips: make(map[string]string)}
	for _, trader := range traders {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		var (
			score *models.TraderScore
			err   error
		)
		if reason, failed := failures[trader.Address]; failed {
			score, err = s.carryForward(ctx, trader.Address, cycleID, cycleAt)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				summary.Skips[trader.Address] = "sync failed and no previous score: " + reason
				continue
			}
			if err == nil {
				summary.Carried++
			}
		} else {
			score, err = s.ScoreTrader(ctx, trader, cycleID, cycleAt)
			if err == nil {
				summary.Scored++
			}
		}
		if err != nil {
			summary.Skips[trader.Address] = err.Error()
			s.logger.Warn("trader skipped in scoring",
				zap.String("trader", trader.Address),
				zap.String("cycle_id", cycleID),
				zap.Error(err))
			continue
		}
		if score.Eligible {
			summary.Eligible++
		}
	}

	s.logger.Info("cycle scored",
		zap.String("cycle_id", cycleID),
		zap.Int("traders", summary.Traders),
		zap.Int("scored", summary.Scored),
		zap.Int("carried", summary.Carried),
		zap.Int("eligible", summary.Eligible),
		zap.Int("skipped", len(summary.Skips)))
	return summary, nil
}

// ScoreTrader 读取成交与轮询，计算三窗口指标、评分与合格性，并覆盖写入本周期的行
func (s *ScoringService) ScoreTrader(ctx context.Context, trader models.Trader, cycleID string, cycleAt time.Time) (*models.TraderScore, error) {
	address := trader.Address
	from := cycleAt.AddDate(0, 0, -s.lookbackDays)

	trades, err := s.tradeRepo.FindByTraderBetween(ctx, address, from, cycleAt)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	polls, err := s.pollRepo.FindBetween(ctx, address, from, cycleAt)
	if err != nil {
		return nil, fmt.Errorf("load polls: %w", err)
	}
	var positions []models.PositionSnapshot
	if len(polls) > 0 {
		latest := polls[len(polls)-1]
		if positions, err = s.pollRepo.FindSnapshots(ctx, latest.ID); err != nil {
			return nil, fmt.Errorf("load snapshots: %w", err)
		}
	}

	windows := s.calculator.ComputeAll(trades, polls, trader.AccountValue, cycleAt)

	hours := trader.HoursSinceLastTrade(cycleAt)
	if len(trades) > 0 {
		hours = max(cycleAt.Sub(trades[len(trades)-1].ExecutedAt).Hours(), 0)
	}
	primaryFrom := cycleAt.AddDate(0, 0, -s.primary)
	score := s.scorer.Score(scoring.Input{
		TraderAddress:       address,
		Label:               trader.Label,
		Metrics:             windows,
		Positions:           positions,
		Trades:              metrics.FilterBetween(trades, primaryFrom, cycleAt),
		HoursSinceLastTrade: hours,
	})

	entries, err := s.blacklistRepo.FindActiveByTrader(ctx, address, cycleAt)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	verdict := s.filter.Check(windows, entries, cycleAt)
	score.ID = ulid.Make().String()
	score.CycleID = cycleID
	score.Eligible = verdict.Eligible
	score.IneligibleReason = verdict.Reason
	score.ComputedAt = cycleAt

	rows := make([]models.TradeMetrics, 0, len(windows))
	for _, days := range sortedWindows(windows) {
		m := windows[days]
		m.ID = ulid.Make().String()
		m.CycleID = cycleID
		m.TraderAddress = address
		m.ComputedAt = cycleAt
		rows = append(rows, m)
	}

	err = s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.metricsRepo.ReplaceForCycle(ctx, cycleID, address, rows); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		if err := s.scoreRepo.ReplaceForCycle(ctx, &score); err != nil {
			return fmt.Errorf("write score: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("trader scored",
		zap.String("trader", address),
		zap.Float64("final_score", score.FinalScore),
		zap.String("style", score.Style),
		zap.Bool("eligible", score.Eligible),
		zap.String("reason", score.IneligibleReason))
	return &score, nil
}

func (s *ScoringService) carryForward(ctx context.Context, address, cycleID string, cycleAt time.Time) (*models.TraderScore, error) {
	last, err := s.scoreRepo.FindLastBefore(ctx, address, cycleID)
	if err != nil {
		return nil, err
	}
	entries, err := s.blacklistRepo.FindActiveByTrader(ctx, address, cycleAt)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}

	score := last
	score.ID = ulid.Make().String()
	score.CycleID = cycleID
	score.Carried = true
	score.ComputedAt = cycleAt
	score.CreatedAt = time.Time{}
	if r := s.filter.Blacklist(entries, cycleAt); !r.Eligible {
		score.Eligible = false
		score.IneligibleReason = r.Reason
	}
	if err := s.scoreRepo.ReplaceForCycle(ctx, &score); err != nil {
		return nil, fmt.Errorf("write carried score: %w", err)
	}
	return &score, nil
}

// FindScores 某周期的评分，cycleID 为空时取最新周期
func (s *ScoringService) FindScores(ctx context.Context, cycleID string) (string, []models.TraderScore, error) {
	if cycleID == "" {
		latest, err := s.scoreRepo.LatestCycleIDBefore(ctx, "")
		if err != nil {
			return "", nil, err
		}
		cycleID = latest
	}
	if cycleID == "" {
		return "", []models.TraderScore{}, nil
	}
	scores, err := s.scoreRepo.FindByCycle(ctx, cycleID)
	return cycleID, scores, err
}

// FindMetrics 某周期某交易员的各窗口指标
func (s *ScoringService) FindMetrics(ctx context.Context, cycleID, address string) ([]models.TradeMetrics, error) {
	return s.metricsRepo.FindByCycleAndTrader(ctx, cycleID, address)
}

func sortedWindows(m map[int]models.TradeMetrics) []int {
	days := make([]int, 0, len(m))
	for d := range m {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}
