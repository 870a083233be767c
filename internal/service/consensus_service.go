package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/engine/consensus"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 聚类使用的成交回看窗口
const consensusLookback = 30 * 24 * time.Hour

// ConsensusService 按最新评分周期的交易员持仓计算单币种多空共识，仅作展示，不参与评分
type ConsensusService struct {
	logger *zap.Logger

	cycleRunRepo *repo.CycleRunRepo
	scoreRepo    *repo.TraderScoreRepo
	traderRepo   *repo.TraderRepo
	tradeRepo    *repo.TradeRecordRepo
	pollRepo     *repo.PositionPollRepo

	clusterer *consensus.Clusterer
	engine    *consensus.Engine
	now       func() time.Time
}

func NewConsensusService(db *gorm.DB, conf *config.Config, logger *zap.Logger) *ConsensusService {
	c := conf.Strategy.WithDefaults().Consensus
	return &ConsensusService{
		logger:       logger,
		cycleRunRepo: repo.NewCycleRunRepo(db),
		scoreRepo:    repo.NewTraderScoreRepo(db),
		traderRepo:   repo.NewTraderRepo(db),
		tradeRepo:    repo.NewTradeRecordRepo(db),
		pollRepo:     repo.NewPositionPollRepo(db),
		clusterer:    consensus.NewClusterer(c),
		engine:       consensus.NewEngine(c),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Classify 单币种共识。没有完成的周期时使用全部追踪中的交易员，权重按1计
func (s *ConsensusService) Classify(ctx context.Context, token string) (*consensus.Signal, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	scores, err := s.latestScores(ctx)
	if err != nil {
		return nil, err
	}
	addresses := make([]string, 0, len(scores))
	for addr := range scores {
		addresses = append(addresses, addr)
	}

	snapshots, err := s.pollRepo.FindLatestSnapshots(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("load latest positions: %w", err)
	}
	var votes []consensus.Vote
	for _, snap := range snapshots {
		if !strings.EqualFold(snap.Token, token) {
			continue
		}
		votes = append(votes, consensus.Vote{
			TraderAddress: snap.TraderAddress,
			Side:          snap.Side,
			USDValue:      snap.USDValue,
			Weight:        scores[snap.TraderAddress],
		})
	}

	now := s.now()
	trades := make(map[string][]models.TradeRecord, len(addresses))
	for _, addr := range addresses {
		items, err := s.tradeRepo.FindByTraderBetween(ctx, addr, now.Add(-consensusLookback), now)
		if err != nil {
			return nil, fmt.Errorf("load trades for %s: %w", addr, err)
		}
		trades[addr] = items
	}
	clusters := s.clusterer.Build(trades, scores)

	signal := s.engine.Classify(token, votes, clusters)
	s.logger.Debug("consensus classified",
		zap.String("token", token),
		zap.Int("votes", len(votes)),
		zap.String("classification", string(signal.Classification)),
		zap.Float64("ratio", signal.Ratio))
	return &signal, nil
}

func (s *ConsensusService) latestScores(ctx context.Context) (map[string]float64, error) {
	scores := make(map[string]float64)
	cycleID, err := s.cycleRunRepo.LatestDoneBefore(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("find latest cycle: %w", err)
	}
	if cycleID != "" {
		items, err := s.scoreRepo.FindByCycle(ctx, cycleID)
		if err != nil {
			return nil, fmt.Errorf("load scores: %w", err)
		}
		for _, sc := range items {
			scores[sc.TraderAddress] = sc.FinalScore
		}
		return scores, nil
	}

	traders, err := s.traderRepo.FindTracked(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tracked traders: %w", err)
	}
	for _, t := range traders {
		scores[t.Address] = 1
	}
	return scores, nil
}
