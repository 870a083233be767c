package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/engine/eligibility"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/observability"
	"github.com/dushixiang/copyrank/internal/repo"
	"github.com/go-orz/orz"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BlacklistService 黑名单：人工拉黑、到期清理，写入即对下一次合格性检查可见
type BlacklistService struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	*orz.Service
	*repo.BlacklistRepo

	filter *eligibility.Filter
	now    func() time.Time
}

func NewBlacklistService(db *gorm.DB, conf *config.Config, metrics *observability.Metrics, logger *zap.Logger) *BlacklistService {
	return &BlacklistService{
		logger:        logger,
		metrics:       metrics,
		Service:       orz.NewService(db),
		BlacklistRepo: repo.NewBlacklistRepo(db),
		filter:        eligibility.NewFilter(conf.Strategy.WithDefaults().Eligibility),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// AddManual 人工拉黑，时长由运维指定
func (s *BlacklistService) AddManual(ctx context.Context, address, reason string, duration time.Duration) (*models.BlacklistEntry, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, fmt.Errorf("trader address is required")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("blacklist duration must be positive")
	}
	if reason == "" {
		reason = "manual"
	}

	entry := eligibility.NewManualEntry(address, reason, duration, s.now())
	entry.ID = ulid.Make().String()
	if err := s.BlacklistRepo.Create(ctx, &entry); err != nil {
		return nil, err
	}

	s.metrics.BlacklistAdded.WithLabelValues(models.BlacklistSourceManual).Inc()
	s.logger.Info("trader blacklisted manually",
		zap.String("trader", address),
		zap.String("reason", reason),
		zap.Time("expires_at", entry.ExpiresAt))
	return &entry, nil
}

// AddAuto 爆仓自动拉黑，调用方负责事务
func (s *BlacklistService) AddAuto(ctx context.Context, address, token string, at time.Time) (*models.BlacklistEntry, error) {
	entry := s.filter.NewAutoEntry(address, token, at)
	entry.ID = ulid.Make().String()
	if err := s.BlacklistRepo.Create(ctx, &entry); err != nil {
		return nil, err
	}
	s.metrics.BlacklistAdded.WithLabelValues(models.BlacklistSourceAuto).Inc()
	return &entry, nil
}

// IsBlacklisted 交易员当前是否处于黑名单中
func (s *BlacklistService) IsBlacklisted(ctx context.Context, address string) (bool, *models.BlacklistEntry, error) {
	now := s.now()
	entries, err := s.BlacklistRepo.FindActiveByTrader(ctx, address, now)
	if err != nil {
		return false, nil, err
	}
	active := eligibility.ActiveEntry(entries, now)
	return active != nil, active, nil
}

// ListActive 所有未过期的黑名单
func (s *BlacklistService) ListActive(ctx context.Context) ([]models.BlacklistEntry, error) {
	return s.BlacklistRepo.FindActive(ctx, s.now())
}

// Cleanup 删除已过期的条目，过期条目本身已不影响合格性
func (s *BlacklistService) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.BlacklistRepo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Info("expired blacklist entries removed", zap.Int64("count", n))
	return n, nil
}
