package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	JobUniverse  = "universe"
	JobRecompute = "recompute"
	JobMonitor   = "monitor"
	JobCleanup   = "cleanup"
	JobBuffer    = "buffer"
)

// Scheduler 定时任务调度器
// 每个任务有独立的锁，上一次未结束时本次直接跳过；监控与重算可以并行
type Scheduler struct {
	config      config.ScheduleConf
	ingestion   *IngestionService
	cycle       *CycleService
	liquidation *LiquidationMonitorService
	blacklist   *BlacklistService
	position    *PositionService
	risk        *RiskService
	logger      *zap.Logger

	jobs      map[string]*sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler 创建调度器
func NewScheduler(
	conf *config.Config,
	ingestion *IngestionService,
	cycle *CycleService,
	liquidation *LiquidationMonitorService,
	blacklist *BlacklistService,
	position *PositionService,
	risk *RiskService,
	logger *zap.Logger,
) *Scheduler {
	jobs := make(map[string]*sync.Mutex)
	for _, name := range []string{JobUniverse, JobRecompute, JobMonitor, JobCleanup, JobBuffer} {
		jobs[name] = &sync.Mutex{}
	}
	return &Scheduler{
		config:      conf.Schedule.WithDefaults(),
		ingestion:   ingestion,
		cycle:       cycle,
		liquidation: liquidation,
		blacklist:   blacklist,
		position:    position,
		risk:        risk,
		logger:      logger,
		jobs:        jobs,
		stopChan:    make(chan struct{}),
	}
}

// Start 启动调度器，阻塞直到 Stop 或 ctx 结束
func (t *Scheduler) Start(ctx context.Context) error {
	if t.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	t.isRunning = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.cron = cron.New()

	specs := []struct {
		name string
		spec string
		fn   func(ctx context.Context) error
	}{
		{JobUniverse, t.config.UniverseRefresh, t.refreshUniverse},
		{JobRecompute, t.config.Recompute, t.recompute},
		{JobMonitor, t.config.Monitor, t.monitor},
		{JobCleanup, t.config.Cleanup, t.cleanup},
	}
	for _, s := range specs {
		name, fn := s.name, s.fn
		if _, err := t.cron.AddFunc(s.spec, func() { t.RunJob(t.ctx, name, fn) }); err != nil {
			t.isRunning = false
			return fmt.Errorf("failed to add cron job %s (%s): %w", name, s.spec, err)
		}
		t.logger.Info("cron job registered", zap.String("job", name), zap.String("spec", s.spec))
	}

	t.cron.Start()
	t.position.StartSyncWorker(t.ctx, time.Duration(t.config.PositionSyncSeconds)*time.Second)
	go t.bufferLoop(t.ctx, time.Duration(t.config.BufferCheckSeconds)*time.Second)

	t.logger.Info("scheduler started",
		zap.Int("buffer_check_seconds", t.config.BufferCheckSeconds),
		zap.Int("position_sync_seconds", t.config.PositionSyncSeconds))

	select {
	case <-t.stopChan:
		t.logger.Info("scheduler stopped by user")
		return nil
	case <-ctx.Done():
		t.logger.Info("scheduler stopped by context")
		return ctx.Err()
	}
}

// Stop 停止调度器，等待正在执行的任务结束
func (t *Scheduler) Stop() {
	if !t.isRunning {
		return
	}

	t.logger.Info("stopping scheduler...")

	if t.cron != nil {
		ctx := t.cron.Stop()
		<-ctx.Done()
		t.logger.Info("cron scheduler stopped")
	}
	t.position.StopSyncWorker()

	if t.cancel != nil {
		t.cancel()
	}

	t.isRunning = false
	close(t.stopChan)
}

// RunJob 执行任务，同名任务仍在执行时跳过本次并返回 false
func (t *Scheduler) RunJob(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	mu, ok := t.jobs[name]
	if !ok {
		t.logger.Error("unknown job", zap.String("job", name))
		return false
	}
	if !mu.TryLock() {
		t.logger.Warn("previous run still in progress, skipping", zap.String("job", name))
		return false
	}
	defer mu.Unlock()

	started := time.Now()
	if err := fn(ctx); err != nil {
		t.logger.Error("job failed", zap.String("job", name), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return true
	}
	t.logger.Debug("job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(started)))
	return true
}

func (t *Scheduler) bufferLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.RunJob(ctx, JobBuffer, t.checkBuffers)
		case <-ctx.Done():
			t.logger.Info("buffer loop stopped")
			return
		}
	}
}

func (t *Scheduler) refreshUniverse(ctx context.Context) error {
	_, err := t.ingestion.RefreshUniverse(ctx)
	return err
}

func (t *Scheduler) recompute(ctx context.Context) error {
	_, err := t.cycle.RunCycle(ctx, time.Now().UTC())
	if errors.Is(err, ErrCycleRunning) {
		t.logger.Warn("manual recompute in progress, scheduled run skipped")
		return nil
	}
	return err
}

func (t *Scheduler) monitor(ctx context.Context) error {
	failures, err := t.ingestion.SyncAll(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		t.logger.Warn("monitor sync had failures", zap.Int("failed", len(failures)))
	}
	_, err = t.liquidation.Scan(ctx)
	return err
}

func (t *Scheduler) cleanup(ctx context.Context) error {
	if _, err := t.blacklist.Cleanup(ctx); err != nil {
		return fmt.Errorf("blacklist cleanup: %w", err)
	}
	return t.ingestion.Prune(ctx, time.Now().UTC())
}

func (t *Scheduler) checkBuffers(ctx context.Context) error {
	_, err := t.risk.CheckBuffers(ctx)
	return err
}
