package internal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/handler"
	cmw "github.com/dushixiang/copyrank/internal/middleware"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/observability"
	"github.com/dushixiang/copyrank/internal/service"
	"github.com/dushixiang/copyrank/internal/telegram"
	"github.com/dushixiang/copyrank/pkg/nostd"
	"github.com/go-orz/orz"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func Run(configPath string) error {
	app := NewCopyrankApp()

	framework, err := orz.NewFramework(
		orz.WithConfig(configPath),
		orz.WithLoggerFromConfig(),
		orz.WithDatabase(),
		orz.WithHTTP(),
		orz.WithApplication(app),
	)
	if err != nil {
		return err
	}

	return framework.Run()
}

func NewCopyrankApp() orz.Application {
	return &CopyrankApp{}
}

var _ orz.Application = (*CopyrankApp)(nil)

type AppComponents struct {
	StrategyHandler *handler.StrategyHandler

	Scheduler   *service.Scheduler
	EventBus    *service.EventBus
	RiskService *service.RiskService

	tg        *telegram.Telegram
	redisSink *service.RedisSink
}

type CopyrankApp struct {
	components *AppComponents
	conf       *config.Config
}

// GetComponents 获取应用组件
func (r *CopyrankApp) GetComponents() *AppComponents {
	return r.components
}

func (r *CopyrankApp) Configure(app *orz.App) error {
	logger := app.Logger()
	e := app.GetEcho()
	db := app.GetDatabase()

	var conf config.Config
	err := app.GetConfig().App.Unmarshal(&conf)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %v", err)
	}
	if err := conf.ApplySecrets(); err != nil {
		return fmt.Errorf("failed to apply secrets from env: %v", err)
	}
	conf = conf.WithDefaults()

	components, err := InitializeApp(logger, db, &conf)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %v", err)
	}
	r.components = components
	r.conf = &conf

	if err := db.AutoMigrate(
		models.Trader{}, models.TradeRecord{}, models.TradeMetrics{}, models.TraderScore{},
		models.BlacklistEntry{}, models.Allocation{}, models.PositionPoll{}, models.PositionSnapshot{},
		models.LiquidationEvent{}, models.CycleRun{}, models.Position{},
	); err != nil {
		logger.Fatal("database auto migrate failed", zap.Error(err))
	}

	if err := r.Init(logger); err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}

	e.HidePort = true
	e.HideBanner = true

	e.Use(middleware.Gzip())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper:      middleware.DefaultSkipper,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			sugar := logger.Sugar()
			sugar.Error(fmt.Sprintf("[PANIC RECOVER] %v %s\n", err, stack))
			return err
		},
	}))
	e.Use(WithErrorHandler(logger))
	customValidator := nostd.CustomValidator{Validator: validator.New()}
	if err := customValidator.TransInit(); err != nil {
		logger.Sugar().Fatal("failed to init custom validator", zap.Error(err))
	}
	e.Validator = &customValidator

	e.GET("/metrics", echo.WrapHandler(observability.Handler()))

	operator := cmw.OperatorAuth(cmw.OperatorAuthConfig{
		TokenHash: conf.Operator.TokenHash,
		Logger:    logger,
	})
	api := e.Group("/api")
	{
		r.components.StrategyHandler.RegisterRoutes(api, operator)
	}

	return nil
}

func (r *CopyrankApp) Init(logger *zap.Logger) error {
	logger.Info("=================================================")
	logger.Info("Copyrank Starting...")
	logger.Info("=================================================")

	components := r.GetComponents()
	if components == nil {
		return fmt.Errorf("components not initialized")
	}

	bus := components.EventBus
	bus.Subscribe("copy-position-closer", components.RiskService.OnLiquidation)

	if components.tg != nil {
		bus.Subscribe("telegram", components.tg.Handle)
		components.tg.Start()
		logger.Info("Telegram notifier started")
	}

	if components.redisSink != nil {
		if err := components.redisSink.Ping(context.Background()); err != nil {
			logger.Warn("redis event sink unreachable", zap.Error(err))
		}
		bus.Subscribe("redis", components.redisSink.Handle)
	}

	if !r.conf.Schedule.Enabled {
		logger.Info("Scheduler disabled, jobs only run through the operator API")
		return nil
	}

	go func() {
		if err := components.Scheduler.Start(context.Background()); err != nil {
			logger.Error("scheduler error", zap.Error(err))
		}
	}()
	return nil
}
