package internal

import (
	"net/http"
	"time"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/observability"
	"github.com/dushixiang/copyrank/internal/provider"
	"github.com/dushixiang/copyrank/internal/service"
	"github.com/dushixiang/copyrank/internal/telegram"
	"github.com/dushixiang/copyrank/pkg/exchange"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const telegramHTTPTimeout = 10 * time.Second

func provideMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.DefaultRegisterer)
}

// provideProvider provides the upstream leaderboard/trade/position source
func provideProvider(conf *config.Config, logger *zap.Logger) provider.Provider {
	return provider.NewHyperliquidClient(conf.Provider.WithDefaults(), logger)
}

// provideTelegram provides telegram instance
func provideTelegram(logger *zap.Logger, conf *config.Config, allocation *service.AllocationService, cycle *service.CycleService) *telegram.Telegram {
	if !conf.Telegram.Enabled {
		return nil
	}

	httpClient := &http.Client{Timeout: telegramHTTPTimeout}

	tg, err := telegram.NewTelegram(logger, telegram.Settings{
		Token:  conf.Telegram.Token,
		ChatID: conf.Telegram.ChatID,
		Client: httpClient,
	}, telegram.WithQueries(allocation, cycle))
	if err != nil {
		logger.Error("failed to init telegram", zap.Error(err))
		return nil
	}

	return tg
}

// provideRedisSink provides the optional redis event sink
func provideRedisSink(conf *config.Config, logger *zap.Logger) *service.RedisSink {
	if !conf.Redis.Enabled {
		return nil
	}
	return service.NewRedisSink(conf.Redis, logger)
}

// provideExchange 启用 binance 时读取真实账户，否则使用以 binance 公开行情计价的纸钱包
func provideExchange(conf *config.Config, logger *zap.Logger) exchange.Exchange {
	client := exchange.NewBinanceClient(
		conf.Binance.APIKey,
		conf.Binance.Secret,
		conf.Binance.ProxyURL,
		conf.Binance.Testnet,
	)

	if !conf.Binance.Enabled {
		balance := conf.Binance.PaperBalance
		if balance <= 0 {
			balance = 10000
		}
		logger.Info("Binance account disabled, using paper wallet",
			zap.Float64("paper_balance", balance))
		return exchange.NewPaperWallet(client, balance, logger)
	}

	if conf.Binance.APIKey == "" || conf.Binance.Secret == "" {
		logger.Warn("Binance API credentials not configured; account endpoints will fail")
	}

	logger.Info("Binance client initialized",
		zap.Bool("testnet", conf.Binance.Testnet),
		zap.Bool("has_credentials", conf.Binance.APIKey != "" && conf.Binance.Secret != ""),
	)
	return client
}
