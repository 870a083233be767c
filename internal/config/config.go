package config

type Config struct {
	Telegram TelegramConf `json:"telegram"`
	Binance  BinanceConf  `json:"binance"`
	Provider ProviderConf `json:"provider"`
	Redis    RedisConf    `json:"redis"`
	Operator OperatorConf `json:"operator"`
	Schedule ScheduleConf `json:"schedule"`
	Strategy StrategyConf `json:"strategy"`
}

type TelegramConf struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chat_id"`
}

type BinanceConf struct {
	Enabled  bool   `json:"enabled"` // 是否读取真实账户，false时使用纸钱包
	APIKey   string `json:"api_key"`
	Secret   string `json:"secret"`
	ProxyURL string `json:"proxy_url"` // 代理地址，例如: http://127.0.0.1:7890
	Testnet  bool   `json:"testnet"`   // 是否使用测试网

	PaperBalance float64 `json:"paper_balance"` // 纸钱包初始余额（USDT），默认10000
}

// ProviderConf 上游数据源（排行榜、成交、持仓）
type ProviderConf struct {
	BaseURL        string  `json:"base_url"`         // 默认 https://api.hyperliquid.xyz
	LeaderboardURL string  `json:"leaderboard_url"`  // 默认 https://stats-data.hyperliquid.xyz/Mainnet/leaderboard
	ProxyURL       string  `json:"proxy_url"`        // 代理地址
	TimeoutSeconds int     `json:"timeout_seconds"`  // 单次请求超时，默认15
	RatePerSecond  float64 `json:"rate_per_second"`  // 请求速率，默认2
	Burst          int     `json:"burst"`            // 突发请求数，默认4
	UniverseSize   int     `json:"universe_size"`    // 追踪的交易员数量，默认50
	SyncOverlapMin int     `json:"sync_overlap_min"` // 增量同步回看重叠（分钟），默认60
}

// RedisConf 事件外发（可选）
type RedisConf struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"` // 默认 copyrank:events
}

// OperatorConf 运维接口鉴权
type OperatorConf struct {
	TokenHash string `json:"token_hash"` // 运维令牌的 bcrypt 哈希，为空时运维接口关闭
}

// ScheduleConf 定时任务配置（cron 表达式，5 段）
type ScheduleConf struct {
	Enabled             bool   `json:"enabled"`
	UniverseRefresh     string `json:"universe_refresh"`      // 默认 "0 0 * * *"
	Recompute           string `json:"recompute"`             // 默认 "0 */6 * * *"
	Monitor             string `json:"monitor"`               // 默认 "*/15 * * * *"
	Cleanup             string `json:"cleanup"`               // 默认 "30 0 * * *"
	BufferCheckSeconds  int    `json:"buffer_check_seconds"`  // 默认30
	PositionSyncSeconds int    `json:"position_sync_seconds"` // 默认30
}

func (c ProviderConf) WithDefaults() ProviderConf {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.hyperliquid.xyz"
	}
	if c.LeaderboardURL == "" {
		c.LeaderboardURL = "https://stats-data.hyperliquid.xyz/Mainnet/leaderboard"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 2
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
	if c.UniverseSize <= 0 {
		c.UniverseSize = 50
	}
	if c.SyncOverlapMin <= 0 {
		c.SyncOverlapMin = 60
	}
	return c
}

func (c ScheduleConf) WithDefaults() ScheduleConf {
	if c.UniverseRefresh == "" {
		c.UniverseRefresh = "0 0 * * *"
	}
	if c.Recompute == "" {
		c.Recompute = "0 */6 * * *"
	}
	if c.Monitor == "" {
		c.Monitor = "*/15 * * * *"
	}
	if c.Cleanup == "" {
		c.Cleanup = "30 0 * * *"
	}
	if c.BufferCheckSeconds <= 0 {
		c.BufferCheckSeconds = 30
	}
	if c.PositionSyncSeconds <= 0 {
		c.PositionSyncSeconds = 30
	}
	return c
}

func (c RedisConf) WithDefaults() RedisConf {
	if c.Channel == "" {
		c.Channel = "copyrank:events"
	}
	return c
}

// WithDefaults 填充所有未配置的字段
func (c Config) WithDefaults() Config {
	c.Provider = c.Provider.WithDefaults()
	c.Schedule = c.Schedule.WithDefaults()
	c.Redis = c.Redis.WithDefaults()
	c.Strategy = c.Strategy.WithDefaults()
	if c.Binance.PaperBalance <= 0 {
		c.Binance.PaperBalance = 10000
	}
	return c
}
