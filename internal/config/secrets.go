package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// SecretsEnv 通过环境变量覆盖的敏感配置
type SecretsEnv struct {
	BinanceAPIKey     string `env:"BINANCE_API_KEY"`
	BinanceSecret     string `env:"BINANCE_SECRET"`
	TelegramToken     string `env:"TELEGRAM_TOKEN"`
	TelegramChatID    string `env:"TELEGRAM_CHAT_ID"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	OperatorTokenHash string `env:"OPERATOR_TOKEN_HASH"`
}

// LoadDotEnv 加载 .env 文件，文件不存在时忽略
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ApplySecrets 用环境变量中的非空值覆盖配置
func (c *Config) ApplySecrets() error {
	var s SecretsEnv
	if err := env.Parse(&s); err != nil {
		return err
	}
	overlay(&c.Binance.APIKey, s.BinanceAPIKey)
	overlay(&c.Binance.Secret, s.BinanceSecret)
	overlay(&c.Telegram.Token, s.TelegramToken)
	overlay(&c.Telegram.ChatID, s.TelegramChatID)
	overlay(&c.Redis.Password, s.RedisPassword)
	overlay(&c.Operator.TokenHash, s.OperatorTokenHash)
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
