package service

import (
	"context"
	"encoding/json"

	"github.com/dushixiang/copyrank/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSink 把事件发布到 redis 频道，供进程外的跟单策略订阅
type RedisSink struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisSink(conf config.RedisConf, logger *zap.Logger) *RedisSink {
	conf = conf.WithDefaults()
	return &RedisSink{
		client: redis.NewClient(&redis.Options{
			Addr:     conf.Addr,
			Password: conf.Password,
			DB:       conf.DB,
		}),
		channel: conf.Channel,
		logger:  logger,
	}
}

// Ping 启动时检查连接
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Handle 作为 EventBus 订阅者使用
func (s *RedisSink) Handle(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	receivers, err := s.client.Publish(ctx, s.channel, payload).Result()
	if err != nil {
		return err
	}
	s.logger.Debug("event published to redis",
		zap.String("channel", s.channel),
		zap.String("type", event.Type),
		zap.Int64("receivers", receivers))
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
