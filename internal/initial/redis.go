package initial

import (
	"context"
	"fmt"

	"RAGBot/internal/config"
	"RAGBot/pkg/redis"
	"RAGBot/pkg/zlog"
)

// NewRedisClient 未配置主机时返回 (nil, nil)
func NewRedisClient(ctx context.Context, conf *config.Config) (*redis.Client, error) {
	rc := conf.RedisConfig
	if rc.Host == "" {
		zlog.Info("Redis 未配置，跳过初始化")
		return nil, nil
	}
	zlog.Info(fmt.Sprintf("Redis connecting: %s:%d", rc.Host, rc.Port))
	cli, err := redis.NewClient(ctx, redis.Options{
		Host:         rc.Host,
		Port:         rc.Port,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
	})
	if err != nil {
		return nil, err
	}
	zlog.Info("Redis 连接成功")
	return cli, nil
}
