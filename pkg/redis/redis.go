package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNil key 不存在
var ErrNil = goredis.Nil

// Options Redis 连接参数
type Options struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// Client go-redis 的薄封装，只暴露缓存需要的操作
type Client struct {
	c *goredis.Client
}

// NewClient 建立连接并 Ping 校验
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, errors.New("redis host is empty")
	}
	port := opts.Port
	if port == 0 {
		port = 6379
	}
	c := goredis.NewClient(&goredis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, port),
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{c: c}, nil
}

// Close 关闭 Redis 连接
func (r *Client) Close() error {
	if r == nil || r.c == nil {
		return nil
	}
	return r.c.Close()
}

// Get 获取字符串值，不存在时返回 ErrNil
func (r *Client) Get(ctx context.Context, key string) (string, error) {
	return r.c.Get(ctx, key).Result()
}

// Set 设置字符串值
func (r *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.c.Set(ctx, key, value, expiration).Err()
}

// Incr 原子自增
func (r *Client) Incr(ctx context.Context, key string) (int64, error) {
	return r.c.Incr(ctx, key).Result()
}

// Del 删除 key
func (r *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return r.c.Del(ctx, keys...).Result()
}
