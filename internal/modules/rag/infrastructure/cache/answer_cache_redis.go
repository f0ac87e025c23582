package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"RAGBot/internal/modules/rag/domain/repository"
	"RAGBot/pkg/redis"
	"RAGBot/pkg/util"
)

const (
	keyPrefix  = "ragbot:answer:"
	genPrefix  = "ragbot:gen:"
	epochKey   = "ragbot:epoch"
	defaultTTL = 10 * time.Minute
)

// kv 只依赖缓存用到的 Redis 命令，便于测试替换
type kv interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

var _ kv = (*redis.Client)(nil)

// RedisAnswerCache 问答缓存
//
// key 由全局 epoch、租户 generation 与问题哈希组成：
//
//	ragbot:answer:{epoch}:{user_id}:{gen}:{sha256(question)}
//
// 租户上传/删除时自增 generation，整库删除时自增 epoch，旧 key 随 TTL 自然过期
type RedisAnswerCache struct {
	kv  kv
	ttl time.Duration
}

var _ repository.AnswerCache = (*RedisAnswerCache)(nil)

func NewRedisAnswerCache(c kv, ttl time.Duration) *RedisAnswerCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisAnswerCache{kv: c, ttl: ttl}
}

func (c *RedisAnswerCache) counter(ctx context.Context, key string) (int64, error) {
	s, err := c.kv.Get(ctx, key)
	if errors.Is(err, redis.ErrNil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func (c *RedisAnswerCache) answerKey(ctx context.Context, userID, question string) (string, error) {
	epoch, err := c.counter(ctx, epochKey)
	if err != nil {
		return "", err
	}
	gen, err := c.counter(ctx, genPrefix+userID)
	if err != nil {
		return "", err
	}
	q := strings.ToLower(strings.TrimSpace(question))
	return fmt.Sprintf("%s%d:%s:%d:%s", keyPrefix, epoch, userID, gen, util.SHA256Hex([]byte(q))), nil
}

func (c *RedisAnswerCache) Get(ctx context.Context, userID, question string) (*repository.CachedAnswer, bool, error) {
	key, err := c.answerKey(ctx, userID, question)
	if err != nil {
		return nil, false, err
	}
	s, err := c.kv.Get(ctx, key)
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ans repository.CachedAnswer
	if err := json.Unmarshal([]byte(s), &ans); err != nil {
		return nil, false, fmt.Errorf("decode cached answer: %w", err)
	}
	return &ans, true, nil
}

func (c *RedisAnswerCache) Put(ctx context.Context, userID, question string, ans *repository.CachedAnswer) error {
	if ans == nil {
		return nil
	}
	key, err := c.answerKey(ctx, userID, question)
	if err != nil {
		return err
	}
	bs, err := json.Marshal(ans)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, key, string(bs), c.ttl)
}

func (c *RedisAnswerCache) InvalidateUser(ctx context.Context, userID string) error {
	_, err := c.kv.Incr(ctx, genPrefix+userID)
	return err
}

func (c *RedisAnswerCache) InvalidateAll(ctx context.Context) error {
	_, err := c.kv.Incr(ctx, epochKey)
	return err
}
