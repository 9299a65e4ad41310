package cache

import (
	"context"
	"time"

	redisrepo "go-sysadmin/internal/repository/redis"
)

// RedisAdapter 实现 Cache 接口，包装 redis 客户端
// value 已是 string（上层已 JSON 序列化）；附带 TTL 透传能力
type RedisAdapter struct{ c *redisrepo.Client }

func NewRedisAdapter(c *redisrepo.Client) *RedisAdapter { return &RedisAdapter{c: c} }

func (r *RedisAdapter) Get(ctx context.Context, key string) (string, error) {
	return r.c.Get(ctx, key)
}

func (r *RedisAdapter) SetEX(ctx context.Context, key, val string, ttl time.Duration) error {
	return r.c.SetTTL(ctx, key, val, ttl)
}

func (r *RedisAdapter) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...)
}

// RemainingTTL 实现 TTLFetcher
// go-redis TTL: -2 key 不存在; -1 无过期; 正常 >0
func (r *RedisAdapter) RemainingTTL(ctx context.Context, key string) (time.Duration, bool) {
	res := r.c.Client.TTL(ctx, key)
	if err := res.Err(); err != nil {
		return 0, false
	}
	d := res.Val()
	if d <= 0 {
		return 0, false
	}
	return d, true
}
