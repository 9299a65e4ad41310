package cache

import (
	"context"
	"math/rand/v2"
	"time"
)

// Cache 统一缓存接口，value 统一为 string（JSON 编解码在业务侧处理）
// Get 未命中返回 ("", nil)；err 仅表示后端故障。
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetEX(ctx context.Context, key, val string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// TTLFetcher 可选接口：返回剩余 TTL，供 LayeredCache 回填 L1 时透传
type TTLFetcher interface {
	RemainingTTL(ctx context.Context, key string) (time.Duration, bool)
}

// nilSentinel 空结果占位，防缓存穿透
const nilSentinel = "__nil__"

// WrapNil 返回空结果占位值；empty=false 时返回空串（不缓存）
func WrapNil(empty bool) string {
	if empty {
		return nilSentinel
	}
	return ""
}

func IsNilSentinel(v string) bool { return v == nilSentinel }

// JitterTTL 在 ttl 基础上随机增加 0~10%，避免同批 key 同时过期
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	spread := int64(ttl) / 10
	if spread <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int64N(spread))
}
