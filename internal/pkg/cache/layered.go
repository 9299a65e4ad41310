package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// LayeredCache 组合 L1 (本地) + L2 (远程) 两层，遵循 Cache 接口
// 读：L1 -> L2 (回填 L1) -> miss
// 写/删：两层都写/删，L2 错误返回给调用方
// L1 的 TTL 上限为 L1MaxTTL，限制对端实例失效消息丢失时的脏读窗口

type LayeredCache struct {
	L1 Cache
	L2 Cache

	L1MaxTTL time.Duration

	hitsL1     uint64
	hitsL2     uint64
	miss       uint64
	setOps     uint64
	delOps     uint64
	backfillL1 uint64
	l2Errors   uint64
	reqTotal   uint64
}

type LayeredMetrics struct {
	HitsL1     uint64  `json:"hits_l1"`
	HitsL2     uint64  `json:"hits_l2"`
	Miss       uint64  `json:"miss"`
	SetOps     uint64  `json:"set_ops"`
	DelOps     uint64  `json:"del_ops"`
	BackfillL1 uint64  `json:"backfill_l1"`
	L2Errors   uint64  `json:"l2_errors"`
	ReqTotal   uint64  `json:"req_total"`
	HitRate    float64 `json:"hit_rate"`
}

func (m LayeredMetrics) computeHitRate() LayeredMetrics {
	total := m.HitsL1 + m.HitsL2 + m.Miss
	if total > 0 {
		m.HitRate = float64(m.HitsL1+m.HitsL2) / float64(total)
	}
	return m
}

func NewLayered(l1, l2 Cache) *LayeredCache {
	return &LayeredCache{L1: l1, L2: l2, L1MaxTTL: time.Minute}
}

func (c *LayeredCache) l1TTL(ttl time.Duration) time.Duration {
	if c.L1MaxTTL > 0 && (ttl <= 0 || ttl > c.L1MaxTTL) {
		return c.L1MaxTTL
	}
	return ttl
}

func (c *LayeredCache) Get(ctx context.Context, key string) (string, error) {
	atomic.AddUint64(&c.reqTotal, 1)
	if c.L1 != nil {
		if v, _ := c.L1.Get(ctx, key); v != "" {
			atomic.AddUint64(&c.hitsL1, 1)
			return v, nil
		}
	}
	if c.L2 != nil {
		v, err := c.L2.Get(ctx, key)
		if err != nil {
			atomic.AddUint64(&c.l2Errors, 1)
			atomic.AddUint64(&c.miss, 1)
			return "", err
		}
		if v != "" {
			atomic.AddUint64(&c.hitsL2, 1)
			if c.L1 != nil {
				ttl := 30 * time.Second // 默认兜底
				if tf, ok := c.L2.(TTLFetcher); ok {
					if d, ok2 := tf.RemainingTTL(ctx, key); ok2 && d > 0 {
						ttl = d
					}
				}
				_ = c.L1.SetEX(ctx, key, v, c.l1TTL(ttl))
				atomic.AddUint64(&c.backfillL1, 1)
			}
			return v, nil
		}
	}
	atomic.AddUint64(&c.miss, 1)
	return "", nil
}

func (c *LayeredCache) SetEX(ctx context.Context, key, val string, ttl time.Duration) error {
	atomic.AddUint64(&c.setOps, 1)
	if c.L1 != nil {
		_ = c.L1.SetEX(ctx, key, val, c.l1TTL(ttl))
	}
	if c.L2 != nil {
		if err := c.L2.SetEX(ctx, key, val, ttl); err != nil {
			atomic.AddUint64(&c.l2Errors, 1)
			return err
		}
	}
	return nil
}

func (c *LayeredCache) Del(ctx context.Context, keys ...string) error {
	atomic.AddUint64(&c.delOps, 1)
	if c.L1 != nil {
		_ = c.L1.Del(ctx, keys...)
	}
	if c.L2 != nil {
		if err := c.L2.Del(ctx, keys...); err != nil {
			atomic.AddUint64(&c.l2Errors, 1)
			return err
		}
	}
	return nil
}

func (c *LayeredCache) SnapshotMetrics() LayeredMetrics {
	m := LayeredMetrics{
		HitsL1:     atomic.LoadUint64(&c.hitsL1),
		HitsL2:     atomic.LoadUint64(&c.hitsL2),
		Miss:       atomic.LoadUint64(&c.miss),
		SetOps:     atomic.LoadUint64(&c.setOps),
		DelOps:     atomic.LoadUint64(&c.delOps),
		BackfillL1: atomic.LoadUint64(&c.backfillL1),
		L2Errors:   atomic.LoadUint64(&c.l2Errors),
		ReqTotal:   atomic.LoadUint64(&c.reqTotal),
	}
	return m.computeHitRate()
}
