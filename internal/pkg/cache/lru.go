package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUAdapter 进程内 L1：容量有界的 LRU，条目各自带过期时间。
// 过期条目在读取时惰性淘汰。
type LRUAdapter struct {
	mu sync.Mutex
	c  *lru.Cache[string, lruEntry]
}

type lruEntry struct {
	val string
	exp time.Time
}

func (e lruEntry) expired(now time.Time) bool { return !e.exp.IsZero() && now.After(e.exp) }

// NewLRUAdapter size<=0 时使用 1024
func NewLRUAdapter(size int) *LRUAdapter {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, lruEntry](size)
	return &LRUAdapter{c: c}
}

func (a *LRUAdapter) Get(_ context.Context, key string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.c.Get(key)
	if !ok {
		return "", nil
	}
	if e.expired(time.Now()) {
		a.c.Remove(key)
		return "", nil
	}
	return e.val, nil
}

func (a *LRUAdapter) SetEX(_ context.Context, key, val string, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	a.mu.Lock()
	a.c.Add(key, lruEntry{val: val, exp: exp})
	a.mu.Unlock()
	return nil
}

func (a *LRUAdapter) Del(_ context.Context, keys ...string) error {
	a.mu.Lock()
	for _, k := range keys {
		a.c.Remove(k)
	}
	a.mu.Unlock()
	return nil
}

// RemainingTTL 实现 TTLFetcher；无过期时间或不存在返回 false
func (a *LRUAdapter) RemainingTTL(_ context.Context, key string) (time.Duration, bool) {
	a.mu.Lock()
	e, ok := a.c.Peek(key)
	a.mu.Unlock()
	if !ok || e.exp.IsZero() {
		return 0, false
	}
	d := time.Until(e.exp)
	return d, d > 0
}

func (a *LRUAdapter) Len() int { return a.c.Len() }

// Purge 清空本地缓存（对端实例全量重载后使用）
func (a *LRUAdapter) Purge() { a.c.Purge() }
