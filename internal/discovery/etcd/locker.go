package etcd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

// Locker 基于 etcd concurrency.Mutex 的跨实例实体锁，实现 authz.Locker。
// 所有 key 共享一个租约会话；会话失效后下一次 Lock 重建。
type Locker struct {
	cli    *Client
	prefix string
	ttl    int
	log    *zap.Logger

	mu      sync.Mutex
	session *concurrency.Session
}

func NewLocker(cli *Client, prefix string, ttl int, log *zap.Logger) *Locker {
	if prefix == "" {
		prefix = "/locks/sysadmin"
	}
	if ttl <= 0 {
		ttl = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Locker{cli: cli, prefix: strings.TrimRight(prefix, "/"), ttl: ttl, log: log}
}

func (l *Locker) currentSession() (*concurrency.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session != nil {
		select {
		case <-l.session.Done():
			l.log.Warn("etcd_lock_session_expired")
			l.session = nil
		default:
			return l.session, nil
		}
	}
	s, err := concurrency.NewSession(l.cli.Client, concurrency.WithTTL(l.ttl))
	if err != nil {
		return nil, fmt.Errorf("etcd lock session: %w", err)
	}
	l.session = s
	return s, nil
}

// Lock acquires every key in sorted order; on failure the keys already held
// are released before returning.
func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	s, err := l.currentSession()
	if err != nil {
		return nil, err
	}
	keys = normalize(keys)
	held := make([]*concurrency.Mutex, 0, len(keys))
	release := func() {
		// 释放使用独立 ctx，调用方 ctx 可能已取消
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Unlock(context.Background()); err != nil {
				l.log.Warn("etcd_unlock_failed", zap.String("key", held[i].Key()), zap.Error(err))
			}
		}
	}
	for _, k := range keys {
		m := concurrency.NewMutex(s, l.prefix+"/"+k)
		if err := m.Lock(ctx); err != nil {
			release()
			return nil, fmt.Errorf("etcd lock %s: %w", k, err)
		}
		held = append(held, m)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Close revokes the session lease, dropping any lock still held.
func (l *Locker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return nil
	}
	err := l.session.Close()
	l.session = nil
	return err
}

func normalize(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
