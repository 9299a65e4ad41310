package authz

import (
	"context"
	"sync"
)

// Invalidation 一次已提交变更导致失效的缓存范围。
// Remote 表示来自其他实例的重放。
type Invalidation struct {
	Source          string  `json:"source"`
	PermissionUsers []int64 `json:"permission_users,omitempty"`
	ScopeUsers      []int64 `json:"scope_users,omitempty"`
	AllScopes       bool    `json:"all_scopes,omitempty"`
	Remote          bool    `json:"-"`
}

func (i Invalidation) Empty() bool {
	return len(i.PermissionUsers) == 0 && len(i.ScopeUsers) == 0 && !i.AllScopes
}

type Listener interface {
	Invalidate(ctx context.Context, inv Invalidation)
}

type ListenerFunc func(ctx context.Context, inv Invalidation)

func (f ListenerFunc) Invalidate(ctx context.Context, inv Invalidation) { f(ctx, inv) }

// Signals 按订阅顺序把失效分发给每个监听者
type Signals struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewSignals() *Signals { return &Signals{} }

func (s *Signals) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Signals) Emit(ctx context.Context, inv Invalidation) {
	if inv.Empty() {
		return
	}
	s.mu.RLock()
	ls := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range ls {
		l.Invalidate(ctx, inv)
	}
}
