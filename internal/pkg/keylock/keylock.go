// Package keylock provides per-key mutual exclusion inside one process.
package keylock

import (
	"context"
	"sort"
	"sync"
)

// KeyLock holds a one-slot channel per key while the key is locked. Keys
// are acquired in sorted order so two callers locking overlapping sets
// cannot deadlock.
type KeyLock struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func New() *KeyLock { return &KeyLock{slots: make(map[string]*slot)} }

// Lock acquires every key or none. It honours ctx cancellation while
// waiting.
func (l *KeyLock) Lock(ctx context.Context, keys ...string) (func(), error) {
	ks := normalize(keys)
	held := make([]string, 0, len(ks))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}
	for _, k := range ks {
		if err := l.lock(ctx, k); err != nil {
			release()
			return nil, err
		}
		held = append(held, k)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *KeyLock) lock(ctx context.Context, key string) error {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, s)
		return ctx.Err()
	}
}

func (l *KeyLock) unlock(key string) {
	l.mu.Lock()
	s := l.slots[key]
	l.mu.Unlock()
	<-s.ch
	l.release(key, s)
}

// release drops one reference and forgets idle keys.
func (l *KeyLock) release(key string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// Len returns the number of keys currently locked or waited on.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
