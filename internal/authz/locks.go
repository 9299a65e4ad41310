package authz

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go-sysadmin/internal/metrics"
)

// 键集合在持锁后仍在变化时的最大重试次数
const maxLockRetries = 5

func entityKey(kind string, id int64) string { return kind + ":" + strconv.FormatInt(id, 10) }

// acquire 取变更涉及的实体锁；locker 为 nil 时由调用方自行串行
func acquire(ctx context.Context, l Locker, keys ...string) (func(), error) {
	if l == nil || len(keys) == 0 {
		return func() {}, nil
	}
	start := time.Now()
	unlock, err := l.Lock(ctx, keys...)
	metrics.AuthzLockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

// acquireCovering 锁住 keysOf 依据当前树算出的键。
// 计算与加锁之间树可能被其他变更改动，持锁后重算一次，
// 新集合未被已持有的键覆盖时放锁并以并集重试。
func acquireCovering(ctx context.Context, l Locker, keysOf func() []string) (func(), error) {
	keys := keysOf()
	for i := 0; i < maxLockRetries; i++ {
		unlock, err := acquire(ctx, l, keys...)
		if err != nil {
			return nil, err
		}
		now := keysOf()
		if covers(keys, now) {
			return unlock, nil
		}
		unlock()
		keys = append(keys, now...)
	}
	return nil, fmt.Errorf("lock set %v still changing after %d attempts", keys, maxLockRetries)
}

func covers(held, want []string) bool {
	set := make(map[string]struct{}, len(held))
	for _, k := range held {
		set[k] = struct{}{}
	}
	for _, k := range want {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

// pathKeys 节点自身及其全部祖先。
// 祖先链上任何一次移动都会锁住本节点，持有这些键期间该链不变。
func pathKeys[T any](t *Tree[T], id int64) []string {
	keys := []string{entityKey(t.Kind(), id)}
	for _, a := range t.Ancestors(id) {
		keys = append(keys, entityKey(t.Kind(), a))
	}
	return keys
}

// moveKeys 被移动的整棵子树，加上新父节点及其祖先链
func moveKeys[T any](t *Tree[T], id, parentID int64) func() []string {
	return func() []string {
		keys := append(pathKeys(t, parentID), entityKey(t.Kind(), id))
		for _, d := range t.Subtree(id) {
			keys = append(keys, entityKey(t.Kind(), d))
		}
		return keys
	}
}

func createKeys[T any](t *Tree[T], parentID int64) func() []string {
	return func() []string { return pathKeys(t, parentID) }
}
