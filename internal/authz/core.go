package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-sysadmin/internal/pkg/cache"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Options 授权核心配置；零值可用（本地 LRU 缓存、无实体锁）
type Options struct {
	Locker Locker
	// LockTimeout 加锁等待上限，0 表示等到 ctx 结束
	LockTimeout time.Duration
	// PermissionCache 为 nil 时使用进程内 LRU
	PermissionCache       cache.Cache
	PermissionCachePrefix string
	PermissionTTL         time.Duration
	EmptyPermissionTTL    time.Duration
	ScopeCacheSize        int
	ScopeTTL              time.Duration
	SuperAdminUserID      int64
	SuperAdminRoleCode    string
	Logger                *zap.Logger
}

func (o *Options) withDefaults() {
	if o.PermissionCache == nil {
		o.PermissionCache = cache.NewLRUAdapter(4096)
	}
	if o.PermissionCachePrefix == "" {
		o.PermissionCachePrefix = "authz:perm:"
	}
	if o.PermissionTTL <= 0 {
		o.PermissionTTL = 30 * time.Minute
	}
	if o.EmptyPermissionTTL <= 0 {
		o.EmptyPermissionTTL = time.Minute
	}
	if o.ScopeTTL <= 0 {
		o.ScopeTTL = 10 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Core 围绕同一个 Store 组装菜单树、部门树、角色关系、各 Guard 与解析器
type Core struct {
	MenuTree *Tree[MenuAttrs]
	DeptTree *Tree[DeptAttrs]

	Menus    *MenuGuard
	Depts    *DeptGuard
	Graph    *RoleGraph
	Roles    *RoleManager
	Users    *UserManager
	Resolver *PermissionResolver
	Scopes   *DataScopeCompiler
	Signals  *Signals

	store Store
	gate  *sync.RWMutex
	admin *superAdmin
	log   *zap.Logger
}

func New(store Store, opts Options) *Core {
	opts.withDefaults()
	log := opts.Logger
	gate := &sync.RWMutex{}
	locker := gatedLocker{inner: opts.Locker, gate: gate, timeout: opts.LockTimeout}
	signals := NewSignals()

	menus := NewTree[MenuAttrs]("menu", false)
	depts := NewTree[DeptAttrs]("dept", true)
	graph := newRoleGraph(store, store, locker, signals, log)
	roles := newRoleManager(store, locker, signals, graph, log)
	graph.roles, graph.menus, graph.depts = roles, menus, depts
	admin := &superAdmin{userID: opts.SuperAdminUserID, roleCode: opts.SuperAdminRoleCode, graph: graph, roles: roles}

	c := &Core{
		MenuTree: menus,
		DeptTree: depts,
		Menus:    &MenuGuard{tree: menus, store: store, graph: graph, locker: locker, signals: signals, log: log},
		Depts:    &DeptGuard{tree: depts, store: store, users: store, graph: graph, locker: locker, signals: signals, log: log},
		Graph:    graph,
		Roles:    roles,
		Users:    &UserManager{store: store, depts: depts, graph: graph, locker: locker, signals: signals, log: log},
		Resolver: &PermissionResolver{
			menus: menus, graph: graph, admin: admin,
			cache: opts.PermissionCache, prefix: opts.PermissionCachePrefix,
			ttl: opts.PermissionTTL, emptyTTL: opts.EmptyPermissionTTL,
			gens: newGenerations(), log: log,
		},
		Scopes:  newDataScopeCompiler(depts, graph, roles, store, admin, opts.ScopeCacheSize, opts.ScopeTTL, log),
		Signals: signals,
		store:   store,
		gate:    gate,
		admin:   admin,
		log:     log,
	}
	signals.Subscribe(c.Resolver)
	signals.Subscribe(c.Scopes)
	return c
}

func (c *Core) IsSuperAdmin(uid int64) bool { return c.admin.is(uid) }

// Load 用持久化快照替换内存状态，期间阻塞所有变更。
// 存储中与父链不一致的部门 ancestors 会被改写。
func (c *Core) Load(ctx context.Context) error {
	ctx, span := otel.Tracer("authz.core").Start(ctx, "Core.Load")
	defer span.End()
	c.gate.Lock()
	defer c.gate.Unlock()
	snap, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load authz snapshot: %w", err)
	}
	if err := c.MenuTree.Reset(snap.Menus); err != nil {
		return fmt.Errorf("menu tree: %w", err)
	}
	if err := c.DeptTree.Reset(snap.Depts); err != nil {
		return fmt.Errorf("dept tree: %w", err)
	}
	c.Roles.reset(snap.Roles)
	c.Graph.reset(snap)
	repaired := 0
	for _, n := range c.DeptTree.Nodes() {
		want := c.DeptTree.AncestorsString(n.ID)
		if got, ok := snap.DeptAncestors[n.ID]; ok && got == want {
			continue
		}
		if err := c.store.UpdateDept(ctx, n, map[int64]string{n.ID: want}); err != nil {
			c.log.Warn("dept_ancestors_repair_failed", zap.Int64("dept_id", n.ID), zap.Error(err))
			continue
		}
		repaired++
	}
	if repaired > 0 {
		c.log.Warn("dept_ancestors_repaired", zap.Int("count", repaired))
	}
	c.log.Info("authz_snapshot_loaded",
		zap.Int("menus", c.MenuTree.Len()),
		zap.Int("depts", c.DeptTree.Len()),
		zap.Int("roles", len(snap.Roles)),
		zap.Int("user_roles", len(snap.UserRoles)),
	)
	return nil
}

// ApplyRemote 其他实例提交变更后重新加载快照，并在本地重放失效
func (c *Core) ApplyRemote(ctx context.Context, inv Invalidation) error {
	err := c.Load(ctx)
	inv.Remote = true
	// 重新加载失败也要清缓存
	c.Signals.Emit(ctx, inv)
	return err
}

// gatedLocker 变更期间持有加载闸门的读锁
type gatedLocker struct {
	inner   Locker
	gate    *sync.RWMutex
	timeout time.Duration
}

func (l gatedLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	l.gate.RLock()
	if l.inner == nil {
		return l.gate.RUnlock, nil
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	unlock, err := l.inner.Lock(ctx, keys...)
	if err != nil {
		l.gate.RUnlock()
		return nil, fmt.Errorf("acquire %v: %w", keys, err)
	}
	return func() {
		unlock()
		l.gate.RUnlock()
	}, nil
}
