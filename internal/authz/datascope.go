package authz

import (
	"context"
	"time"

	"go-sysadmin/internal/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ScopeKind 数据权限过滤类型
type ScopeKind uint8

const (
	ScopeOwnerOnly ScopeKind = iota + 1
	ScopeDeptIDs
	ScopeUnrestricted
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeOwnerOnly:
		return "owner_only"
	case ScopeDeptIDs:
		return "dept_ids"
	case ScopeUnrestricted:
		return "unrestricted"
	}
	return "unknown"
}

// Scope 编译后的行级过滤条件
type Scope struct {
	Kind    ScopeKind `json:"kind"`
	DeptIDs []int64   `json:"dept_ids,omitempty"`
	OwnerID int64     `json:"owner_id,omitempty"`
}

func Unrestricted() Scope { return Scope{Kind: ScopeUnrestricted} }

// DeptIDs 空集合不匹配任何行
func DeptIDs(ids ...int64) Scope { return Scope{Kind: ScopeDeptIDs, DeptIDs: dedupe(ids)} }

func OwnerOnly(uid int64) Scope { return Scope{Kind: ScopeOwnerOnly, OwnerID: uid} }

// Allows 对单行求值
func (s Scope) Allows(deptID, ownerID int64) bool {
	switch s.Kind {
	case ScopeUnrestricted:
		return true
	case ScopeDeptIDs:
		for _, id := range s.DeptIDs {
			if id == deptID {
				return true
			}
		}
		return false
	default:
		return ownerID == s.OwnerID
	}
}

// DataScopeCompiler 把用户角色编译为 Scope。
// 取最宽的范围；只有多个 CUSTOM 角色之间取并集。
type DataScopeCompiler struct {
	depts *Tree[DeptAttrs]
	graph *RoleGraph
	roles *RoleManager
	users UserStore
	admin *superAdmin

	cache *expirable.LRU[int64, Scope]
	gens  *generations
	log   *zap.Logger
}

func newDataScopeCompiler(depts *Tree[DeptAttrs], graph *RoleGraph, roles *RoleManager, users UserStore, admin *superAdmin, size int, ttl time.Duration, log *zap.Logger) *DataScopeCompiler {
	if size <= 0 {
		size = 4096
	}
	return &DataScopeCompiler{
		depts: depts, graph: graph, roles: roles, users: users, admin: admin,
		cache: expirable.NewLRU[int64, Scope](size, nil, ttl),
		gens:  newGenerations(),
		log:   log,
	}
}

func (c *DataScopeCompiler) ScopeOf(ctx context.Context, uid int64) Scope {
	ctx, span := otel.Tracer("authz.datascope").Start(ctx, "DataScopeCompiler.ScopeOf", trace.WithAttributes(attribute.Int64("user_id", uid)))
	defer span.End()
	if c.admin.is(uid) {
		metrics.ScopeResolveTotal.WithLabelValues("bypass").Inc()
		return Unrestricted()
	}
	if s, ok := c.cache.Get(uid); ok {
		metrics.ScopeResolveTotal.WithLabelValues("hit").Inc()
		return s
	}
	st := c.gens.snapshot(uid)
	s, cacheable := c.compile(ctx, uid)
	if cacheable {
		c.gens.storeIfCurrent(uid, st, func() { c.cache.Add(uid, s) })
	}
	metrics.ScopeResolveTotal.WithLabelValues(s.Kind.String()).Inc()
	span.SetAttributes(attribute.String("scope", s.Kind.String()))
	return s
}

func (c *DataScopeCompiler) compile(ctx context.Context, uid int64) (Scope, bool) {
	var best DataScope
	var custom []int64
	for _, rid := range c.graph.RolesOf(uid) {
		r, ok := c.roles.Get(rid)
		if !ok {
			continue
		}
		if r.DataScope.rank() > best.rank() {
			best = r.DataScope
		}
		if r.DataScope == DataScopeCustom {
			custom = append(custom, rid)
		}
	}
	switch best {
	case DataScopeAll:
		return Unrestricted(), true
	case DataScopeDept, DataScopeDeptAndChild:
		deptID, ok, err := c.users.UserDept(ctx, uid)
		if err != nil {
			c.log.Warn("scope_user_dept_failed", zap.Int64("user_id", uid), zap.Error(err))
			return OwnerOnly(uid), false
		}
		if !ok || !c.depts.Contains(deptID) {
			return OwnerOnly(uid), true
		}
		if best == DataScopeDept {
			return DeptIDs(deptID), true
		}
		return DeptIDs(c.depts.Subtree(deptID)...), true
	case DataScopeCustom:
		var ids []int64
		for _, rid := range custom {
			for _, d := range c.graph.DeptsOf(rid) {
				ids = append(ids, c.depts.Subtree(d)...)
			}
		}
		return DeptIDs(ids...), true
	default:
		return OwnerOnly(uid), true
	}
}

// Invalidate implements Listener.
func (c *DataScopeCompiler) Invalidate(_ context.Context, inv Invalidation) {
	if inv.AllScopes {
		c.gens.bumpAll(c.cache.Purge)
		metrics.ScopeInvalidateTotal.WithLabelValues("all").Inc()
		return
	}
	if len(inv.ScopeUsers) == 0 {
		return
	}
	c.gens.bump(inv.ScopeUsers, func(uid int64) { c.cache.Remove(uid) })
	metrics.ScopeInvalidateTotal.WithLabelValues("users").Inc()
}
