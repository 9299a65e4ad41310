package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go-sysadmin/internal/metrics"
	"go-sysadmin/internal/pkg/cache"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Permissions 用户权限码集合 + 可访问菜单集合（均已排序去重）
type Permissions struct {
	Codes   []string `json:"codes"`
	MenuIDs []int64  `json:"menu_ids"`
}

// Has 直接授予或持有 AllPermission 均视为有权限
func (p Permissions) Has(code string) bool {
	i := sort.SearchStrings(p.Codes, code)
	if i < len(p.Codes) && p.Codes[i] == code {
		return true
	}
	i = sort.SearchStrings(p.Codes, AllPermission)
	return i < len(p.Codes) && p.Codes[i] == AllPermission
}

func (p Permissions) Empty() bool { return len(p.Codes) == 0 && len(p.MenuIDs) == 0 }

func emptyPermissions() Permissions { return Permissions{Codes: []string{}, MenuIDs: []int64{}} }

// PermissionResolver 由角色关系和菜单树计算用户权限码与可访问菜单。
// 结果按用户缓存，失效时逐个删除，下次读取再计算。
type PermissionResolver struct {
	menus *Tree[MenuAttrs]
	graph *RoleGraph
	admin *superAdmin

	cache    cache.Cache
	prefix   string
	ttl      time.Duration
	emptyTTL time.Duration

	gens   *generations
	flight singleflight.Group
	log    *zap.Logger
}

func (r *PermissionResolver) tracer() trace.Tracer { return otel.Tracer("authz.permission") }

func (r *PermissionResolver) key(uid int64) string { return r.prefix + strconv.FormatInt(uid, 10) }

// PermissionsOf 不返回错误，未知或未分配角色的用户得到空集合
func (r *PermissionResolver) PermissionsOf(ctx context.Context, uid int64) Permissions {
	ctx, span := r.tracer().Start(ctx, "PermissionResolver.PermissionsOf", trace.WithAttributes(attribute.Int64("user_id", uid)))
	defer span.End()
	if r.admin.is(uid) {
		metrics.PermissionCacheTotal.WithLabelValues("bypass").Inc()
		return r.everything()
	}
	key := r.key(uid)
	if p, ok := r.lookup(ctx, key); ok {
		metrics.PermissionCacheTotal.WithLabelValues("hit").Inc()
		return p
	}
	metrics.PermissionCacheTotal.WithLabelValues("miss").Inc()
	st := r.gens.snapshot(uid)
	// 失效之后到达的请求不能复用之前的 singleflight
	flightKey := fmt.Sprintf("%s@%d.%d", key, st.epoch, st.user)
	v, _, _ := r.flight.Do(flightKey, func() (any, error) {
		p := r.compute(uid)
		storeCtx := context.WithoutCancel(ctx)
		if !r.gens.storeIfCurrent(uid, st, func() { r.store(storeCtx, key, p) }) {
			span.AddEvent("store_skipped_stale")
		}
		return p, nil
	})
	return v.(Permissions)
}

func (r *PermissionResolver) HasPermission(ctx context.Context, uid int64, code string) bool {
	if r.admin.is(uid) {
		return true
	}
	return r.PermissionsOf(ctx, uid).Has(code)
}

func (r *PermissionResolver) HasAnyPermission(ctx context.Context, uid int64, codes ...string) bool {
	if r.admin.is(uid) {
		return true
	}
	p := r.PermissionsOf(ctx, uid)
	for _, c := range codes {
		if p.Has(c) {
			return true
		}
	}
	return false
}

// RoleCodes 用户角色编码，已排序
func (r *PermissionResolver) RoleCodes(uid int64) []string {
	out := []string{}
	for _, rid := range r.graph.RolesOf(uid) {
		if role, ok := r.admin.roles.Get(rid); ok {
			out = append(out, role.Code)
		}
	}
	sort.Strings(out)
	return out
}

// Invalidate implements Listener.
func (r *PermissionResolver) Invalidate(ctx context.Context, inv Invalidation) {
	if len(inv.PermissionUsers) == 0 {
		return
	}
	ctx, span := r.tracer().Start(ctx, "PermissionResolver.Invalidate")
	defer span.End()
	delCtx := context.WithoutCancel(ctx)
	r.gens.bump(inv.PermissionUsers, func(uid int64) {
		if err := r.cache.Del(delCtx, r.key(uid)); err != nil {
			r.log.Warn("permission_cache_del_failed", zap.Int64("user_id", uid), zap.Error(err))
		}
	})
	metrics.PermissionInvalidateTotal.WithLabelValues(inv.Source).Inc()
	metrics.PermissionInvalidateUsersTotal.Add(float64(len(inv.PermissionUsers)))
}

func (r *PermissionResolver) compute(uid int64) Permissions {
	roleIDs, menuIDs := r.graph.grantsOf(uid)
	if len(roleIDs) == 0 {
		return emptyPermissions()
	}
	codes := make(map[string]struct{})
	ids := make([]int64, 0, len(menuIDs))
	for _, mid := range menuIDs {
		n, ok := r.menus.Get(mid)
		if !ok || !r.menus.EffectivelyEnabled(mid) {
			continue
		}
		ids = append(ids, mid)
		if n.Attrs.Permission != "" {
			codes[n.Attrs.Permission] = struct{}{}
		}
	}
	return Permissions{Codes: sortedCodes(codes), MenuIDs: ids}
}

// everything 超级管理员视图：全部权限码和全部启用菜单
func (r *PermissionResolver) everything() Permissions {
	codes := make(map[string]struct{})
	ids := []int64{}
	for _, n := range r.menus.Nodes() {
		if n.Attrs.Permission != "" {
			codes[n.Attrs.Permission] = struct{}{}
		}
		if r.menus.EffectivelyEnabled(n.ID) {
			ids = append(ids, n.ID)
		}
	}
	return Permissions{Codes: sortedCodes(codes), MenuIDs: ids}
}

func (r *PermissionResolver) lookup(ctx context.Context, key string) (Permissions, bool) {
	v, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log.Warn("permission_cache_get_failed", zap.String("key", key), zap.Error(err))
		return Permissions{}, false
	}
	if v == "" {
		return Permissions{}, false
	}
	if cache.IsNilSentinel(v) {
		metrics.CacheNilHit.Inc()
		return emptyPermissions(), true
	}
	var p Permissions
	if err := json.Unmarshal([]byte(v), &p); err != nil {
		return Permissions{}, false
	}
	if p.Codes == nil {
		p.Codes = []string{}
	}
	if p.MenuIDs == nil {
		p.MenuIDs = []int64{}
	}
	return p, true
}

func (r *PermissionResolver) store(ctx context.Context, key string, p Permissions) {
	var err error
	if p.Empty() {
		err = r.cache.SetEX(ctx, key, cache.WrapNil(true), cache.JitterTTL(r.emptyTTL))
	} else if b, mErr := json.Marshal(p); mErr == nil {
		err = r.cache.SetEX(ctx, key, string(b), cache.JitterTTL(r.ttl))
	}
	if err != nil {
		r.log.Warn("permission_cache_set_failed", zap.String("key", key), zap.Error(err))
	}
}

func sortedCodes(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// superAdmin 配置的用户 id，或持有超级管理员角色编码的用户
type superAdmin struct {
	userID   int64
	roleCode string
	graph    *RoleGraph
	roles    *RoleManager
}

func (s *superAdmin) is(uid int64) bool {
	if s.userID > 0 && uid == s.userID {
		return true
	}
	if s.roleCode == "" {
		return false
	}
	for _, rid := range s.graph.RolesOf(uid) {
		if r, ok := s.roles.Get(rid); ok && r.Code == s.roleCode {
			return true
		}
	}
	return false
}
