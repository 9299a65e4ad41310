package authz

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// relation 双向索引的去重关联
type relation struct {
	fwd map[int64]map[int64]struct{}
	rev map[int64]map[int64]struct{}
}

func newRelation() relation {
	return relation{fwd: make(map[int64]map[int64]struct{}), rev: make(map[int64]map[int64]struct{})}
}

func (r relation) add(left, right int64) {
	if r.fwd[left] == nil {
		r.fwd[left] = make(map[int64]struct{})
	}
	if r.rev[right] == nil {
		r.rev[right] = make(map[int64]struct{})
	}
	r.fwd[left][right] = struct{}{}
	r.rev[right][left] = struct{}{}
}

func (r relation) replace(left int64, rights []int64) {
	r.purgeLeft(left)
	for _, right := range rights {
		r.add(left, right)
	}
}

func (r relation) purgeLeft(left int64) []int64 {
	rights := sortedKeys(r.fwd[left])
	for _, right := range rights {
		delete(r.rev[right], left)
		if len(r.rev[right]) == 0 {
			delete(r.rev, right)
		}
	}
	delete(r.fwd, left)
	return rights
}

func (r relation) purgeRight(right int64) []int64 {
	lefts := sortedKeys(r.rev[right])
	for _, left := range lefts {
		delete(r.fwd[left], right)
		if len(r.fwd[left]) == 0 {
			delete(r.fwd, left)
		}
	}
	delete(r.rev, right)
	return lefts
}

// RoleGraph 维护 用户-角色、角色-菜单、角色-部门 关联。
// 写入为全量替换，读取不加实体锁。
type RoleGraph struct {
	store   RelationStore
	users   UserStore
	locker  Locker
	signals *Signals
	log     *zap.Logger

	roles interface{ Exists(id int64) bool }
	menus interface{ Contains(id int64) bool }
	depts interface{ Contains(id int64) bool }

	mu        sync.RWMutex
	userRoles relation
	roleMenus relation
	roleDepts relation
}

func newRoleGraph(store RelationStore, users UserStore, locker Locker, signals *Signals, log *zap.Logger) *RoleGraph {
	return &RoleGraph{
		store: store, users: users, locker: locker, signals: signals, log: log,
		userRoles: newRelation(), roleMenus: newRelation(), roleDepts: newRelation(),
	}
}

// AssignRoles 全量替换用户角色
func (g *RoleGraph) AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	ids := dedupe(roleIDs)
	keys := []string{entityKey("user", userID)}
	for _, id := range ids {
		keys = append(keys, entityKey("role", id))
	}
	// 角色锁与角色删除互斥，不会留下悬空关联
	unlock, err := acquire(ctx, g.locker, keys...)
	if err != nil {
		return err
	}
	defer unlock()
	// user 锁与 UserManager.Forget 互斥，校验后用户不会被并发删除
	if _, ok, err := g.users.UserDept(ctx, userID); err != nil {
		return err
	} else if !ok {
		return newError(ErrNotFound, "user", userID, "")
	}
	for _, id := range ids {
		if !g.roles.Exists(id) {
			return newError(ErrNotFound, "role", id, "")
		}
	}
	if err := g.store.ReplaceUserRoles(ctx, userID, ids); err != nil {
		return err
	}
	g.mu.Lock()
	g.userRoles.replace(userID, ids)
	g.mu.Unlock()
	g.log.Info("user_roles_assigned", zap.Int64("user_id", userID), zap.Int64s("role_ids", ids))
	uids := []int64{userID}
	g.signals.Emit(ctx, Invalidation{Source: "user_roles", PermissionUsers: uids, ScopeUsers: uids})
	return nil
}

func (g *RoleGraph) AssignMenus(ctx context.Context, roleID int64, menuIDs []int64) error {
	ids := dedupe(menuIDs)
	unlock, err := acquire(ctx, g.locker, entityKey("role", roleID))
	if err != nil {
		return err
	}
	defer unlock()
	if !g.roles.Exists(roleID) {
		return newError(ErrNotFound, "role", roleID, "")
	}
	for _, id := range ids {
		if !g.menus.Contains(id) {
			return newError(ErrNotFound, "menu", id, "")
		}
	}
	if err := g.store.ReplaceRoleMenus(ctx, roleID, ids); err != nil {
		return err
	}
	g.mu.Lock()
	g.roleMenus.replace(roleID, ids)
	users := sortedKeys(g.userRoles.rev[roleID])
	g.mu.Unlock()
	g.log.Info("role_menus_assigned", zap.Int64("role_id", roleID), zap.Int("menus", len(ids)))
	g.signals.Emit(ctx, Invalidation{Source: "role_menus", PermissionUsers: users})
	return nil
}

// AssignDepts 全量替换 CUSTOM 数据权限部门
func (g *RoleGraph) AssignDepts(ctx context.Context, roleID int64, deptIDs []int64) error {
	ids := dedupe(deptIDs)
	unlock, err := acquire(ctx, g.locker, entityKey("role", roleID))
	if err != nil {
		return err
	}
	defer unlock()
	if !g.roles.Exists(roleID) {
		return newError(ErrNotFound, "role", roleID, "")
	}
	for _, id := range ids {
		if !g.depts.Contains(id) {
			return newError(ErrNotFound, "dept", id, "")
		}
	}
	if err := g.store.ReplaceRoleDepts(ctx, roleID, ids); err != nil {
		return err
	}
	g.mu.Lock()
	g.roleDepts.replace(roleID, ids)
	users := sortedKeys(g.userRoles.rev[roleID])
	g.mu.Unlock()
	g.signals.Emit(ctx, Invalidation{Source: "role_depts", ScopeUsers: users})
	return nil
}

func (g *RoleGraph) RolesOf(userID int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.userRoles.fwd[userID])
}

func (g *RoleGraph) MenusOf(roleID int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.roleMenus.fwd[roleID])
}

func (g *RoleGraph) UsersOf(roleID int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.userRoles.rev[roleID])
}

func (g *RoleGraph) DeptsOf(roleID int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.roleDepts.fwd[roleID])
}

func (g *RoleGraph) UsersOfRoles(roleIDs []int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return unionOf(g.userRoles.rev, roleIDs)
}

// RolesOfMenus is the union of roles referencing any of the menus.
func (g *RoleGraph) RolesOfMenus(menuIDs []int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return unionOf(g.roleMenus.rev, menuIDs)
}

// RolesOfDepts 自定义范围包含任一部门的角色
func (g *RoleGraph) RolesOfDepts(deptIDs []int64) []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return unionOf(g.roleDepts.rev, deptIDs)
}

// grantsOf 同一把读锁下取用户角色及其菜单
func (g *RoleGraph) grantsOf(userID int64) (roleIDs, menuIDs []int64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	roleIDs = sortedKeys(g.userRoles.fwd[userID])
	return roleIDs, unionOf(g.roleMenus.fwd, roleIDs)
}

func (g *RoleGraph) purgeRole(roleID int64) (users []int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	users = g.userRoles.purgeRight(roleID)
	g.roleMenus.purgeLeft(roleID)
	g.roleDepts.purgeLeft(roleID)
	return users
}

func (g *RoleGraph) purgeUser(userID int64) {
	g.mu.Lock()
	g.userRoles.purgeLeft(userID)
	g.mu.Unlock()
}

func (g *RoleGraph) purgeMenu(menuID int64) (roles []int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roleMenus.purgeRight(menuID)
}

func (g *RoleGraph) purgeDept(deptID int64) (roles []int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roleDepts.purgeRight(deptID)
}

func (g *RoleGraph) reset(s *Snapshot) {
	ur, rm, rd := newRelation(), newRelation(), newRelation()
	for _, p := range s.UserRoles {
		ur.add(p.Left, p.Right)
	}
	for _, p := range s.RoleMenus {
		rm.add(p.Left, p.Right)
	}
	for _, p := range s.RoleDepts {
		rd.add(p.Left, p.Right)
	}
	g.mu.Lock()
	g.userRoles, g.roleMenus, g.roleDepts = ur, rm, rd
	g.mu.Unlock()
}

func unionOf(index map[int64]map[int64]struct{}, keys []int64) []int64 {
	set := make(map[int64]struct{})
	for _, k := range keys {
		for v := range index[k] {
			set[v] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func dedupe(ids []int64) []int64 {
	if len(ids) == 0 {
		return []int64{}
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
