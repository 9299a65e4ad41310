package authz

import (
	"context"
	"fmt"
	"strings"

	"go-sysadmin/internal/metrics"

	"go.uber.org/zap"
)

// MenuParams 新增/编辑菜单参数；状态通过 SetStatus 修改
type MenuParams struct {
	ParentID   int64
	Title      string
	Type       MenuType
	Permission string
	Path       string
	RouteName  string
	Component  string
	Redirect   string
	Icon       string
	IsExternal bool
	IsCache    bool
	IsHidden   bool
	Sort       int
	Status     Status
	IsSystem   bool
}

func (p MenuParams) attrs() MenuAttrs {
	return MenuAttrs{
		Type: p.Type, Permission: strings.TrimSpace(p.Permission),
		Path: p.Path, RouteName: p.RouteName, Component: p.Component, Redirect: p.Redirect, Icon: p.Icon,
		IsExternal: p.IsExternal, IsCache: p.IsCache, IsHidden: p.IsHidden,
	}
}

// MenuGuard 菜单树变更入口：校验、落库、更新内存树、失效受影响用户
type MenuGuard struct {
	tree    *Tree[MenuAttrs]
	store   MenuStore
	graph   *RoleGraph
	locker  Locker
	signals *Signals
	log     *zap.Logger
}

func (g *MenuGuard) Create(ctx context.Context, p MenuParams) (Menu, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return Menu{}, fmt.Errorf("menu title required")
	}
	// 父节点锁保证同级标题查重串行
	unlock, err := acquire(ctx, g.locker, entityKey("menu", p.ParentID))
	if err != nil {
		return Menu{}, err
	}
	defer unlock()
	if !g.tree.Exists(p.ParentID) {
		return Menu{}, g.fail("create", newError(ErrNotFound, "menu", p.ParentID, "parent"))
	}
	if other, dup := g.tree.ChildNamed(p.ParentID, title); dup {
		return Menu{}, g.fail("create", newError(ErrDuplicate, "menu", other, "title "+title))
	}
	status := p.Status
	if !status.Valid() {
		status = StatusEnabled
	}
	n := Menu{ParentID: p.ParentID, Name: title, Status: status, IsSystem: p.IsSystem, Sort: p.Sort, Attrs: p.attrs()}
	if err := g.store.CreateMenu(ctx, &n); err != nil {
		return Menu{}, g.fail("create", err)
	}
	if err := g.tree.Insert(n); err != nil {
		g.log.Error("menu_tree_apply_failed", zap.Int64("menu_id", n.ID), zap.Error(err))
		return Menu{}, err
	}
	metrics.TreeMutationTotal.WithLabelValues("menu", "create", "ok").Inc()
	// 新菜单尚未授权给任何角色，无需失效
	return n, nil
}

// Update 只改属性与标题；换父节点走 Move，启停走 SetStatus
func (g *MenuGuard) Update(ctx context.Context, id int64, p MenuParams) (Menu, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return Menu{}, fmt.Errorf("menu title required")
	}
	cur, ok := g.tree.Get(id)
	if !ok {
		return Menu{}, g.fail("update", newError(ErrNotFound, "menu", id, ""))
	}
	unlock, err := acquire(ctx, g.locker, entityKey("menu", id), entityKey("menu", cur.ParentID))
	if err != nil {
		return Menu{}, err
	}
	defer unlock()
	old, ok := g.tree.Get(id)
	if !ok {
		return Menu{}, g.fail("update", newError(ErrNotFound, "menu", id, ""))
	}
	if other, dup := g.tree.ChildNamed(old.ParentID, title); dup && other != id {
		return Menu{}, g.fail("update", newError(ErrDuplicate, "menu", other, "title "+title))
	}
	n := old
	n.Name, n.Sort, n.Attrs = title, p.Sort, p.attrs()
	if err := g.store.UpdateMenu(ctx, n); err != nil {
		return Menu{}, g.fail("update", err)
	}
	if err := g.tree.Insert(n); err != nil {
		g.log.Error("menu_tree_apply_failed", zap.Int64("menu_id", id), zap.Error(err))
		return Menu{}, err
	}
	metrics.TreeMutationTotal.WithLabelValues("menu", "update", "ok").Inc()
	if n.Attrs.Permission != old.Attrs.Permission {
		g.emit(ctx, "menu_update", []int64{id})
	}
	return n, nil
}

func (g *MenuGuard) Move(ctx context.Context, id, parentID int64) (Menu, error) {
	unlock, err := acquireCovering(ctx, g.locker, moveKeys(g.tree, id, parentID))
	if err != nil {
		return Menu{}, err
	}
	defer unlock()
	old, ok := g.tree.Get(id)
	if !ok {
		return Menu{}, g.fail("move", newError(ErrNotFound, "menu", id, ""))
	}
	if _, err := g.tree.PlanAncestors(id, parentID); err != nil {
		return Menu{}, g.fail("move", err)
	}
	if old.ParentID == parentID {
		return old, nil
	}
	if other, dup := g.tree.ChildNamed(parentID, old.Name); dup {
		return Menu{}, g.fail("move", newError(ErrDuplicate, "menu", other, "title "+old.Name))
	}
	n := old
	n.ParentID = parentID
	if err := g.store.UpdateMenu(ctx, n); err != nil {
		return Menu{}, g.fail("move", err)
	}
	if err := g.tree.Insert(n); err != nil {
		g.log.Error("menu_tree_apply_failed", zap.Int64("menu_id", id), zap.Error(err))
		return Menu{}, err
	}
	metrics.TreeMutationTotal.WithLabelValues("menu", "move", "ok").Inc()
	g.log.Info("menu_moved", zap.Int64("menu_id", id), zap.Int64("from", old.ParentID), zap.Int64("to", parentID))
	// 子树的有效状态随新祖先变化
	g.emit(ctx, "menu_move", g.tree.Subtree(id))
	return n, nil
}

// Delete 依次拒绝：系统菜单、有子菜单、仍被角色引用
func (g *MenuGuard) Delete(ctx context.Context, id int64) error {
	unlock, err := acquire(ctx, g.locker, entityKey("menu", id))
	if err != nil {
		return err
	}
	defer unlock()
	n, ok := g.tree.Get(id)
	if !ok {
		return g.fail("delete", newError(ErrNotFound, "menu", id, ""))
	}
	if n.IsSystem {
		return g.fail("delete", newError(ErrProtected, "menu", id, ""))
	}
	if len(g.tree.Children(id)) > 0 {
		return g.fail("delete", newError(ErrHasChildren, "menu", id, ""))
	}
	if roles := g.graph.RolesOfMenus([]int64{id}); len(roles) > 0 {
		return g.fail("delete", newError(ErrInUse, "menu", id, fmt.Sprintf("granted to %d roles", len(roles))))
	}
	if err := g.store.DeleteMenu(ctx, id); err != nil {
		return g.fail("delete", err)
	}
	if err := g.tree.Remove(id); err != nil {
		g.log.Error("menu_tree_apply_failed", zap.Int64("menu_id", id), zap.Error(err))
		return err
	}
	roles := g.graph.purgeMenu(id)
	metrics.TreeMutationTotal.WithLabelValues("menu", "delete", "ok").Inc()
	g.signals.Emit(ctx, Invalidation{Source: "menu_delete", PermissionUsers: g.graph.UsersOfRoles(roles)})
	return nil
}

// SetStatus 禁用后整棵子树对用户不可见
func (g *MenuGuard) SetStatus(ctx context.Context, id int64, status Status) (Menu, error) {
	if !status.Valid() {
		return Menu{}, fmt.Errorf("invalid status %d", status)
	}
	unlock, err := acquire(ctx, g.locker, entityKey("menu", id))
	if err != nil {
		return Menu{}, err
	}
	defer unlock()
	old, ok := g.tree.Get(id)
	if !ok {
		return Menu{}, g.fail("status", newError(ErrNotFound, "menu", id, ""))
	}
	if old.IsSystem && status == StatusDisabled {
		return Menu{}, g.fail("status", newError(ErrProtected, "menu", id, "system menu cannot be disabled"))
	}
	if old.Status == status {
		return old, nil
	}
	n := old
	n.Status = status
	if err := g.store.UpdateMenu(ctx, n); err != nil {
		return Menu{}, g.fail("status", err)
	}
	if err := g.tree.Insert(n); err != nil {
		g.log.Error("menu_tree_apply_failed", zap.Int64("menu_id", id), zap.Error(err))
		return Menu{}, err
	}
	metrics.TreeMutationTotal.WithLabelValues("menu", "status", "ok").Inc()
	g.emit(ctx, "menu_status", g.tree.Subtree(id))
	return n, nil
}

// emit 失效持有相关菜单的所有用户
func (g *MenuGuard) emit(ctx context.Context, source string, menuIDs []int64) {
	users := g.graph.UsersOfRoles(g.graph.RolesOfMenus(menuIDs))
	g.signals.Emit(ctx, Invalidation{Source: source, PermissionUsers: users})
}

func (g *MenuGuard) fail(op string, err error) error {
	result := "error"
	if k := KindOf(err); k != nil {
		result = k.Error()
	}
	metrics.TreeMutationTotal.WithLabelValues("menu", op, result).Inc()
	return err
}
