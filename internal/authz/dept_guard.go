package authz

import (
	"context"
	"fmt"
	"strings"

	"go-sysadmin/internal/metrics"

	"go.uber.org/zap"
)

// DeptParams 新增/编辑部门参数
type DeptParams struct {
	ParentID    int64
	Name        string
	Description string
	Sort        int
	Status      Status
	IsSystem    bool
}

// DeptGuard 部门树变更入口，保证 sys_dept.ancestors 与内存祖先列表一致
type DeptGuard struct {
	tree    *Tree[DeptAttrs]
	store   DeptStore
	users   UserStore
	graph   *RoleGraph
	locker  Locker
	signals *Signals
	log     *zap.Logger
}

func (g *DeptGuard) Create(ctx context.Context, p DeptParams) (Dept, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return Dept{}, fmt.Errorf("dept name required")
	}
	// 祖先链被锁住，写入的 ancestors 不会被并发移动改写
	unlock, err := acquireCovering(ctx, g.locker, createKeys(g.tree, p.ParentID))
	if err != nil {
		return Dept{}, err
	}
	defer unlock()
	if !g.tree.Exists(p.ParentID) {
		return Dept{}, g.fail("create", newError(ErrNotFound, "dept", p.ParentID, "parent"))
	}
	if other, dup := g.tree.ChildNamed(p.ParentID, name); dup {
		return Dept{}, g.fail("create", newError(ErrDuplicate, "dept", other, "name "+name))
	}
	status := p.Status
	if !status.Valid() {
		status = StatusEnabled
	}
	var chain []int64
	if p.ParentID != RootID {
		chain = append(g.tree.Ancestors(p.ParentID), p.ParentID)
	}
	n := Dept{ParentID: p.ParentID, Name: name, Status: status, IsSystem: p.IsSystem, Sort: p.Sort, Attrs: DeptAttrs{Description: p.Description}}
	if err := g.store.CreateDept(ctx, &n, FormatAncestors(chain)); err != nil {
		return Dept{}, g.fail("create", err)
	}
	if err := g.tree.Insert(n); err != nil {
		g.log.Error("dept_tree_apply_failed", zap.Int64("dept_id", n.ID), zap.Error(err))
		return Dept{}, err
	}
	metrics.TreeMutationTotal.WithLabelValues("dept", "create", "ok").Inc()
	// DEPT_AND_CHILD 范围随子树变化
	g.signals.Emit(ctx, Invalidation{Source: "dept_create", AllScopes: true})
	return n, nil
}

// Update 修改名称、描述、排序
func (g *DeptGuard) Update(ctx context.Context, id int64, p DeptParams) (Dept, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return Dept{}, fmt.Errorf("dept name required")
	}
	cur, ok := g.tree.Get(id)
	if !ok {
		return Dept{}, g.fail("update", newError(ErrNotFound, "dept", id, ""))
	}
	unlock, err := acquire(ctx, g.locker, entityKey("dept", id), entityKey("dept", cur.ParentID))
	if err != nil {
		return Dept{}, err
	}
	defer unlock()
	old, ok := g.tree.Get(id)
	if !ok {
		return Dept{}, g.fail("update", newError(ErrNotFound, "dept", id, ""))
	}
	if other, dup := g.tree.ChildNamed(old.ParentID, name); dup && other != id {
		return Dept{}, g.fail("update", newError(ErrDuplicate, "dept", other, "name "+name))
	}
	n := old
	n.Name, n.Sort, n.Attrs = name, p.Sort, DeptAttrs{Description: p.Description}
	if err := g.store.UpdateDept(ctx, n, nil); err != nil {
		return Dept{}, g.fail("update", err)
	}
	if err := g.tree.Insert(n); err != nil {
		g.log.Error("dept_tree_apply_failed", zap.Int64("dept_id", id), zap.Error(err))
		return Dept{}, err
	}
	metrics.TreeMutationTotal.WithLabelValues("dept", "update", "ok").Inc()
	return n, nil
}

// Move 调整父部门，整棵子树的 ancestors 在同一事务内重写。
// 被移动子树与新父节点祖先链在树更新前一直持锁，落库的即是下面算出的计划。
func (g *DeptGuard) Move(ctx context.Context, id, parentID int64) (Dept, error) {
	unlock, err := acquireCovering(ctx, g.locker, moveKeys(g.tree, id, parentID))
	if err != nil {
		return Dept{}, err
	}
	defer unlock()
	old, ok := g.tree.Get(id)
	if !ok {
		return Dept{}, g.fail("move", newError(ErrNotFound, "dept", id, ""))
	}
	plan, err := g.tree.PlanAncestors(id, parentID)
	if err != nil {
		return Dept{}, g.fail("move", err)
	}
	if old.ParentID == parentID {
		return old, nil
	}
	if old.IsSystem {
		return Dept{}, g.fail("move", newError(ErrProtected, "dept", id, "system dept cannot be moved"))
	}
	if other, dup := g.tree.ChildNamed(parentID, old.Name); dup {
		return Dept{}, g.fail("move", newError(ErrDuplicate, "dept", other, "name "+old.Name))
	}
	rows := make(map[int64]string, len(plan))
	for nid, chain := range plan {
		rows[nid] = FormatAncestors(chain)
	}
	n := old
	n.ParentID = parentID
	if err := g.store.UpdateDept(ctx, n, rows); err != nil {
		return Dept{}, g.fail("move", err)
	}
	if err := g.tree.Insert(n); err != nil {
		g.log.Error("dept_tree_apply_failed", zap.Int64("dept_id", id), zap.Error(err))
		return Dept{}, err
	}
	metrics.TreeMutationTotal.WithLabelValues("dept", "move", "ok").Inc()
	g.log.Info("dept_moved", zap.Int64("dept_id", id), zap.Int64("from", old.ParentID), zap.Int64("to", parentID), zap.Int("rewritten", len(rows)))
	g.signals.Emit(ctx, Invalidation{
		Source:     "dept_move",
		ScopeUsers: g.graph.UsersOfRoles(g.graph.RolesOfDepts(g.tree.Subtree(id))),
		AllScopes:  true,
	})
	return n, nil
}

// Delete 依次拒绝：系统部门、有子部门、仍有用户
func (g *DeptGuard) Delete(ctx context.Context, id int64) error {
	unlock, err := acquire(ctx, g.locker, entityKey("dept", id))
	if err != nil {
		return err
	}
	defer unlock()
	n, ok := g.tree.Get(id)
	if !ok {
		return g.fail("delete", newError(ErrNotFound, "dept", id, ""))
	}
	if n.IsSystem {
		return g.fail("delete", newError(ErrProtected, "dept", id, ""))
	}
	if len(g.tree.Children(id)) > 0 {
		return g.fail("delete", newError(ErrHasChildren, "dept", id, ""))
	}
	cnt, err := g.users.CountUsersInDept(ctx, id)
	if err != nil {
		return g.fail("delete", err)
	}
	if cnt > 0 {
		return g.fail("delete", newError(ErrInUse, "dept", id, fmt.Sprintf("%d users", cnt)))
	}
	if err := g.store.DeleteDept(ctx, id); err != nil {
		return g.fail("delete", err)
	}
	if err := g.tree.Remove(id); err != nil {
		g.log.Error("dept_tree_apply_failed", zap.Int64("dept_id", id), zap.Error(err))
		return err
	}
	roles := g.graph.purgeDept(id)
	metrics.TreeMutationTotal.WithLabelValues("dept", "delete", "ok").Inc()
	g.signals.Emit(ctx, Invalidation{Source: "dept_delete", ScopeUsers: g.graph.UsersOfRoles(roles), AllScopes: true})
	return nil
}

// SetStatus 部门启停不影响数据权限范围，仅保护系统部门不被禁用
func (g *DeptGuard) SetStatus(ctx context.Context, id int64, status Status) (Dept, error) {
	if !status.Valid() {
		return Dept{}, fmt.Errorf("invalid status %d", status)
	}
	unlock, err := acquire(ctx, g.locker, entityKey("dept", id))
	if err != nil {
		return Dept{}, err
	}
	defer unlock()
	old, ok := g.tree.Get(id)
	if !ok {
		return Dept{}, g.fail("status", newError(ErrNotFound, "dept", id, ""))
	}
	if old.IsSystem && status == StatusDisabled {
		return Dept{}, g.fail("status", newError(ErrProtected, "dept", id, "system dept cannot be disabled"))
	}
	if old.Status == status {
		return old, nil
	}
	n := old
	n.Status = status
	if err := g.store.UpdateDept(ctx, n, nil); err != nil {
		return Dept{}, g.fail("status", err)
	}
	if err := g.tree.Insert(n); err != nil {
		g.log.Error("dept_tree_apply_failed", zap.Int64("dept_id", id), zap.Error(err))
		return Dept{}, err
	}
	metrics.TreeMutationTotal.WithLabelValues("dept", "status", "ok").Inc()
	return n, nil
}

func (g *DeptGuard) fail(op string, err error) error {
	result := "error"
	if k := KindOf(err); k != nil {
		result = k.Error()
	}
	metrics.TreeMutationTotal.WithLabelValues("dept", op, result).Inc()
	return err
}
