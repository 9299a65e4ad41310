package authz

import (
	"context"

	"go.uber.org/zap"
)

// UserManager 会改变授权状态的用户操作
type UserManager struct {
	store   UserStore
	depts   *Tree[DeptAttrs]
	graph   *RoleGraph
	locker  Locker
	signals *Signals
	log     *zap.Logger
}

func (m *UserManager) MoveToDept(ctx context.Context, userID, deptID int64) error {
	// dept 锁与 DeptGuard.Delete 互斥，避免把用户挪进正在删除的部门
	unlock, err := acquire(ctx, m.locker, entityKey("user", userID), entityKey("dept", deptID))
	if err != nil {
		return err
	}
	defer unlock()
	if !m.depts.Contains(deptID) {
		return newError(ErrNotFound, "dept", deptID, "")
	}
	if err := m.store.SetUserDept(ctx, userID, deptID); err != nil {
		return err
	}
	m.log.Info("user_dept_changed", zap.Int64("user_id", userID), zap.Int64("dept_id", deptID))
	m.signals.Emit(ctx, Invalidation{Source: "user_dept", ScopeUsers: []int64{userID}})
	return nil
}

// Forget 删除用户及其角色绑定
func (m *UserManager) Forget(ctx context.Context, userID int64) error {
	unlock, err := acquire(ctx, m.locker, entityKey("user", userID))
	if err != nil {
		return err
	}
	defer unlock()
	if err := m.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	m.graph.purgeUser(userID)
	uids := []int64{userID}
	m.signals.Emit(ctx, Invalidation{Source: "user_delete", PermissionUsers: uids, ScopeUsers: uids})
	return nil
}
