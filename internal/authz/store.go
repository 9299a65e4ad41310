package authz

import "context"

// 持久化边界：每个方法一个事务，返回 nil 后才修改内存状态

type MenuStore interface {
	// CreateMenu 回填 n.ID
	CreateMenu(ctx context.Context, n *Menu) error
	UpdateMenu(ctx context.Context, n Menu) error
	// DeleteMenu 连同 role_menu 行
	DeleteMenu(ctx context.Context, id int64) error
}

type DeptStore interface {
	// CreateDept 回填 n.ID，ancestors 即 sys_dept.ancestors
	CreateDept(ctx context.Context, n *Dept, ancestors string) error
	// UpdateDept 写本行，并重写 ancestors 中列出的每个节点（移动时为整棵子树）
	UpdateDept(ctx context.Context, n Dept, ancestors map[int64]string) error
	// DeleteDept 连同 role_dept 行
	DeleteDept(ctx context.Context, id int64) error
}

type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	UpdateRole(ctx context.Context, r Role) error
	// DeleteRole 连同 user_role、role_menu 与 role_dept 行
	DeleteRole(ctx context.Context, id int64) error
}

type RelationStore interface {
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	ReplaceRoleMenus(ctx context.Context, roleID int64, menuIDs []int64) error
	ReplaceRoleDepts(ctx context.Context, roleID int64, deptIDs []int64) error
}

type UserStore interface {
	// UserDept 用户不存在时 ok 为 false
	UserDept(ctx context.Context, userID int64) (deptID int64, ok bool, err error)
	CountUsersInDept(ctx context.Context, deptID int64) (int64, error)
	SetUserDept(ctx context.Context, userID, deptID int64) error
	// DeleteUser 连同 user_role 行
	DeleteUser(ctx context.Context, userID int64) error
}

type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

type Store interface {
	MenuStore
	DeptStore
	RoleStore
	RelationStore
	UserStore
	SnapshotStore
}

// Pair 一条关联行，如 (user, role)
type Pair struct {
	Left  int64
	Right int64
}

// Snapshot 全量持久化授权状态
type Snapshot struct {
	Menus []Menu
	Depts []Dept
	// DeptAncestors 库中的 ancestors 原值，用于发现漂移
	DeptAncestors map[int64]string
	Roles         []Role
	UserRoles     []Pair
	RoleMenus     []Pair
	RoleDepts     []Pair
}

// Locker 按实体键串行化变更，返回的 func 释放全部键
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}
