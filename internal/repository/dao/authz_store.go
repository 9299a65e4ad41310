package dao

import (
	"context"
	"fmt"
	"strings"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/domain/model"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// AuthzStore 组合各表 DAO 实现 authz.Store；每个写方法一个事务
type AuthzStore struct {
	DB        *gorm.DB
	Menus     *SysMenuDAO
	Depts     *SysDeptDAO
	Roles     *SysRoleDAO
	Users     *SysUserDAO
	Relations *RelationDAO
}

func NewAuthzStore(db *gorm.DB) *AuthzStore {
	return &AuthzStore{
		DB:        db,
		Menus:     NewSysMenuDAO(db),
		Depts:     NewSysDeptDAO(db),
		Roles:     NewSysRoleDAO(db),
		Users:     NewSysUserDAO(db),
		Relations: NewRelationDAO(db),
	}
}

var _ authz.Store = (*AuthzStore)(nil)

func (s *AuthzStore) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.DB.WithContext(ctx).Transaction(fn)
}

// ---- menu ----

func (s *AuthzStore) CreateMenu(ctx context.Context, n *authz.Menu) error {
	m := menuModel(*n)
	if err := s.Menus.Create(ctx, nil, &m); err != nil {
		return err
	}
	n.ID = m.ID
	return nil
}

func (s *AuthzStore) UpdateMenu(ctx context.Context, n authz.Menu) error {
	m := menuModel(n)
	return s.Menus.Update(ctx, nil, &m)
}

func (s *AuthzStore) DeleteMenu(ctx context.Context, id int64) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := s.Relations.PurgeMenu(ctx, tx, id); err != nil {
			return err
		}
		return s.Menus.Delete(ctx, tx, id)
	})
}

// ---- dept ----

func (s *AuthzStore) CreateDept(ctx context.Context, n *authz.Dept, ancestors string) error {
	m := deptModel(*n)
	m.Ancestors = ancestors
	if err := s.Depts.Create(ctx, nil, &m); err != nil {
		return err
	}
	n.ID = m.ID
	return nil
}

func (s *AuthzStore) UpdateDept(ctx context.Context, n authz.Dept, ancestors map[int64]string) error {
	m := deptModel(n)
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := s.Depts.Update(ctx, tx, &m); err != nil {
			return err
		}
		if len(ancestors) == 0 {
			return nil
		}
		return s.Depts.SetAncestors(ctx, tx, ancestors)
	})
}

func (s *AuthzStore) DeleteDept(ctx context.Context, id int64) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := s.Relations.PurgeDept(ctx, tx, id); err != nil {
			return err
		}
		return s.Depts.Delete(ctx, tx, id)
	})
}

// ---- role ----

func (s *AuthzStore) CreateRole(ctx context.Context, r *authz.Role) error {
	m := roleModel(*r)
	if err := s.Roles.Create(ctx, nil, &m); err != nil {
		return err
	}
	r.ID = m.ID
	return nil
}

func (s *AuthzStore) UpdateRole(ctx context.Context, r authz.Role) error {
	m := roleModel(r)
	return s.Roles.Update(ctx, nil, &m)
}

func (s *AuthzStore) DeleteRole(ctx context.Context, id int64) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := s.Relations.PurgeRole(ctx, tx, id); err != nil {
			return err
		}
		return s.Roles.Delete(ctx, tx, id)
	})
}

// ---- relations ----

func (s *AuthzStore) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return s.tx(ctx, func(tx *gorm.DB) error { return s.Relations.ReplaceUserRoles(ctx, tx, userID, roleIDs) })
}

func (s *AuthzStore) ReplaceRoleMenus(ctx context.Context, roleID int64, menuIDs []int64) error {
	return s.tx(ctx, func(tx *gorm.DB) error { return s.Relations.ReplaceRoleMenus(ctx, tx, roleID, menuIDs) })
}

func (s *AuthzStore) ReplaceRoleDepts(ctx context.Context, roleID int64, deptIDs []int64) error {
	return s.tx(ctx, func(tx *gorm.DB) error { return s.Relations.ReplaceRoleDepts(ctx, tx, roleID, deptIDs) })
}

// ---- user ----

func (s *AuthzStore) UserDept(ctx context.Context, userID int64) (int64, bool, error) {
	return s.Users.DeptOf(ctx, userID)
}

func (s *AuthzStore) CountUsersInDept(ctx context.Context, deptID int64) (int64, error) {
	return s.Users.CountByDept(ctx, deptID)
}

func (s *AuthzStore) SetUserDept(ctx context.Context, userID, deptID int64) error {
	return s.Users.SetDept(ctx, nil, userID, deptID)
}

func (s *AuthzStore) DeleteUser(ctx context.Context, userID int64) error {
	return s.tx(ctx, func(tx *gorm.DB) error {
		if err := s.Relations.PurgeUser(ctx, tx, userID); err != nil {
			return err
		}
		return s.Users.Delete(ctx, tx, userID)
	})
}

// ---- snapshot ----

// LoadSnapshot 并行读取全部授权表
func (s *AuthzStore) LoadSnapshot(ctx context.Context) (*authz.Snapshot, error) {
	ctx, span := otel.Tracer("dao.authz_store").Start(ctx, "AuthzStore.LoadSnapshot")
	defer span.End()
	var (
		menus     []model.SysMenu
		depts     []model.SysDept
		roles     []model.SysRole
		userRoles []model.SysUserRole
		roleMenus []model.SysRoleMenu
		roleDepts []model.SysRoleDept
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { menus, err = s.Menus.List(gctx); return })
	g.Go(func() (err error) { depts, err = s.Depts.List(gctx); return })
	g.Go(func() (err error) { roles, err = s.Roles.List(gctx); return })
	g.Go(func() (err error) { userRoles, err = s.Relations.ListUserRoles(gctx); return })
	g.Go(func() (err error) { roleMenus, err = s.Relations.ListRoleMenus(gctx); return })
	g.Go(func() (err error) { roleDepts, err = s.Relations.ListRoleDepts(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, record(span, fmt.Errorf("load snapshot: %w", err))
	}

	snap := &authz.Snapshot{
		Menus:         make([]authz.Menu, 0, len(menus)),
		Depts:         make([]authz.Dept, 0, len(depts)),
		DeptAncestors: make(map[int64]string, len(depts)),
		Roles:         make([]authz.Role, 0, len(roles)),
		UserRoles:     make([]authz.Pair, 0, len(userRoles)),
		RoleMenus:     make([]authz.Pair, 0, len(roleMenus)),
		RoleDepts:     make([]authz.Pair, 0, len(roleDepts)),
	}
	for _, m := range menus {
		snap.Menus = append(snap.Menus, menuNode(m))
	}
	for _, d := range depts {
		snap.Depts = append(snap.Depts, deptNode(d))
		snap.DeptAncestors[d.ID] = d.Ancestors
	}
	for _, r := range roles {
		snap.Roles = append(snap.Roles, roleValue(r))
	}
	for _, p := range userRoles {
		snap.UserRoles = append(snap.UserRoles, authz.Pair{Left: p.UserID, Right: p.RoleID})
	}
	for _, p := range roleMenus {
		snap.RoleMenus = append(snap.RoleMenus, authz.Pair{Left: p.RoleID, Right: p.MenuID})
	}
	for _, p := range roleDepts {
		snap.RoleDepts = append(snap.RoleDepts, authz.Pair{Left: p.RoleID, Right: p.DeptID})
	}
	return snap, nil
}

// ---- conversions ----

func menuModel(n authz.Menu) model.SysMenu {
	var perm *string
	if p := strings.TrimSpace(n.Attrs.Permission); p != "" {
		perm = &p
	}
	return model.SysMenu{
		ID: n.ID, Title: n.Name, ParentID: n.ParentID, Type: int8(n.Attrs.Type),
		Path: n.Attrs.Path, Name: n.Attrs.RouteName, Component: n.Attrs.Component,
		Redirect: n.Attrs.Redirect, Icon: n.Attrs.Icon, IsExternal: n.Attrs.IsExternal,
		IsCache: n.Attrs.IsCache, IsHidden: n.Attrs.IsHidden, Permission: perm,
		Sort: n.Sort, Status: int8(n.Status), IsSystem: n.IsSystem,
	}
}

func menuNode(m model.SysMenu) authz.Menu {
	var perm string
	if m.Permission != nil {
		perm = strings.TrimSpace(*m.Permission)
	}
	return authz.Menu{
		ID: m.ID, ParentID: m.ParentID, Name: m.Title, Status: authz.Status(m.Status),
		IsSystem: m.IsSystem, Sort: m.Sort,
		Attrs: authz.MenuAttrs{
			Type: authz.MenuType(m.Type), Permission: perm, Path: m.Path, RouteName: m.Name,
			Component: m.Component, Redirect: m.Redirect, Icon: m.Icon,
			IsExternal: m.IsExternal, IsCache: m.IsCache, IsHidden: m.IsHidden,
		},
	}
}

func deptModel(n authz.Dept) model.SysDept {
	return model.SysDept{
		ID: n.ID, Name: n.Name, ParentID: n.ParentID, Description: n.Attrs.Description,
		Sort: n.Sort, Status: int8(n.Status), IsSystem: n.IsSystem,
	}
}

func deptNode(d model.SysDept) authz.Dept {
	return authz.Dept{
		ID: d.ID, ParentID: d.ParentID, Name: d.Name, Status: authz.Status(d.Status),
		IsSystem: d.IsSystem, Sort: d.Sort, Attrs: authz.DeptAttrs{Description: d.Description},
	}
}

func roleModel(r authz.Role) model.SysRole {
	return model.SysRole{
		ID: r.ID, Name: r.Name, Code: r.Code, DataScope: int8(r.DataScope),
		Description: r.Description, Sort: r.Sort, IsSystem: r.IsSystem,
	}
}

func roleValue(m model.SysRole) authz.Role {
	return authz.Role{
		ID: m.ID, Name: m.Name, Code: m.Code, DataScope: authz.DataScope(m.DataScope),
		Description: m.Description, Sort: m.Sort, IsSystem: m.IsSystem,
	}
}
