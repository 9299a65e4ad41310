package dao

import (
	"context"
	"testing"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 单连接保证所有查询落在同一个内存库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

func TestAuthzStore_MenuPermissionNullRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewAuthzStore(db)

	dir := authz.Menu{ParentID: authz.RootID, Name: "System", Status: authz.StatusEnabled, Attrs: authz.MenuAttrs{Type: authz.MenuTypeDir, Permission: "  "}}
	require.NoError(t, s.CreateMenu(ctx, &dir))
	require.NotZero(t, dir.ID)
	btn := authz.Menu{ParentID: dir.ID, Name: "Delete", Status: authz.StatusEnabled, Attrs: authz.MenuAttrs{Type: authz.MenuTypeButton, Permission: "system:user:delete"}}
	require.NoError(t, s.CreateMenu(ctx, &btn))

	var raw model.SysMenu
	require.NoError(t, db.First(&raw, dir.ID).Error)
	assert.Nil(t, raw.Permission, "blank permission stored as NULL")

	snap, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Menus, 2)
	byID := map[int64]authz.Menu{}
	for _, m := range snap.Menus {
		byID[m.ID] = m
	}
	assert.Equal(t, "", byID[dir.ID].Attrs.Permission)
	assert.Equal(t, "system:user:delete", byID[btn.ID].Attrs.Permission)
	assert.Equal(t, authz.MenuTypeButton, byID[btn.ID].Attrs.Type)

	btn.Attrs.Permission = ""
	require.NoError(t, s.UpdateMenu(ctx, btn))
	var cleared model.SysMenu
	require.NoError(t, db.First(&cleared, btn.ID).Error)
	assert.Nil(t, cleared.Permission)

	err = s.UpdateMenu(ctx, authz.Menu{ID: 999, Name: "ghost", Status: authz.StatusEnabled})
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestAuthzStore_DeptAncestorsAndPurge(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewAuthzStore(db)

	hq := authz.Dept{ParentID: authz.RootID, Name: "HQ", Status: authz.StatusEnabled}
	require.NoError(t, s.CreateDept(ctx, &hq, "0"))
	sales := authz.Dept{ParentID: hq.ID, Name: "Sales", Status: authz.StatusEnabled}
	require.NoError(t, s.CreateDept(ctx, &sales, authz.FormatAncestors([]int64{hq.ID})))

	role := authz.Role{Name: "custom", Code: "custom", DataScope: authz.DataScopeCustom}
	require.NoError(t, s.CreateRole(ctx, &role))
	require.NoError(t, s.ReplaceRoleDepts(ctx, role.ID, []int64{hq.ID, sales.ID}))

	// move sales to the root
	sales.ParentID = authz.RootID
	require.NoError(t, s.UpdateDept(ctx, sales, map[int64]string{sales.ID: "0"}))
	snap, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", snap.DeptAncestors[sales.ID])

	require.NoError(t, s.DeleteDept(ctx, sales.ID))
	var n int64
	require.NoError(t, db.Model(&model.SysRoleDept{}).Where("dept_id = ?", sales.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&model.SysRoleDept{}).Where("dept_id = ?", hq.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestAuthzStore_RoleDeletePurgesRelations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewAuthzStore(db)

	role := authz.Role{Name: "editor", Code: "editor", DataScope: authz.DataScopeDept, Sort: 0}
	require.NoError(t, s.CreateRole(ctx, &role))
	require.NoError(t, db.Create(&model.SysUser{ID: 7, Username: "u7", DeptID: 1}).Error)
	require.NoError(t, s.ReplaceUserRoles(ctx, 7, []int64{role.ID}))
	require.NoError(t, s.ReplaceRoleMenus(ctx, role.ID, []int64{10, 11}))
	require.NoError(t, s.ReplaceRoleMenus(ctx, role.ID, []int64{11}), "replace is idempotent")

	snap, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []authz.Pair{{Left: 7, Right: role.ID}}, snap.UserRoles)
	assert.Equal(t, []authz.Pair{{Left: role.ID, Right: 11}}, snap.RoleMenus)
	require.Len(t, snap.Roles, 1)
	assert.Equal(t, 0, snap.Roles[0].Sort, "zero sort is kept")

	require.NoError(t, s.DeleteRole(ctx, role.ID))
	snap, err = s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Roles)
	assert.Empty(t, snap.UserRoles)
	assert.Empty(t, snap.RoleMenus)
}

func TestAuthzStore_Users(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewAuthzStore(db)
	require.NoError(t, db.Create(&[]model.SysUser{
		{ID: 1, Username: "admin", DeptID: 1},
		{ID: 7, Username: "sales", DeptID: 2},
		{ID: 8, Username: "east", DeptID: 3},
	}).Error)

	d, ok, err := s.UserDept(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 2, d)
	_, ok, err = s.UserDept(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.CountUsersInDept(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.SetUserDept(ctx, 8, 2))
	assert.ErrorIs(t, s.SetUserDept(ctx, 42, 2), authz.ErrNotFound)
	n, _ = s.CountUsersInDept(ctx, 2)
	assert.EqualValues(t, 2, n)

	require.NoError(t, s.ReplaceUserRoles(ctx, 8, []int64{3}))
	require.NoError(t, s.DeleteUser(ctx, 8))
	assert.ErrorIs(t, s.DeleteUser(ctx, 8), authz.ErrNotFound)
	var rel int64
	require.NoError(t, db.Model(&model.SysUserRole{}).Where("user_id = ?", 8).Count(&rel).Error)
	assert.Zero(t, rel)
}

func TestSysUserDAO_ListScoped(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewSysUserDAO(db)
	require.NoError(t, db.Create(&[]model.SysUser{
		{ID: 1, Username: "admin", DeptID: 1},
		{ID: 7, Username: "sales", DeptID: 2},
		{ID: 8, Username: "east", DeptID: 3},
		{ID: 9, Username: "ops", DeptID: 4},
	}).Error)

	list, total, err := users.ListScoped(ctx, authz.Unrestricted(), 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, list, 2)

	list, total, err = users.ListScoped(ctx, authz.DeptIDs(2, 3), 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "sales", list[0].Username)

	list, total, err = users.ListScoped(ctx, authz.OwnerOnly(9), 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.EqualValues(t, 9, list[0].ID)

	_, total, err = users.ListScoped(ctx, authz.DeptIDs(), 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
}

// The full core runs against the gorm store: mutations persist and a fresh
// core loads the same state back.
func TestAuthzStore_BacksCore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewAuthzStore(db)
	require.NoError(t, db.Create(&model.SysUser{ID: 7, Username: "u7", DeptID: 0}).Error)

	c := authz.New(s, authz.Options{SuperAdminUserID: 1})
	require.NoError(t, c.Load(ctx))
	hq, err := c.Depts.Create(ctx, authz.DeptParams{ParentID: authz.RootID, Name: "HQ"})
	require.NoError(t, err)
	sales, err := c.Depts.Create(ctx, authz.DeptParams{ParentID: hq.ID, Name: "Sales"})
	require.NoError(t, err)
	require.NoError(t, c.Users.MoveToDept(ctx, 7, sales.ID))

	menu, err := c.Menus.Create(ctx, authz.MenuParams{ParentID: authz.RootID, Title: "Users", Type: authz.MenuTypeMenu, Permission: "system:user:list"})
	require.NoError(t, err)
	role, err := c.Roles.Create(ctx, authz.RoleParams{Name: "viewer", Code: "viewer", DataScope: authz.DataScopeDeptAndChild})
	require.NoError(t, err)
	require.NoError(t, c.Graph.AssignMenus(ctx, role.ID, []int64{menu.ID}))
	require.NoError(t, c.Graph.AssignRoles(ctx, 7, []int64{role.ID}))

	assert.True(t, c.Resolver.HasPermission(ctx, 7, "system:user:list"))

	fresh := authz.New(s, authz.Options{SuperAdminUserID: 1})
	require.NoError(t, fresh.Load(ctx))
	assert.True(t, fresh.Resolver.HasPermission(ctx, 7, "system:user:list"))
	scope := fresh.Scopes.ScopeOf(ctx, 7)
	assert.Equal(t, authz.ScopeDeptIDs, scope.Kind)
	assert.ElementsMatch(t, []int64{sales.ID}, scope.DeptIDs)
	assert.Equal(t, []int64{hq.ID}, fresh.DeptTree.Ancestors(sales.ID))
}

func TestAuthzStore_AssignRolesRejectsUnknownUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewAuthzStore(db)

	c := authz.New(s, authz.Options{SuperAdminUserID: 1})
	require.NoError(t, c.Load(ctx))
	role, err := c.Roles.Create(ctx, authz.RoleParams{Name: "viewer", Code: "viewer", DataScope: authz.DataScopeSelf})
	require.NoError(t, err)

	assert.ErrorIs(t, c.Graph.AssignRoles(ctx, 424242, []int64{role.ID}), authz.ErrNotFound)
	var n int64
	require.NoError(t, db.Model(&model.SysUserRole{}).Where("user_id = ?", 424242).Count(&n).Error)
	assert.Zero(t, n)
}
