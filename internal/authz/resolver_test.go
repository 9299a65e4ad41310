package authz_test

import (
	"context"
	"sync"
	"testing"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/pkg/cache"
	redisrepo "go-sysadmin/internal/repository/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_DisabledParentHidesSubtree(t *testing.T) {
	ctx := context.Background()
	s := seed()
	c := newCore(t, s)
	const r2 = roleEditor
	require.NoError(t, c.Graph.AssignMenus(ctx, r2, []int64{menuUserDel}))
	require.NoError(t, c.Graph.AssignRoles(ctx, userSales, []int64{r2}))

	before := c.Resolver.PermissionsOf(ctx, userSales)
	assert.Equal(t, []string{"sys:user:delete"}, before.Codes)
	assert.Equal(t, []int64{menuUserDel}, before.MenuIDs)

	_, err := c.Menus.SetStatus(ctx, menuSystem, authz.StatusDisabled)
	require.NoError(t, err)
	p := c.Resolver.PermissionsOf(ctx, userSales)
	assert.Empty(t, p.Codes)
	assert.Empty(t, p.MenuIDs)
	assert.False(t, c.Resolver.HasPermission(ctx, userSales, "sys:user:delete"))
	btn, _ := c.MenuTree.Get(menuUserDel)
	assert.Equal(t, authz.StatusEnabled, btn.Status)

	_, err = c.Menus.SetStatus(ctx, menuSystem, authz.StatusEnabled)
	require.NoError(t, err)
	assert.Equal(t, before, c.Resolver.PermissionsOf(ctx, userSales))
}

func TestResolver_EmptyRoleSet(t *testing.T) {
	ctx := context.Background()
	c := newCore(t, seed())
	require.NoError(t, c.Graph.AssignRoles(ctx, userSales, []int64{}))
	p := c.Resolver.PermissionsOf(ctx, userSales)
	assert.NotNil(t, p.Codes)
	assert.Empty(t, p.Codes)
	assert.Empty(t, p.MenuIDs)

	// unknown users are not an error either, and the empty result is cached
	assert.Empty(t, c.Resolver.PermissionsOf(ctx, 12345).Codes)
	assert.Empty(t, c.Resolver.PermissionsOf(ctx, 12345).Codes)
}

func TestResolver_SuperAdmin(t *testing.T) {
	ctx := context.Background()
	s := seed()
	s.UserRoles[userOps] = []int64{roleSuper}
	c := newCore(t, s)
	_, err := c.Menus.SetStatus(ctx, menuSystem, authz.StatusDisabled)
	require.NoError(t, err)

	for _, uid := range []int64{userAdmin, userOps} {
		assert.True(t, c.IsSuperAdmin(uid))
		p := c.Resolver.PermissionsOf(ctx, uid)
		assert.Equal(t, []string{"monitor:online:list", "sys:user:delete", "system:user:list"}, p.Codes)
		assert.Equal(t, []int64{menuMonitor, menuOnline}, p.MenuIDs, "only effectively enabled menus")
		assert.True(t, c.Resolver.HasPermission(ctx, uid, "not:a:code"))
		assert.Equal(t, authz.Unrestricted(), c.Scopes.ScopeOf(ctx, uid))
	}
	assert.False(t, c.IsSuperAdmin(userSales))
}

func TestResolver_WildcardCode(t *testing.T) {
	ctx := context.Background()
	s := seed()
	s.PutMenu(authz.Menu{ID: 30, Name: "All", Status: authz.StatusEnabled, Attrs: authz.MenuAttrs{Type: authz.MenuTypeButton, Permission: authz.AllPermission}})
	s.RoleMenus[roleAll] = []int64{30}
	s.UserRoles[userOps] = []int64{roleAll}
	c := newCore(t, s)

	assert.True(t, c.Resolver.HasPermission(ctx, userOps, "system:role:delete"))
	assert.True(t, c.Resolver.HasAnyPermission(ctx, userOps, "x", "y"))
	assert.False(t, c.Resolver.HasAnyPermission(ctx, userSales, "x", "y"))
}

func TestResolver_InvalidatedOnGraphChange(t *testing.T) {
	ctx := context.Background()
	s := seed()
	s.UserRoles[userSales] = []int64{roleEditor}
	s.UserRoles[userEast] = []int64{roleEditor}
	s.RoleMenus[roleEditor] = []int64{menuUsers}
	c := newCore(t, s)
	rec := record(c)

	assert.Equal(t, []string{"system:user:list"}, c.Resolver.PermissionsOf(ctx, userSales).Codes)

	require.NoError(t, c.Graph.AssignMenus(ctx, roleEditor, []int64{menuUsers, menuUserDel, menuUserDel}))
	inv := rec.last()
	assert.Equal(t, []int64{userSales, userEast}, inv.PermissionUsers)
	assert.Equal(t, []string{"sys:user:delete", "system:user:list"}, c.Resolver.PermissionsOf(ctx, userSales).Codes)
	assert.Equal(t, []int64{menuUserDel, menuUsers}, c.Graph.MenusOf(roleEditor))

	require.NoError(t, c.Roles.Delete(ctx, roleEditor))
	assert.Empty(t, c.Resolver.PermissionsOf(ctx, userSales).Codes)
	assert.Empty(t, c.Graph.RolesOf(userEast))
}

func TestResolver_RoleCodes(t *testing.T) {
	s := seed()
	s.UserRoles[userSales] = []int64{roleSelf, roleEditor}
	c := newCore(t, s)
	assert.Equal(t, []string{"editor", "self"}, c.Resolver.RoleCodes(userSales))
	assert.Equal(t, []string{}, c.Resolver.RoleCodes(userOps))
}

func TestResolver_LayeredRedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc := redisrepo.New(redisrepo.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	s := seed()
	s.UserRoles[userSales] = []int64{roleEditor}
	s.RoleMenus[roleEditor] = []int64{menuUsers}
	c := authz.New(s, authz.Options{
		PermissionCache:       cache.NewLayered(cache.NewLRUAdapter(16), cache.NewRedisAdapter(rc)),
		PermissionCachePrefix: "test:perm:",
		SuperAdminUserID:      userAdmin,
	})
	require.NoError(t, c.Load(ctx))

	c.Resolver.PermissionsOf(ctx, userSales)
	raw, err := mr.Get("test:perm:7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"codes":["system:user:list"],"menu_ids":[12]}`, raw)

	c.Resolver.PermissionsOf(ctx, userOps)
	raw, _ = mr.Get("test:perm:9")
	assert.True(t, cache.IsNilSentinel(raw))

	c.Resolver.PermissionsOf(ctx, userAdmin)
	assert.False(t, mr.Exists("test:perm:1"), "super admin is not cached")

	require.NoError(t, c.Graph.AssignRoles(ctx, userSales, nil))
	assert.False(t, mr.Exists("test:perm:7"))
	assert.Empty(t, c.Resolver.PermissionsOf(ctx, userSales).Codes)
}

func TestResolver_ConcurrentReadsDuringWrites(t *testing.T) {
	ctx := context.Background()
	s := seed()
	s.UserRoles[userSales] = []int64{roleEditor}
	c := newCore(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Resolver.PermissionsOf(ctx, userSales)
				c.Scopes.ScopeOf(ctx, userSales)
			}
		}()
	}
	for j := 0; j < 20; j++ {
		menus := []int64{menuUsers}
		if j%2 == 0 {
			menus = append(menus, menuUserDel)
		}
		assert.NoError(t, c.Graph.AssignMenus(ctx, roleEditor, menus))
	}
	wg.Wait()
	// the final write is odd: only menuUsers
	assert.Equal(t, []string{"system:user:list"}, c.Resolver.PermissionsOf(ctx, userSales).Codes)
}
