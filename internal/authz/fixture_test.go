package authz_test

import (
	"context"
	"sync"
	"testing"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/authz/authztest"
	"go-sysadmin/internal/pkg/keylock"

	"github.com/stretchr/testify/require"
)

const (
	deptHQ        int64 = 1
	deptSales     int64 = 2
	deptSalesEast int64 = 3
	deptOps       int64 = 4

	menuSystem  int64 = 10
	menuUserDel int64 = 11
	menuUsers   int64 = 12
	menuMonitor int64 = 20
	menuOnline  int64 = 21

	roleSuper  int64 = 1
	roleEditor int64 = 2 // DEPT_AND_CHILD
	roleSelf   int64 = 3
	roleCustom int64 = 4
	roleAll    int64 = 5
	roleDept   int64 = 6

	userAdmin int64 = 1
	userSales int64 = 7
	userEast  int64 = 8
	userOps   int64 = 9
)

func seed() *authztest.MemStore {
	s := authztest.New()
	s.PutDept(authz.Dept{ID: deptHQ, Name: "HQ", Status: authz.StatusEnabled, IsSystem: true})
	s.PutDept(authz.Dept{ID: deptSales, ParentID: deptHQ, Name: "Sales", Status: authz.StatusEnabled})
	s.PutDept(authz.Dept{ID: deptSalesEast, ParentID: deptSales, Name: "SalesEast", Status: authz.StatusEnabled})
	s.PutDept(authz.Dept{ID: deptOps, ParentID: deptHQ, Name: "Ops", Status: authz.StatusEnabled})

	s.PutMenu(authz.Menu{ID: menuSystem, Name: "System", Status: authz.StatusEnabled, Attrs: authz.MenuAttrs{Type: authz.MenuTypeDir}})
	s.PutMenu(authz.Menu{ID: menuUserDel, ParentID: menuSystem, Name: "Delete user", Status: authz.StatusEnabled,
		Attrs: authz.MenuAttrs{Type: authz.MenuTypeButton, Permission: "sys:user:delete"}})
	s.PutMenu(authz.Menu{ID: menuUsers, ParentID: menuSystem, Name: "Users", Status: authz.StatusEnabled,
		Attrs: authz.MenuAttrs{Type: authz.MenuTypeMenu, Permission: "system:user:list"}})
	s.PutMenu(authz.Menu{ID: menuMonitor, Name: "Monitor", Status: authz.StatusEnabled, IsSystem: true, Attrs: authz.MenuAttrs{Type: authz.MenuTypeDir}})
	s.PutMenu(authz.Menu{ID: menuOnline, ParentID: menuMonitor, Name: "Online", Status: authz.StatusEnabled,
		Attrs: authz.MenuAttrs{Type: authz.MenuTypeButton, Permission: "monitor:online:list"}})

	s.PutRole(authz.Role{ID: roleSuper, Name: "Super", Code: authz.SuperAdminRoleCode, DataScope: authz.DataScopeAll, IsSystem: true})
	s.PutRole(authz.Role{ID: roleEditor, Name: "Editor", Code: "editor", DataScope: authz.DataScopeDeptAndChild})
	s.PutRole(authz.Role{ID: roleSelf, Name: "Self", Code: "self", DataScope: authz.DataScopeSelf})
	s.PutRole(authz.Role{ID: roleCustom, Name: "Custom", Code: "custom", DataScope: authz.DataScopeCustom})
	s.PutRole(authz.Role{ID: roleAll, Name: "All", Code: "all", DataScope: authz.DataScopeAll})
	s.PutRole(authz.Role{ID: roleDept, Name: "Dept", Code: "dept", DataScope: authz.DataScopeDept})

	s.PutUser(userAdmin, deptHQ)
	s.PutUser(userSales, deptSales)
	s.PutUser(userEast, deptSalesEast)
	s.PutUser(userOps, deptOps)
	return s
}

func newCore(t *testing.T, s *authztest.MemStore) *authz.Core {
	t.Helper()
	c := authz.New(s, authz.Options{
		Locker:             keylock.New(),
		SuperAdminUserID:   userAdmin,
		SuperAdminRoleCode: authz.SuperAdminRoleCode,
	})
	require.NoError(t, c.Load(context.Background()))
	return c
}

// recorder captures emitted invalidations.
type recorder struct {
	mu   sync.Mutex
	invs []authz.Invalidation
}

func record(c *authz.Core) *recorder {
	r := &recorder{}
	c.Signals.Subscribe(authz.ListenerFunc(func(_ context.Context, inv authz.Invalidation) {
		r.mu.Lock()
		r.invs = append(r.invs, inv)
		r.mu.Unlock()
	}))
	return r
}

func (r *recorder) all() []authz.Invalidation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]authz.Invalidation(nil), r.invs...)
}

func (r *recorder) last() authz.Invalidation {
	all := r.all()
	if len(all) == 0 {
		return authz.Invalidation{}
	}
	return all[len(all)-1]
}
