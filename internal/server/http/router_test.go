package http

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/authz/authztest"
	"go-sysadmin/internal/domain/model"
	"go-sysadmin/internal/logging"
	"go-sysadmin/internal/repository/dao"
	"go-sysadmin/internal/security/jwt"
	"go-sysadmin/internal/util/retcode"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type body struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	engine *gin.Engine
	jwt    *jwt.Manager
	core   *authz.Core
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := authztest.New()
	s.PutDept(authz.Dept{ID: 1, ParentID: authz.RootID, Name: "HQ", Status: authz.StatusEnabled, IsSystem: true})
	s.PutDept(authz.Dept{ID: 2, ParentID: 1, Name: "Sales", Status: authz.StatusEnabled})
	s.PutMenu(authz.Menu{ID: 12, ParentID: authz.RootID, Name: "Users", Status: authz.StatusEnabled, Attrs: authz.MenuAttrs{Type: authz.MenuTypeMenu, Permission: "system:user:list"}})
	s.PutRole(authz.Role{ID: 1, Name: "super", Code: authz.SuperAdminRoleCode, DataScope: authz.DataScopeAll, IsSystem: true})
	s.PutRole(authz.Role{ID: 2, Name: "viewer", Code: "viewer", DataScope: authz.DataScopeDept})
	s.PutUser(1, 1)
	s.PutUser(7, 2)
	s.RoleMenus[2] = []int64{12}
	s.UserRoles[7] = []int64{2}

	core := authz.New(s, authz.Options{SuperAdminUserID: 1, SuperAdminRoleCode: authz.SuperAdminRoleCode})
	require.NoError(t, core.Load(context.Background()))

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.SysUser{}))
	require.NoError(t, db.Create(&[]model.SysUser{
		{ID: 1, Username: "admin", DeptID: 1},
		{ID: 7, Username: "alice", DeptID: 2},
		{ID: 8, Username: "bob", DeptID: 2},
		{ID: 9, Username: "carol", DeptID: 1},
	}).Error)

	jm := jwt.NewManager("0123456789abcdef", 300, "sysadmin")
	engine := NewRouter(nil, logging.Nop(), jm, core, dao.NewSysUserDAO(db), NewHealthChecker())
	return &testServer{engine: engine, jwt: jm, core: core}
}

func (ts *testServer) do(t *testing.T, method, path string, uid int64, payload interface{}) body {
	t.Helper()
	var rd *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if uid > 0 {
		tok, err := ts.jwt.Generate(uid, "test")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	require.Equal(t, nethttp.StatusOK, w.Code)
	var b body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func TestRouter_Authentication(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, retcode.AUTH_ERROR, ts.do(t, "GET", "/auth/permissions", 0, nil).Code)

	req := httptest.NewRequest("GET", "/auth/permissions", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "invalid token")
}

func TestRouter_PermissionGate(t *testing.T) {
	ts := newTestServer(t)

	b := ts.do(t, "POST", "/system/dept", 7, gin.H{"parent_id": 1, "name": "East"})
	assert.Equal(t, retcode.AUTH_ERROR, b.Code, "viewer lacks system:dept:create")

	b = ts.do(t, "POST", "/system/dept", 1, gin.H{"parent_id": 1, "name": "East"})
	require.Equal(t, retcode.SUCCESS, b.Code, b.Msg)

	b = ts.do(t, "POST", "/system/dept", 1, gin.H{"parent_id": 1, "name": "East"})
	assert.Equal(t, retcode.DATA_EXISTS, b.Code)
}

func TestRouter_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, retcode.INVALID, ts.do(t, "DELETE", "/system/dept/1", 1, nil).Code, "system dept")
	assert.Equal(t, retcode.NOT_EXISTS, ts.do(t, "DELETE", "/system/dept/99", 1, nil).Code)
	assert.Equal(t, retcode.DELETE_FAILED, ts.do(t, "DELETE", "/system/dept/2", 1, nil).Code, "users still in dept")
	assert.Equal(t, retcode.PARAM_INVALID, ts.do(t, "PUT", "/system/dept/abc", 1, gin.H{"name": "x"}).Code)
	assert.Equal(t, retcode.JSON_PARSE_FAIL, ts.do(t, "POST", "/system/role", 1, gin.H{"name": "no code"}).Code)
	assert.Equal(t, retcode.PARAM_INVALID, ts.do(t, "PUT", "/system/menu/12/status", 1, gin.H{"status": 9}).Code)
}

func TestRouter_PermissionsAndScope(t *testing.T) {
	ts := newTestServer(t)

	b := ts.do(t, "GET", "/auth/permissions", 7, nil)
	require.Equal(t, retcode.SUCCESS, b.Code)
	var perms struct {
		SuperAdmin  bool     `json:"super_admin"`
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(b.Data, &perms))
	assert.False(t, perms.SuperAdmin)
	assert.Equal(t, []string{"viewer"}, perms.Roles)
	assert.Equal(t, []string{"system:user:list"}, perms.Permissions)

	b = ts.do(t, "GET", "/auth/scope", 7, nil)
	var scope struct {
		Kind    string  `json:"kind"`
		DeptIDs []int64 `json:"dept_ids"`
	}
	require.NoError(t, json.Unmarshal(b.Data, &scope))
	assert.Equal(t, "dept_ids", scope.Kind)
	assert.Equal(t, []int64{2}, scope.DeptIDs)
}

func TestRouter_UserListIsScoped(t *testing.T) {
	ts := newTestServer(t)

	var page struct {
		List  []model.SysUser `json:"list"`
		Count int64           `json:"count"`
	}
	b := ts.do(t, "GET", "/system/user", 7, nil)
	require.Equal(t, retcode.SUCCESS, b.Code, b.Msg)
	require.NoError(t, json.Unmarshal(b.Data, &page))
	assert.EqualValues(t, 2, page.Count)

	b = ts.do(t, "GET", "/system/user", 1, nil)
	require.NoError(t, json.Unmarshal(b.Data, &page))
	assert.EqualValues(t, 4, page.Count)
}

// Revoking the menu from the role takes effect on the next request.
func TestRouter_RoleMenuChangeIsVisibleImmediately(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, retcode.SUCCESS, ts.do(t, "GET", "/system/user", 7, nil).Code)

	b := ts.do(t, "PUT", "/system/role/2/menus", 1, gin.H{"ids": []int64{}})
	require.Equal(t, retcode.SUCCESS, b.Code, b.Msg)
	assert.Equal(t, retcode.AUTH_ERROR, ts.do(t, "GET", "/system/user", 7, nil).Code)
}

func TestRouter_MenuTreeAndMove(t *testing.T) {
	ts := newTestServer(t)
	b := ts.do(t, "POST", "/system/menu", 1, gin.H{"title": "System", "type": 1})
	require.Equal(t, retcode.SUCCESS, b.Code, b.Msg)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(b.Data, &created))

	b = ts.do(t, "PUT", "/system/menu/12/move", 1, gin.H{"parent_id": created.ID})
	require.Equal(t, retcode.SUCCESS, b.Code, b.Msg)
	b = ts.do(t, "PUT", "/system/menu/"+itoa(created.ID)+"/move", 1, gin.H{"parent_id": 12})
	assert.Equal(t, retcode.PARAM_INVALID, b.Code, "cycle")

	b = ts.do(t, "GET", "/system/menu", 1, nil)
	var tree []struct {
		ID       int64 `json:"id"`
		Children []struct {
			ID int64 `json:"id"`
		} `json:"children"`
	}
	require.NoError(t, json.Unmarshal(b.Data, &tree))
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	assert.EqualValues(t, 12, tree[0].Children[0].ID)
}

func TestRouter_Health(t *testing.T) {
	ts := newTestServer(t)
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, 200, w.Code)
	w = httptest.NewRecorder()
	ts.engine.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, w.Code)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
