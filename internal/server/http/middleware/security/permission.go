package security

import (
	"context"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/util/retcode"
	"go-sysadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

// ScopeKey gin.Context 中编译后数据权限的键
const ScopeKey = "data_scope"

// Checker 由 authz.PermissionResolver 实现
type Checker interface {
	HasAnyPermission(ctx context.Context, uid int64, codes ...string) bool
}

// Scoper 由 authz.DataScopeCompiler 实现
type Scoper interface {
	ScopeOf(ctx context.Context, uid int64) authz.Scope
}

// RequirePerm 要求当前用户持有任一权限码；超级管理员与 *:*:* 持有者由 Checker 放行
func RequirePerm(chk Checker, codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetInt64(UserIDKey)
		if uid <= 0 {
			response.Error(c, retcode.AUTH_ERROR, "unauthorized")
			c.Abort()
			return
		}
		if len(codes) > 0 && !chk.HasAnyPermission(c.Request.Context(), uid, codes...) {
			response.Error(c, retcode.AUTH_ERROR, "forbidden")
			c.Abort()
			return
		}
		c.Next()
	}
}

// DataScope 把当前用户的数据权限放入上下文，handler 通过 ScopeFrom 读取
func DataScope(s Scoper) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetInt64(UserIDKey)
		if uid > 0 {
			c.Set(ScopeKey, s.ScopeOf(c.Request.Context(), uid))
		}
		c.Next()
	}
}

// ScopeFrom 读取 DataScope 写入的范围；缺失时只允许本人数据
func ScopeFrom(c *gin.Context) authz.Scope {
	if v, ok := c.Get(ScopeKey); ok {
		if s, ok := v.(authz.Scope); ok {
			return s
		}
	}
	return authz.OwnerOnly(c.GetInt64(UserIDKey))
}
