package http

import (
	"context"
	"time"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/config"
	"go-sysadmin/internal/logging"
	"go-sysadmin/internal/repository/dao"
	"go-sysadmin/internal/security/jwt"
	handlerset "go-sysadmin/internal/server/http/handler"
	systemh "go-sysadmin/internal/server/http/handler/system"
	"go-sysadmin/internal/server/http/middleware"
	obs "go-sysadmin/internal/server/http/middleware/observability"
	sec "go-sysadmin/internal/server/http/middleware/security"
	"go-sysadmin/internal/util/retcode"
	"go-sysadmin/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter 仅负责分组与中间件装配，具体业务放在 handler 层
func NewRouter(cfg *config.Config, logger *logging.Logger, jwtm *jwt.Manager, core *authz.Core, users *dao.SysUserDAO, hc *HealthChecker) *gin.Engine {
	var origins []string
	if cfg != nil {
		origins = cfg.HTTP.CORSOrigins
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.CORS(origins), obs.TraceMiddleware(), obs.Metrics())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, hc.Liveness()) })
	r.GET("/readyz", func(c *gin.Context) {
		if c.Query("refresh") == "1" {
			hc.Refresh()
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		res, code := hc.Readiness(ctx)
		c.JSON(code, res)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlerset.NewHandlerSet(systemh.Dependencies{Core: core, Users: users, Logger: logger})
	perm := func(codes ...string) gin.HandlerFunc { return sec.RequirePerm(core.Resolver, codes...) }

	authed := r.Group("", sec.Auth(jwtm, logger), obs.LoggerContextMiddleware(logger))
	{
		authed.GET("/auth/permissions", h.Auth.Permissions)
		authed.GET("/auth/scope", h.Auth.Scope)
	}

	sys := authed.Group("/system")
	{
		menu := sys.Group("/menu")
		menu.GET("", perm("system:menu:list"), h.Menu.List)
		menu.POST("", perm("system:menu:create"), h.Menu.Create)
		menu.PUT("/:id", perm("system:menu:update"), h.Menu.Update)
		menu.PUT("/:id/move", perm("system:menu:update"), h.Menu.Move)
		menu.PUT("/:id/status", perm("system:menu:update"), h.Menu.SetStatus)
		menu.DELETE("/:id", perm("system:menu:delete"), h.Menu.Delete)

		dept := sys.Group("/dept")
		dept.GET("", perm("system:dept:list"), h.Dept.List)
		dept.POST("", perm("system:dept:create"), h.Dept.Create)
		dept.PUT("/:id", perm("system:dept:update"), h.Dept.Update)
		dept.PUT("/:id/move", perm("system:dept:update"), h.Dept.Move)
		dept.PUT("/:id/status", perm("system:dept:update"), h.Dept.SetStatus)
		dept.DELETE("/:id", perm("system:dept:delete"), h.Dept.Delete)

		role := sys.Group("/role")
		role.GET("", perm("system:role:list"), h.Role.List)
		role.POST("", perm("system:role:create"), h.Role.Create)
		role.PUT("/:id", perm("system:role:update"), h.Role.Update)
		role.DELETE("/:id", perm("system:role:delete"), h.Role.Delete)
		role.GET("/:id/menus", perm("system:role:list"), h.Role.Menus)
		role.PUT("/:id/menus", perm("system:role:update"), h.Role.SetMenus)
		role.GET("/:id/depts", perm("system:role:list"), h.Role.Depts)
		role.PUT("/:id/depts", perm("system:role:update"), h.Role.SetDepts)

		user := sys.Group("/user")
		user.GET("", perm("system:user:list"), sec.DataScope(core.Scopes), h.User.List)
		user.GET("/:id/roles", perm("system:user:list"), h.User.Roles)
		user.PUT("/:id/roles", perm("system:user:update"), h.User.SetRoles)
		user.PUT("/:id/dept", perm("system:user:update"), h.User.SetDept)
		user.DELETE("/:id", perm("system:user:delete"), h.User.Delete)
	}

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, retcode.NOT_EXISTS, "")
	})
	return r
}
