package system

import (
	"go-sysadmin/internal/server/http/middleware/security"
	"go-sysadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler 当前登录用户的授权信息
type AuthHandler struct{ d Dependencies }

func NewAuthHandler(d Dependencies) *AuthHandler { return &AuthHandler{d: d} }

func (h *AuthHandler) Permissions(c *gin.Context) {
	uid := c.GetInt64(security.UserIDKey)
	p := h.d.Core.Resolver.PermissionsOf(c.Request.Context(), uid)
	response.Success(c, gin.H{
		"user_id":     uid,
		"super_admin": h.d.Core.IsSuperAdmin(uid),
		"roles":       h.d.Core.Resolver.RoleCodes(uid),
		"permissions": p.Codes,
		"menu_ids":    p.MenuIDs,
	})
}

func (h *AuthHandler) Scope(c *gin.Context) {
	uid := c.GetInt64(security.UserIDKey)
	s := h.d.Core.Scopes.ScopeOf(c.Request.Context(), uid)
	response.Success(c, gin.H{"kind": s.Kind.String(), "dept_ids": s.DeptIDs, "owner_id": s.OwnerID})
}
