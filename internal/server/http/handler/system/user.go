package system

import (
	"go-sysadmin/internal/server/http/middleware/security"
	"go-sysadmin/internal/util/retcode"
	"go-sysadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct{ d Dependencies }

func NewUserHandler(d Dependencies) *UserHandler { return &UserHandler{d: d} }

// List 按当前用户数据权限过滤
func (h *UserHandler) List(c *gin.Context) {
	scope := security.ScopeFrom(c)
	list, total, err := h.d.Users.ListScoped(c.Request.Context(), scope, qInt(c, "page", 1), qInt(c, "limit", 20))
	if err != nil {
		response.Error(c, retcode.DB_READ_ERROR, err.Error())
		return
	}
	response.Success(c, gin.H{"list": list, "count": total})
}

func (h *UserHandler) Roles(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	response.Success(c, gin.H{"role_ids": nonNil(h.d.Core.Graph.RolesOf(id))})
}

func (h *UserHandler) SetRoles(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req idsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	if err := h.d.Core.Graph.AssignRoles(c.Request.Context(), id, req.IDs); err != nil {
		h.d.fail(c, "user.roles", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *UserHandler) SetDept(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req struct {
		DeptID int64 `json:"dept_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	if err := h.d.Core.Users.MoveToDept(c.Request.Context(), id, req.DeptID); err != nil {
		h.d.fail(c, "user.dept", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if id == c.GetInt64(security.UserIDKey) {
		response.Error(c, retcode.INVALID, "cannot delete yourself")
		return
	}
	if h.d.Core.IsSuperAdmin(id) {
		response.Error(c, retcode.INVALID, "super admin cannot be deleted")
		return
	}
	if err := h.d.Core.Users.Forget(c.Request.Context(), id); err != nil {
		h.d.fail(c, "user.delete", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
