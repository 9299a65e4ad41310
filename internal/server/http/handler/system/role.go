package system

import (
	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/util/retcode"
	"go-sysadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct{ d Dependencies }

func NewRoleHandler(d Dependencies) *RoleHandler { return &RoleHandler{d: d} }

type roleReq struct {
	Name        string          `json:"name" binding:"required"`
	Code        string          `json:"code" binding:"required"`
	DataScope   authz.DataScope `json:"data_scope" binding:"required,min=1,max=5"`
	Description string          `json:"description"`
	Sort        int             `json:"sort"`
}

func (r roleReq) params() authz.RoleParams {
	return authz.RoleParams{Name: r.Name, Code: r.Code, DataScope: r.DataScope, Description: r.Description, Sort: r.Sort}
}

type roleView struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Code        string          `json:"code"`
	DataScope   authz.DataScope `json:"data_scope"`
	Description string          `json:"description"`
	Sort        int             `json:"sort"`
	IsSystem    bool            `json:"is_system"`
}

func (h *RoleHandler) List(c *gin.Context) {
	roles := h.d.Core.Roles.List()
	out := make([]roleView, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleView{ID: r.ID, Name: r.Name, Code: r.Code, DataScope: r.DataScope, Description: r.Description, Sort: r.Sort, IsSystem: r.IsSystem})
	}
	response.Success(c, out)
}

func (h *RoleHandler) Create(c *gin.Context) {
	var req roleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	r, err := h.d.Core.Roles.Create(c.Request.Context(), req.params())
	if err != nil {
		h.d.fail(c, "role.create", err)
		return
	}
	response.Success(c, gin.H{"id": r.ID})
}

func (h *RoleHandler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req roleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	if _, err := h.d.Core.Roles.Update(c.Request.Context(), id, req.params()); err != nil {
		h.d.fail(c, "role.update", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *RoleHandler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.d.Core.Roles.Delete(c.Request.Context(), id); err != nil {
		h.d.fail(c, "role.delete", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *RoleHandler) Menus(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if !h.d.Core.Roles.Exists(id) {
		response.Error(c, retcode.NOT_EXISTS, "role not found")
		return
	}
	response.Success(c, gin.H{"menu_ids": nonNil(h.d.Core.Graph.MenusOf(id))})
}

type idsReq struct {
	IDs []int64 `json:"ids"`
}

func (h *RoleHandler) SetMenus(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req idsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	if err := h.d.Core.Graph.AssignMenus(c.Request.Context(), id, req.IDs); err != nil {
		h.d.fail(c, "role.menus", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *RoleHandler) Depts(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if !h.d.Core.Roles.Exists(id) {
		response.Error(c, retcode.NOT_EXISTS, "role not found")
		return
	}
	response.Success(c, gin.H{"dept_ids": nonNil(h.d.Core.Graph.DeptsOf(id))})
}

func (h *RoleHandler) SetDepts(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req idsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	if err := h.d.Core.Graph.AssignDepts(c.Request.Context(), id, req.IDs); err != nil {
		h.d.fail(c, "role.depts", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
