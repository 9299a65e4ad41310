package system

import (
	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/util/retcode"
	"go-sysadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

type MenuHandler struct{ d Dependencies }

func NewMenuHandler(d Dependencies) *MenuHandler { return &MenuHandler{d: d} }

type menuReq struct {
	ParentID   int64          `json:"parent_id"`
	Title      string         `json:"title" binding:"required"`
	Type       authz.MenuType `json:"type" binding:"required,min=1,max=3"`
	Permission string         `json:"permission"`
	Path       string         `json:"path"`
	Name       string         `json:"name"`
	Component  string         `json:"component"`
	Redirect   string         `json:"redirect"`
	Icon       string         `json:"icon"`
	IsExternal bool           `json:"is_external"`
	IsCache    bool           `json:"is_cache"`
	IsHidden   bool           `json:"is_hidden"`
	Sort       int            `json:"sort"`
	Status     authz.Status   `json:"status"`
}

func (r menuReq) params() authz.MenuParams {
	return authz.MenuParams{
		ParentID: r.ParentID, Title: r.Title, Type: r.Type, Permission: r.Permission,
		Path: r.Path, RouteName: r.Name, Component: r.Component, Redirect: r.Redirect, Icon: r.Icon,
		IsExternal: r.IsExternal, IsCache: r.IsCache, IsHidden: r.IsHidden, Sort: r.Sort, Status: r.Status,
	}
}

func menuExtra(n authz.Menu) map[string]interface{} {
	return map[string]interface{}{
		"type": n.Attrs.Type, "permission": n.Attrs.Permission, "path": n.Attrs.Path,
		"route_name": n.Attrs.RouteName, "component": n.Attrs.Component, "redirect": n.Attrs.Redirect,
		"icon": n.Attrs.Icon, "is_external": n.Attrs.IsExternal, "is_cache": n.Attrs.IsCache, "is_hidden": n.Attrs.IsHidden,
	}
}

// List 返回完整菜单树
func (h *MenuHandler) List(c *gin.Context) {
	response.Success(c, buildTree(h.d.Core.MenuTree.Nodes(), menuExtra))
}

func (h *MenuHandler) Create(c *gin.Context) {
	var req menuReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	n, err := h.d.Core.Menus.Create(c.Request.Context(), req.params())
	if err != nil {
		h.d.fail(c, "menu.create", err)
		return
	}
	response.Success(c, gin.H{"id": n.ID})
}

// Update 不改变父节点与状态，分别走 Move / Status
func (h *MenuHandler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req menuReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	if _, err := h.d.Core.Menus.Update(c.Request.Context(), id, req.params()); err != nil {
		h.d.fail(c, "menu.update", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *MenuHandler) Move(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req struct {
		ParentID *int64 `json:"parent_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	if _, err := h.d.Core.Menus.Move(c.Request.Context(), id, *req.ParentID); err != nil {
		h.d.fail(c, "menu.move", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *MenuHandler) SetStatus(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req struct {
		Status authz.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !req.Status.Valid() {
		response.Error(c, retcode.PARAM_INVALID, "status must be 1 or 2")
		return
	}
	if _, err := h.d.Core.Menus.SetStatus(c.Request.Context(), id, req.Status); err != nil {
		h.d.fail(c, "menu.status", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *MenuHandler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.d.Core.Menus.Delete(c.Request.Context(), id); err != nil {
		h.d.fail(c, "menu.delete", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
