package system

import (
	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/util/retcode"
	"go-sysadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

type DeptHandler struct{ d Dependencies }

func NewDeptHandler(d Dependencies) *DeptHandler { return &DeptHandler{d: d} }

type deptReq struct {
	ParentID    int64        `json:"parent_id"`
	Name        string       `json:"name" binding:"required"`
	Description string       `json:"description"`
	Sort        int          `json:"sort"`
	Status      authz.Status `json:"status"`
}

func (r deptReq) params() authz.DeptParams {
	return authz.DeptParams{ParentID: r.ParentID, Name: r.Name, Description: r.Description, Sort: r.Sort, Status: r.Status}
}

func (h *DeptHandler) List(c *gin.Context) {
	tree := h.d.Core.DeptTree
	response.Success(c, buildTree(tree.Nodes(), func(n authz.Dept) map[string]interface{} {
		return map[string]interface{}{"description": n.Attrs.Description, "ancestors": tree.AncestorsString(n.ID)}
	}))
}

func (h *DeptHandler) Create(c *gin.Context) {
	var req deptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	n, err := h.d.Core.Depts.Create(c.Request.Context(), req.params())
	if err != nil {
		h.d.fail(c, "dept.create", err)
		return
	}
	response.Success(c, gin.H{"id": n.ID})
}

func (h *DeptHandler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req deptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFail(c, err)
		return
	}
	if _, err := h.d.Core.Depts.Update(c.Request.Context(), id, req.params()); err != nil {
		h.d.fail(c, "dept.update", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *DeptHandler) Move(c *gin.Context) {
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
	n, err := h.d.Core.Depts.Move(c.Request.Context(), id, *req.ParentID)
	if err != nil {
		h.d.fail(c, "dept.move", err)
		return
	}
	response.Success(c, gin.H{"ok": true, "ancestors": h.d.Core.DeptTree.AncestorsString(n.ID)})
}

func (h *DeptHandler) SetStatus(c *gin.Context) {
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
	if _, err := h.d.Core.Depts.SetStatus(c.Request.Context(), id, req.Status); err != nil {
		h.d.fail(c, "dept.status", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *DeptHandler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.d.Core.Depts.Delete(c.Request.Context(), id); err != nil {
		h.d.fail(c, "dept.delete", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
