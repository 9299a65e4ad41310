package system

import (
	"errors"
	"sort"
	"strconv"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/util/retcode"
	"go-sysadmin/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, retcode.PARAM_INVALID, "invalid id")
		return 0, false
	}
	return id, true
}

func qInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// codeOf 授权错误类别到业务码
func codeOf(err error) int {
	switch {
	case errors.Is(err, authz.ErrNotFound):
		return retcode.NOT_EXISTS
	case errors.Is(err, authz.ErrDuplicate):
		return retcode.DATA_EXISTS
	case errors.Is(err, authz.ErrCycle):
		return retcode.PARAM_INVALID
	case errors.Is(err, authz.ErrProtected):
		return retcode.INVALID
	case errors.Is(err, authz.ErrHasChildren), errors.Is(err, authz.ErrInUse):
		return retcode.DELETE_FAILED
	}
	return retcode.DB_SAVE_ERROR
}

func (d Dependencies) fail(c *gin.Context, op string, err error) {
	code := codeOf(err)
	if code == retcode.DB_SAVE_ERROR && d.Logger != nil {
		d.Logger.WithContext(c.Request.Context()).Error("system_op_failed", zap.String("op", op), zap.Error(err))
	}
	response.Error(c, code, err.Error())
}

func bindFail(c *gin.Context, err error) {
	response.Error(c, retcode.JSON_PARSE_FAIL, "invalid body: "+err.Error())
}

// treeItem 菜单/部门树的通用输出节点
type treeItem struct {
	ID       int64                  `json:"id"`
	ParentID int64                  `json:"parent_id"`
	Name     string                 `json:"name"`
	Status   authz.Status           `json:"status"`
	IsSystem bool                   `json:"is_system"`
	Sort     int                    `json:"sort"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
	Children []*treeItem            `json:"children,omitempty"`
}

// buildTree 按 sort、id 排序挂载子节点
func buildTree[T any](nodes []authz.Node[T], extra func(authz.Node[T]) map[string]interface{}) []*treeItem {
	items := make(map[int64]*treeItem, len(nodes))
	for _, n := range nodes {
		items[n.ID] = &treeItem{ID: n.ID, ParentID: n.ParentID, Name: n.Name, Status: n.Status, IsSystem: n.IsSystem, Sort: n.Sort, Extra: extra(n)}
	}
	roots := make([]*treeItem, 0)
	for _, n := range nodes {
		it := items[n.ID]
		if p, ok := items[n.ParentID]; ok {
			p.Children = append(p.Children, it)
		} else {
			roots = append(roots, it)
		}
	}
	var order func(list []*treeItem)
	order = func(list []*treeItem) {
		sortItems(list)
		for _, it := range list {
			order(it.Children)
		}
	}
	order(roots)
	return roots
}

func sortItems(list []*treeItem) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Sort != list[j].Sort {
			return list[i].Sort < list[j].Sort
		}
		return list[i].ID < list[j].ID
	})
}
