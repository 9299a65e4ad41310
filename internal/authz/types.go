package authz

import (
	"strconv"
	"strings"
)

const (
	// RootID 根节点哨兵，parent_id=0 表示挂在根下
	RootID int64 = 0
	// AllPermission 通配权限码，持有者通过任意 HasPermission 校验
	AllPermission = "*:*:*"
	// SuperAdminRoleCode 超级管理员角色编码
	SuperAdminRoleCode = "super_admin"
)

// Status 启用/禁用，与库表取值一致 (1 启用 2 禁用)
type Status int8

const (
	StatusEnabled  Status = 1
	StatusDisabled Status = 2
)

func (s Status) Valid() bool { return s == StatusEnabled || s == StatusDisabled }

// MenuType 菜单类型 1 目录 2 菜单 3 按钮
type MenuType int8

const (
	MenuTypeDir    MenuType = 1
	MenuTypeMenu   MenuType = 2
	MenuTypeButton MenuType = 3
)

// DataScope 数据权限范围，取值与库表一致
type DataScope int8

const (
	DataScopeAll          DataScope = 1
	DataScopeDeptAndChild DataScope = 2
	DataScopeDept         DataScope = 3
	DataScopeSelf         DataScope = 4
	DataScopeCustom       DataScope = 5
)

func (d DataScope) Valid() bool { return d >= DataScopeAll && d <= DataScopeCustom }

// rank 越大越宽
func (d DataScope) rank() int {
	switch d {
	case DataScopeAll:
		return 5
	case DataScopeDeptAndChild:
		return 4
	case DataScopeDept:
		return 3
	case DataScopeCustom:
		return 2
	case DataScopeSelf:
		return 1
	}
	return 0
}

func (d DataScope) String() string {
	switch d {
	case DataScopeAll:
		return "all"
	case DataScopeDeptAndChild:
		return "dept_and_child"
	case DataScopeDept:
		return "dept"
	case DataScopeSelf:
		return "self"
	case DataScopeCustom:
		return "custom"
	}
	return "unknown"
}

// Node 树节点；Name 为同级唯一键（菜单标题/部门名称）
type Node[T any] struct {
	ID       int64
	ParentID int64
	Name     string
	Status   Status
	IsSystem bool
	Sort     int
	Attrs    T
}

func (n Node[T]) Enabled() bool { return n.Status == StatusEnabled }

// MenuAttrs 菜单特有字段；Permission 为空串等价于 NULL
type MenuAttrs struct {
	Type       MenuType
	Permission string
	Path       string
	RouteName  string
	Component  string
	Redirect   string
	Icon       string
	IsExternal bool
	IsCache    bool
	IsHidden   bool
}

// DeptAttrs 部门特有字段
type DeptAttrs struct {
	Description string
}

type (
	Menu = Node[MenuAttrs]
	Dept = Node[DeptAttrs]
)

// Role 角色定义（关联关系由 RoleGraph 维护）
type Role struct {
	ID          int64
	Name        string
	Code        string
	DataScope   DataScope
	Description string
	Sort        int
	IsSystem    bool
}

// FormatAncestors 以根哨兵开头："0"、"0,1"、"0,1,2"
func FormatAncestors(ids []int64) string {
	var b strings.Builder
	b.WriteString("0")
	for _, id := range ids {
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}

// ParseAncestors 去掉根哨兵
func ParseAncestors(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		if id == RootID {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
