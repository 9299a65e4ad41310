package model

// 关联表均为复合主键，一行一条关系

type SysUserRole struct {
	UserID int64 `gorm:"primaryKey;column:user_id;autoIncrement:false" json:"user_id"`
	RoleID int64 `gorm:"primaryKey;column:role_id;autoIncrement:false;index" json:"role_id"`
}

func (SysUserRole) TableName() string { return "sys_user_role" }

type SysRoleMenu struct {
	RoleID int64 `gorm:"primaryKey;column:role_id;autoIncrement:false" json:"role_id"`
	MenuID int64 `gorm:"primaryKey;column:menu_id;autoIncrement:false;index" json:"menu_id"`
}

func (SysRoleMenu) TableName() string { return "sys_role_menu" }

type SysRoleDept struct {
	RoleID int64 `gorm:"primaryKey;column:role_id;autoIncrement:false" json:"role_id"`
	DeptID int64 `gorm:"primaryKey;column:dept_id;autoIncrement:false;index" json:"dept_id"`
}

func (SysRoleDept) TableName() string { return "sys_role_dept" }

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&SysMenu{}, &SysDept{}, &SysRole{}, &SysUser{},
		&SysUserRole{}, &SysRoleMenu{}, &SysRoleDept{},
	}
}
