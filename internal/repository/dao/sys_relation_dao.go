package dao

import (
	"context"
	"fmt"

	"go-sysadmin/internal/domain/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// RelationDAO 维护 sys_user_role / sys_role_menu / sys_role_dept 三张关联表
type RelationDAO struct{ DB *gorm.DB }

func NewRelationDAO(db *gorm.DB) *RelationDAO { return &RelationDAO{DB: db} }

func (d *RelationDAO) tracer() trace.Tracer { return otel.Tracer("dao.sys_relation") }

func (d *RelationDAO) ListUserRoles(ctx context.Context) ([]model.SysUserRole, error) {
	ctx, span := d.tracer().Start(ctx, "RelationDAO.ListUserRoles")
	defer span.End()
	var rows []model.SysUserRole
	if err := d.DB.WithContext(ctx).Order("user_id, role_id").Find(&rows).Error; err != nil {
		return nil, record(span, fmt.Errorf("list user roles: %w", err))
	}
	return rows, nil
}

func (d *RelationDAO) ListRoleMenus(ctx context.Context) ([]model.SysRoleMenu, error) {
	ctx, span := d.tracer().Start(ctx, "RelationDAO.ListRoleMenus")
	defer span.End()
	var rows []model.SysRoleMenu
	if err := d.DB.WithContext(ctx).Order("role_id, menu_id").Find(&rows).Error; err != nil {
		return nil, record(span, fmt.Errorf("list role menus: %w", err))
	}
	return rows, nil
}

func (d *RelationDAO) ListRoleDepts(ctx context.Context) ([]model.SysRoleDept, error) {
	ctx, span := d.tracer().Start(ctx, "RelationDAO.ListRoleDepts")
	defer span.End()
	var rows []model.SysRoleDept
	if err := d.DB.WithContext(ctx).Order("role_id, dept_id").Find(&rows).Error; err != nil {
		return nil, record(span, fmt.Errorf("list role depts: %w", err))
	}
	return rows, nil
}

// ReplaceUserRoles 先删后插，需在外部事务内调用
func (d *RelationDAO) ReplaceUserRoles(ctx context.Context, tx *gorm.DB, uid int64, roleIDs []int64) error {
	ctx, span := d.tracer().Start(ctx, "RelationDAO.ReplaceUserRoles")
	defer span.End()
	db := conn(d.DB, tx).WithContext(ctx)
	if err := db.Where("user_id = ?", uid).Delete(&model.SysUserRole{}).Error; err != nil {
		return record(span, fmt.Errorf("replace user roles (delete) uid=%d: %w", uid, err))
	}
	if len(roleIDs) == 0 {
		return nil
	}
	rows := make([]model.SysUserRole, 0, len(roleIDs))
	for _, rid := range roleIDs {
		rows = append(rows, model.SysUserRole{UserID: uid, RoleID: rid})
	}
	if err := db.Create(&rows).Error; err != nil {
		return record(span, fmt.Errorf("replace user roles (insert) uid=%d: %w", uid, err))
	}
	return nil
}

func (d *RelationDAO) ReplaceRoleMenus(ctx context.Context, tx *gorm.DB, roleID int64, menuIDs []int64) error {
	ctx, span := d.tracer().Start(ctx, "RelationDAO.ReplaceRoleMenus")
	defer span.End()
	db := conn(d.DB, tx).WithContext(ctx)
	if err := db.Where("role_id = ?", roleID).Delete(&model.SysRoleMenu{}).Error; err != nil {
		return record(span, fmt.Errorf("replace role menus (delete) role=%d: %w", roleID, err))
	}
	if len(menuIDs) == 0 {
		return nil
	}
	rows := make([]model.SysRoleMenu, 0, len(menuIDs))
	for _, mid := range menuIDs {
		rows = append(rows, model.SysRoleMenu{RoleID: roleID, MenuID: mid})
	}
	if err := db.Create(&rows).Error; err != nil {
		return record(span, fmt.Errorf("replace role menus (insert) role=%d: %w", roleID, err))
	}
	return nil
}

func (d *RelationDAO) ReplaceRoleDepts(ctx context.Context, tx *gorm.DB, roleID int64, deptIDs []int64) error {
	ctx, span := d.tracer().Start(ctx, "RelationDAO.ReplaceRoleDepts")
	defer span.End()
	db := conn(d.DB, tx).WithContext(ctx)
	if err := db.Where("role_id = ?", roleID).Delete(&model.SysRoleDept{}).Error; err != nil {
		return record(span, fmt.Errorf("replace role depts (delete) role=%d: %w", roleID, err))
	}
	if len(deptIDs) == 0 {
		return nil
	}
	rows := make([]model.SysRoleDept, 0, len(deptIDs))
	for _, did := range deptIDs {
		rows = append(rows, model.SysRoleDept{RoleID: roleID, DeptID: did})
	}
	if err := db.Create(&rows).Error; err != nil {
		return record(span, fmt.Errorf("replace role depts (insert) role=%d: %w", roleID, err))
	}
	return nil
}

// PurgeRole 删除角色的全部关联
func (d *RelationDAO) PurgeRole(ctx context.Context, tx *gorm.DB, roleID int64) error {
	ctx, span := d.tracer().Start(ctx, "RelationDAO.PurgeRole")
	defer span.End()
	db := conn(d.DB, tx).WithContext(ctx)
	for _, m := range []interface{}{&model.SysUserRole{}, &model.SysRoleMenu{}, &model.SysRoleDept{}} {
		if err := db.Where("role_id = ?", roleID).Delete(m).Error; err != nil {
			return record(span, fmt.Errorf("purge role relations role=%d: %w", roleID, err))
		}
	}
	return nil
}

func (d *RelationDAO) PurgeMenu(ctx context.Context, tx *gorm.DB, menuID int64) error {
	ctx, span := d.tracer().Start(ctx, "RelationDAO.PurgeMenu")
	defer span.End()
	if err := conn(d.DB, tx).WithContext(ctx).Where("menu_id = ?", menuID).Delete(&model.SysRoleMenu{}).Error; err != nil {
		return record(span, fmt.Errorf("purge menu relations menu=%d: %w", menuID, err))
	}
	return nil
}

func (d *RelationDAO) PurgeDept(ctx context.Context, tx *gorm.DB, deptID int64) error {
	ctx, span := d.tracer().Start(ctx, "RelationDAO.PurgeDept")
	defer span.End()
	if err := conn(d.DB, tx).WithContext(ctx).Where("dept_id = ?", deptID).Delete(&model.SysRoleDept{}).Error; err != nil {
		return record(span, fmt.Errorf("purge dept relations dept=%d: %w", deptID, err))
	}
	return nil
}

func (d *RelationDAO) PurgeUser(ctx context.Context, tx *gorm.DB, uid int64) error {
	ctx, span := d.tracer().Start(ctx, "RelationDAO.PurgeUser")
	defer span.End()
	if err := conn(d.DB, tx).WithContext(ctx).Where("user_id = ?", uid).Delete(&model.SysUserRole{}).Error; err != nil {
		return record(span, fmt.Errorf("purge user relations uid=%d: %w", uid, err))
	}
	return nil
}
