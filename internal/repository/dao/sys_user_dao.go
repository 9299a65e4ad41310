package dao

import (
	"context"
	"errors"
	"fmt"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/domain/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// UserScopeColumns 用户列表的数据权限列；仅本人即只能看到自己
var UserScopeColumns = authz.ScopeColumns{Table: "sys_user", Dept: "dept_id", Owner: "id"}

type SysUserDAO struct{ DB *gorm.DB }

func NewSysUserDAO(db *gorm.DB) *SysUserDAO { return &SysUserDAO{DB: db} }

func (d *SysUserDAO) tracer() trace.Tracer { return otel.Tracer("dao.sys_user") }

// DeptOf 返回用户所属部门；用户不存在时 ok=false
func (d *SysUserDAO) DeptOf(ctx context.Context, uid int64) (int64, bool, error) {
	ctx, span := d.tracer().Start(ctx, "SysUserDAO.DeptOf")
	defer span.End()
	var u model.SysUser
	err := d.DB.WithContext(ctx).Select("id", "dept_id").Where("id = ?", uid).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, record(span, fmt.Errorf("user dept uid=%d: %w", uid, err))
	}
	return u.DeptID, true, nil
}

func (d *SysUserDAO) CountByDept(ctx context.Context, deptID int64) (int64, error) {
	ctx, span := d.tracer().Start(ctx, "SysUserDAO.CountByDept")
	defer span.End()
	var n int64
	if err := d.DB.WithContext(ctx).Model(&model.SysUser{}).Where("dept_id = ?", deptID).Count(&n).Error; err != nil {
		return 0, record(span, fmt.Errorf("count users dept=%d: %w", deptID, err))
	}
	return n, nil
}

func (d *SysUserDAO) SetDept(ctx context.Context, tx *gorm.DB, uid, deptID int64) error {
	ctx, span := d.tracer().Start(ctx, "SysUserDAO.SetDept")
	defer span.End()
	res := conn(d.DB, tx).WithContext(ctx).Model(&model.SysUser{}).Where("id = ?", uid).Update("dept_id", deptID)
	if res.Error != nil {
		return record(span, fmt.Errorf("set dept uid=%d: %w", uid, res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set dept uid=%d: %w", uid, authz.ErrNotFound)
	}
	return nil
}

func (d *SysUserDAO) Delete(ctx context.Context, tx *gorm.DB, uid int64) error {
	ctx, span := d.tracer().Start(ctx, "SysUserDAO.Delete")
	defer span.End()
	res := conn(d.DB, tx).WithContext(ctx).Delete(&model.SysUser{}, uid)
	if res.Error != nil {
		return record(span, fmt.Errorf("delete user uid=%d: %w", uid, res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete user uid=%d: %w", uid, authz.ErrNotFound)
	}
	return nil
}

// ListScoped 分页列出数据权限范围内的用户；page 从 1 开始
func (d *SysUserDAO) ListScoped(ctx context.Context, scope authz.Scope, page, size int) ([]model.SysUser, int64, error) {
	ctx, span := d.tracer().Start(ctx, "SysUserDAO.ListScoped", trace.WithAttributes(attribute.String("scope", scope.Kind.String())))
	defer span.End()
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 500 {
		size = 20
	}
	q := d.DB.WithContext(ctx).Model(&model.SysUser{}).Scopes(scope.Apply(UserScopeColumns))
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, record(span, fmt.Errorf("count scoped users: %w", err))
	}
	var list []model.SysUser
	if err := q.Order("id ASC").Offset((page - 1) * size).Limit(size).Find(&list).Error; err != nil {
		return nil, 0, record(span, fmt.Errorf("list scoped users: %w", err))
	}
	return list, total, nil
}
