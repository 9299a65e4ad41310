package dao

import (
	"context"
	"fmt"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/domain/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type SysRoleDAO struct{ DB *gorm.DB }

func NewSysRoleDAO(db *gorm.DB) *SysRoleDAO { return &SysRoleDAO{DB: db} }

func (d *SysRoleDAO) tracer() trace.Tracer { return otel.Tracer("dao.sys_role") }

func (d *SysRoleDAO) List(ctx context.Context) ([]model.SysRole, error) {
	ctx, span := d.tracer().Start(ctx, "SysRoleDAO.List")
	defer span.End()
	var list []model.SysRole
	if err := d.DB.WithContext(ctx).Order("sort ASC, id ASC").Find(&list).Error; err != nil {
		return nil, record(span, fmt.Errorf("list roles: %w", err))
	}
	return list, nil
}

func (d *SysRoleDAO) Create(ctx context.Context, tx *gorm.DB, r *model.SysRole) error {
	ctx, span := d.tracer().Start(ctx, "SysRoleDAO.Create")
	defer span.End()
	if err := conn(d.DB, tx).WithContext(ctx).Create(r).Error; err != nil {
		return record(span, fmt.Errorf("create role: %w", err))
	}
	return nil
}

func (d *SysRoleDAO) Update(ctx context.Context, tx *gorm.DB, r *model.SysRole) error {
	ctx, span := d.tracer().Start(ctx, "SysRoleDAO.Update")
	defer span.End()
	res := conn(d.DB, tx).WithContext(ctx).Model(&model.SysRole{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
		"name": r.Name, "code": r.Code, "data_scope": r.DataScope,
		"description": r.Description, "sort": r.Sort, "is_system": r.IsSystem,
	})
	if res.Error != nil {
		return record(span, fmt.Errorf("update role id=%d: %w", r.ID, res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update role id=%d: %w", r.ID, authz.ErrNotFound)
	}
	return nil
}

func (d *SysRoleDAO) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	ctx, span := d.tracer().Start(ctx, "SysRoleDAO.Delete")
	defer span.End()
	if err := conn(d.DB, tx).WithContext(ctx).Delete(&model.SysRole{}, id).Error; err != nil {
		return record(span, fmt.Errorf("delete role id=%d: %w", id, err))
	}
	return nil
}
