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

type SysMenuDAO struct{ DB *gorm.DB }

func NewSysMenuDAO(db *gorm.DB) *SysMenuDAO { return &SysMenuDAO{DB: db} }

func (d *SysMenuDAO) tracer() trace.Tracer { return otel.Tracer("dao.sys_menu") }

func (d *SysMenuDAO) List(ctx context.Context) ([]model.SysMenu, error) {
	ctx, span := d.tracer().Start(ctx, "SysMenuDAO.List")
	defer span.End()
	var list []model.SysMenu
	if err := d.DB.WithContext(ctx).Order("parent_id ASC, sort ASC, id ASC").Find(&list).Error; err != nil {
		return nil, record(span, fmt.Errorf("list menus: %w", err))
	}
	return list, nil
}

func (d *SysMenuDAO) Create(ctx context.Context, tx *gorm.DB, m *model.SysMenu) error {
	ctx, span := d.tracer().Start(ctx, "SysMenuDAO.Create")
	defer span.End()
	if err := conn(d.DB, tx).WithContext(ctx).Create(m).Error; err != nil {
		return record(span, fmt.Errorf("create menu: %w", err))
	}
	return nil
}

// Update 全字段覆盖（零值同样写入）
func (d *SysMenuDAO) Update(ctx context.Context, tx *gorm.DB, m *model.SysMenu) error {
	ctx, span := d.tracer().Start(ctx, "SysMenuDAO.Update")
	defer span.End()
	res := conn(d.DB, tx).WithContext(ctx).Model(&model.SysMenu{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
		"title": m.Title, "parent_id": m.ParentID, "type": m.Type, "path": m.Path,
		"name": m.Name, "component": m.Component, "redirect": m.Redirect, "icon": m.Icon,
		"is_external": m.IsExternal, "is_cache": m.IsCache, "is_hidden": m.IsHidden,
		"permission": m.Permission, "sort": m.Sort, "status": m.Status, "is_system": m.IsSystem,
	})
	if res.Error != nil {
		return record(span, fmt.Errorf("update menu id=%d: %w", m.ID, res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update menu id=%d: %w", m.ID, authz.ErrNotFound)
	}
	return nil
}

func (d *SysMenuDAO) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	ctx, span := d.tracer().Start(ctx, "SysMenuDAO.Delete")
	defer span.End()
	if err := conn(d.DB, tx).WithContext(ctx).Delete(&model.SysMenu{}, id).Error; err != nil {
		return record(span, fmt.Errorf("delete menu id=%d: %w", id, err))
	}
	return nil
}
