package dao

import (
	"context"
	"fmt"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/domain/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type SysDeptDAO struct{ DB *gorm.DB }

func NewSysDeptDAO(db *gorm.DB) *SysDeptDAO { return &SysDeptDAO{DB: db} }

func (d *SysDeptDAO) tracer() trace.Tracer { return otel.Tracer("dao.sys_dept") }

func (d *SysDeptDAO) List(ctx context.Context) ([]model.SysDept, error) {
	ctx, span := d.tracer().Start(ctx, "SysDeptDAO.List")
	defer span.End()
	var list []model.SysDept
	if err := d.DB.WithContext(ctx).Order("parent_id ASC, sort ASC, id ASC").Find(&list).Error; err != nil {
		return nil, record(span, fmt.Errorf("list depts: %w", err))
	}
	return list, nil
}

func (d *SysDeptDAO) Create(ctx context.Context, tx *gorm.DB, m *model.SysDept) error {
	ctx, span := d.tracer().Start(ctx, "SysDeptDAO.Create")
	defer span.End()
	if err := conn(d.DB, tx).WithContext(ctx).Create(m).Error; err != nil {
		return record(span, fmt.Errorf("create dept: %w", err))
	}
	return nil
}

// Update 覆盖除 ancestors 以外的字段
func (d *SysDeptDAO) Update(ctx context.Context, tx *gorm.DB, m *model.SysDept) error {
	ctx, span := d.tracer().Start(ctx, "SysDeptDAO.Update")
	defer span.End()
	res := conn(d.DB, tx).WithContext(ctx).Model(&model.SysDept{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
		"name": m.Name, "parent_id": m.ParentID, "description": m.Description,
		"sort": m.Sort, "status": m.Status, "is_system": m.IsSystem,
	})
	if res.Error != nil {
		return record(span, fmt.Errorf("update dept id=%d: %w", m.ID, res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update dept id=%d: %w", m.ID, authz.ErrNotFound)
	}
	return nil
}

// SetAncestors 批量改写 ancestors，移动子树时使用
func (d *SysDeptDAO) SetAncestors(ctx context.Context, tx *gorm.DB, rows map[int64]string) error {
	ctx, span := d.tracer().Start(ctx, "SysDeptDAO.SetAncestors", trace.WithAttributes(attribute.Int("rows", len(rows))))
	defer span.End()
	db := conn(d.DB, tx).WithContext(ctx)
	for id, a := range rows {
		if err := db.Model(&model.SysDept{}).Where("id = ?", id).Update("ancestors", a).Error; err != nil {
			return record(span, fmt.Errorf("set ancestors id=%d: %w", id, err))
		}
	}
	return nil
}

func (d *SysDeptDAO) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	ctx, span := d.tracer().Start(ctx, "SysDeptDAO.Delete")
	defer span.End()
	if err := conn(d.DB, tx).WithContext(ctx).Delete(&model.SysDept{}, id).Error; err != nil {
		return record(span, fmt.Errorf("delete dept id=%d: %w", id, err))
	}
	return nil
}
