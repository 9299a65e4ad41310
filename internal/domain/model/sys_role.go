package model

import "time"

type SysRole struct {
	ID          int64     `gorm:"primaryKey;column:id" json:"id"`
	Name        string    `gorm:"column:name;size:30;not null" json:"name"`
	Code        string    `gorm:"column:code;size:30;not null;uniqueIndex" json:"code"`
	DataScope   int8      `gorm:"column:data_scope;not null;default:4" json:"data_scope"` // 1 全部 2 本部门及以下 3 本部门 4 仅本人 5 自定义
	Description string    `gorm:"column:description;size:200" json:"description"`
	Sort        int       `gorm:"column:sort;not null" json:"sort"`
	IsSystem    bool      `gorm:"column:is_system" json:"is_system"`
	CreateTime  time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime  time.Time `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

func (SysRole) TableName() string { return "sys_role" }
