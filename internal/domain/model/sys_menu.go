package model

import "time"

// SysMenu 菜单表；目录/菜单/按钮共用一张表，按钮通过 permission 承载权限码
type SysMenu struct {
	ID         int64     `gorm:"primaryKey;column:id" json:"id"`
	Title      string    `gorm:"column:title;size:50;not null" json:"title"`
	ParentID   int64     `gorm:"column:parent_id;not null;default:0;index" json:"parent_id"`
	Type       int8      `gorm:"column:type;not null;default:1" json:"type"` // 1 目录 2 菜单 3 按钮
	Path       string    `gorm:"column:path;size:255" json:"path"`
	Name       string    `gorm:"column:name;size:50" json:"name"`
	Component  string    `gorm:"column:component;size:255" json:"component"`
	Redirect   string    `gorm:"column:redirect;size:255" json:"redirect"`
	Icon       string    `gorm:"column:icon;size:50" json:"icon"`
	IsExternal bool      `gorm:"column:is_external" json:"is_external"`
	IsCache    bool      `gorm:"column:is_cache" json:"is_cache"`
	IsHidden   bool      `gorm:"column:is_hidden" json:"is_hidden"`
	Permission *string   `gorm:"column:permission;size:100" json:"permission"` // NULL 与 "" 等价
	Sort       int       `gorm:"column:sort;not null" json:"sort"`
	Status     int8      `gorm:"column:status;not null;default:1" json:"status"`
	IsSystem   bool      `gorm:"column:is_system" json:"is_system"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime time.Time `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

func (SysMenu) TableName() string { return "sys_menu" }
