package model

import "time"

// SysDept 部门表；ancestors 形如 "0,1,2"，根下节点为 "0"
type SysDept struct {
	ID          int64     `gorm:"primaryKey;column:id" json:"id"`
	Name        string    `gorm:"column:name;size:30;not null;uniqueIndex:uk_dept_name_parent" json:"name"`
	ParentID    int64     `gorm:"column:parent_id;not null;default:0;uniqueIndex:uk_dept_name_parent" json:"parent_id"`
	Ancestors   string    `gorm:"column:ancestors;size:512;not null;default:''" json:"ancestors"`
	Description string    `gorm:"column:description;size:200" json:"description"`
	Sort        int       `gorm:"column:sort;not null" json:"sort"`
	Status      int8      `gorm:"column:status;not null;default:1" json:"status"`
	IsSystem    bool      `gorm:"column:is_system" json:"is_system"`
	CreateTime  time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime  time.Time `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

func (SysDept) TableName() string { return "sys_dept" }
