package model

import "time"

// SysUser 仅保留授权相关字段，登录与资料维护不在本服务
type SysUser struct {
	ID         int64     `gorm:"primaryKey;column:id" json:"id"`
	Username   string    `gorm:"column:username;size:64;not null;uniqueIndex" json:"username"`
	Nickname   string    `gorm:"column:nickname;size:30" json:"nickname"`
	DeptID     int64     `gorm:"column:dept_id;not null;index" json:"dept_id"`
	Status     int8      `gorm:"column:status;not null;default:1" json:"status"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (SysUser) TableName() string { return "sys_user" }
