package handler

import (
	systemh "go-sysadmin/internal/server/http/handler/system"
)

// HandlerSet 聚合 system 子包 handler，供 router 使用
type HandlerSet struct {
	Auth *systemh.AuthHandler
	Menu *systemh.MenuHandler
	Dept *systemh.DeptHandler
	Role *systemh.RoleHandler
	User *systemh.UserHandler
}

func NewHandlerSet(sd systemh.Dependencies) *HandlerSet {
	return &HandlerSet{
		Auth: systemh.NewAuthHandler(sd),
		Menu: systemh.NewMenuHandler(sd),
		Dept: systemh.NewDeptHandler(sd),
		Role: systemh.NewRoleHandler(sd),
		User: systemh.NewUserHandler(sd),
	}
}
