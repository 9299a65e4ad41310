package system

import (
	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/logging"
	"go-sysadmin/internal/repository/dao"
)

// Dependencies system 子包最小依赖集合
type Dependencies struct {
	Core   *authz.Core
	Users  *dao.SysUserDAO
	Logger *logging.Logger
}
