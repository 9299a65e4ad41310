package boot

import (
	"github.com/google/wire"
)

var ProviderSet = wire.NewSet(
	ProvideConfig,
	NewLogger,
	NewInstanceID,
	NewPostgres,
	NewRedis,
	NewKafkaProducer,
	NewEtcd,
	NewJWTManager,
	// authz
	NewPermissionCache,
	NewEtcdLocker,
	NewAuthzCore,
	NewUserDAO,
	// http
	NewHealthChecker,
	NewRouter,
	NewApp,
)
