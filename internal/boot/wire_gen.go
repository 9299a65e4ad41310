// 手工维护的装配代码，与 injector.go 中 wire.Build 的 provider 顺序保持一致。
// 调整 provider 后可运行 go generate 由 wire 重新生成并覆盖本文件。

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package boot

func InitApp(configPath string) (*App, error) {
	config, err := ProvideConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(config)
	if err != nil {
		return nil, err
	}
	instanceID := NewInstanceID()
	db, err := NewPostgres(config)
	if err != nil {
		return nil, err
	}
	client := NewRedis(config)
	producer := NewKafkaProducer(config)
	etcdClient, err := NewEtcd(config)
	if err != nil {
		return nil, err
	}
	manager := NewJWTManager(config)
	cache := NewPermissionCache(config, client)
	locker := NewEtcdLocker(config, logger, etcdClient)
	core, err := NewAuthzCore(config, logger, db, locker, cache)
	if err != nil {
		return nil, err
	}
	sysUserDAO := NewUserDAO(db)
	healthChecker := NewHealthChecker(db, client, producer, etcdClient)
	engine := NewRouter(config, logger, manager, core, sysUserDAO, healthChecker)
	app := NewApp(config, logger, instanceID, db, client, producer, etcdClient, manager, core, locker, engine)
	return app, nil
}
