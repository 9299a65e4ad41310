package boot

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/config"
	"go-sysadmin/internal/consumer/authzsync"
	"go-sysadmin/internal/discovery/etcd"
	"go-sysadmin/internal/logging"
	"go-sysadmin/internal/metrics"
	"go-sysadmin/internal/mq/kafka"
	"go-sysadmin/internal/pkg/cache"
	"go-sysadmin/internal/pkg/keylock"
	"go-sysadmin/internal/repository/dao"
	"go-sysadmin/internal/repository/postgres"
	redisrepo "go-sysadmin/internal/repository/redis"
	"go-sysadmin/internal/security/jwt"
	httpSrv "go-sysadmin/internal/server/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	go_otel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gorm.io/plugin/opentelemetry/tracing"
)

// InstanceID 本进程唯一标识：服务注册元数据、失效消息去重、消费组后缀共用
type InstanceID string

type App struct {
	Config *config.Config
	Logger *logging.Logger
	DB     *gorm.DB
	Redis  *redisrepo.Client
	Kafka  *kafka.Producer
	Etcd   *etcd.Client
	JWT    *jwt.Manager
	Authz  *authz.Core
	HTTP   *gin.Engine

	instance   InstanceID
	locker     *etcd.Locker
	consumer   *kafka.Consumer
	serviceKey string
	leaseID    clientv3.LeaseID
	tracerProv *trace.TracerProvider
	stopCh     chan struct{}
}

// Provider constructors for wire

func ProvideConfig(path string) (*config.Config, error) { return config.Load(path) }

func NewLogger(c *config.Config) (*logging.Logger, error) {
	return logging.New(c.Log.Level, c.Log.Format, c.AppMeta.Name)
}

func NewInstanceID() InstanceID { return InstanceID(uuid.NewString()) }

func NewPostgres(c *config.Config) (*gorm.DB, error) {
	return postgres.New(postgres.Config{
		DSN:         c.Postgres.DSN,
		MaxOpen:     c.Postgres.MaxOpen,
		MaxIdle:     c.Postgres.MaxIdle,
		AutoMigrate: c.Postgres.AutoMigrate,
		LogLevel:    c.Postgres.LogLevel,
	})
}

func NewRedis(c *config.Config) *redisrepo.Client {
	if c.Redis.Addr == "" {
		return nil
	}
	return redisrepo.New(redisrepo.Config{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB,
		DialTimeout:  time.Duration(c.Redis.DialTimeoutMS) * time.Millisecond,
		ReadTimeout:  time.Duration(c.Redis.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout: time.Duration(c.Redis.WriteTimeoutMS) * time.Millisecond,
	})
}

// NewKafkaProducer 未配置 brokers 时返回 nil，失效广播随之关闭
func NewKafkaProducer(c *config.Config) *kafka.Producer {
	if len(c.Kafka.Brokers) == 0 {
		return nil
	}
	return kafka.NewProducer(kafka.Config{Brokers: c.Kafka.Brokers, Topic: c.Kafka.AuthzTopic})
}

func NewEtcd(c *config.Config) (*etcd.Client, error) {
	if len(c.Etcd.Endpoints) == 0 {
		return nil, nil
	}
	return etcd.New(etcd.Config{Endpoints: c.Etcd.Endpoints, TTL: c.Etcd.TTL})
}

func NewJWTManager(c *config.Config) *jwt.Manager {
	return jwt.NewManager(c.JWT.Secret, c.JWT.ExpireSeconds, c.JWT.Issuer)
}

// NewPermissionCache L1 本地 LRU + L2 Redis；无 Redis 时退化为单层 LRU
func NewPermissionCache(c *config.Config, r *redisrepo.Client) cache.Cache {
	l1 := cache.NewLRUAdapter(c.Authz.L1Size)
	if r == nil {
		return l1
	}
	lc := cache.NewLayered(l1, cache.NewRedisAdapter(r))
	lc.L1MaxTTL = c.Authz.L1MaxTTL()
	metrics.RegisterGaugeFunc("authz_permission_cache_hit_rate", "Layered permission cache hit rate (L1+L2)",
		func() float64 { return lc.SnapshotMetrics().HitRate })
	return lc
}

func NewUserDAO(db *gorm.DB) *dao.SysUserDAO { return dao.NewSysUserDAO(db) }

// NewEtcdLocker lock_backend=etcd 时返回跨实例锁，否则 nil
func NewEtcdLocker(c *config.Config, l *logging.Logger, e *etcd.Client) *etcd.Locker {
	if c.Authz.LockBackend != "etcd" || e == nil {
		return nil
	}
	return etcd.NewLocker(e, c.Etcd.LockPrefix, c.Etcd.TTL, l.Named("etcd_lock"))
}

// NewAuthzCore 构建授权核心并加载快照；无 etcd 锁时使用进程内 keylock
func NewAuthzCore(c *config.Config, l *logging.Logger, db *gorm.DB, el *etcd.Locker, pc cache.Cache) (*authz.Core, error) {
	opts := authz.Options{
		LockTimeout:           c.Authz.LockTimeout(),
		PermissionCache:       pc,
		PermissionCachePrefix: c.Authz.PermissionCachePrefix,
		PermissionTTL:         c.Authz.PermissionTTL(),
		EmptyPermissionTTL:    c.Authz.EmptyPermissionTTL(),
		ScopeCacheSize:        c.Authz.ScopeCacheSize,
		ScopeTTL:              c.Authz.ScopeTTL(),
		SuperAdminUserID:      c.Authz.SuperAdminUserID,
		SuperAdminRoleCode:    c.Authz.SuperAdminRoleCode,
		Logger:                l.Named("authz"),
	}
	if el != nil {
		opts.Locker = el
	} else {
		opts.Locker = keylock.New()
	}
	core := authz.New(dao.NewAuthzStore(db), opts)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := core.Load(ctx); err != nil {
		return nil, fmt.Errorf("load authz: %w", err)
	}
	return core, nil
}

func NewHealthChecker(db *gorm.DB, r *redisrepo.Client, k *kafka.Producer, e *etcd.Client) *httpSrv.HealthChecker {
	deps := []httpSrv.Dependency{{Name: "db", Pinger: postgres.Pinger{DB: db}, Gauge: metrics.DBUp}}
	// typed nil 指针不能直接塞进接口，否则 readiness 会把未启用的依赖当作故障
	redisDep := httpSrv.Dependency{Name: "redis", Gauge: metrics.RedisUp}
	if r != nil {
		redisDep.Pinger = r
	}
	kafkaDep := httpSrv.Dependency{Name: "kafka", Timeout: time.Second, Gauge: metrics.KafkaUp}
	if k != nil {
		kafkaDep.Pinger = k
	}
	etcdDep := httpSrv.Dependency{Name: "etcd", Gauge: metrics.EtcdUp}
	if e != nil {
		etcdDep.Pinger = e
	}
	return httpSrv.NewHealthChecker(append(deps, redisDep, kafkaDep, etcdDep)...)
}

func NewRouter(c *config.Config, l *logging.Logger, j *jwt.Manager, core *authz.Core, users *dao.SysUserDAO, hc *httpSrv.HealthChecker) *gin.Engine {
	return httpSrv.NewRouter(c, l, j, core, users, hc)
}

func NewApp(c *config.Config, l *logging.Logger, id InstanceID, db *gorm.DB, r *redisrepo.Client, k *kafka.Producer, e *etcd.Client, j *jwt.Manager, core *authz.Core, el *etcd.Locker, engine *gin.Engine) *App {
	app := &App{Config: c, Logger: l, DB: db, Redis: r, Kafka: k, Etcd: e, JWT: j, Authz: core, HTTP: engine,
		instance: id, locker: el, stopCh: make(chan struct{})}
	if r != nil {
		app.startRedisHeartbeat()
	}
	if c.Authz.SyncEnable && k != nil {
		app.startAuthzSync()
	}
	if e != nil {
		go app.registerService()
	}
	if c.OTel.Enable {
		app.initTracing()
	}
	return app
}

func (a *App) pingTimeout() time.Duration {
	return time.Duration(a.Config.Redis.PingTimeoutMS) * time.Millisecond
}

// startRedisHeartbeat 启动时探测一次，之后按 heartbeat_sec 维护 redis_up 指标
func (a *App) startRedisHeartbeat() {
	c, l, r := a.Config, a.Logger, a.Redis
	ctx, cancel := context.WithTimeout(context.Background(), a.pingTimeout())
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		l.Error("redis_ping_failed", zap.Error(err), zap.String("addr", c.Redis.Addr))
	} else {
		l.Info("redis_ping_ok", zap.String("addr", c.Redis.Addr))
	}
	go func() {
		interval := time.Duration(c.Redis.HeartbeatSec) * time.Second
		if interval < 2*time.Second { // 下限保护
			interval = 2 * time.Second
		}
		var lastUp bool
		for {
			select {
			case <-a.stopCh:
				return
			case <-time.After(interval):
				ctx2, cancel2 := context.WithTimeout(context.Background(), a.pingTimeout())
				err := r.Ping(ctx2)
				cancel2()
				if err != nil {
					metrics.RedisUp.Set(0)
					if lastUp {
						l.Warn("redis_down", zap.Error(err))
					}
					lastUp = false
				} else {
					metrics.RedisUp.Set(1)
					if !lastUp {
						l.Info("redis_recovered")
					}
					lastUp = true
				}
			}
		}
	}()
}

// startAuthzSync 本实例提交的失效广播给对端；对端消息触发快照重载。
// 每个实例独立消费组，保证每条消息被所有实例收到
func (a *App) startAuthzSync() {
	c, l := a.Config, a.Logger
	pub := authzsync.NewPublisher(a.Kafka, string(a.instance), l.Named("authz_sync"))
	a.Authz.Signals.Subscribe(pub)

	a.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: c.Kafka.Brokers,
		GroupID: c.Kafka.GroupID + "-" + string(a.instance),
		Topics:  []string{c.Kafka.AuthzTopic},
	}, l.Named("kafka_consumer"))
	h := authzsync.NewHandler(a.Authz, string(a.instance), l.Named("authz_sync"))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-a.stopCh
		cancel()
	}()
	go func() {
		if err := a.consumer.Start(ctx, h.Handle); err != nil {
			l.Error("authz_sync_consumer_stopped", zap.Error(err))
		}
	}()
	l.Info("authz_sync_started", zap.String("topic", c.Kafka.AuthzTopic), zap.String("instance", string(a.instance)))
}

// registerService 以 ip:port 作为 key 末段，重启后 key 稳定；指数退避重试
func (a *App) registerService() {
	c, l, e := a.Config, a.Logger, a.Etcd
	ctx := context.Background()
	port := "0"
	if _, p, err := net.SplitHostPort(c.HTTP.Addr); err == nil && p != "" {
		port = p
	}
	ip := firstNonLoopbackIPv4()
	if ip == "" {
		ip = "127.0.0.1"
	}
	serviceKey := fmt.Sprintf("%s/%s/%s/%s:%s", c.Etcd.ServicePrefix, c.AppMeta.Env, c.AppMeta.Version, ip, port)
	meta := map[string]interface{}{
		"instance_id":  string(a.instance),
		"env":          c.AppMeta.Env,
		"version":      c.AppMeta.Version,
		"ip":           ip,
		"port":         port,
		"addr":         c.HTTP.Addr,
		"startup_unix": time.Now().Unix(),
	}
	valBytes, _ := json.Marshal(meta)
	const maxAttempts = 5
	for attempt := 1; ; attempt++ {
		leaseID, err := e.Register(ctx, serviceKey, string(valBytes), int64(c.Etcd.TTL))
		if err == nil {
			a.serviceKey, a.leaseID = serviceKey, leaseID
			metrics.EtcdUp.Set(1)
			l.Info("etcd_registered", zap.String("key", serviceKey))
			if peers, err := e.Discover(ctx, c.Etcd.ServicePrefix+"/"+c.AppMeta.Env+"/"); err == nil {
				l.Info("etcd_peers", zap.Int("count", len(peers)))
			}
			return
		}
		if attempt >= maxAttempts {
			l.Error("etcd_register_failed", zap.Error(err), zap.Int("attempt", attempt))
			return
		}
		backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
		l.Error("etcd_register_retry", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
		select {
		case <-a.stopCh:
			return
		case <-time.After(backoff):
		}
	}
}

// initTracing OTLP gRPC 导出；GORM 插件与 redis hook 在 provider 启用后挂载
func (a *App) initTracing() {
	c, l := a.Config, a.Logger
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.OTel.Endpoint)}
	if c.OTel.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		l.Error("otel_exporter_init_failed", zap.Error(err))
		return
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(c.AppMeta.Name),
		semconv.ServiceVersionKey.String(c.AppMeta.Version),
	))
	sampler := trace.ParentBased(trace.TraceIDRatioBased(c.OTel.SamplerRatio))
	a.tracerProv = trace.NewTracerProvider(trace.WithBatcher(exp), trace.WithResource(res), trace.WithSampler(sampler))
	go_otel.SetTracerProvider(a.tracerProv)
	go_otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	l.Info("otel_tracer_provider_initialized")
	if a.DB != nil {
		if err := a.DB.Use(tracing.NewPlugin()); err != nil {
			l.Error("gorm_tracing_plugin_failed", zap.Error(err))
		} else {
			l.Info("gorm_tracing_plugin_enabled")
		}
	}
}

func (a *App) Close() {
	if a.stopCh != nil {
		close(a.stopCh)
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.Logger.Error("kafka_consumer_close_error", zap.Error(err))
		}
	}
	// 优雅下线 etcd
	if a.Etcd != nil && a.serviceKey != "" && a.leaseID != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.Etcd.Deregister(ctx, a.serviceKey, a.leaseID); err != nil {
			a.Logger.Error("etcd_deregister_failed", zap.Error(err))
		}
		metrics.EtcdUp.Set(0)
	}
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			a.Logger.Error("etcd_lock_session_close_error", zap.Error(err))
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Error("db_close_error", zap.Error(err))
			}
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("redis_close_error", zap.Error(err))
		}
	}
	if a.Kafka != nil {
		if err := a.Kafka.Close(); err != nil {
			a.Logger.Error("kafka_close_error", zap.Error(err))
		}
	}
	if a.Etcd != nil {
		if err := a.Etcd.Close(); err != nil {
			a.Logger.Error("etcd_close_error", zap.Error(err))
		}
	}
	if a.tracerProv != nil {
		if err := a.tracerProv.Shutdown(context.Background()); err != nil {
			a.Logger.Error("otel_tracer_shutdown_error", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}

// 获取首个非 loopback IPv4
func firstNonLoopbackIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip = ip.To4(); ip != nil {
				return ip.String()
			}
		}
	}
	return ""
}
