package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency distribution",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})
	RequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"path", "method", "status"})
	Inflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "In-flight HTTP requests",
	})
	DBUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_up",
		Help: "Database connectivity (1=up,0=down)",
	})
	RedisUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_up",
		Help: "Redis connectivity (1=up,0=down)",
	})
	KafkaUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kafka_up",
		Help: "Kafka connectivity (1=up,0=down)",
	})
	EtcdUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "etcd_up",
		Help: "Etcd connectivity (1=up,0=down)",
	})
	DependencyCheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dependency_check_duration_seconds",
		Help:    "Latency of dependency health checks",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.4, 0.8, 1},
	}, []string{"dep"})
)

// 授权核心指标
var (
	PermissionCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_permission_cache_total",
		Help: "Permission lookups by cache result (hit/miss/bypass)",
	}, []string{"result"})
	PermissionInvalidateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_permission_invalidate_total",
		Help: "Cache invalidations by source",
	}, []string{"source"})
	PermissionInvalidateUsersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authz_permission_invalidate_users_total",
		Help: "Users whose permission cache was invalidated",
	})
	CacheNilHit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_nil_hit_total",
		Help: "Hits on the negative-cache sentinel",
	})
	TreeMutationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_tree_mutation_total",
		Help: "Menu/dept tree mutations by result",
	}, []string{"tree", "op", "result"})
	ScopeInvalidateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_scope_invalidate_total",
		Help: "Data scope cache invalidations by breadth (all/users)",
	}, []string{"breadth"})
	ScopeResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_scope_resolve_total",
		Help: "Data scope resolutions by outcome",
	}, []string{"kind"})
	AuthzLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "authz_lock_wait_seconds",
		Help:    "Time spent acquiring entity locks",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
	AuthzSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_sync_total",
		Help: "Cross-instance invalidation events by direction and result",
	}, []string{"direction", "result"})
)

// RegisterGaugeFunc 注册按需采样的 gauge；重复注册（测试里多次构建）时忽略
func RegisterGaugeFunc(name, help string, fn func() float64) {
	err := prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
	var are prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &are) {
		panic(err)
	}
}
