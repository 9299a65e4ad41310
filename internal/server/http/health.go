package http

import (
	"context"
	"sync"
	"time"

	"go-sysadmin/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Pinger 外部依赖的探活接口
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency 一项 readiness 依赖；Pinger 为 nil 表示未启用，不影响整体状态
type Dependency struct {
	Name    string
	Pinger  Pinger
	Timeout time.Duration
	Gauge   prometheus.Gauge
}

// HealthChecker 聚合健康检查（liveness / readiness）
type HealthChecker struct {
	deps []Dependency

	cacheMu     sync.Mutex
	cacheResult map[string]interface{}
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

func NewHealthChecker(deps ...Dependency) *HealthChecker {
	for i := range deps {
		if deps[i].Timeout <= 0 {
			deps[i].Timeout = 300 * time.Millisecond
		}
	}
	return &HealthChecker{deps: deps, cacheTTL: 2 * time.Second}
}

// Liveness 仅表示进程活着，不依赖外部组件
func (h *HealthChecker) Liveness() map[string]interface{} {
	return map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
}

// Refresh 丢弃缓存结果，下次 Readiness 重新探测
func (h *HealthChecker) Refresh() {
	h.cacheMu.Lock()
	h.cacheExpiry = time.Time{}
	h.cacheMu.Unlock()
}

type depResult struct {
	name    string
	up      bool
	enabled bool
	err     string
	dur     time.Duration
}

// Readiness 并发探测全部依赖，结果短暂缓存
func (h *HealthChecker) Readiness(ctx context.Context) (map[string]interface{}, int) {
	h.cacheMu.Lock()
	if time.Now().Before(h.cacheExpiry) && h.cacheResult != nil {
		res := h.cacheResult
		h.cacheMu.Unlock()
		return res, statusOf(res)
	}
	h.cacheMu.Unlock()

	results := make([]depResult, len(h.deps))
	var wg sync.WaitGroup
	for i, d := range h.deps {
		wg.Add(1)
		go func(i int, d Dependency) {
			defer wg.Done()
			results[i] = h.check(ctx, d)
		}(i, d)
	}
	wg.Wait()

	res := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	detail := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		ms := float64(r.dur.Microseconds()) / 1000.0
		switch {
		case !r.enabled:
			res[r.name] = "disabled"
		case r.up:
			res[r.name] = "up"
		default:
			res[r.name] = r.err
			res["status"] = "degraded"
		}
		res[r.name+"_duration_ms"] = ms
		detail = append(detail, map[string]interface{}{"dep": r.name, "up": r.up, "error": r.err, "duration_ms": ms})
	}
	res["detail"] = detail

	h.cacheMu.Lock()
	h.cacheResult = res
	h.cacheExpiry = time.Now().Add(h.cacheTTL)
	h.cacheMu.Unlock()
	return res, statusOf(res)
}

func (h *HealthChecker) check(ctx context.Context, d Dependency) depResult {
	out := depResult{name: d.Name}
	if d.Pinger == nil {
		return out
	}
	out.enabled = true
	start := time.Now()
	ctx2, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	if err := d.Pinger.Ping(ctx2); err != nil {
		out.err = err.Error()
	} else {
		out.up = true
	}
	out.dur = time.Since(start)
	metrics.DependencyCheckDuration.WithLabelValues(d.Name).Observe(out.dur.Seconds())
	if d.Gauge != nil {
		if out.up {
			d.Gauge.Set(1)
		} else {
			d.Gauge.Set(0)
		}
	}
	return out
}

func statusOf(res map[string]interface{}) int {
	if res["status"] != "ok" {
		return 503
	}
	return 200
}
