package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Addr        string   `mapstructure:"addr"`
		CORSOrigins []string `mapstructure:"cors_origins"` // 空表示放开全部来源
		ShutdownMS  int      `mapstructure:"shutdown_timeout_ms"`
	} `mapstructure:"http"`
	Postgres struct {
		DSN         string `mapstructure:"dsn"`
		MaxOpen     int    `mapstructure:"max_open"`
		MaxIdle     int    `mapstructure:"max_idle"`
		AutoMigrate bool   `mapstructure:"auto_migrate"`
		LogLevel    string `mapstructure:"log_level"`
	} `mapstructure:"postgres"`
	Redis struct {
		Addr           string `mapstructure:"addr"`
		Password       string `mapstructure:"password"`
		DB             int    `mapstructure:"db"`
		DialTimeoutMS  int    `mapstructure:"dial_timeout_ms"`
		ReadTimeoutMS  int    `mapstructure:"read_timeout_ms"`
		WriteTimeoutMS int    `mapstructure:"write_timeout_ms"`
		PingTimeoutMS  int    `mapstructure:"ping_timeout_ms"`
		HeartbeatSec   int    `mapstructure:"heartbeat_sec"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers    []string `mapstructure:"brokers"`
		AuthzTopic string   `mapstructure:"authz_topic"`
		GroupID    string   `mapstructure:"group_id"`
	} `mapstructure:"kafka"`
	Etcd struct {
		Endpoints     []string `mapstructure:"endpoints"`
		TTL           int      `mapstructure:"ttl"`
		ServicePrefix string   `mapstructure:"service_prefix"`
		LockPrefix    string   `mapstructure:"lock_prefix"`
	} `mapstructure:"etcd"`
	JWT struct {
		Secret        string `mapstructure:"secret"`
		ExpireSeconds int    `mapstructure:"expire_seconds"`
		Issuer        string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	AppMeta struct {
		Name    string `mapstructure:"name"`
		Version string `mapstructure:"version"`
		Env     string `mapstructure:"env"`
	} `mapstructure:"app_meta"`
	OTel struct {
		Endpoint     string  `mapstructure:"endpoint"` // OTLP gRPC endpoint
		Insecure     bool    `mapstructure:"insecure"`
		SamplerRatio float64 `mapstructure:"sampler_ratio"`
		Enable       bool    `mapstructure:"enable"`
	} `mapstructure:"otel"`
	Authz Authz `mapstructure:"authz"`
}

// Authz 授权核心配置
type Authz struct {
	SuperAdminUserID      int64  `mapstructure:"super_admin_user_id"`
	SuperAdminRoleCode    string `mapstructure:"super_admin_role_code"`
	LockBackend           string `mapstructure:"lock_backend"` // local | etcd
	LockTimeoutMS         int    `mapstructure:"lock_timeout_ms"`
	PermissionCachePrefix string `mapstructure:"permission_cache_prefix"`
	PermissionTTLSec      int    `mapstructure:"permission_ttl_sec"`
	EmptyPermissionTTLSec int    `mapstructure:"empty_permission_ttl_sec"`
	L1Size                int    `mapstructure:"l1_size"`
	L1MaxTTLSec           int    `mapstructure:"l1_max_ttl_sec"`
	ScopeCacheSize        int    `mapstructure:"scope_cache_size"`
	ScopeTTLSec           int    `mapstructure:"scope_ttl_sec"`
	SyncEnable            bool   `mapstructure:"sync_enable"` // 多实例间通过 kafka 同步失效
}

func (a Authz) LockTimeout() time.Duration { return time.Duration(a.LockTimeoutMS) * time.Millisecond }
func (a Authz) PermissionTTL() time.Duration {
	return time.Duration(a.PermissionTTLSec) * time.Second
}
func (a Authz) EmptyPermissionTTL() time.Duration {
	return time.Duration(a.EmptyPermissionTTLSec) * time.Second
}
func (a Authz) L1MaxTTL() time.Duration { return time.Duration(a.L1MaxTTLSec) * time.Second }
func (a Authz) ScopeTTL() time.Duration { return time.Duration(a.ScopeTTLSec) * time.Second }

// Load 读取 YAML 配置；环境变量 SYSADMIN_<SECTION>_<KEY> 覆盖文件值
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SYSADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("postgres.max_open", 20)
	v.SetDefault("postgres.max_idle", 5)
	v.SetDefault("postgres.log_level", "warn")
	v.SetDefault("redis.dial_timeout_ms", 2000)
	v.SetDefault("redis.read_timeout_ms", 500)
	v.SetDefault("redis.write_timeout_ms", 500)
	v.SetDefault("redis.ping_timeout_ms", 1000)
	v.SetDefault("redis.heartbeat_sec", 10)
	v.SetDefault("kafka.authz_topic", "sysadmin.authz.invalidate")
	v.SetDefault("kafka.group_id", "sysadmin-authz")
	v.SetDefault("etcd.ttl", 10)
	v.SetDefault("etcd.service_prefix", "/services/sysadmin")
	v.SetDefault("etcd.lock_prefix", "/locks/sysadmin/authz")
	v.SetDefault("http.shutdown_timeout_ms", 5000)
	v.SetDefault("app_meta.name", "GoSysAdmin")
	v.SetDefault("app_meta.version", "v1")
	v.SetDefault("app_meta.env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.sampler_ratio", 1.0)
	v.SetDefault("otel.insecure", true)
	v.SetDefault("authz.super_admin_user_id", 1)
	v.SetDefault("authz.super_admin_role_code", "super_admin")
	v.SetDefault("authz.lock_backend", "local")
	v.SetDefault("authz.lock_timeout_ms", 5000)
	v.SetDefault("authz.permission_cache_prefix", "authz:perm:")
	v.SetDefault("authz.permission_ttl_sec", 1800)
	v.SetDefault("authz.empty_permission_ttl_sec", 60)
	v.SetDefault("authz.l1_size", 4096)
	v.SetDefault("authz.l1_max_ttl_sec", 60)
	v.SetDefault("authz.scope_cache_size", 4096)
	v.SetDefault("authz.scope_ttl_sec", 600)
	v.SetDefault("authz.sync_enable", false)
}

// Validate 逻辑校验
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr required")
	}
	if len(c.JWT.Secret) < 16 {
		return fmt.Errorf("jwt.secret too short (>=16)")
	}
	if c.JWT.ExpireSeconds <= 0 {
		return fmt.Errorf("jwt.expire_seconds must >0")
	}
	if c.OTel.Enable {
		if c.OTel.Endpoint == "" {
			return errors.New("otel.endpoint required when otel.enable=true")
		}
		if c.OTel.SamplerRatio < 0 || c.OTel.SamplerRatio > 1 {
			return errors.New("otel.sampler_ratio must be in [0,1]")
		}
	}
	switch c.Authz.LockBackend {
	case "local":
	case "etcd":
		if len(c.Etcd.Endpoints) == 0 {
			return errors.New("authz.lock_backend=etcd requires etcd.endpoints")
		}
	default:
		return fmt.Errorf("authz.lock_backend must be local or etcd, got %q", c.Authz.LockBackend)
	}
	if c.Authz.SyncEnable && (len(c.Kafka.Brokers) == 0 || c.Kafka.AuthzTopic == "") {
		return errors.New("authz.sync_enable requires kafka.brokers and kafka.authz_topic")
	}
	if c.Authz.PermissionTTLSec <= 0 || c.Authz.ScopeTTLSec <= 0 {
		return errors.New("authz cache ttl must >0")
	}
	return nil
}
