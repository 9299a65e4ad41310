package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

// context 中携带的日志字段键
const (
	TraceIDKey ctxKey = "trace_id"
	UserIDKey  ctxKey = "user_id"
)

type Logger struct {
	*zap.Logger
}

// New console 使用开发配置，其余为 JSON 生产配置
func New(level, format, service string) (*Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if level != "" {
		if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
	}
	if service != "" {
		cfg.InitialFields = map[string]interface{}{"service": service}
	}
	lg, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{lg}, nil
}

// Nop 测试与未配置场景使用
func Nop() *Logger { return &Logger{zap.NewNop()} }

func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return l.Logger
	}
	fields := make([]zap.Field, 0, 2)
	if s, ok := ctx.Value(TraceIDKey).(string); ok && s != "" {
		fields = append(fields, zap.String("trace_id", s))
	}
	if id, ok := ctx.Value(UserIDKey).(int64); ok && id > 0 {
		fields = append(fields, zap.Int64("user_id", id))
	}
	if len(fields) == 0 {
		return l.Logger
	}
	return l.Logger.With(fields...)
}
