package observability

import (
	"context"

	"go-sysadmin/internal/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loggerKey struct{}

// LoggerContextMiddleware 将带 trace_id / user_id 字段的 logger 放入请求 context，
// 需挂在 Auth 之后 user_id 才可见
func LoggerContextMiddleware(base *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if v, ok := c.Get(TraceIDKey); ok {
			ctx = context.WithValue(ctx, logging.TraceIDKey, v)
		}
		if uid, ok := c.Get("user_id"); ok {
			ctx = context.WithValue(ctx, logging.UserIDKey, uid)
		}
		ctx = context.WithValue(ctx, loggerKey{}, base.WithContext(ctx))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// LoggerFrom 返回请求级 logger；未经过中间件时返回 nop
func LoggerFrom(ctx context.Context) *zap.Logger {
	if lg, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return lg
	}
	return zap.NewNop()
}
