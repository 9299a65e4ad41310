package security

import (
	"strings"

	"go-sysadmin/internal/logging"
	"go-sysadmin/internal/security/jwt"
	"go-sysadmin/internal/util/retcode"
	"go-sysadmin/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserIDKey gin.Context 中当前用户 ID 的键
const UserIDKey = "user_id"

// Auth 校验 Bearer 令牌并写入 user_id
func Auth(j *jwt.Manager, lg *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			response.Error(c, retcode.AUTH_ERROR, "missing token")
			c.Abort()
			return
		}
		claims, err := j.Parse(strings.TrimSpace(auth[7:]))
		if err != nil {
			if lg != nil {
				lg.WithContext(c.Request.Context()).Debug("token_rejected", zap.Error(err))
			}
			response.Error(c, retcode.ACCESS_TOKEN_TIMEOUT, "invalid token")
			c.Abort()
			return
		}
		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}
