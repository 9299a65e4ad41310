package response

import (
	"go-sysadmin/internal/util/retcode"

	"github.com/gin-gonic/gin"
)

type Body struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

func JSON(c *gin.Context, code int, msg string, data interface{}) {
	c.JSON(200, Body{Code: code, Msg: msg, Data: data})
}

func Success(c *gin.Context, data interface{}) {
	JSON(c, retcode.SUCCESS, "success", data)
}

// Error code 为负值业务码；误传 HTTP 状态码时归为 INVALID，msg 为空取默认提示
func Error(c *gin.Context, code int, msg string) {
	if code >= 0 {
		code = retcode.INVALID
	}
	if msg == "" {
		msg = retcode.Message(code)
	}
	JSON(c, code, msg, nil)
}
