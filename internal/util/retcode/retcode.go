package retcode

// 业务码沿用后台旧约定（成功 1，失败为负值），HTTP 状态码恒为 200
const (
	SUCCESS              = 1
	INVALID              = -1
	DB_SAVE_ERROR        = -2
	DB_READ_ERROR        = -3
	NOT_EXISTS           = -8
	JSON_PARSE_FAIL      = -9
	EMPTY_PARAMS         = -12
	DATA_EXISTS          = -13
	AUTH_ERROR           = -14
	DELETE_FAILED        = -20
	PARAM_INVALID        = -995
	ACCESS_TOKEN_TIMEOUT = -996
	EXCEPTION            = -999
)

var messages = map[int]string{
	SUCCESS:              "请求成功",
	INVALID:              "非法操作",
	DB_SAVE_ERROR:        "数据存储失败",
	DB_READ_ERROR:        "数据读取失败",
	NOT_EXISTS:           "不存在",
	JSON_PARSE_FAIL:      "JSON数据格式错误",
	EMPTY_PARAMS:         "丢失必要数据",
	DATA_EXISTS:          "数据已经存在",
	AUTH_ERROR:           "权限认证失败",
	DELETE_FAILED:        "删除失败",
	PARAM_INVALID:        "数据类型非法",
	ACCESS_TOKEN_TIMEOUT: "身份令牌过期",
	EXCEPTION:            "系统异常",
}

// Message 业务码默认提示；未知码返回 "未知错误"
func Message(code int) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return "未知错误"
}
