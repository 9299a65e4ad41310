package retcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	assert.Equal(t, "不存在", Message(NOT_EXISTS))
	assert.Equal(t, "删除失败", Message(DELETE_FAILED))
	assert.Equal(t, "未知错误", Message(12345))
}

func TestCodesAreFailuresExceptSuccess(t *testing.T) {
	for code := range messages {
		if code == SUCCESS {
			continue
		}
		assert.Less(t, code, 0, "code %d", code)
	}
}
