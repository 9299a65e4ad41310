package etcd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSortsAndDedupes(t *testing.T) {
	assert.Equal(t, []string{"dept:1", "dept:2", "user:7"}, normalize([]string{"user:7", "dept:2", "dept:1", "dept:2"}))
	assert.Empty(t, normalize(nil))
}

func TestNewLockerDefaults(t *testing.T) {
	l := NewLocker(nil, "/locks/app/", 0, nil)
	assert.Equal(t, "/locks/app", l.prefix)
	assert.Equal(t, 10, l.ttl)
	assert.NoError(t, l.Close())
}
