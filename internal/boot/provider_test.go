package boot

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go-sysadmin/internal/config"
	"go-sysadmin/internal/pkg/cache"
	redisrepo "go-sysadmin/internal/repository/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Authz.L1Size = 16
	c.Authz.L1MaxTTLSec = 5
	c.Authz.LockBackend = "local"
	return c
}

func TestOptionalProvidersDisabled(t *testing.T) {
	c := testConfig()
	assert.Nil(t, NewRedis(c))
	assert.Nil(t, NewKafkaProducer(c))
	e, err := NewEtcd(c)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Nil(t, NewEtcdLocker(c, nil, nil))
	assert.NotEqual(t, NewInstanceID(), NewInstanceID())
}

func TestNewPermissionCache(t *testing.T) {
	c := testConfig()
	_, ok := NewPermissionCache(c, nil).(*cache.LRUAdapter)
	assert.True(t, ok, "no redis means a single LRU layer")

	mr := miniredis.RunT(t)
	c.Redis.Addr = mr.Addr()
	r := NewRedis(c)
	require.NotNil(t, r)
	t.Cleanup(func() { _ = r.Close() })

	lc, ok := NewPermissionCache(c, r).(*cache.LayeredCache)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, lc.L1MaxTTL)

	ctx := context.Background()
	require.NoError(t, lc.SetEX(ctx, "authz:perm:7", "a,b", time.Minute))
	assert.True(t, mr.Exists("authz:perm:7"))
	ttl, ok := lc.L1.(*cache.LRUAdapter).RemainingTTL(ctx, "authz:perm:7")
	assert.True(t, ok)
	assert.LessOrEqual(t, ttl, 5*time.Second)
}

func TestNewHealthChecker_DisabledDepsStayReady(t *testing.T) {
	mr := miniredis.RunT(t)
	r := redisrepo.New(redisrepo.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = r.Close() })
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	hc := NewHealthChecker(db, r, nil, nil)
	res, code := hc.Readiness(context.Background())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "up", res["db"])
	assert.Equal(t, "up", res["redis"])
	assert.Equal(t, "disabled", res["kafka"])
	assert.Equal(t, "disabled", res["etcd"])

	mr.Close()
	hc.Refresh()
	res, code = hc.Readiness(context.Background())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", res["status"])
}
