package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go-sysadmin/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware(), Metrics(), func(c *gin.Context) {
		c.Set("user_id", int64(7))
		c.Next()
	}, LoggerContextMiddleware(logging.Nop()))
	r.GET("/x", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, gin.H{
			"trace":  ctx.Value(logging.TraceIDKey),
			"uid":    ctx.Value(logging.UserIDKey),
			"logger": LoggerFrom(ctx) != nil,
		})
	})
	return r
}

func TestTraceMiddleware_KeepsUpstreamID(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(TraceIDHeader, "abc-123")
	traceEngine().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(TraceIDHeader))
	assert.Contains(t, w.Body.String(), `"trace":"abc-123"`)
	assert.Contains(t, w.Body.String(), `"uid":7`)
}

func TestTraceMiddleware_GeneratesID(t *testing.T) {
	w := httptest.NewRecorder()
	traceEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	id := w.Header().Get(TraceIDHeader)
	require.NotEmpty(t, id)

	w2 := httptest.NewRecorder()
	traceEngine().ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEqual(t, id, w2.Header().Get(TraceIDHeader))
}
