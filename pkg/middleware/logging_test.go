package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/api/me", func(c *gin.Context) {
		c.Request = c.Request.WithContext(identity.WithActor(c.Request.Context(), identity.Actor{ID: "alice"}))
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/health", "/boom", "/api/me"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	require.EqualValues(t, 500, entries[1].ContextMap()["status"])
	require.Equal(t, zapcore.InfoLevel, entries[2].Level)
	require.Equal(t, "alice", entries[2].ContextMap()["actor"])
	require.Equal(t, "/api/me", entries[2].ContextMap()["path"])
}
